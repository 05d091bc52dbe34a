package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/loader"
	"github.com/KarpelesLab/rafs/validate"
)

var checkCmd = &cobra.Command{
	Use:   "check <bootstrap>",
	Short: "Validate a bootstrap's invariants (spec 4.I)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return rafs.NewError(rafs.KindIO, args[0], err)
	}
	defer f.Close()

	sup, err := loader.Open(f)
	if err != nil {
		return err
	}
	report, err := validate.Validate(sup)
	if err != nil {
		return err
	}

	fmt.Printf("inodes visited: %d\n", report.InodesVisited)
	if report.OK() {
		fmt.Println("OK")
		return nil
	}
	for _, finding := range report.Findings {
		fmt.Printf("%s: %s\n", finding.Check, finding.Message)
	}
	return rafs.NewError(rafs.KindCorruption, args[0], nil)
}
