// Command rafs-image is the builder CLI surface of spec section 6:
// create, check, inspect and stat subcommands over a rafs bootstrap.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "rafs-image",
	Short:         "Build and inspect rafs bootstrap images",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
