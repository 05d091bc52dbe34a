package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/loader"
)

var statCmd = &cobra.Command{
	Use:   "stat <bootstrap> <path>",
	Short: "Print one inode's metadata, resolved by path",
	Args:  cobra.ExactArgs(2),
	RunE:  runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return rafs.NewError(rafs.KindIO, args[0], err)
	}
	defer f.Close()

	sup, err := loader.Open(f)
	if err != nil {
		return err
	}
	n, err := resolvePath(sup, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("ino:      %d\n", n.Ino())
	fmt.Printf("name:     %s\n", n.Name())
	fmt.Printf("mode:     %s\n", n.Mode())
	fmt.Printf("uid/gid:  %d/%d\n", n.UID(), n.GID())
	fmt.Printf("size:     %d\n", n.Size())
	fmt.Printf("nlink:    %d\n", n.NLink())
	switch {
	case n.IsDir():
		fmt.Printf("children: %d\n", n.ChildCount())
	case n.IsReg():
		fmt.Printf("chunks:   %d\n", n.ChunkCount())
	case n.IsSymlink():
		target, err := n.GetSymlink()
		if err != nil {
			return err
		}
		fmt.Printf("target:   %s\n", target)
	}
	return nil
}

func resolvePath(sup *loader.RafsSuper, p string) (*loader.Inode, error) {
	n, err := sup.GetInode(rafs.RootIno, false)
	if err != nil {
		return nil, err
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return n, nil
	}
	for _, part := range strings.Split(p, "/") {
		if !n.IsDir() {
			return nil, rafs.NewError(rafs.KindCorruption, p, rafs.ErrNotDirectory)
		}
		n, err = n.ChildByName(part)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
