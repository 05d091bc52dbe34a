package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/format"
	"github.com/KarpelesLab/rafs/loader"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bootstrap>",
	Short: "Print a bootstrap's superblock and blob table",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return rafs.NewError(rafs.KindIO, args[0], err)
	}
	defer f.Close()

	sup, err := loader.Open(f)
	if err != nil {
		return err
	}
	sb := sup.SuperBlock()

	fmt.Printf("version:        %d\n", sup.Version)
	fmt.Printf("inode count:    %d\n", sb.InodeCount)
	fmt.Printf("chunk size:     %d\n", sb.ChunkSize)
	fmt.Printf("compressor:     %s\n", rafs.Compressor(sb.Compressor))
	fmt.Printf("digester:       %s\n", rafs.Algorithm(sb.Digester))
	fmt.Printf("bytes used:     %d\n", sb.BytesUsed)
	fmt.Printf("repeatable:     %t\n", sb.HasFlag(format.FlagRepeatable))
	fmt.Printf("checksum ok:    %t\n", sb.VerifyChecksum())

	blobs, err := sup.Blobs()
	if err != nil {
		return err
	}
	fmt.Printf("blobs:          %d\n", len(blobs))
	for _, b := range blobs {
		fmt.Printf("  [%d] %s  chunks=%d compressed=%d uncompressed=%d compressor=%s\n",
			b.Index, b.BlobID, b.ChunkCount, b.CompressedTotal, b.UncompressedTotal, b.Compressor)
	}
	return nil
}
