package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/builder"
	"github.com/KarpelesLab/rafs/format"
	"github.com/KarpelesLab/rafs/loader"
	"github.com/KarpelesLab/rafs/source"
	"github.com/KarpelesLab/rafs/tree"
)

var createOpts struct {
	bootstrapPath string
	blobDir       string
	sourceType    string
	source        string
	parentBoot    string
	diffLayers    string
	diffSkip      int

	chunkSize  uint32
	compressor string
	digester   string
	repeatable bool
	fsVersion  uint32
	validate   bool

	overlayDir      string
	whiteoutSpec    string
	stargzBlobIndex uint32
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Build a rafs bootstrap from a source tree",
	RunE:  runCreate,
}

func init() {
	f := createCmd.Flags()
	f.StringVar(&createOpts.bootstrapPath, "bootstrap", "", "output bootstrap path (required)")
	f.StringVar(&createOpts.blobDir, "blob-dir", "", "directory to write output data blobs into")
	f.StringVar(&createOpts.sourceType, "source-type", "directory", "directory|bootstrap|stargz|diff")
	f.StringVar(&createOpts.source, "source", "", "directory path, parent bootstrap path, or stargz index path")
	f.StringVar(&createOpts.parentBoot, "parent-bootstrap", "", "parent bootstrap path (bootstrap source, or diff with --diff-skip)")
	f.StringVar(&createOpts.diffLayers, "diff-layers", "", "comma-separated ordered list of overlay upper directories (diff source)")
	f.IntVar(&createOpts.diffSkip, "diff-skip", 0, "leading diff layers already baked into --parent-bootstrap")
	f.Uint32Var(&createOpts.chunkSize, "chunk-size", rafs.DefaultChunkSize, "chunk size in bytes, power of two in [4KiB, 1MiB]")
	f.StringVar(&createOpts.compressor, "compressor", "lz4_block", "none|lz4_block|gzip")
	f.StringVar(&createOpts.digester, "digester", "blake3", "blake3|sha256")
	f.BoolVar(&createOpts.repeatable, "repeatable", false, "deterministic, bit-for-bit reproducible output")
	f.Uint32Var(&createOpts.fsVersion, "fs-version", 5, "bootstrap layout version: 5 or 6")
	f.BoolVar(&createOpts.validate, "validate", false, "re-open and validate the bootstrap after writing it")
	f.StringVar(&createOpts.overlayDir, "overlay", "", "single upper directory to apply on top of the ingested tree")
	f.StringVar(&createOpts.whiteoutSpec, "whiteout-spec", "oci", "oci|overlayfs (only with --overlay)")
	f.Uint32Var(&createOpts.stargzBlobIndex, "stargz-blob-index", 0, "blob index chunks reference (stargz source)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	if createOpts.bootstrapPath == "" {
		return rafs.NewError(rafs.KindConfigure, "bootstrap", nil)
	}

	comp, err := rafs.ParseCompressor(createOpts.compressor)
	if err != nil {
		return err
	}
	digest, err := rafs.ParseAlgorithm(createOpts.digester)
	if err != nil {
		return err
	}
	version := format.Version(createOpts.fsVersion)

	opts := builder.Options{
		ChunkSize:  createOpts.chunkSize,
		Compressor: comp,
		Digester:   digest,
		Repeatable: createOpts.repeatable,
		Version:    version,
		BlobDir:    createOpts.blobDir,
		Validate:   createOpts.validate,
	}

	switch createOpts.sourceType {
	case "directory":
		opts.SourceType = builder.SourceDirectory
		opts.DirectoryRoot = createOpts.source
	case "bootstrap":
		bootPath := createOpts.parentBoot
		if bootPath == "" {
			bootPath = createOpts.source
		}
		f, err := os.Open(bootPath)
		if err != nil {
			return rafs.NewError(rafs.KindIO, bootPath, err)
		}
		defer f.Close()
		opts.SourceType = builder.SourceBootstrap
		opts.ParentBootstrap = f
	case "stargz":
		f, err := os.Open(createOpts.source)
		if err != nil {
			return rafs.NewError(rafs.KindIO, createOpts.source, err)
		}
		defer f.Close()
		opts.SourceType = builder.SourceStargz
		opts.StargzIndex = f
		opts.StargzBlobIndex = createOpts.stargzBlobIndex
	case "diff":
		opts.SourceType = builder.SourceDiff
		opts.DiffLayers = splitNonEmpty(createOpts.diffLayers)
		opts.DiffSkip = createOpts.diffSkip
		if createOpts.parentBoot != "" {
			cached, err := loadCachedTree(createOpts.parentBoot)
			if err != nil {
				return err
			}
			opts.DiffCached = cached
		}
	default:
		return rafs.NewError(rafs.KindConfigure, "source-type", nil)
	}

	if createOpts.overlayDir != "" {
		spec := tree.WhiteoutSpecOCI
		if createOpts.whiteoutSpec == "overlayfs" {
			spec = tree.WhiteoutSpecOverlayFS
		}
		opts.Overlay = &builder.OverlayOptions{UpperRoot: createOpts.overlayDir, Spec: spec}
	}

	b, err := builder.New(opts, logger)
	if err != nil {
		return err
	}
	result, err := b.Build(createOpts.bootstrapPath)
	if err != nil {
		return err
	}

	logger.Info().
		Int("inodes", result.InodeCount).
		Int("blobs", len(result.Blobs)).
		Uint64("bootstrap_size", result.BootstrapSize).
		Msg("created")
	if result.ValidateReport != nil && !result.ValidateReport.OK() {
		for _, f := range result.ValidateReport.Findings {
			logger.Warn().Str("check", f.Check).Msg(f.Message)
		}
	}
	return nil
}

// loadCachedTree opens a parent bootstrap and reconstructs its tree, so a
// diff build can skip re-chunking layers already baked into it (--diff-skip).
func loadCachedTree(path string) (*tree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rafs.NewError(rafs.KindIO, path, err)
	}
	defer f.Close()

	sup, err := loader.Open(f)
	if err != nil {
		return nil, err
	}
	bs := &source.Bootstrap{Source: sup}
	return bs.Build()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
