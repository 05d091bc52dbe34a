// Package builder orchestrates the build-time pipeline of spec 4.D and
// 4.G: it turns a source adapter's tree into assigned inodes, chunks
// regular file content into deduplicated blobs, and serializes the
// result as a V5 or V6 bootstrap, following the state machine
// Init -> IngestSources -> BuildTree -> (ApplyOverlay)? -> AssignInodes ->
// EmitChunks -> Serialize -> (Validate)? -> Done.
package builder

import (
	"io"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/format"
	"github.com/KarpelesLab/rafs/tree"
	"github.com/KarpelesLab/rafs/validate"
)

// SourceType selects which of the four 4.F adapters produces the initial
// tree.
type SourceType int

const (
	SourceDirectory SourceType = iota
	SourceBootstrap
	SourceStargz
	SourceDiff
)

// State names one step of the per-build state machine (spec 4.G).
type State int

const (
	StateInit State = iota
	StateIngestSources
	StateBuildTree
	StateApplyOverlay
	StateAssignInodes
	StateEmitChunks
	StateSerialize
	StateValidate
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIngestSources:
		return "ingest-sources"
	case StateBuildTree:
		return "build-tree"
	case StateApplyOverlay:
		return "apply-overlay"
	case StateAssignInodes:
		return "assign-inodes"
	case StateEmitChunks:
		return "emit-chunks"
	case StateSerialize:
		return "serialize"
	case StateValidate:
		return "validate"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// OverlayOptions applies a single upper-layer directory onto the tree
// IngestSources produced, independent of the SourceDiff adapter (which
// applies a whole stack of upper layers itself). Typical use: a
// SourceBootstrap lower tree with one upper directory layered on top.
type OverlayOptions struct {
	UpperRoot string
	Spec      tree.WhiteoutSpec
}

// Options configures one build. Zero-valued fields fall back to spec
// defaults in Init: ChunkSize to rafs.DefaultChunkSize, Digester to blake3,
// Version to V5, RotationPolicy to one-blob-per-image. Compressor's zero
// value is rafs.CompressorNone and is kept as such. A SourceStargz build
// always uses gzip and sha256, whatever Compressor and Digester say.
type Options struct {
	SourceType SourceType

	// SourceDirectory reads DirectoryRoot; SourceDiff reads
	// DiffLayers/DiffSkip/DiffCached and never DirectoryRoot.
	DirectoryRoot string
	DiffLayers    []string
	DiffSkip      int
	DiffCached    *tree.Tree

	// SourceBootstrap parses ParentBootstrap and rebuilds its tree;
	// SourceDiff with DiffSkip > 0 also needs it to seed DiffCached's
	// dictionary entries, left to the caller to arrange.
	ParentBootstrap io.ReaderAt

	// SourceStargz parses StargzIndex, attributing chunks to
	// StargzBlobIndex.
	StargzIndex     io.Reader
	StargzBlobIndex uint32

	// Overlay, when set, is applied after BuildTree regardless of
	// SourceType.
	Overlay *OverlayOptions

	// Opener resolves a tree node's raw content for chunking. Required
	// unless every node already carries Chunks (a pure SourceBootstrap or
	// SourceStargz build with no overlay).
	Opener FileOpener

	ChunkSize      uint32
	Compressor     rafs.Compressor
	Digester       rafs.Algorithm
	Repeatable     bool
	Version        format.Version
	RotationPolicy rafs.RotationPolicy

	// BlobDir is where NewBlobWriter's default implementation creates
	// one file per output blob, named by the generated ID the blob is
	// opened with. With Repeatable, the blob's ID is replaced by its
	// content digest when sealed and the file keeps its original name.
	// Ignored if NewBlobWriter is set explicitly.
	BlobDir       string
	NewBlobWriter func(blobID string) (rafs.BlobWriter, error)

	// ParentDict seeds the active chunk dictionary, e.g. from a
	// separately loaded parent bootstrap's chunk table.
	ParentDict *rafs.ChunkDict

	// Validate re-opens the written bootstrap and runs validate.Validate
	// on it before returning (the state machine's optional Validate
	// step).
	Validate bool
}

// Result is what a completed Build returns.
type Result struct {
	BootstrapSize  uint64
	InodeCount     int
	Blobs          []*rafs.BlobDescriptor
	ValidateReport *validate.Report
}
