package builder

import (
	"io"
	"os"
	"path/filepath"

	"github.com/KarpelesLab/rafs"
)

// FileOpener resolves a tree node's raw content for chunking (spec 4.D's
// store_chunk needs the uncompressed bytes; the tree itself only carries
// metadata plus, for bootstrap/stargz-sourced nodes, chunks that already
// exist and need no re-opening).
type FileOpener interface {
	Open(n *rafs.Node) (io.ReadCloser, error)
}

// DirOpener resolves content under a single directory root, matching
// Node.Path the way source.Directory assigned it. Used for a plain
// SourceDirectory build.
type DirOpener struct {
	Root string
}

func (o *DirOpener) Open(n *rafs.Node) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(o.Root, n.Path))
	if err != nil {
		return nil, rafs.NewError(rafs.KindIO, n.Path, err)
	}
	return f, nil
}

// LayeredOpener resolves content by trying each root from the topmost
// (last) layer down, used for a SourceDiff build where a surviving node
// may have been contributed by any layer in the stack.
type LayeredOpener struct {
	Roots []string // bottom-to-top, matching Diff.Layers order
}

func (o *LayeredOpener) Open(n *rafs.Node) (io.ReadCloser, error) {
	for i := len(o.Roots) - 1; i >= 0; i-- {
		f, err := os.Open(filepath.Join(o.Roots[i], n.Path))
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			return nil, rafs.NewError(rafs.KindIO, n.Path, err)
		}
	}
	return nil, rafs.NewError(rafs.KindIO, n.Path, os.ErrNotExist)
}
