package source

import (
	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// Bootstrap builds a tree.Tree by parsing an existing metadata blob and
// rebuilding an equivalent in-memory tree (spec 4.F). Every node is marked
// Lower and every regular file's chunks are registered into Dict so a
// second-layer build dedups against the parent image.
type Bootstrap struct {
	Source tree.BootstrapSource
	Dict   *rafs.ChunkDict
}

// Build rebuilds the tree rooted at Source's root inode.
func (b *Bootstrap) Build() (*tree.Tree, error) {
	dict := b.Dict
	if dict == nil {
		dict = rafs.NewChunkDict()
	}
	return tree.FromBootstrap(b.Source, dict)
}
