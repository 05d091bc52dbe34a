package loader

import (
	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/format"
)

// nodeInfo carries the bits of reader state that ride alongside a decoded
// node but aren't part of rafs.Node itself: for V6, where it was found
// and whether a chunk locator follows. V5 decodes children and chunks
// inline, so its nodeInfo stays zero.
type nodeInfo struct {
	locatorOff uint64 // V6: offset of the chunk-info/dirent-block locator
	chunkCnt   int    // V6: chunk count from the header, 0 if none
}

// childHandle locates one directory child without requiring it be
// decoded: a V5 ino number, or a V6 absolute inode offset plus extended
// flag.
type childHandle struct {
	ino      uint64
	offset   uint64
	extended bool
}

// backend hides the V5/V6 wire-format difference behind the handful of
// operations Inode needs: load a node by ino, load a node by a child
// handle discovered via its parent, enumerate a directory's children, and
// resolve a regular file's chunk descriptors. V5 inodes arrive fully
// hydrated (children and chunks inline); V6 needs a second I/O round trip
// for both, via the locator nodeInfo carries forward.
type backend interface {
	loadByIno(ino uint64) (*rafs.Node, nodeInfo, error)
	loadAt(h childHandle) (*rafs.Node, nodeInfo, error)
	dirChildren(n *rafs.Node, info nodeInfo) ([]childHandle, error)
	chunksOf(n *rafs.Node, info nodeInfo) ([]rafs.ChunkDescriptor, error)
	blobs() ([]*rafs.BlobDescriptor, error)
	superblock() format.SuperBlock
}

// v5Backend resolves inodes through the sequential layout's dense
// ino->offset array; every decode already includes Children and Chunks.
type v5Backend struct {
	r       *format.V5Reader
	offsets []uint64 // ino-1 indexed
}

func (b *v5Backend) loadByIno(ino uint64) (*rafs.Node, nodeInfo, error) {
	if ino == 0 || ino > uint64(len(b.offsets)) {
		return nil, nodeInfo{}, rafs.NewError(rafs.KindCorruption, "", rafs.ErrChunkOutOfRange)
	}
	off := b.offsets[ino-1]
	maxLen := b.r.SB.BytesUsed - off
	if int(ino) < len(b.offsets) {
		maxLen = b.offsets[ino] - off
	}
	node, err := b.r.ReadInode(off, int(maxLen))
	if err != nil {
		return nil, nodeInfo{}, err
	}
	return node, nodeInfo{}, nil
}

func (b *v5Backend) loadAt(h childHandle) (*rafs.Node, nodeInfo, error) {
	return b.loadByIno(h.ino)
}

func (b *v5Backend) dirChildren(n *rafs.Node, _ nodeInfo) ([]childHandle, error) {
	if !n.IsDir() {
		return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrNotDirectory)
	}
	refs := make([]childHandle, len(n.Children))
	for i, ino := range n.Children {
		refs[i] = childHandle{ino: ino}
	}
	return refs, nil
}

func (b *v5Backend) chunksOf(n *rafs.Node, _ nodeInfo) ([]rafs.ChunkDescriptor, error) {
	return n.Chunks, nil
}

func (b *v5Backend) blobs() ([]*rafs.BlobDescriptor, error) { return b.r.Blobs() }

func (b *v5Backend) superblock() format.SuperBlock { return b.r.SB }

// v6Backend resolves inodes through the erofs-compatible layout: an ino
// offset table for direct lookups, and dirent blocks (whose entries carry
// a meta offset plus the extended-form bit) for directory traversal.
type v6Backend struct {
	r *format.V6Reader
}

func (b *v6Backend) loadByIno(ino uint64) (*rafs.Node, nodeInfo, error) {
	off, extended, err := b.r.Locate(ino)
	if err != nil {
		return nil, nodeInfo{}, err
	}
	return b.loadOffset(off, extended)
}

func (b *v6Backend) loadAt(h childHandle) (*rafs.Node, nodeInfo, error) {
	return b.loadOffset(h.offset, h.extended)
}

func (b *v6Backend) loadOffset(off uint64, extended bool) (*rafs.Node, nodeInfo, error) {
	node, locatorOff, chunkCnt, err := b.r.ReadInodeAtOffset(off, extended)
	if err != nil {
		return nil, nodeInfo{}, err
	}
	return node, nodeInfo{locatorOff: locatorOff, chunkCnt: chunkCnt}, nil
}

func (b *v6Backend) dirChildren(n *rafs.Node, info nodeInfo) ([]childHandle, error) {
	if !n.IsDir() {
		return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrNotDirectory)
	}
	firstBlock, blockCount, err := b.r.DirLocator(info.locatorOff)
	if err != nil {
		return nil, err
	}
	if blockCount == 0 {
		return nil, nil
	}
	// The locator and dirent nids are meta-area relative; the reader
	// takes absolute offsets.
	meta := b.r.SB.MetaAreaOffset
	entries, err := b.r.DirEntries(meta+firstBlock, blockCount)
	if err != nil {
		return nil, err
	}
	refs := make([]childHandle, len(entries))
	for i, e := range entries {
		refs[i] = childHandle{offset: meta + e.Nid, extended: e.Extended}
	}
	return refs, nil
}

func (b *v6Backend) chunksOf(n *rafs.Node, info nodeInfo) ([]rafs.ChunkDescriptor, error) {
	if !n.IsRegular() || info.chunkCnt == 0 {
		return nil, nil
	}
	return b.r.Chunks(info.locatorOff)
}

func (b *v6Backend) blobs() ([]*rafs.BlobDescriptor, error) { return b.r.Blobs() }

func (b *v6Backend) superblock() format.SuperBlock { return b.r.SB }
