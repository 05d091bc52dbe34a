// Package validate re-parses a freshly written bootstrap and checks the
// six invariants spec 4.I names: inode reachability, nlink consistency,
// chunk-index range, file tiling, per-blob chunk-count consistency, and
// the superblock checksum. It is the same "load it back and check it"
// idea the builder's optional Validate state runs after Serialize (spec
// 4.G's state machine).
package validate

import (
	"fmt"
	"sort"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/loader"
)

// Finding is one failed invariant. Validate keeps checking after a
// Finding so a single run surfaces every problem, not just the first.
type Finding struct {
	Check   string
	Message string
}

// Report is the outcome of a full validation pass.
type Report struct {
	InodesVisited int
	Findings      []Finding
}

// OK reports whether the pass found no problems.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

func (r *Report) fail(check, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Check: check, Message: fmt.Sprintf(format, args...)})
}

// Validate walks sup from its root and checks all six invariants. A
// non-nil error return means the walk itself failed (a corrupt table
// that can't even be traversed); Findings report invariants that *could*
// be checked but didn't hold.
func Validate(sup *loader.RafsSuper) (*Report, error) {
	r := &Report{}

	sb := sup.SuperBlock()
	if !sb.VerifyChecksum() {
		r.fail("checksum", "superblock checksum mismatch")
	}

	blobs, err := sup.Blobs()
	if err != nil {
		return nil, err
	}
	blobMaxChunkIdx := make([]int, len(blobs))
	for i := range blobMaxChunkIdx {
		blobMaxChunkIdx[i] = -1
	}

	visited := make(map[uint64]bool)
	root, err := sup.GetInode(rafs.RootIno, false)
	if err != nil {
		return nil, err
	}

	var walk func(n *loader.Inode) error
	walk = func(n *loader.Inode) error {
		if visited[n.Ino()] {
			return nil
		}
		visited[n.Ino()] = true
		r.InodesVisited++

		if n.IsDir() {
			checkDirNLink(r, n)
		}
		if n.IsReg() {
			checkChunks(r, n, blobs, blobMaxChunkIdx)
		}

		count := n.ChildCount()
		for i := uint32(0); i < count; i++ {
			child, err := n.Child(i)
			if err != nil {
				return err
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	if uint64(r.InodesVisited) != sb.InodeCount {
		r.fail("reachability", "table declares %d inodes but only %d are reachable from root",
			sb.InodeCount, r.InodesVisited)
	}

	for i, b := range blobs {
		if uint32(blobMaxChunkIdx[i]+1) != b.ChunkCount && blobMaxChunkIdx[i] >= 0 {
			r.fail("blob-count", "blob %d (%s) declares %d chunks but the highest referenced index implies %d",
				i, b.BlobID, b.ChunkCount, blobMaxChunkIdx[i]+1)
		}
	}

	return r, nil
}

// checkDirNLink checks the one nlink relationship the tree itself can
// reconstruct exactly: a directory's link count is 2 (self, and its own
// name entry in its parent) plus one per immediate subdirectory (each
// contributes a ".." entry back to it). Regular-file nlink (hardlink
// count) is NOT checked here: src_dev/src_ino are build-time-only and
// never serialized, so a loaded bootstrap has no way to tell that two
// separate inodes were the same file on disk: see DESIGN.md.
func checkDirNLink(r *Report, n *loader.Inode) {
	count := n.ChildCount()
	subdirs := uint32(0)
	for i := uint32(0); i < count; i++ {
		c, err := n.Child(i)
		if err != nil {
			continue
		}
		if c.IsDir() {
			subdirs++
		}
	}
	want := 2 + subdirs
	if n.NLink() != 0 && n.NLink() != want {
		r.fail("nlink", "directory ino %d: nlink=%d, expected %d (2 + %d subdirectories)",
			n.Ino(), n.NLink(), want, subdirs)
	}
}

func checkChunks(r *Report, n *loader.Inode, blobs []*rafs.BlobDescriptor, blobMaxChunkIdx []int) {
	cnt := n.ChunkCount()
	type span struct {
		off, size uint64
	}
	spans := make([]span, 0, cnt)

	for i := uint32(0); i < cnt; i++ {
		cd, err := n.ChunkInfo(i)
		if err != nil {
			r.fail("chunk-range", "ino %d chunk %d: %s", n.Ino(), i, err)
			continue
		}
		if cd.BlobIndex >= uint32(len(blobs)) {
			r.fail("chunk-range", "ino %d chunk %d: blob index %d out of range (%d blobs)",
				n.Ino(), i, cd.BlobIndex, len(blobs))
			continue
		}
		if cd.ChunkIndex >= blobs[cd.BlobIndex].ChunkCount {
			r.fail("chunk-range", "ino %d chunk %d: chunk index %d out of range for blob %d (%d chunks)",
				n.Ino(), i, cd.ChunkIndex, cd.BlobIndex, blobs[cd.BlobIndex].ChunkCount)
		}
		if int(cd.ChunkIndex) > blobMaxChunkIdx[cd.BlobIndex] {
			blobMaxChunkIdx[cd.BlobIndex] = int(cd.ChunkIndex)
		}
		spans = append(spans, span{off: cd.FileOffset, size: uint64(cd.UncompressedSize)})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].off < spans[j].off })
	var cursor uint64
	for _, s := range spans {
		if s.off != cursor {
			r.fail("tiling", "ino %d: chunk at offset %d does not continue from %d", n.Ino(), s.off, cursor)
			return
		}
		cursor += s.size
	}
	if cnt > 0 && cursor != n.Size() {
		r.fail("tiling", "ino %d: chunks cover [0, %d) but size is %d", n.Ino(), cursor, n.Size())
	}
}
