package rafs

// ChunkFlag is a bitset recorded per chunk (spec section 3).
type ChunkFlag uint32

const (
	// ChunkCompressed marks that CompressedSize bytes of compressed data
	// sit at CompressedOffset; when absent, the chunk is stored raw.
	ChunkCompressed ChunkFlag = 1 << iota
	// ChunkHasHole marks a fully-sparse chunk (all zero bytes); such
	// chunks are not actually stored in a blob.
	ChunkHasHole
	// ChunkAligned4K marks a chunk whose compressed payload starts at a
	// 4 KiB aligned offset in its blob (V6 aligned-chunk feature).
	ChunkAligned4K
)

func (f ChunkFlag) Has(flag ChunkFlag) bool { return f&flag == flag }

// ChunkDescriptor fully locates and identifies one content chunk (spec
// section 3). Invariant: UncompressedSize <= chunk size for the image;
// for every chunk but possibly the last of a file, UncompressedSize
// equals the image chunk size exactly.
type ChunkDescriptor struct {
	Digest Digest

	BlobIndex uint32
	ChunkIndex uint32 // position within the owning blob's chunk table

	CompressedOffset uint64
	CompressedSize   uint32

	UncompressedOffset uint64
	UncompressedSize   uint32

	// FileOffset is this chunk's position within the file that
	// references it; not meaningful for dictionary lookups, only for
	// tiling validation (spec section 8, property 5).
	FileOffset uint64

	Flags ChunkFlag
}

// Compressed reports whether the payload on disk is compressed.
func (c *ChunkDescriptor) Compressed() bool { return c.Flags.Has(ChunkCompressed) }
