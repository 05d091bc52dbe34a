package rafs

import (
	"io"
)

// MinChunkSize and MaxChunkSize bound the image-wide chunk size (spec
// section 3: a power of two in [4 KiB, 1 MiB]).
const (
	MinChunkSize = 4 * 1024
	MaxChunkSize = 1024 * 1024
	// DefaultChunkSize matches the original implementation's default.
	DefaultChunkSize = 1024 * 1024
)

// ValidateChunkSize checks that size is a power of two within
// [MinChunkSize, MaxChunkSize].
func ValidateChunkSize(size uint32) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return NewError(KindConfigure, "", ErrUnsupported)
	}
	if size&(size-1) != 0 {
		return NewError(KindConfigure, "", ErrUnsupported)
	}
	return nil
}

// RawChunk is one piece of a file's content as produced by the chunker,
// before it has been looked up in the dictionary or stored in a blob.
type RawChunk struct {
	Data       []byte // uncompressed content, len(Data) == UncompressedSize
	FileOffset uint64
	Digest     Digest
}

// Chunker splits regular file content into fixed-size chunks and digests
// each one (spec section 4.B). For a file of size S and chunk size C it
// produces ceil(S/C) chunks; chunk k covers [k*C, min((k+1)*C, S)).
type Chunker struct {
	ChunkSize uint32
	Algorithm Algorithm
}

// NewChunker builds a Chunker for the given image-wide chunk size and
// digest algorithm.
func NewChunker(chunkSize uint32, algo Algorithm) (*Chunker, error) {
	if err := ValidateChunkSize(chunkSize); err != nil {
		return nil, err
	}
	return &Chunker{ChunkSize: chunkSize, Algorithm: algo}, nil
}

// Count returns ceil(size/ChunkSize), the number of chunks a file of size
// bytes will split into; a zero-length file yields 0 chunks.
func (c *Chunker) Count(size uint64) int {
	if size == 0 {
		return 0
	}
	cs := uint64(c.ChunkSize)
	return int((size + cs - 1) / cs)
}

// Split reads all of r and yields one RawChunk per call to emit, in
// file-offset order. It stops and returns the first error either from r
// or from emit.
func (c *Chunker) Split(r io.Reader, emit func(RawChunk) error) error {
	buf := make([]byte, c.ChunkSize)
	var offset uint64

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunkData := make([]byte, n)
			copy(chunkData, buf[:n])

			digest, derr := c.Algorithm.Sum(chunkData)
			if derr != nil {
				return derr
			}

			if eerr := emit(RawChunk{
				Data:       chunkData,
				FileOffset: offset,
				Digest:     digest,
			}); eerr != nil {
				return eerr
			}
			offset += uint64(n)
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return NewError(KindIO, "", err)
		}
		if n < len(buf) {
			// ReadFull returns nil only on a full read; a short,
			// error-free read cannot happen, but guard regardless.
			return nil
		}
	}
}
