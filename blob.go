package rafs

import (
	"bytes"
	"io"

	"github.com/google/uuid"
)

// BlobFeature is a bitset of per-blob capabilities (spec section 3).
type BlobFeature uint32

const (
	// BlobAlignedChunk marks that every chunk's compressed payload in
	// this blob starts at a 4 KiB boundary (V6 aligned-chunk flag).
	BlobAlignedChunk BlobFeature = 1 << iota
)

// BlobDescriptor describes one output data blob and its ordered chunk
// table (spec section 3).
type BlobDescriptor struct {
	BlobID string // printable identifier, <= 255 bytes
	Index  uint32

	ChunkCount        uint32
	CompressedTotal   uint64
	UncompressedTotal uint64

	ChunkSize  uint32
	Compressor Compressor
	Digester   Algorithm
	Features   BlobFeature

	chunks []ChunkDescriptor
	sealed bool
}

// Chunks returns the blob's ordered chunk table. Do not mutate the
// returned slice.
func (b *BlobDescriptor) Chunks() []ChunkDescriptor { return b.chunks }

// Chunk returns the chunk at the given index within this blob, as
// required by 4.H's get_chunk_info API.
func (b *BlobDescriptor) Chunk(index uint32) (*ChunkDescriptor, error) {
	if index >= uint32(len(b.chunks)) {
		return nil, NewError(KindCorruption, "", ErrChunkOutOfRange)
	}
	return &b.chunks[index], nil
}

// Sealed reports whether the blob is closed to further writes.
func (b *BlobDescriptor) Sealed() bool { return b.sealed }

// RotationPolicy controls when the BlobManager starts a new output blob
// (spec section 4.D, "Blob rotation policy is set by the caller").
type RotationPolicy int

const (
	// RotateOnePerImage keeps a single blob open for the whole build.
	RotateOnePerImage RotationPolicy = iota
	// RotateOnePerLayer seals the current blob and opens a new one each
	// time SealCurrent is called explicitly (one call per source layer).
	RotateOnePerLayer
)

// BlobWriter is the subset of io.Writer a BlobManager needs to persist
// one blob's bytes; io.WriteCloser covers both an *os.File and an
// in-memory buffer.
type BlobWriter interface {
	io.Writer
	io.Closer
}

// BlobManager owns the set of output data blobs for a build (spec 4.D).
// It is not safe for concurrent StoreChunk calls: per the concurrency
// model (spec section 5), a single "sink" goroutine serializes
// dictionary-lookup-or-insert with StoreChunk so chunk_index assignment
// stays deterministic.
type BlobManager struct {
	repeatable bool
	policy     RotationPolicy
	newWriter  func(blobID string) (BlobWriter, error)

	blobs   []*BlobDescriptor
	writers []BlobWriter
	cursors []uint64 // current write cursor per blob, parallel to blobs
	digests []*bytes.Buffer // accumulate bytes to derive a content-digest blob id when repeatable
}

// NewBlobManager creates a manager that opens new blob writers via
// newWriter, named by a generated blob ID. When repeatable is true, the
// blob ID is derived from the blob's content digest once sealed instead
// of a random UUID (spec 4.G "Determinism").
func NewBlobManager(policy RotationPolicy, repeatable bool, newWriter func(blobID string) (BlobWriter, error)) *BlobManager {
	return &BlobManager{policy: policy, repeatable: repeatable, newWriter: newWriter}
}

// Blobs returns the manager's blobs in index order, including the
// currently-open one if any.
func (m *BlobManager) Blobs() []*BlobDescriptor { return m.blobs }

func (m *BlobManager) current(chunkSize uint32, comp Compressor, digester Algorithm) (*BlobDescriptor, error) {
	if len(m.blobs) > 0 && !m.blobs[len(m.blobs)-1].sealed {
		return m.blobs[len(m.blobs)-1], nil
	}
	return m.openNew(chunkSize, comp, digester)
}

func (m *BlobManager) openNew(chunkSize uint32, comp Compressor, digester Algorithm) (*BlobDescriptor, error) {
	placeholderID := uuid.NewString()
	w, err := m.newWriter(placeholderID)
	if err != nil {
		return nil, NewError(KindIO, placeholderID, err)
	}

	b := &BlobDescriptor{
		BlobID:     placeholderID,
		Index:      uint32(len(m.blobs)),
		ChunkSize:  chunkSize,
		Compressor: comp,
		Digester:   digester,
	}
	m.blobs = append(m.blobs, b)
	m.writers = append(m.writers, w)
	m.cursors = append(m.cursors, 0)
	if m.repeatable {
		m.digests = append(m.digests, &bytes.Buffer{})
	} else {
		m.digests = append(m.digests, nil)
	}
	return b, nil
}

// StoreChunk implements spec 4.D's store_chunk algorithm: compress,
// append to the current blob, and assign a chunk index. raw.Digest must
// already be computed by the Chunker; StoreChunk does not verify it.
func (m *BlobManager) StoreChunk(raw RawChunk, chunkSize uint32, comp Compressor, digester Algorithm) (*ChunkDescriptor, error) {
	blob, err := m.current(chunkSize, comp, digester)
	if err != nil {
		return nil, err
	}
	idx := blob.Index

	compressed, err := comp.Compress(raw.Data)
	flags := ChunkFlag(0)
	if err == nil && len(compressed) < len(raw.Data) {
		flags |= ChunkCompressed
	} else {
		compressed = raw.Data
	}

	cursor := m.cursors[idx]
	cd := ChunkDescriptor{
		Digest:             raw.Digest,
		BlobIndex:          idx,
		ChunkIndex:         uint32(len(blob.chunks)),
		CompressedOffset:   cursor,
		CompressedSize:     uint32(len(compressed)),
		UncompressedOffset: blob.UncompressedTotal,
		UncompressedSize:   uint32(len(raw.Data)),
		FileOffset:         raw.FileOffset,
		Flags:              flags,
	}

	if _, err := m.writers[idx].Write(compressed); err != nil {
		return nil, NewError(KindIO, blob.BlobID, err)
	}
	if m.repeatable && m.digests[idx] != nil {
		m.digests[idx].Write(compressed)
	}

	m.cursors[idx] += uint64(len(compressed))
	blob.CompressedTotal += uint64(len(compressed))
	blob.UncompressedTotal += uint64(len(raw.Data))
	blob.chunks = append(blob.chunks, cd)
	blob.ChunkCount = uint32(len(blob.chunks))

	return &cd, nil
}

// SealCurrent closes the currently-open blob, finalizing its BlobID when
// repeatable (content-digest derived) and its chunk count, then returns
// it. Subsequent StoreChunk calls open a new blob. Safe to call when no
// blob is open (returns nil, nil).
func (m *BlobManager) SealCurrent() (*BlobDescriptor, error) {
	if len(m.blobs) == 0 {
		return nil, nil
	}
	idx := len(m.blobs) - 1
	blob := m.blobs[idx]
	if blob.sealed {
		return blob, nil
	}

	if err := m.writers[idx].Close(); err != nil {
		return nil, NewError(KindIO, blob.BlobID, err)
	}
	if m.repeatable && m.digests[idx] != nil {
		algo := blob.Digester
		if algo == 0 {
			algo = AlgorithmBlake3
		}
		sum, err := algo.Sum(m.digests[idx].Bytes())
		if err != nil {
			return nil, err
		}
		blob.BlobID = sum.String()
	}
	blob.sealed = true
	return blob, nil
}

// SealAll seals every open blob; called once at the end of a build.
func (m *BlobManager) SealAll() error {
	for range m.blobs {
		if _, err := m.SealCurrent(); err != nil {
			return err
		}
		// RotateOnePerImage only has one blob open at a time and
		// SealCurrent marks it sealed, so loop naturally terminates
		// once every blob has been visited once.
		allSealed := true
		for _, b := range m.blobs {
			if !b.sealed {
				allSealed = false
				break
			}
		}
		if allSealed {
			break
		}
	}
	return nil
}
