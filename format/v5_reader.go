package format

import (
	"encoding/binary"
	"io"

	"github.com/KarpelesLab/rafs"
)

// V5Reader parses a sequential-layout bootstrap back into its component
// tables, the counterpart to V5Writer.
type V5Reader struct {
	r  io.ReaderAt
	SB SuperBlock
}

// OpenV5Reader reads and validates the superblock at the start of r.
func OpenV5Reader(r io.ReaderAt) (*V5Reader, error) {
	buf := make([]byte, Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	var sb SuperBlock
	if err := sb.Unmarshal(buf); err != nil {
		return nil, err
	}
	if sb.Version != uint32(V5) {
		return nil, rafs.NewError(rafs.KindUnsupported, "", nil)
	}
	return &V5Reader{r: r, SB: sb}, nil
}

// InodeOffsets reads the dense ino -> file-offset array.
func (v *V5Reader) InodeOffsets() ([]uint64, error) {
	buf := make([]byte, v.SB.InodeTableSize)
	if _, err := v.r.ReadAt(buf, int64(v.SB.InodeTableOffset)); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	offsets := make([]uint64, v.SB.InodeCount)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return offsets, nil
}

// Blobs reads and decodes the blob table.
func (v *V5Reader) Blobs() ([]*rafs.BlobDescriptor, error) {
	buf := make([]byte, v.SB.BlobTableSize)
	if _, err := v.r.ReadAt(buf, int64(v.SB.BlobTableOffset)); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	return decodeBlobTableV5(buf)
}

// decodeBlobTableV5 decodes the blob table wire format shared by V5 and V6.
func decodeBlobTableV5(buf []byte) ([]*rafs.BlobDescriptor, error) {
	if len(buf) < 4 {
		return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
	}
	count := binary.LittleEndian.Uint32(buf)
	pos := 4
	blobs := make([]*rafs.BlobDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(buf) {
			return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		idLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if pos+idLen > len(buf) {
			return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		id := string(buf[pos : pos+idLen])
		pos += idLen

		if pos+24 > len(buf) {
			return nil, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		chunkCount := binary.LittleEndian.Uint32(buf[pos : pos+4])
		compressedTotal := binary.LittleEndian.Uint64(buf[pos+4 : pos+12])
		uncompressedTotal := binary.LittleEndian.Uint64(buf[pos+12 : pos+20])
		chunkSize := binary.LittleEndian.Uint32(buf[pos+20 : pos+24])
		pos += 24
		compressor := buf[pos]
		digester := buf[pos+1]
		pos += 2
		features := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4

		blobs = append(blobs, &rafs.BlobDescriptor{
			BlobID:            id,
			Index:             i,
			ChunkCount:        chunkCount,
			CompressedTotal:   compressedTotal,
			UncompressedTotal: uncompressedTotal,
			ChunkSize:         chunkSize,
			Compressor:        rafs.Compressor(compressor),
			Digester:          rafs.Algorithm(digester),
			Features:          rafs.BlobFeature(features),
		})
	}
	return blobs, nil
}

// ReadInode decodes the inode body starting at offset. maxLen bounds how
// far the reader may look (callers pass the distance to the next known
// offset, or a generous bound for the last inode).
func (v *V5Reader) ReadInode(offset uint64, maxLen int) (*rafs.Node, error) {
	buf := make([]byte, maxLen)
	n, err := v.r.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	node, _, derr := DecodeInodeV5(buf[:n])
	if derr != nil {
		return nil, derr
	}
	return node, nil
}
