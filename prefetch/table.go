package prefetch

import (
	"encoding/binary"

	"github.com/KarpelesLab/rafs"
)

// spanRecordSize is the on-disk width of one Span: blob_index (4) +
// compressed_offset (8) + compressed_size (4).
const spanRecordSize = 16

// EncodeTable serializes spans as the fs-level prefetch table referenced
// by SuperBlock.PrefetchTableOffset/PrefetchTableSize (spec 4.G, 4.J
// policy "fs-level"): a count header followed by one fixed-size record
// per span, in the order given (already sorted/coalesced by Plan).
func EncodeTable(spans []Span) []byte {
	buf := make([]byte, 4+len(spans)*spanRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(spans)))
	for i, s := range spans {
		off := 4 + i*spanRecordSize
		binary.LittleEndian.PutUint32(buf[off:off+4], s.BlobIndex)
		binary.LittleEndian.PutUint64(buf[off+4:off+12], s.CompressedOffset)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], s.CompressedSize)
	}
	return buf
}

// DecodeTable parses a table written by EncodeTable.
func DecodeTable(data []byte) ([]Span, error) {
	if len(data) < 4 {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", rafs.ErrChunkOutOfRange)
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	need := 4 + int(count)*spanRecordSize
	if len(data) < need {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", rafs.ErrChunkOutOfRange)
	}
	spans := make([]Span, count)
	for i := range spans {
		off := 4 + i*spanRecordSize
		spans[i] = Span{
			BlobIndex:        binary.LittleEndian.Uint32(data[off : off+4]),
			CompressedOffset: binary.LittleEndian.Uint64(data[off+4 : off+12]),
			CompressedSize:   binary.LittleEndian.Uint32(data[off+12 : off+16]),
		}
	}
	return spans, nil
}
