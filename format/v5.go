package format

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/KarpelesLab/rafs"
)

// V5Writer emits the sequential bootstrap layout (spec 4.G):
//
//	SuperBlock | InodeTable | BlobTable |
//	  { Inode, Name, Symlink?, Xattrs?, Chunks[], Children[] }* | padding to 4 KiB
//
// No prefetch table is written.
//
// The inode table is a dense ino -> file-offset array, so its size is
// known up front; building the bootstrap is therefore a two-pass process
// (mirroring the teacher's separate position-computation pass before its
// final write): first serialize every inode body and record its offset,
// then write SuperBlock, InodeTable and BlobTable ahead of the bodies
// that were already computed.
type V5Writer struct {
	Repeatable bool
	ChunkSize  uint32
	Compressor rafs.Compressor
	Digester   rafs.Algorithm
	Blobs      []*rafs.BlobDescriptor
}

// Write serializes nodes (a dense, ino-ordered set keyed by ino, 1..N) to w
// and returns the total bytes written.
func (wr *V5Writer) Write(w io.Writer, nodes []*rafs.Node) (uint64, error) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Ino < nodes[j].Ino })

	bodies := make([][]byte, len(nodes))
	for i, n := range nodes {
		xattrBytes := EncodeXAttrsV5(n.XAttrs, wr.Repeatable)
		body, err := EncodeInodeV5(n, xattrBytes)
		if err != nil {
			return 0, err
		}
		bodies[i] = body
	}

	sbSize := uint64(Size())
	inodeTableSize := uint64(len(nodes)) * 8
	blobTableSize := uint64(encodeBlobTableV5Size(wr.Blobs))

	bodyStart := sbSize + inodeTableSize + blobTableSize
	offsets := make([]uint64, len(nodes))
	cursor := bodyStart
	for i, body := range bodies {
		offsets[i] = cursor
		cursor += uint64(len(body))
	}
	bytesUsed := cursor
	if pad := bytesUsed % BlockSize; pad != 0 {
		bytesUsed += BlockSize - pad
	}

	sb := &SuperBlock{
		Magic:            MagicV5,
		Version:          uint32(V5),
		InodeCount:       uint64(len(nodes)),
		RootIno:          rafs.RootIno,
		ChunkSize:        wr.ChunkSize,
		Compressor:       uint8(wr.Compressor),
		Digester:         uint8(wr.Digester),
		InodeTableOffset: sbSize,
		InodeTableSize:   inodeTableSize,
		BlobTableOffset:  sbSize + inodeTableSize,
		BlobTableSize:    blobTableSize,
		BytesUsed:        bytesUsed,
	}
	if wr.Repeatable {
		sb.Flags |= uint32(FlagRepeatable)
	}

	aw := rafs.NewAlignedWriter(newCountingSeeker(w))

	sbBytes, err := sb.Marshal()
	if err != nil {
		return 0, err
	}
	if _, err := aw.Write(sbBytes); err != nil {
		return 0, err
	}

	for _, off := range offsets {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], off)
		if _, err := aw.Write(b[:]); err != nil {
			return 0, err
		}
	}

	blobTable := encodeBlobTableV5(wr.Blobs)
	if _, err := aw.Write(blobTable); err != nil {
		return 0, err
	}

	for _, body := range bodies {
		if _, err := aw.Write(body); err != nil {
			return 0, err
		}
	}

	if pad := aw.Pos() % BlockSize; pad != 0 {
		if _, err := aw.Write(make([]byte, BlockSize-pad)); err != nil {
			return 0, err
		}
	}

	return uint64(aw.Pos()), nil
}

func encodeBlobTableV5Size(blobs []*rafs.BlobDescriptor) int {
	sz := 4
	for _, b := range blobs {
		sz += 4 + len(b.BlobID) + 4 + 4 + 8 + 8 + 4 + 1 + 1 + 4
	}
	return sz
}

func encodeBlobTableV5(blobs []*rafs.BlobDescriptor) []byte {
	out := make([]byte, 0, encodeBlobTableV5Size(blobs))
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(blobs)))
	out = append(out, hdr[:]...)
	for _, b := range blobs {
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], uint32(len(b.BlobID)))
		out = append(out, idBuf[:]...)
		out = append(out, []byte(b.BlobID)...)

		var fields [4 + 8 + 8 + 4]byte
		binary.LittleEndian.PutUint32(fields[0:4], b.ChunkCount)
		binary.LittleEndian.PutUint64(fields[4:12], b.CompressedTotal)
		binary.LittleEndian.PutUint64(fields[12:20], b.UncompressedTotal)
		binary.LittleEndian.PutUint32(fields[20:24], b.ChunkSize)
		out = append(out, fields[:]...)
		out = append(out, byte(b.Compressor), byte(b.Digester))

		var feat [4]byte
		binary.LittleEndian.PutUint32(feat[:], uint32(b.Features))
		out = append(out, feat[:]...)
	}
	return out
}
