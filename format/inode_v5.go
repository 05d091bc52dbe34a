package format

import (
	"bytes"
	"encoding/binary"
	"io/fs"

	"github.com/KarpelesLab/rafs"
)

// inodeV5Header is the fixed-size portion of a V5 on-disk inode record
// (spec 4.G, "fixed-size header plus variable trailing fields").
type inodeV5Header struct {
	Ino       uint64
	Parent    uint64
	Mode      uint32
	UID       uint32
	GID       uint32
	Rdev      uint64
	MTime     int64
	Size      uint64
	NLink     uint32
	NameLen   uint16
	HasXAttr  uint8
	HasSymlnk uint8
	ChunkCnt  uint32
	ChildCnt  uint32 // directories only: number of entries in the child run that follows
}

// ChunkRecordV5 is the on-disk encoding of one rafs.ChunkDescriptor.
type ChunkRecordV5 struct {
	Digest             [rafs.DigestSize]byte
	BlobIndex          uint32
	ChunkIndex         uint32
	CompressedOffset   uint64
	CompressedSize     uint32
	UncompressedOffset uint64
	UncompressedSize   uint32
	FileOffset         uint64
	Flags              uint32
}

func chunkToRecordV5(cd rafs.ChunkDescriptor) ChunkRecordV5 {
	return ChunkRecordV5{
		Digest:             cd.Digest,
		BlobIndex:          cd.BlobIndex,
		ChunkIndex:         cd.ChunkIndex,
		CompressedOffset:   cd.CompressedOffset,
		CompressedSize:     cd.CompressedSize,
		UncompressedOffset: cd.UncompressedOffset,
		UncompressedSize:   cd.UncompressedSize,
		FileOffset:         cd.FileOffset,
		Flags:              uint32(cd.Flags),
	}
}

func recordToChunkV5(r ChunkRecordV5) rafs.ChunkDescriptor {
	return rafs.ChunkDescriptor{
		Digest:             r.Digest,
		BlobIndex:          r.BlobIndex,
		ChunkIndex:         r.ChunkIndex,
		CompressedOffset:   r.CompressedOffset,
		CompressedSize:     r.CompressedSize,
		UncompressedOffset: r.UncompressedOffset,
		UncompressedSize:   r.UncompressedSize,
		FileOffset:         r.FileOffset,
		Flags:              rafs.ChunkFlag(r.Flags),
	}
}

// alignUp8 rounds n up to the next multiple of 8, used to pad inode names
// (spec 4.G, "name padded to 8-byte alignment").
func alignUp8(n int) int {
	return (n + 7) &^ 7
}

// EncodeInodeV5 serializes one node's fixed header plus its trailing name,
// optional symlink target, optional xattr table, and per-chunk records
// into the byte run the sequential V5 layout expects. xattrBytes is the
// caller-supplied pre-encoded xattr table (see EncodeXAttrsV5), or nil.
func EncodeInodeV5(n *rafs.Node, xattrBytes []byte) ([]byte, error) {
	var buf bytes.Buffer

	hdr := inodeV5Header{
		Ino:      n.Ino,
		Parent:   n.Parent,
		Mode:     uint32(n.Mode),
		UID:      n.UID,
		GID:      n.GID,
		Rdev:     n.Rdev,
		MTime:    n.MTime,
		Size:     n.Size,
		NLink:    n.NLink,
		NameLen:  uint16(len(n.Name)),
		ChunkCnt: uint32(len(n.Chunks)),
		ChildCnt: uint32(len(n.Children)),
	}
	if xattrBytes != nil {
		hdr.HasXAttr = 1
	}
	if len(n.SymlinkTarget) > 0 {
		hdr.HasSymlnk = 1
	}

	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, rafs.NewError(rafs.KindIO, "", err)
	}

	namePadded := make([]byte, alignUp8(len(n.Name)))
	copy(namePadded, n.Name)
	buf.Write(namePadded)

	if len(n.SymlinkTarget) > 0 {
		targetPadded := make([]byte, alignUp8(len(n.SymlinkTarget)))
		copy(targetPadded, n.SymlinkTarget)
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(n.SymlinkTarget))); err != nil {
			return nil, rafs.NewError(rafs.KindIO, "", err)
		}
		buf.Write(targetPadded)
	}

	if xattrBytes != nil {
		buf.Write(xattrBytes)
	}

	for _, cd := range n.Chunks {
		rec := chunkToRecordV5(cd)
		if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
			return nil, rafs.NewError(rafs.KindIO, "", err)
		}
	}

	// Directory children are recorded explicitly as an ino array rather
	// than relied upon to be laid out contiguously after the parent: the
	// pre-order tree walk that assigns inos does not guarantee that.
	for _, childIno := range n.Children {
		if err := binary.Write(&buf, binary.LittleEndian, childIno); err != nil {
			return nil, rafs.NewError(rafs.KindIO, "", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeInodeV5 parses one on-disk V5 inode record from data, returning the
// fully reconstructed node (including Children for directories) and the
// number of bytes consumed.
func DecodeInodeV5(data []byte) (*rafs.Node, int, error) {
	r := bytes.NewReader(data)
	var hdr inodeV5Header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
	}

	pos := int(len(data) - r.Len())
	nameLen := alignUp8(int(hdr.NameLen))
	if pos+nameLen > len(data) {
		return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrNameTooLong)
	}
	name := append([]byte(nil), data[pos:pos+int(hdr.NameLen)]...)
	pos += nameLen

	n := &rafs.Node{
		Ino:    hdr.Ino,
		Parent: hdr.Parent,
		Name:   name,
		Mode:   fs.FileMode(hdr.Mode),
		UID:    hdr.UID,
		GID:    hdr.GID,
		Rdev:   hdr.Rdev,
		MTime:  hdr.MTime,
		Size:   hdr.Size,
		NLink:  hdr.NLink,
	}

	if hdr.HasSymlnk != 0 {
		if pos+4 > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		targetLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		padded := alignUp8(targetLen)
		if pos+padded > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		n.SymlinkTarget = append([]byte(nil), data[pos:pos+targetLen]...)
		pos += padded
	}

	if hdr.HasXAttr != 0 {
		xattrs, consumed, err := DecodeXAttrsV5(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		n.XAttrs = xattrs
		pos += consumed
	}

	n.Chunks = make([]rafs.ChunkDescriptor, 0, hdr.ChunkCnt)
	recSize := binary.Size(ChunkRecordV5{})
	for i := uint32(0); i < hdr.ChunkCnt; i++ {
		if pos+recSize > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrChunkOutOfRange)
		}
		var rec ChunkRecordV5
		if err := binary.Read(bytes.NewReader(data[pos:pos+recSize]), binary.LittleEndian, &rec); err != nil {
			return nil, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
		}
		n.Chunks = append(n.Chunks, recordToChunkV5(rec))
		pos += recSize
	}

	n.Children = make([]uint64, 0, hdr.ChildCnt)
	for i := uint32(0); i < hdr.ChildCnt; i++ {
		if pos+8 > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrChunkOutOfRange)
		}
		n.Children = append(n.Children, binary.LittleEndian.Uint64(data[pos:pos+8]))
		pos += 8
	}

	return n, pos, nil
}
