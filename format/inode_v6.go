package format

import (
	"bytes"
	"encoding/binary"

	"github.com/KarpelesLab/rafs"
)

// inodeV6Compact is the 32-byte erofs-style compact inode, used when
// uid/gid/nlink/size all fit their narrower field widths (spec 4.G).
type inodeV6Compact struct {
	Mode       uint16
	NameLen    uint16
	UID        uint16
	GID        uint16
	MTime      uint32
	NLink      uint16
	Size       uint32
	ChunkCnt   uint16
	XattrCount uint16
	Rdev       uint32
	Ino        uint32
	_          [2]byte
}

// inodeV6Extended is the 64-byte erofs-style extended inode, used when any
// field of the compact form would overflow.
type inodeV6Extended struct {
	Mode       uint16
	NameLen    uint16
	UID        uint32
	GID        uint32
	MTime      int64
	NLink      uint32
	Size       uint64
	ChunkCnt   uint32
	XattrCount uint16
	_          uint16
	Rdev       uint64
	Ino        uint64
	_          [8]byte
}

// fitsCompactV6 reports whether n's fields fit the compact inode's
// narrower widths.
func fitsCompactV6(n *rafs.Node) bool {
	return n.UID <= 0xffff && n.GID <= 0xffff && n.NLink <= 0xffff &&
		n.Size <= 0xffffffff && len(n.Chunks) <= 0xffff && n.Ino <= 0xffffffff &&
		n.MTime >= 0 && n.MTime <= 0xffffffff && n.Rdev <= 0xffffffff
}

// EncodeInodeV6 serializes n as either a compact or extended inode header
// followed by its name (no padding, unlike V5: the meta area packs names
// tightly and dirent blocks record explicit name offsets).
func EncodeInodeV6(n *rafs.Node) ([]byte, bool, error) {
	compact := fitsCompactV6(n)
	var buf bytes.Buffer

	wireMode := uint16(rafs.ModeToUnix(n.Mode))

	if compact {
		hdr := inodeV6Compact{
			Mode:     wireMode,
			NameLen:  uint16(len(n.Name)),
			UID:      uint16(n.UID),
			GID:      uint16(n.GID),
			MTime:    uint32(n.MTime),
			NLink:    uint16(n.NLink),
			Size:     uint32(n.Size),
			ChunkCnt: uint16(len(n.Chunks)),
			Rdev:     uint32(n.Rdev),
			Ino:      uint32(n.Ino),
		}
		if n.XAttrs != nil {
			hdr.XattrCount = uint16(n.XAttrs.Len())
		}
		if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
			return nil, false, rafs.NewError(rafs.KindIO, "", err)
		}
	} else {
		hdr := inodeV6Extended{
			Mode:     wireMode,
			NameLen:  uint16(len(n.Name)),
			UID:      n.UID,
			GID:      n.GID,
			MTime:    n.MTime,
			NLink:    n.NLink,
			Size:     n.Size,
			ChunkCnt: uint32(len(n.Chunks)),
			Rdev:     n.Rdev,
			Ino:      n.Ino,
		}
		if n.XAttrs != nil {
			hdr.XattrCount = uint16(n.XAttrs.Len())
		}
		if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
			return nil, false, rafs.NewError(rafs.KindIO, "", err)
		}
	}

	buf.Write(n.Name)
	if n.IsSymlink() {
		buf.Write(n.SymlinkTarget)
	}

	return buf.Bytes(), compact, nil
}

const v6CompactSize = 32
const v6ExtendedSize = 64

// DecodeInodeV6 parses one inode header (compact or extended, selected by
// the caller based on the containing nid's recorded format) plus its
// trailing name, returning the node, the number of bytes consumed, the
// chunk count recorded in the header (the caller uses this to know whether
// a chunk-info locator follows, since V6Writer omits it for chunkless
// files), and the xattr count (the caller uses this to know whether an
// inline xattr blob follows the locator).
func DecodeInodeV6(data []byte, compact bool) (*rafs.Node, int, int, int, error) {
	r := bytes.NewReader(data)
	n := &rafs.Node{}
	var nameLen int
	var chunkCnt int
	var xattrCnt int

	if compact {
		var hdr inodeV6Compact
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, 0, 0, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
		}
		n.Mode = rafs.UnixToMode(uint32(hdr.Mode))
		n.UID = uint32(hdr.UID)
		n.GID = uint32(hdr.GID)
		n.MTime = int64(hdr.MTime)
		n.NLink = uint32(hdr.NLink)
		n.Size = uint64(hdr.Size)
		n.Rdev = uint64(hdr.Rdev)
		n.Ino = uint64(hdr.Ino)
		nameLen = int(hdr.NameLen)
		chunkCnt = int(hdr.ChunkCnt)
		xattrCnt = int(hdr.XattrCount)
	} else {
		var hdr inodeV6Extended
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, 0, 0, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
		}
		n.Mode = rafs.UnixToMode(uint32(hdr.Mode))
		n.UID = hdr.UID
		n.GID = hdr.GID
		n.MTime = hdr.MTime
		n.NLink = hdr.NLink
		n.Size = hdr.Size
		n.Rdev = hdr.Rdev
		n.Ino = hdr.Ino
		nameLen = int(hdr.NameLen)
		chunkCnt = int(hdr.ChunkCnt)
		xattrCnt = int(hdr.XattrCount)
	}

	pos := len(data) - r.Len()
	if pos+nameLen > len(data) {
		return nil, 0, 0, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrNameTooLong)
	}
	n.Name = append([]byte(nil), data[pos:pos+nameLen]...)
	pos += nameLen

	if n.IsSymlink() {
		// Symlink target length is implied by Size for V6.
		targetLen := int(n.Size)
		if pos+targetLen > len(data) {
			return nil, 0, 0, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		n.SymlinkTarget = append([]byte(nil), data[pos:pos+targetLen]...)
		pos += targetLen
	}

	return n, pos, chunkCnt, xattrCnt, nil
}
