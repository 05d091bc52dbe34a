package format

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/KarpelesLab/rafs"
)

// V6Reader parses an erofs-compatible bootstrap back into its component
// areas, the counterpart to V6Writer.
type V6Reader struct {
	r  io.ReaderAt
	SB SuperBlock
}

// OpenV6Reader reads and validates the superblock, accounting for the 1
// KiB pad preceding it.
func OpenV6Reader(r io.ReaderAt) (*V6Reader, error) {
	buf := make([]byte, Size())
	if _, err := r.ReadAt(buf, V6SuperBlockOffset); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	var sb SuperBlock
	if err := sb.Unmarshal(buf); err != nil {
		return nil, err
	}
	if sb.Version != uint32(V6) {
		return nil, rafs.NewError(rafs.KindUnsupported, "", nil)
	}
	return &V6Reader{r: r, SB: sb}, nil
}

// Locate returns the absolute meta-area offset and the extended-form flag
// for ino, read from the inode offset table. Exported for loader, which
// needs the offset itself (not just a decoded node) to follow up with
// ReadInodeAtOffset, DirLocator, or Chunks.
func (v *V6Reader) Locate(ino uint64) (uint64, bool, error) {
	return v.inodeOffset(ino)
}

// inodeOffset returns the absolute meta-area offset and the extended-form
// flag for ino, read from the inode offset table.
func (v *V6Reader) inodeOffset(ino uint64) (uint64, bool, error) {
	if ino == 0 || ino > v.SB.InodeCount {
		return 0, false, rafs.NewError(rafs.KindCorruption, "", rafs.ErrChunkOutOfRange)
	}
	var b [8]byte
	if _, err := v.r.ReadAt(b[:], int64(v.SB.InodeTableOffset+(ino-1)*8)); err != nil {
		return 0, false, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	raw := binary.LittleEndian.Uint64(b[:])
	return raw &^ 1, raw&1 != 0, nil
}

// ReadInode decodes the inode at ino via the ino offset table. It is a
// thin wrapper over ReadInodeAtOffset for callers doing direct get_inode
// lookups (spec 4.H).
func (v *V6Reader) ReadInode(ino uint64) (*rafs.Node, error) {
	off, extended, err := v.inodeOffset(ino)
	if err != nil {
		return nil, err
	}
	n, _, _, err := v.ReadInodeAtOffset(off, extended)
	return n, err
}

// ReadInodeAtOffset decodes the inode header, name, and inline xattrs at
// the given absolute meta-area offset, returning the node, the locator
// offset (where a chunk-info or dirent-block locator begins, immediately
// after the name), and the chunk count from the header. It is shared by
// ino-table lookups (ReadInode) and dirent-based child resolution
// (DirEntries plus the extended bit packed into each entry's Nid), since
// both routes land on the same on-disk inode encoding.
func (v *V6Reader) ReadInodeAtOffset(offset uint64, extended bool) (*rafs.Node, uint64, int, error) {
	size := v6CompactSize
	if extended {
		size = v6ExtendedSize
	}

	// Over-read a generous bound for the trailing name/symlink target;
	// names are capped at 255 bytes by the data model invariant.
	buf := make([]byte, size+512)
	n, err := v.r.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, 0, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	node, consumed, chunkCnt, xattrCnt, derr := DecodeInodeV6(buf[:n], !extended)
	if derr != nil {
		return nil, 0, 0, derr
	}
	locatorOff := offset + uint64(consumed)

	if xattrCnt > 0 {
		xattrAt := locatorOff
		switch {
		case node.IsDir():
			xattrAt += 16
		case node.IsRegular() && chunkCnt > 0:
			xattrAt += 12
		}
		xbuf := make([]byte, BlockSize) // inline xattrs are expected to be small
		xn, xerr := v.r.ReadAt(xbuf, int64(xattrAt))
		if xerr != nil && xerr != io.EOF {
			return nil, 0, 0, rafs.NewError(rafs.KindReadMetadata, "", xerr)
		}
		xattrs, _, derr := DecodeXAttrsV5(xbuf[:xn])
		if derr != nil {
			return nil, 0, 0, derr
		}
		node.XAttrs = xattrs
	}

	return node, locatorOff, chunkCnt, nil
}

// Chunks reads the chunk descriptors of a regular-file inode given its
// meta-area offset (the caller must have located the locator immediately
// following the inode's header+name, as ReadInodeAtOffset does not parse
// it).
func (v *V6Reader) Chunks(locatorOffset uint64) ([]rafs.ChunkDescriptor, error) {
	var loc [12]byte
	if _, err := v.r.ReadAt(loc[:], int64(locatorOffset)); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	chunkOff := binary.LittleEndian.Uint64(loc[0:8])
	count := binary.LittleEndian.Uint32(loc[8:12])

	recSize := binary.Size(ChunkRecordV5{})
	buf := make([]byte, int(count)*recSize)
	if _, err := v.r.ReadAt(buf, int64(v.SB.ChunkInfoAreaOffset+chunkOff)); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	chunks := make([]rafs.ChunkDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec ChunkRecordV5
		r := bytes.NewReader(buf[int(i)*recSize : int(i+1)*recSize])
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
		}
		chunks = append(chunks, recordToChunkV5(rec))
	}
	return chunks, nil
}

// DirLocator reads the (firstBlockOffset, blockCount) pair a directory
// inode's 16-byte placeholder was fixed up to hold.
func (v *V6Reader) DirLocator(locatorOff uint64) (uint64, uint64, error) {
	var buf [16]byte
	if _, err := v.r.ReadAt(buf[:], int64(locatorOff)); err != nil {
		return 0, 0, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16]), nil
}

// DirEntries reads the dirent blocks starting at firstBlockOffset,
// returning each entry's name, nid (with the extended-form bit already
// split out into Extended), and file type, in on-disk order.
func (v *V6Reader) DirEntries(firstBlockOffset uint64, blockCount uint64) ([]DirEntry, error) {
	var entries []DirEntry
	for b := uint64(0); b < blockCount; b++ {
		block := make([]byte, BlockSize)
		if _, err := v.r.ReadAt(block, int64(firstBlockOffset+b*BlockSize)); err != nil {
			return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
		}
		pos := 0
		for pos+v6DirEntrySize <= BlockSize {
			var e v6DirEntry
			if err := binary.Read(bytes.NewReader(block[pos:pos+v6DirEntrySize]), binary.LittleEndian, &e); err != nil {
				return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
			}
			if e.Nid == 0 && e.NameOff == 0 && e.FileType == 0 {
				break // padding past the last real entry
			}
			nameStart := int(e.NameOff)
			nameEnd := len(block)
			for j := pos + v6DirEntrySize; j+v6DirEntrySize <= BlockSize; j += v6DirEntrySize {
				var next v6DirEntry
				binary.Read(bytes.NewReader(block[j:j+v6DirEntrySize]), binary.LittleEndian, &next)
				if next.Nid == 0 && next.NameOff == 0 && next.FileType == 0 {
					break
				}
				if int(next.NameOff) > nameStart {
					nameEnd = int(next.NameOff)
					break
				}
			}
			entries = append(entries, DirEntry{
				Name:     string(block[nameStart:nameEnd]),
				Nid:      e.Nid &^ 1,
				Extended: e.Nid&1 != 0,
				FileType: e.FileType,
			})
			pos += v6DirEntrySize
		}
	}
	return entries, nil
}

// Blobs reads and decodes the blob table, the same wire format V5 uses.
func (v *V6Reader) Blobs() ([]*rafs.BlobDescriptor, error) {
	buf := make([]byte, v.SB.BlobTableSize)
	if _, err := v.r.ReadAt(buf, int64(v.SB.BlobTableOffset)); err != nil {
		return nil, rafs.NewError(rafs.KindReadMetadata, "", err)
	}
	return decodeBlobTableV5(buf)
}

// DirEntry is one decoded directory entry: its name, the meta-area offset
// (nid) of the inode it names, whether that inode uses the extended form,
// and its erofs file-type tag.
type DirEntry struct {
	Name     string
	Nid      uint64
	Extended bool
	FileType uint8
}
