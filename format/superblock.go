// Package format implements the two on-disk bootstrap layouts of spec
// section 4.G: V5 (sequential) and V6 (erofs-compatible). Both share a
// superblock shape and reflection-driven binary (de)serialization in the
// style of the teacher's squashfs superblock reader.
package format

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"reflect"

	"github.com/KarpelesLab/rafs"
)

// Version selects which on-disk layout a bootstrap uses.
type Version uint32

const (
	V5 Version = 5
	V6 Version = 6
)

const (
	// MagicV5 identifies a V5 sequential-layout bootstrap.
	MagicV5 uint32 = 0x52414635 // "RAF5"
	// MagicV6 identifies a V6 erofs-compatible bootstrap.
	MagicV6 uint32 = 0x52414636 // "RAF6"

	// BlockSize is the padding/alignment unit bootstraps are rounded up
	// to, and the V6 meta-area dirent block size (spec 4.G).
	BlockSize = 4096
	// V6SuperBlockOffset is the 1 KiB pad preceding the V6 superblock.
	V6SuperBlockOffset = 1024
)

// Flag is a bitset of superblock-wide build options.
type Flag uint32

const (
	// FlagRepeatable marks a deterministic, bit-for-bit reproducible build.
	FlagRepeatable Flag = 1 << iota
	// FlagHasPrefetchTable marks the presence of an optional prefetch table.
	FlagHasPrefetchTable
	// FlagExplicitUIDGID marks that uid/gid are recorded per-inode rather
	// than implied by a parent-process default.
	FlagExplicitUIDGID
)

// SuperBlock is the fixed-size header shared by both on-disk layouts. Field
// order is the wire order; SuperBlock is read/written whole via reflection
// over its exported fields, the way the teacher's Superblock type does.
type SuperBlock struct {
	Magic      uint32
	Version    uint32
	InodeCount uint64
	RootIno    uint64
	ChunkSize  uint32
	Compressor uint8
	Digester   uint8

	Flags uint32

	InodeTableOffset uint64
	InodeTableSize   uint64

	BlobTableOffset uint64
	BlobTableSize   uint64

	PrefetchTableOffset uint64
	PrefetchTableSize   uint64

	// V6-only areas; zero under V5.
	MetaAreaOffset      uint64
	XattrAreaOffset     uint64
	DataAreaOffset      uint64
	ChunkInfoAreaOffset uint64

	BytesUsed uint64

	// Checksum is a CRC32 over every other field (spec 6, "checksum over
	// the rest of the superblock"), computed by Marshal and checked by
	// VerifyChecksum. Must stay the last field: computeChecksum zeroes it
	// before hashing, so it never hashes itself.
	Checksum uint32
}

// Size returns the on-disk size of a SuperBlock: the sum of its exported
// fields' sizes, mirroring the teacher's binarySize reflection helper.
func Size() int {
	v := reflect.ValueOf(SuperBlock{})
	sz := 0
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Field(i).Type().Size())
	}
	return sz
}

// Marshal encodes the superblock in little-endian wire format, stamping
// Checksum with computeChecksum first.
func (s *SuperBlock) Marshal() ([]byte, error) {
	s.Checksum = s.computeChecksum()
	var buf bytes.Buffer
	v := reflect.ValueOf(s).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if err := binary.Write(&buf, binary.LittleEndian, f.Interface()); err != nil {
			return nil, rafs.NewError(rafs.KindIO, "", err)
		}
	}
	return buf.Bytes(), nil
}

// computeChecksum returns the CRC32-IEEE of the superblock with Checksum
// itself zeroed, so the stored value never feeds into its own hash.
func (s *SuperBlock) computeChecksum() uint32 {
	cp := *s
	cp.Checksum = 0
	var buf bytes.Buffer
	v := reflect.ValueOf(&cp).Elem()
	for i := 0; i < v.NumField(); i++ {
		binary.Write(&buf, binary.LittleEndian, v.Field(i).Interface())
	}
	return crc32.ChecksumIEEE(buf.Bytes())
}

// VerifyChecksum reports whether s.Checksum matches the checksum of its
// other fields (spec 4.I, invariant 6).
func (s *SuperBlock) VerifyChecksum() bool {
	return s.Checksum == s.computeChecksum()
}

// Unmarshal decodes a superblock from data, verifying the magic identifies
// a known version.
func (s *SuperBlock) Unmarshal(data []byte) error {
	r := bytes.NewReader(data)
	v := reflect.ValueOf(s).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if err := binary.Read(r, binary.LittleEndian, f.Addr().Interface()); err != nil {
			return rafs.NewError(rafs.KindReadMetadata, "", err)
		}
	}
	if s.Magic != MagicV5 && s.Magic != MagicV6 {
		return rafs.NewError(rafs.KindReadMetadata, "", rafs.ErrInvalidMagic)
	}
	return nil
}

// HasFlag reports whether flags contains f.
func (s *SuperBlock) HasFlag(f Flag) bool { return Flag(s.Flags)&f != 0 }
