package format

import (
	"bytes"
	"encoding/binary"

	"github.com/KarpelesLab/rafs"
)

// EncodeXAttrsV5 serializes an xattr set as a count-prefixed run of
// (name-length, name, value-length, value) tuples. When repeatable is
// true, names are sorted into byte order first (spec 4.G, "Determinism").
func EncodeXAttrsV5(x *rafs.XAttrs, repeatable bool) []byte {
	if x == nil || x.Len() == 0 {
		return nil
	}
	if repeatable {
		x.Sort()
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(x.Len()))
	for _, name := range x.Names() {
		value, _ := x.Get(name)
		binary.Write(&buf, binary.LittleEndian, uint16(len(name)))
		buf.WriteString(name)
		binary.Write(&buf, binary.LittleEndian, uint32(len(value)))
		buf.Write(value)
	}
	return buf.Bytes()
}

// DecodeXAttrsV5 parses an xattr table encoded by EncodeXAttrsV5, returning
// the set and the number of bytes consumed.
func DecodeXAttrsV5(data []byte) (*rafs.XAttrs, int, error) {
	if len(data) < 4 {
		return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
	}
	count := binary.LittleEndian.Uint32(data)
	pos := 4

	xattrs := rafs.NewXAttrs()
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if pos+nameLen > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen

		if pos+4 > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		valLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+valLen > len(data) {
			return nil, 0, rafs.NewError(rafs.KindCorruption, "", rafs.ErrUnalignedData)
		}
		value := append([]byte(nil), data[pos:pos+valLen]...)
		pos += valLen

		xattrs.Add(name, value)
	}
	return xattrs, pos, nil
}
