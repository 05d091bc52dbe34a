package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// v6DirEntry is one packed entry of an erofs-style dirent block: a header
// triple (name offset within the block's name pool, child nid, file type)
// followed later by the name bytes themselves (spec 4.G).
type v6DirEntry struct {
	NameOff  uint16
	FileType uint8
	_        uint8
	Nid      uint64
}

const v6DirEntrySize = 12

// V6Writer emits the erofs-compatible bootstrap layout (spec 4.G), adapted
// as:
//
//	1 KiB pad | SuperBlock | InodeOffsetTable | MetaArea | BlobTable | ChunkInfoArea
//
// InodeOffsetTable is a dense ino -> absolute byte offset array, playing
// the same random-access role as V5's inode table; real erofs instead
// resolves nids purely through directory traversal, but 4.H's get_inode
// API needs O(1) lookup by bare ino, so that table is kept here too.
// Within MetaArea, every node's compact-or-extended inode header and name
// are packed at 32-byte-aligned offsets, each followed by a chunk-info
// locator (regular files) or dirent-block locator (directories) and an
// optional inline xattr blob. Xattrs are stored inline per inode rather
// than through erofs's full shared/indexed xattr scheme, a deliberate
// simplification recorded in the design notes.
type V6Writer struct {
	Repeatable bool
	ChunkSize  uint32
	Compressor rafs.Compressor
	Digester   rafs.Algorithm
	Blobs      []*rafs.BlobDescriptor
}

// Write serializes t (the merged, inode-assigned tree) to w.
func (wr *V6Writer) Write(w io.Writer, t *tree.Tree) (uint64, error) {
	var nodes []*rafs.Node
	var dirs []*tree.Tree
	t.Iterate(func(n *rafs.Node) bool {
		nodes = append(nodes, n)
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Ino < nodes[j].Ino })
	collectDirs(t, &dirs)

	var meta bytes.Buffer
	var chunkArea bytes.Buffer
	localOffset := make(map[uint64]uint64, len(nodes)) // ino -> offset within MetaArea
	extended := make(map[uint64]bool, len(nodes))      // ino -> true if using the extended inode form
	dirLocatorPos := make(map[uint64]int, len(dirs))   // ino -> byte position of its 16-byte placeholder

	for _, n := range nodes {
		if pad := meta.Len() % 32; pad != 0 {
			meta.Write(make([]byte, 32-pad))
		}
		localOffset[n.Ino] = uint64(meta.Len())

		body, compact, err := EncodeInodeV6(n)
		if err != nil {
			return 0, err
		}
		extended[n.Ino] = !compact
		meta.Write(body)

		switch {
		case n.IsDir():
			dirLocatorPos[n.Ino] = meta.Len()
			meta.Write(make([]byte, 16)) // placeholder: (firstBlockOffset, blockCount)
		case n.IsRegular() && len(n.Chunks) > 0:
			chunkOff := uint64(chunkArea.Len())
			for _, cd := range n.Chunks {
				rec := chunkToRecordV5(cd)
				if err := binary.Write(&chunkArea, binary.LittleEndian, &rec); err != nil {
					return 0, rafs.NewError(rafs.KindIO, "", err)
				}
			}
			var loc [12]byte
			binary.LittleEndian.PutUint64(loc[0:8], chunkOff)
			binary.LittleEndian.PutUint32(loc[8:12], uint32(len(n.Chunks)))
			meta.Write(loc[:])
		}

		if n.XAttrs != nil && n.XAttrs.Len() > 0 {
			meta.Write(EncodeXAttrsV5(n.XAttrs, wr.Repeatable))
		}
	}

	// Dirent blocks, 4 KiB aligned, placed after every inode header so
	// that every child's nid (meta offset) is already known.
	type dirFixup struct {
		pos        int
		firstBlock uint64
		blockCount uint64
	}
	var fixups []dirFixup
	for _, d := range dirs {
		if pad := meta.Len() % BlockSize; pad != 0 {
			meta.Write(make([]byte, BlockSize-pad))
		}
		firstBlock := uint64(meta.Len())
		blocks := encodeDirentBlocks(d, localOffset, extended)
		for _, b := range blocks {
			meta.Write(b)
		}
		fixups = append(fixups, dirFixup{
			pos:        dirLocatorPos[d.Node.Ino],
			firstBlock: firstBlock,
			blockCount: uint64(len(blocks)),
		})
	}

	metaBytes := meta.Bytes()
	for _, fx := range fixups {
		binary.LittleEndian.PutUint64(metaBytes[fx.pos:fx.pos+8], fx.firstBlock)
		binary.LittleEndian.PutUint64(metaBytes[fx.pos+8:fx.pos+16], fx.blockCount)
	}

	sbSize := uint64(V6SuperBlockOffset + Size())
	inodeTableOffset := sbSize
	inodeTableSize := uint64(len(nodes)) * 8
	metaOffset := inodeTableOffset + inodeTableSize
	blobTableOffset := metaOffset + uint64(len(metaBytes))
	blobTable := encodeBlobTableV5(wr.Blobs)
	chunkInfoOffset := blobTableOffset + uint64(len(blobTable))
	bytesUsed := chunkInfoOffset + uint64(chunkArea.Len())
	if pad := bytesUsed % BlockSize; pad != 0 {
		bytesUsed += BlockSize - pad
	}

	sb := &SuperBlock{
		Magic:               MagicV6,
		Version:             uint32(V6),
		InodeCount:          uint64(len(nodes)),
		RootIno:             rafs.RootIno,
		ChunkSize:           wr.ChunkSize,
		Compressor:          uint8(wr.Compressor),
		Digester:            uint8(wr.Digester),
		InodeTableOffset:    inodeTableOffset,
		InodeTableSize:      inodeTableSize,
		MetaAreaOffset:      metaOffset,
		BlobTableOffset:     blobTableOffset,
		BlobTableSize:       uint64(len(blobTable)),
		ChunkInfoAreaOffset: chunkInfoOffset,
		BytesUsed:           bytesUsed,
	}
	if wr.Repeatable {
		sb.Flags |= uint32(FlagRepeatable)
	}

	aw := rafs.NewAlignedWriter(newCountingSeeker(w))
	if _, err := aw.Write(make([]byte, V6SuperBlockOffset)); err != nil {
		return 0, err
	}
	sbBytes, err := sb.Marshal()
	if err != nil {
		return 0, err
	}
	if _, err := aw.Write(sbBytes); err != nil {
		return 0, err
	}

	for _, n := range nodes {
		// Offsets are always even (the meta area and every inode within
		// it start on an even offset), so bit 0 is free to flag the
		// extended (64-byte) inode form for the reader.
		off := metaOffset + localOffset[n.Ino]
		if extended[n.Ino] {
			off |= 1
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], off)
		if _, err := aw.Write(b[:]); err != nil {
			return 0, err
		}
	}

	if _, err := aw.Write(metaBytes); err != nil {
		return 0, err
	}
	if _, err := aw.Write(blobTable); err != nil {
		return 0, err
	}
	if _, err := aw.Write(chunkArea.Bytes()); err != nil {
		return 0, err
	}
	if pad := aw.Pos() % BlockSize; pad != 0 {
		if _, err := aw.Write(make([]byte, BlockSize-pad)); err != nil {
			return 0, err
		}
	}

	return uint64(aw.Pos()), nil
}

func collectDirs(t *tree.Tree, out *[]*tree.Tree) {
	if t.Node.IsDir() {
		*out = append(*out, t)
	}
	for _, c := range t.Children {
		collectDirs(c, out)
	}
}

func encodeDirentBlocks(d *tree.Tree, localOffset map[uint64]uint64, extended map[uint64]bool) [][]byte {
	children := append([]*tree.Tree(nil), d.Children...)
	sort.Slice(children, func(i, j int) bool { return string(children[i].Node.Name) < string(children[j].Node.Name) })

	var blocks [][]byte
	i := 0
	for {
		var hdrBuf bytes.Buffer
		var nameBuf bytes.Buffer
		count := 0
		for i < len(children) {
			name := children[i].Node.Name
			entrySize := v6DirEntrySize + len(name)
			if hdrBuf.Len()+nameBuf.Len()+entrySize > BlockSize && count > 0 {
				break
			}
			// Bit 0 of Nid flags the extended inode form, mirroring the
			// inode offset table: a child reached purely through dirent
			// traversal still needs to know which header size to decode.
			nid := localOffset[children[i].Node.Ino]
			if extended[children[i].Node.Ino] {
				nid |= 1
			}
			entry := v6DirEntry{
				NameOff:  uint16(nameBuf.Len()),
				FileType: v6FileType(children[i].Node),
				Nid:      nid,
			}
			binary.Write(&hdrBuf, binary.LittleEndian, &entry)
			nameBuf.Write(name)
			i++
			count++
		}
		block := make([]byte, BlockSize)
		copy(block, hdrBuf.Bytes())
		copy(block[hdrBuf.Len():], nameBuf.Bytes())
		blocks = append(blocks, block)
		if i >= len(children) {
			break
		}
	}
	return blocks
}

func v6FileType(n *rafs.Node) uint8 {
	switch {
	case n.IsDir():
		return 2
	case n.IsSymlink():
		return 7
	default:
		return 1
	}
}
