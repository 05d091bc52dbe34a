package rafs

import (
	"io/fs"
	"path"
	"strings"
)

// RootIno is the always-fixed inode number of a rafs image's root
// directory (spec section 3 invariant: "root is always 1").
const RootIno = 1

// Overlay marks how a Node arrived at its position in a merged tree
// (spec section 3, "overlay status").
type Overlay int

const (
	// OverlayLower means the node came from the lower tree unmodified.
	OverlayLower Overlay = iota
	// OverlayUpperAddition means the upper layer added this node.
	OverlayUpperAddition
	// OverlayUpperModification means the upper layer replaced this node
	// but the node retains the lower layer's children.
	OverlayUpperModification
	// OverlayUpperOpaque means an OCI/OverlayFS opaque directive hid
	// this directory's lower children.
	OverlayUpperOpaque
	// OverlayUpperRemoval marks a node consumed by a whiteout; such
	// nodes are removed from the tree outright and this value exists
	// only for diagnostics during removal.
	OverlayUpperRemoval
)

func (o Overlay) String() string {
	switch o {
	case OverlayLower:
		return "lower"
	case OverlayUpperAddition:
		return "upper-addition"
	case OverlayUpperModification:
		return "upper-modification"
	case OverlayUpperOpaque:
		return "upper-opaque"
	case OverlayUpperRemoval:
		return "upper-removal"
	default:
		return "unknown"
	}
}

// XAttrs is an ordered mapping of xattr name to value, names unique
// within a Node (spec section 3). Order is preserved as inserted so
// repeatable builds stay deterministic when names are added in a fixed
// traversal order; Sort() imposes byte order for output determinism.
type XAttrs struct {
	names  []string
	values map[string][]byte
}

// NewXAttrs returns an empty XAttrs set.
func NewXAttrs() *XAttrs {
	return &XAttrs{values: make(map[string][]byte)}
}

// Add sets name to value, appending name to the iteration order if new.
func (x *XAttrs) Add(name string, value []byte) {
	if _, ok := x.values[name]; !ok {
		x.names = append(x.names, name)
	}
	x.values[name] = value
}

// Get returns the value for name, if present.
func (x *XAttrs) Get(name string) ([]byte, bool) {
	v, ok := x.values[name]
	return v, ok
}

// Names returns xattr names in their current iteration order.
func (x *XAttrs) Names() []string { return x.names }

// Len returns the number of xattrs.
func (x *XAttrs) Len() int { return len(x.names) }

// Sort reorders Names() into bytewise order, used when repeatable=true
// (spec 4.G "Determinism").
func (x *XAttrs) Sort() {
	// insertion sort: xattr counts per inode are small, and this keeps
	// the dependency list free of a generic sort import for one line.
	for i := 1; i < len(x.names); i++ {
		for j := i; j > 0 && x.names[j-1] > x.names[j]; j-- {
			x.names[j-1], x.names[j] = x.names[j], x.names[j-1]
		}
	}
}

// Node represents one filesystem entry (spec section 3). It carries both
// the fields destined for serialization and the build-time-only fields
// used by hardlink detection and overlay application; the format writers
// only read the serialization-relevant subset.
type Node struct {
	Ino    uint64
	Parent uint64
	Name   []byte // raw bytes, UTF-8 not assumed

	Mode  fs.FileMode
	UID   uint32
	GID   uint32
	MTime int64
	Rdev  uint64
	NLink uint32
	Size  uint64

	SymlinkTarget []byte
	XAttrs        *XAttrs

	Children []uint64 // ordered child inode numbers, sorted by Name

	Chunks []ChunkDescriptor

	// Build-time only fields (spec section 3's "Plus build-time fields").
	SrcDev  uint64
	SrcIno  uint64
	Overlay Overlay

	// Path is this node's position in the tree being built; TargetVec is
	// Path split into components, used by the overlay engine to do
	// depth-based matching without restring on every comparison.
	Path      string
	TargetVec []string
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.Mode.IsDir() }

// IsRegular reports whether the node is a regular file.
func (n *Node) IsRegular() bool { return n.Mode.IsRegular() }

// IsSymlink reports whether the node is a symbolic link.
func (n *Node) IsSymlink() bool { return n.Mode&fs.ModeSymlink != 0 }

// HardlinkKey identifies nodes that must share chunks: two nodes with
// equal (SrcDev, SrcIno) represent the same underlying file (spec section
// 3, "Hardlinks").
type HardlinkKey struct {
	Dev uint64
	Ino uint64
}

// Key returns n's hardlink key. Nodes loaded from a bootstrap (rather
// than a live directory scan) carry SrcDev == ^uint64(0) so they never
// spuriously collide with a live filesystem's (dev, ino) pairs, mirroring
// the original implementation's "make dev invalid" comment.
func (n *Node) Key() HardlinkKey { return HardlinkKey{Dev: n.SrcDev, Ino: n.SrcIno} }

// GenerateTargetVec splits an absolute, slash-separated path into its
// non-empty components, used by the overlay engine's depth matching.
func GenerateTargetVec(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	return parts
}
