package tree

import (
	"io/fs"
	"path"

	"github.com/KarpelesLab/rafs"
)

// InodeView is the read-path view of a single loaded inode that the tree
// builder needs in order to reconstruct a Tree from a parent bootstrap
// (spec section 4.E, "Bootstrap adapter"). A loader's concrete inode type
// satisfies this structurally; tree does not import the loader package.
type InodeView interface {
	Ino() uint64
	Name() string
	Mode() fs.FileMode
	UID() uint32
	GID() uint32
	Rdev() uint64
	MTime() int64
	Size() uint64

	ChildCount() uint32
	ChildByIndex(idx uint32) (InodeView, error)

	ChunkCount() uint32
	ChunkInfo(idx uint32) (rafs.ChunkDescriptor, error)

	SymlinkTarget() (string, error)
	XattrNames() ([]string, error)
	Xattr(name string) ([]byte, error)
}

// BootstrapSource is the subset of a loaded rafs superblock that FromBootstrap
// needs to walk the whole inode table starting at the root.
type BootstrapSource interface {
	RootInode() (InodeView, error)
}

// FromBootstrap rebuilds a Tree from an already-loaded bootstrap, the same
// way a second-layer build loads its parent image as the lower tree (spec
// section 4.E and 4.F's Bootstrap adapter). Every regular file's chunks are
// also fed into dict, so the new build's chunker can dedup against
// everything the parent image already stored.
func FromBootstrap(src BootstrapSource, dict *rafs.ChunkDict) (*Tree, error) {
	root, err := src.RootInode()
	if err != nil {
		return nil, err
	}
	rootNode, err := parseNode(root, "/")
	if err != nil {
		return nil, err
	}
	t := New(rootNode)
	children, err := loadChildren(root, "/", dict)
	if err != nil {
		return nil, err
	}
	t.Children = children
	return t, nil
}

func loadChildren(inode InodeView, parentPath string, dict *rafs.ChunkDict) ([]*Tree, error) {
	if !inode.Mode().IsDir() {
		return nil, nil
	}

	count := inode.ChildCount()
	children := make([]*Tree, 0, count)
	for i := uint32(0); i < count; i++ {
		child, err := inode.ChildByIndex(i)
		if err != nil {
			return nil, err
		}
		childPath := path.Join(parentPath, child.Name())
		node, err := parseNode(child, childPath)
		if err != nil {
			return nil, err
		}

		if node.IsRegular() {
			for _, cd := range node.Chunks {
				dict.Add(cd)
			}
		}

		ct := New(node)
		if node.IsDir() {
			grandchildren, err := loadChildren(child, childPath, dict)
			if err != nil {
				return nil, err
			}
			ct.Children = grandchildren
		}
		children = append(children, ct)
	}
	return children, nil
}

// parseNode converts a loaded InodeView into a build-time Node rooted at
// p. Nodes loaded from a bootstrap are always treated as the lower layer
// and never hardlink-matched against a live filesystem, so SrcDev is set
// to the sentinel ^uint64(0) ("make dev invalid" in the original).
func parseNode(inode InodeView, p string) (*rafs.Node, error) {
	node := &rafs.Node{
		Ino:     inode.Ino(),
		Name:    []byte(path.Base(p)),
		Mode:    inode.Mode(),
		UID:     inode.UID(),
		GID:     inode.GID(),
		Rdev:    inode.Rdev(),
		MTime:   inode.MTime(),
		Size:    inode.Size(),
		SrcDev:  ^uint64(0),
		SrcIno:  inode.Ino(),
		Overlay: rafs.OverlayLower,
		Path:    p,
	}
	node.TargetVec = rafs.GenerateTargetVec(p)

	if node.IsSymlink() {
		target, err := inode.SymlinkTarget()
		if err != nil {
			return nil, err
		}
		node.SymlinkTarget = []byte(target)
	}

	if node.IsRegular() {
		cc := inode.ChunkCount()
		node.Chunks = make([]rafs.ChunkDescriptor, 0, cc)
		for i := uint32(0); i < cc; i++ {
			cd, err := inode.ChunkInfo(i)
			if err != nil {
				return nil, err
			}
			node.Chunks = append(node.Chunks, cd)
		}
	}

	names, err := inode.XattrNames()
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		node.XAttrs = rafs.NewXAttrs()
		for _, name := range names {
			value, err := inode.Xattr(name)
			if err != nil {
				return nil, err
			}
			node.XAttrs.Add(name, value)
		}
	}

	return node, nil
}
