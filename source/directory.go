// Package source implements the tree-building adapters of spec section
// 4.F: turning a source directory, an existing bootstrap, a stargz index,
// or a stack of overlay diff directories into a tree.Tree ready for the
// builder pipeline.
package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// Directory builds a tree.Tree from a recursive scan of a POSIX directory.
// Hardlinks are detected by (dev, ino); each link gets its own Node with
// the same (SrcDev, SrcIno) key, which the builder uses to emit their
// chunks once. Symlinks are
// recorded by target string and never followed.
type Directory struct {
	Root string

	hardlinks map[rafs.HardlinkKey]*rafs.Node
	nextIno   uint64
}

// Build walks Root and returns its tree. Ino numbers are assigned densely
// in scan order starting at 1 for the root, matching the invariant that
// ino is unique and dense in [1, N].
func (d *Directory) Build() (*tree.Tree, error) {
	d.hardlinks = make(map[rafs.HardlinkKey]*rafs.Node)
	d.nextIno = 1

	info, err := os.Lstat(d.Root)
	if err != nil {
		return nil, rafs.NewError(rafs.KindIO, d.Root, err)
	}
	root, err := d.scanOne(d.Root, "/", info)
	if err != nil {
		return nil, err
	}
	t := tree.New(root)
	if root.IsDir() {
		children, err := d.scanDir(d.Root, "/")
		if err != nil {
			return nil, err
		}
		t.Children = children
	}
	return t, nil
}

func (d *Directory) scanDir(dirPath, treePath string) ([]*tree.Tree, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, rafs.NewError(rafs.KindIO, dirPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	children := make([]*tree.Tree, 0, len(entries))
	for _, ent := range entries {
		childPath := filepath.Join(dirPath, ent.Name())
		childTreePath := filepath.Join(treePath, ent.Name())
		info, err := os.Lstat(childPath)
		if err != nil {
			return nil, rafs.NewError(rafs.KindIO, childPath, err)
		}

		node, err := d.scanOne(childPath, childTreePath, info)
		if err != nil {
			return nil, err
		}
		ct := tree.New(node)
		if node.IsDir() {
			grandchildren, err := d.scanDir(childPath, childTreePath)
			if err != nil {
				return nil, err
			}
			ct.Children = grandchildren
		}
		children = append(children, ct)
	}
	return children, nil
}

func (d *Directory) scanOne(fsPath, treePath string, info fs.FileInfo) (*rafs.Node, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	var dev, ino uint64
	var nlink uint32 = 1
	if ok {
		dev = uint64(st.Dev)
		ino = st.Ino
		nlink = uint32(st.Nlink)
	}

	node := &rafs.Node{
		Ino:     d.allocIno(),
		Name:    []byte(filepath.Base(treePath)),
		Mode:    info.Mode(),
		MTime:   info.ModTime().Unix(),
		Size:    uint64(info.Size()),
		SrcDev:  dev,
		SrcIno:  ino,
		NLink:   nlink,
		Overlay: rafs.OverlayLower,
		Path:    treePath,
	}
	node.TargetVec = rafs.GenerateTargetVec(treePath)
	if ok {
		node.UID = st.Uid
		node.GID = st.Gid
		node.Rdev = uint64(st.Rdev)
	}

	if node.IsRegular() && nlink > 1 {
		key := node.Key()
		if existing, seen := d.hardlinks[key]; seen {
			node.Chunks = existing.Chunks
			return node, nil
		}
		d.hardlinks[key] = node
	}

	if node.IsSymlink() {
		target, err := os.Readlink(fsPath)
		if err != nil {
			return nil, rafs.NewError(rafs.KindIO, fsPath, err)
		}
		node.SymlinkTarget = []byte(target)
	}

	xattrs, err := readXattrs(fsPath)
	if err != nil {
		return nil, err
	}
	node.XAttrs = xattrs

	return node, nil
}

func (d *Directory) allocIno() uint64 {
	ino := d.nextIno
	d.nextIno++
	return ino
}
