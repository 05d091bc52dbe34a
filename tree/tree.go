package tree

import (
	"path"

	"github.com/KarpelesLab/rafs"
)

// Tree is an in-memory topology of filesystem nodes, used on the builder
// side where nodes are addressed by path rather than by inode arena index
// (spec section 4.E, "Builder keeps a recursive path-keyed Tree").
type Tree struct {
	Node     *rafs.Node
	Children []*Tree
}

// New wraps node in a childless Tree.
func New(node *rafs.Node) *Tree {
	return &Tree{Node: node}
}

// Iterate walks the tree depth-first, calling cb on every node. Returning
// false from cb stops the walk early without visiting further siblings or
// descendants of the current subtree.
func (t *Tree) Iterate(cb func(*rafs.Node) bool) {
	if !cb(t.Node) {
		return
	}
	for _, c := range t.Children {
		c.Iterate(cb)
	}
}

// Apply merges target (an upper-layer node) into t (the lower layer),
// implementing the OCI/overlayfs overlay algorithm (spec section 4.E). When
// handleWhiteout is true, target is first checked against spec for a
// whiteout or opaque marker; otherwise target is treated as a plain
// addition or modification. Apply returns whether target was applied
// somewhere in the tree.
func (t *Tree) Apply(target *rafs.Node, handleWhiteout bool, spec WhiteoutSpec, whiteoutType WhiteoutType) (bool, error) {
	if handleWhiteout && whiteoutType != WhiteoutTypeNone {
		originName := OriginName(whiteoutType, lastComponent(target.Path))
		parentName := parentComponent(target.Path)

		if whiteoutType == WhiteoutTypeOverlayFsOpaque {
			if _, err := t.remove(target, whiteoutType, originName, parentName); err != nil {
				return false, err
			}
			found, err := t.Apply(target, false, spec, WhiteoutTypeNone)
			if err == nil && !found {
				return false, rafs.NewError(rafs.KindCorruption, target.Path, rafs.ErrNotFound)
			}
			return found, err
		}
		return t.remove(target, whiteoutType, originName, parentName)
	}

	targetPaths := target.TargetVec
	targetLen := len(targetPaths)
	depth := len(t.Node.TargetVec)

	if target.Path == "/" {
		node := *target
		node.Overlay = rafs.OverlayUpperModification
		t.Node = &node
		return true, nil
	}

	if depth < targetLen {
		for i, child := range t.Children {
			if targetPaths[depth] != string(child.Node.Name) {
				continue
			}
			if depth == targetLen-1 {
				node := *target
				node.Overlay = rafs.OverlayUpperModification
				t.Children[i] = &Tree{Node: &node, Children: child.Children}
				return true, nil
			}
			if child.Node.IsDir() {
				found, err := child.Apply(target, handleWhiteout, spec, whiteoutType)
				if err != nil {
					return false, err
				}
				if found {
					return true, nil
				}
			}
		}
	}

	if depth == targetLen-1 && (depth == 0 || targetPaths[depth-1] == string(t.Node.Name)) {
		node := *target
		node.Overlay = rafs.OverlayUpperAddition
		t.Children = append(t.Children, &Tree{Node: &node})
		return true, nil
	}

	return false, nil
}

func (t *Tree) remove(target *rafs.Node, whiteoutType WhiteoutType, originName, parentName string) (bool, error) {
	targetPaths := target.TargetVec
	targetLen := len(targetPaths)
	nodePaths := t.Node.TargetVec
	depth := len(nodePaths)

	if depth >= targetLen || (depth > 0 && nodePaths[depth-1] != targetPaths[depth-1]) {
		return false, nil
	}

	if depth == 1 &&
		((whiteoutType == WhiteoutTypeOciOpaque && targetLen == 2) ||
			(whiteoutType == WhiteoutTypeOverlayFsOpaque && targetLen == 1)) {
		t.Node.Overlay = rafs.OverlayUpperOpaque
		t.Children = nil
		return true, nil
	}

	for idx := 0; idx < len(t.Children); idx++ {
		child := t.Children[idx]

		if depth == targetLen-1 && whiteoutType.IsRemoval() && originName == string(child.Node.Name) {
			t.Children = append(t.Children[:idx], t.Children[idx+1:]...)
			return true, nil
		}

		if whiteoutType == WhiteoutTypeOciOpaque && targetLen >= 2 && depth == targetLen-2 {
			if parentName != "" && parentName == string(child.Node.Name) {
				child.Node.Overlay = rafs.OverlayUpperOpaque
				child.Children = nil
				return true, nil
			}
		} else if whiteoutType == WhiteoutTypeOverlayFsOpaque && depth == targetLen-1 && string(target.Name) == string(child.Node.Name) {
			child.Node.Overlay = rafs.OverlayUpperOpaque
			child.Children = nil
			return true, nil
		}

		if child.Node.IsDir() {
			found, err := child.remove(target, whiteoutType, originName, parentName)
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		}
	}

	return false, nil
}

func lastComponent(p string) string {
	return path.Base(p)
}

// parentComponent returns the name of the directory containing p, i.e. the
// directory a ".wh..wh..opq" marker at p would opaque. Mirrors the
// original's target.path().parent().file_name().
func parentComponent(p string) string {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return ""
	}
	return path.Base(dir)
}
