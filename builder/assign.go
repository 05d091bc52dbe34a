package builder

import (
	"sort"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// AssignInodes walks t in pre-order, assigning dense ino numbers starting
// at rafs.RootIno (spec 4.G's "AssignInodes" state). Each directory's
// children are sorted by name first, so ino order agrees with the
// name-sorted order both wire formats binary-search over. It returns the
// flat, ino-ordered node list V5Writer serializes; V6Writer instead walks
// t directly but relies on Ino and Children having already been assigned
// here.
func AssignInodes(t *tree.Tree) []*rafs.Node {
	nodes := make([]*rafs.Node, 0)
	next := uint64(rafs.RootIno)

	var walk func(n *tree.Tree, parent uint64)
	walk = func(n *tree.Tree, parent uint64) {
		n.Node.Ino = next
		next++
		n.Node.Parent = parent
		nodes = append(nodes, n.Node)

		if !n.Node.IsDir() {
			return
		}
		sort.Slice(n.Children, func(i, j int) bool {
			return string(n.Children[i].Node.Name) < string(n.Children[j].Node.Name)
		})
		for _, c := range n.Children {
			walk(c, n.Node.Ino)
		}
		n.Node.Children = make([]uint64, 0, len(n.Children))
		for _, c := range n.Children {
			n.Node.Children = append(n.Node.Children, c.Node.Ino)
		}
	}
	walk(t, 0)
	return nodes
}
