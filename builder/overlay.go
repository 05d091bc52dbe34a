package builder

import (
	"io/fs"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// detectWhiteout classifies n under spec, the same pattern
// source/diff.go uses for its fixed OverlayFS case, generalized to also
// cover WhiteoutSpecOCI (spec 4.E).
func detectWhiteout(spec tree.WhiteoutSpec, n *rafs.Node) tree.WhiteoutType {
	isCharWhiteout := n.Mode&fs.ModeCharDevice != 0 && n.Rdev == 0
	isOpaqueDir := false
	if n.IsDir() && n.XAttrs != nil {
		if v, ok := n.XAttrs.Get("trusted.overlay.opaque"); ok && string(v) == "y" {
			isOpaqueDir = true
		}
	}
	return tree.DetectWhiteout(spec, string(n.Name), isCharWhiteout, isOpaqueDir)
}
