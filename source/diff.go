package source

import (
	"io/fs"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/tree"
)

// Diff builds a merged tree from an ordered sequence of overlayfs upper
// directories, applying each on top of the previous with OverlayFS
// whiteout semantics (spec 4.F). Layers is bottom-to-top: Layers[0] is the
// lowest.
type Diff struct {
	Layers []string
	// Skip is the count of leading layers whose effect is already baked
	// into Cached, so their directories are not rescanned.
	Skip   int
	Cached *tree.Tree
}

// Build scans each layer not covered by Skip and applies it in order onto
// the running tree, starting from Cached, or from an empty root when
// Cached is nil (the skipped layers are then not applied at all).
func (d *Diff) Build() (*tree.Tree, error) {
	result := d.Cached
	if result == nil {
		result = tree.New(&rafs.Node{
			Ino:     1,
			Mode:    fs.ModeDir | 0755,
			Path:    "/",
			Overlay: rafs.OverlayLower,
		})
	}

	for i := d.Skip; i < len(d.Layers); i++ {
		upper := &Directory{Root: d.Layers[i]}
		layerTree, err := upper.Build()
		if err != nil {
			return nil, err
		}

		var applyErr error
		layerTree.Iterate(func(n *rafs.Node) bool {
			if applyErr != nil {
				return false
			}
			if n.Path == "/" {
				return true // the layer root itself is never a whiteout target
			}
			whiteoutType := detectOverlayFsWhiteout(n)
			if _, err := result.Apply(n, true, tree.WhiteoutSpecOverlayFS, whiteoutType); err != nil {
				applyErr = err
				return false
			}
			return true
		})
		if applyErr != nil {
			return nil, applyErr
		}
	}

	return result, nil
}

// detectOverlayFsWhiteout classifies n under the overlayfs convention: a
// character device with major/minor 0/0 removes its name, and a directory
// carrying the "trusted.overlay.opaque" xattr set to "y" opaques itself.
func detectOverlayFsWhiteout(n *rafs.Node) tree.WhiteoutType {
	isCharWhiteout := n.Mode&fs.ModeCharDevice != 0 && n.Rdev == 0
	isOpaqueDir := false
	if n.IsDir() && n.XAttrs != nil {
		if v, ok := n.XAttrs.Get("trusted.overlay.opaque"); ok && string(v) == "y" {
			isOpaqueDir = true
		}
	}
	return tree.DetectWhiteout(tree.WhiteoutSpecOverlayFS, string(n.Name), isCharWhiteout, isOpaqueDir)
}
