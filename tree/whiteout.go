// Package tree maintains the in-memory node tree used while building a
// rafs image, and the overlay engine that merges an upper source tree onto
// a lower tree loaded from a parent bootstrap (spec section 4.E).
package tree

import "strings"

// WhiteoutSpec selects which convention is used to recognize whiteout and
// opaque-directory markers in an upper source tree (spec section 4.E).
type WhiteoutSpec int

const (
	// WhiteoutSpecNone disables whiteout handling: every upper node is
	// treated as a plain addition or modification.
	WhiteoutSpecNone WhiteoutSpec = iota
	// WhiteoutSpecOCI recognizes the OCI image-layer-spec convention:
	// ".wh.<name>" removes <name>, ".wh..wh..opq" opaques its directory.
	WhiteoutSpecOCI
	// WhiteoutSpecOverlayFS recognizes the Linux overlayfs convention: a
	// char device with major/minor 0/0 removes its name, and the xattr
	// "trusted.overlay.opaque=y" opaques its directory.
	WhiteoutSpecOverlayFS
)

// WhiteoutType classifies what a single upper node's whiteout marker means.
type WhiteoutType int

const (
	// WhiteoutTypeNone marks a node that is not a whiteout marker.
	WhiteoutTypeNone WhiteoutType = iota
	// WhiteoutTypeRemoval marks a node that removes a single lower entry.
	WhiteoutTypeRemoval
	// WhiteoutTypeOciOpaque marks an OCI ".wh..wh..opq" opaque marker.
	WhiteoutTypeOciOpaque
	// WhiteoutTypeOverlayFsOpaque marks an overlayfs opaque directory
	// (the directory itself carries the opaque xattr).
	WhiteoutTypeOverlayFsOpaque
)

// IsRemoval reports whether t removes one lower entry outright, as opposed
// to opaquing a directory's lower children.
func (t WhiteoutType) IsRemoval() bool { return t == WhiteoutTypeRemoval }

const (
	ociWhiteoutPrefix = ".wh."
	ociOpaqueName     = ".wh..wh..opq"
)

// DetectWhiteout classifies name/isOpaqueDir under spec, returning
// WhiteoutTypeNone when the node is not a whiteout marker under spec. For
// WhiteoutSpecOverlayFS, isOpaqueDir communicates that the caller already
// determined the node is a directory carrying the "trusted.overlay.opaque"
// xattr; isCharWhiteout communicates that the node is a 0/0 char device.
func DetectWhiteout(spec WhiteoutSpec, name string, isCharWhiteout, isOpaqueDir bool) WhiteoutType {
	switch spec {
	case WhiteoutSpecOCI:
		if name == ociOpaqueName {
			return WhiteoutTypeOciOpaque
		}
		if strings.HasPrefix(name, ociWhiteoutPrefix) {
			return WhiteoutTypeRemoval
		}
	case WhiteoutSpecOverlayFS:
		if isOpaqueDir {
			return WhiteoutTypeOverlayFsOpaque
		}
		if isCharWhiteout {
			return WhiteoutTypeRemoval
		}
	}
	return WhiteoutTypeNone
}

// OriginName returns the lower entry name a removal or OCI-opaque marker
// refers to, stripping the ".wh." prefix for removals. OverlayFS opaque
// markers name their own directory, so origin name equals name.
func OriginName(whiteoutType WhiteoutType, name string) string {
	if whiteoutType == WhiteoutTypeRemoval {
		return strings.TrimPrefix(name, ociWhiteoutPrefix)
	}
	return name
}
