//go:build !linux

package source

import "github.com/KarpelesLab/rafs"

// readXattrs has no portable implementation outside Linux; directory
// builds on other platforms simply produce nodes without xattrs.
func readXattrs(fsPath string) (*rafs.XAttrs, error) {
	return nil, nil
}
