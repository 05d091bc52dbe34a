//go:build linux

package source

import (
	"golang.org/x/sys/unix"

	"github.com/KarpelesLab/rafs"
)

// readXattrs reads every extended attribute of fsPath via the Linux
// listxattr/getxattr syscalls, grounded on golang.org/x/sys/unix the way
// the rest of the domain stack uses it for low-level POSIX access.
func readXattrs(fsPath string) (*rafs.XAttrs, error) {
	size, err := unix.Llistxattr(fsPath, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil, nil
		}
		return nil, rafs.NewError(rafs.KindIO, fsPath, err)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(fsPath, buf)
	if err != nil {
		return nil, rafs.NewError(rafs.KindIO, fsPath, err)
	}
	names := splitNulTerminated(buf[:n])
	if len(names) == 0 {
		return nil, nil
	}

	xattrs := rafs.NewXAttrs()
	for _, name := range names {
		vsize, err := unix.Lgetxattr(fsPath, name, nil)
		if err != nil {
			continue
		}
		val := make([]byte, vsize)
		if vsize > 0 {
			if _, err := unix.Lgetxattr(fsPath, name, val); err != nil {
				continue
			}
		}
		xattrs.Add(name, val)
	}
	return xattrs, nil
}

func splitNulTerminated(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				out = append(out, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
