package loader

import "github.com/hanwen/go-fuse/v2/fuse"

// FillAttr projects an Inode's fields onto a fuse.Attr, the same
// translation the teacher's squashfs inode_linux.go did for its own
// read-only inode type. The mount/transport layer itself is out of
// scope (spec Non-goals); this is the seam a FUSE server would call into.
func (i *Inode) FillAttr(out *fuse.Attr) {
	out.Ino = i.node.Ino
	out.Size = i.node.Size
	out.Blocks = (i.node.Size + 511) / 512
	out.Mode = uint32(i.node.Mode.Perm())
	switch {
	case i.IsDir():
		out.Mode |= fuse.S_IFDIR
	case i.IsSymlink():
		out.Mode |= fuse.S_IFLNK
	default:
		out.Mode |= fuse.S_IFREG
	}
	out.Nlink = i.node.NLink
	if out.Nlink == 0 {
		out.Nlink = 1
	}
	out.Owner = fuse.Owner{Uid: i.node.UID, Gid: i.node.GID}
	out.Rdev = uint32(i.node.Rdev)
	out.Blksize = 4096

	sec := uint64(i.node.MTime)
	out.Atime, out.Mtime, out.Ctime = sec, sec, sec
}
