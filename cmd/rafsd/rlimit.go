package main

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/KarpelesLab/rafs"
)

const (
	defaultRlimitNofile = 1_000_000
	reservedFds         = 16_384
)

// raiseRlimitNofile implements spec section 5's resource policy: the
// daemon's open-file limit is raised to min(fs.file-max - 16384, target),
// leaving headroom for the rest of the system, and never lowered below
// whatever is already in effect.
func raiseRlimitNofile(target uint64) error {
	if target == 0 {
		target = defaultRlimitNofile
	}

	fileMax, err := readFileMax()
	if err != nil {
		return err
	}
	if fileMax < 2*reservedFds {
		return rafs.NewError(rafs.KindConfigure, "fs.file-max", nil)
	}
	if max := fileMax - reservedFds; target > max {
		target = max
	}

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return rafs.NewError(rafs.KindIO, "getrlimit", err)
	}
	if rlim.Cur >= target {
		return nil
	}

	rlim.Cur = target
	if rlim.Max < target {
		rlim.Max = target
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return rafs.NewError(rafs.KindIO, "setrlimit", err)
	}
	return nil
}

func readFileMax() (uint64, error) {
	data, err := os.ReadFile("/proc/sys/fs/file-max")
	if err != nil {
		return 0, rafs.NewError(rafs.KindIO, "/proc/sys/fs/file-max", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, rafs.NewError(rafs.KindConfigure, "fs.file-max", err)
	}
	return v, nil
}
