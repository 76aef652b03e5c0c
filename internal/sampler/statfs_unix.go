//go:build !windows

package sampler

import "golang.org/x/sys/unix"

func statfs(mount string) (Stat, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(mount, &fs); err != nil {
		return Stat{}, err
	}
	bsize := uint64(fs.Bsize)
	return Stat{
		TotalBytes: fs.Blocks * bsize,
		FreeBytes:  fs.Bavail * bsize,
	}, nil
}
