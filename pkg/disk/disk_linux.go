//go:build linux
// +build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// UsableSpace returns the number of bytes available to the calling process
// on the file system containing path.
func UsableSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// Flush makes all written data of f durable. Uses fdatasync: the journal
// never changes file length after preallocation, so syncing metadata on
// every flush buys nothing.
func Flush(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// Preallocate reserves size bytes for f on disk.
func Preallocate(f *os.File, size int64) error {
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		// Not every file system implements fallocate.
		return f.Truncate(size)
	}
	return nil
}

// AdviseSequential hints the kernel that f will be read sequentially.
func AdviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
