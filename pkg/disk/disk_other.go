//go:build !linux
// +build !linux

package disk

import (
	"math"
	"os"
)

// UsableSpace reports the maximum on platforms without a statfs probe, so
// the disk-space policy never blocks allocation there.
func UsableSpace(path string) (uint64, error) {
	return math.MaxUint64, nil
}

// Flush makes all written data of f durable.
func Flush(f *os.File) error {
	return f.Sync()
}

// Preallocate reserves size bytes for f on disk.
func Preallocate(f *os.File, size int64) error {
	return f.Truncate(size)
}

// AdviseSequential is a no-op without posix_fadvise.
func AdviseSequential(f *os.File) {}
