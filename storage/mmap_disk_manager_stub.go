//go:build !unix

package storage

import "fmt"

// newMmapDiskManager reports that memory-mapped disk access is unavailable
// on this platform.
func newMmapDiskManager(path string) (DiskManager, error) {
	return nil, fmt.Errorf("mmap disk manager is not supported on this platform")
}
