//go:build unix

package storage

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapDiskManager serves page I/O out of a memory-mapped file. Reads and
// writes are memcpys against the mapping; Sync msyncs the mapping and
// fsyncs the descriptor.
type MmapDiskManager struct {
	file      *os.File
	mmapData  []byte
	fileSize  int64
	mutex     sync.RWMutex
	growMutex sync.Mutex // serializes remapping during file growth
}

const (
	// Initial file size: 64MB (16K pages * 4KB)
	mmapInitialFileSize = 64 * 1024 * 1024
	// Grow by 64MB when a page lands beyond the mapping
	mmapFileGrowSize = 64 * 1024 * 1024
)

// newMmapDiskManager adapts the constructor to the DiskManager interface
// for config-driven selection.
func newMmapDiskManager(path string) (DiskManager, error) {
	return NewMmapDiskManager(path)
}

// NewMmapDiskManager creates a memory-mapped disk manager.
func NewMmapDiskManager(fileName string) (*MmapDiskManager, error) {
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create file %s: %w", fileName, err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fileSize := fileInfo.Size()
	if fileSize < mmapInitialFileSize {
		if err := file.Truncate(mmapInitialFileSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to grow file: %w", err)
		}
		fileSize = mmapInitialFileSize
	}

	dm := &MmapDiskManager{
		file:     file,
		fileSize: fileSize,
	}

	if err := dm.createMapping(); err != nil {
		file.Close()
		return nil, err
	}

	return dm, nil
}

// createMapping maps the file at its current size.
func (dm *MmapDiskManager) createMapping() error {
	data, err := unix.Mmap(int(dm.file.Fd()), 0, int(dm.fileSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	dm.mmapData = data
	return nil
}

// growFile extends the file past the requested size and remaps it.
func (dm *MmapDiskManager) growFile(required int64) error {
	dm.growMutex.Lock()
	defer dm.growMutex.Unlock()

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if required <= dm.fileSize {
		return nil
	}

	if dm.mmapData != nil {
		if err := unix.Munmap(dm.mmapData); err != nil {
			return fmt.Errorf("failed to unmap file: %w", err)
		}
		dm.mmapData = nil
	}

	newSize := dm.fileSize + mmapFileGrowSize
	for newSize < required {
		newSize += mmapFileGrowSize
	}

	if err := dm.file.Truncate(newSize); err != nil {
		dm.createMapping()
		return fmt.Errorf("failed to grow file: %w", err)
	}
	dm.fileSize = newSize

	return dm.createMapping()
}

// ReadPage copies a page out of the mapping into data. Pages beyond the
// mapped extent read back as zeros, matching FileDiskManager.
func (dm *MmapDiskManager) ReadPage(pageID PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page buffer must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	offset := int64(pageID) * PageSize
	if offset+PageSize > dm.fileSize {
		clear(data)
		return nil
	}

	copy(data, dm.mmapData[offset:offset+PageSize])
	return nil
}

// WritePage copies a page into the mapping, growing the file if the page
// lands beyond it.
func (dm *MmapDiskManager) WritePage(pageID PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(data))
	}

	offset := int64(pageID) * PageSize

	dm.mutex.RLock()
	if offset+PageSize > dm.fileSize {
		dm.mutex.RUnlock()
		if err := dm.growFile(offset + PageSize); err != nil {
			return err
		}
		dm.mutex.RLock()
	}
	defer dm.mutex.RUnlock()

	copy(dm.mmapData[offset:offset+PageSize], data)
	return nil
}

// AllocatePage makes sure the mapping covers the new page.
func (dm *MmapDiskManager) AllocatePage(pageID PageID) error {
	required := (int64(pageID) + 1) * PageSize

	dm.mutex.RLock()
	size := dm.fileSize
	dm.mutex.RUnlock()

	if required > size {
		return dm.growFile(required)
	}
	return nil
}

// DeallocatePage is a no-op.
func (dm *MmapDiskManager) DeallocatePage(pageID PageID) error {
	return nil
}

// Sync msyncs the mapping and fsyncs the file.
func (dm *MmapDiskManager) Sync() error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.mmapData == nil {
		return nil
	}

	if err := unix.Msync(dm.mmapData, unix.MS_SYNC); err != nil {
		return fmt.Errorf("failed to msync mapping: %w", err)
	}
	return dm.file.Sync()
}

// Close syncs, unmaps and closes the file.
func (dm *MmapDiskManager) Close() error {
	dm.Sync()

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.mmapData != nil {
		if err := unix.Munmap(dm.mmapData); err != nil {
			return fmt.Errorf("failed to unmap file: %w", err)
		}
		dm.mmapData = nil
	}

	if dm.file != nil {
		return dm.file.Close()
	}
	return nil
}
