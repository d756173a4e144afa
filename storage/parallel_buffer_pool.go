package storage

import (
	"sync/atomic"
)

// ParallelBufferPoolManager federates a fixed array of buffer pool
// instances behind one cache interface. A page id belongs to exactly one
// instance (id % numInstances), so operations on distinct instances run
// fully in parallel while the pool itself holds no lock.
type ParallelBufferPoolManager struct {
	instances    []*BufferPoolManagerInstance
	numInstances uint32
	nextInstance atomic.Uint64 // round-robin cursor for NewPage
}

// NewParallelBufferPoolManager creates numInstances instances of poolSize
// frames each, sharing one disk manager and one optional log manager.
func NewParallelBufferPoolManager(numInstances, poolSize uint32, diskManager DiskManager, logManager *LogManager) (*ParallelBufferPoolManager, error) {
	instances := make([]*BufferPoolManagerInstance, numInstances)
	for i := uint32(0); i < numInstances; i++ {
		bpi, err := NewBufferPoolManagerInstanceForPool(poolSize, numInstances, i, diskManager, logManager)
		if err != nil {
			return nil, err
		}
		instances[i] = bpi
	}

	return &ParallelBufferPoolManager{
		instances:    instances,
		numInstances: numInstances,
	}, nil
}

// instanceFor routes a page id to the instance that owns its slice of the
// id space.
func (pbpm *ParallelBufferPoolManager) instanceFor(pageID PageID) *BufferPoolManagerInstance {
	return pbpm.instances[uint32(pageID)%pbpm.numInstances]
}

// NumInstances returns the federation cardinality.
func (pbpm *ParallelBufferPoolManager) NumInstances() uint32 {
	return pbpm.numInstances
}

// PoolSize returns the total frame count across all instances.
func (pbpm *ParallelBufferPoolManager) PoolSize() uint32 {
	return pbpm.numInstances * pbpm.instances[0].PoolSize()
}

// Instance returns the instance at the given index, for introspection.
func (pbpm *ParallelBufferPoolManager) Instance(index uint32) *BufferPoolManagerInstance {
	return pbpm.instances[index]
}

// NewPage mints a page on some instance, load-balancing round-robin from a
// monotonic cursor. Each call consults at most numInstances instances
// before concluding no frame is available anywhere.
func (pbpm *ParallelBufferPoolManager) NewPage() (*Page, error) {
	start := pbpm.nextInstance.Add(1) - 1

	var lastErr error
	for i := uint32(0); i < pbpm.numInstances; i++ {
		idx := uint32((start + uint64(i)) % uint64(pbpm.numInstances))
		page, err := pbpm.instances[idx].NewPage()
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !IsErrorCode(err, ErrCodeNoFreeFrames) {
			break
		}
	}

	return nil, lastErr
}

// FetchPage returns a pinned frame for pageID from its owning instance.
func (pbpm *ParallelBufferPoolManager) FetchPage(pageID PageID) (*Page, error) {
	if pageID < 0 {
		return nil, ErrInvalidPageID("FetchPage", pageID)
	}
	return pbpm.instanceFor(pageID).FetchPage(pageID)
}

// UnpinPage releases one pin on pageID at its owning instance.
func (pbpm *ParallelBufferPoolManager) UnpinPage(pageID PageID, isDirty bool) error {
	if pageID < 0 {
		return ErrInvalidPageID("UnpinPage", pageID)
	}
	return pbpm.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage writes pageID back to disk at its owning instance.
func (pbpm *ParallelBufferPoolManager) FlushPage(pageID PageID) error {
	if pageID < 0 {
		return ErrInvalidPageID("FlushPage", pageID)
	}
	return pbpm.instanceFor(pageID).FlushPage(pageID)
}

// DeletePage removes pageID from its owning instance's cache.
func (pbpm *ParallelBufferPoolManager) DeletePage(pageID PageID) error {
	if pageID < 0 {
		return ErrInvalidPageID("DeletePage", pageID)
	}
	return pbpm.instanceFor(pageID).DeletePage(pageID)
}

// FlushAllPages flushes every instance. The first error is reported after
// all instances have been swept.
func (pbpm *ParallelBufferPoolManager) FlushAllPages() error {
	var firstErr error
	for _, bpi := range pbpm.instances {
		if err := bpi.FlushAllPages(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
