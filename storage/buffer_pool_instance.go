package storage

import (
	"fmt"
	"sync"
	"time"
)

// BufferPoolManagerInstance is one shard of the buffer pool. It owns a fixed
// set of frames backed by a single contiguous allocation, the page table
// mapping resident ids to frames, the free list, a replacer, and the slice
// of the page-id space congruent to its index modulo the instance count.
//
// One mutex serializes every public operation, including the disk I/O on the
// fetch and eviction paths. Holding it across the transfer keeps a racing
// goroutine from victimizing or re-pinning the frame mid-read.
type BufferPoolManagerInstance struct {
	poolSize      uint32
	numInstances  uint32
	instanceIndex uint32
	nextPageID    PageID

	frameData []byte // contiguous poolSize*PageSize region backing all frames
	pages     []*Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	replacer  Replacer

	diskManager DiskManager
	logManager  *LogManager
	metrics     *Metrics
	mutex       sync.Mutex
}

// NewBufferPoolManagerInstance creates a standalone instance that owns the
// whole page-id space. logManager may be nil.
func NewBufferPoolManagerInstance(poolSize uint32, diskManager DiskManager, logManager *LogManager) (*BufferPoolManagerInstance, error) {
	return NewBufferPoolManagerInstanceForPool(poolSize, 1, 0, diskManager, logManager)
}

// NewBufferPoolManagerInstanceForPool creates an instance that is member
// instanceIndex of a pool of numInstances. Every page id it mints satisfies
// id % numInstances == instanceIndex.
func NewBufferPoolManagerInstanceForPool(poolSize, numInstances, instanceIndex uint32, diskManager DiskManager, logManager *LogManager) (*BufferPoolManagerInstance, error) {
	if poolSize == 0 {
		return nil, fmt.Errorf("pool size must be greater than 0")
	}
	if numInstances == 0 {
		return nil, fmt.Errorf("number of instances must be greater than 0")
	}
	if instanceIndex >= numInstances {
		return nil, fmt.Errorf("instance index %d out of range for %d instances", instanceIndex, numInstances)
	}
	if diskManager == nil {
		return nil, fmt.Errorf("disk manager cannot be nil")
	}

	bpi := &BufferPoolManagerInstance{
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    PageID(instanceIndex),
		frameData:     make([]byte, int(poolSize)*PageSize),
		pages:         make([]*Page, poolSize),
		pageTable:     make(map[PageID]FrameID, poolSize),
		freeList:      make([]FrameID, 0, poolSize),
		replacer:      NewReplacer("lru", poolSize),
		diskManager:   diskManager,
		logManager:    logManager,
		metrics:       NewMetrics(),
	}

	// Each frame gets its slice of the contiguous region; initially every
	// frame is in the free list.
	for i := uint32(0); i < poolSize; i++ {
		bpi.pages[i] = newPage(bpi.frameData[int(i)*PageSize : int(i+1)*PageSize])
		bpi.freeList = append(bpi.freeList, FrameID(i))
	}

	return bpi, nil
}

// PoolSize returns the number of frames this instance owns.
func (bpi *BufferPoolManagerInstance) PoolSize() uint32 {
	return bpi.poolSize
}

// InstanceIndex returns this instance's position in the pool.
func (bpi *BufferPoolManagerInstance) InstanceIndex() uint32 {
	return bpi.instanceIndex
}

// Metrics returns the instance's metrics tracker.
func (bpi *BufferPoolManagerInstance) Metrics() *Metrics {
	return bpi.metrics
}

// NewPage mints a new page id, places a zeroed page for it in a frame, pins
// it and returns it. Fails with ErrCodeNoFreeFrames when every frame is
// pinned.
func (bpi *BufferPoolManagerInstance) NewPage() (*Page, error) {
	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	frameID, err := bpi.acquireFrame("NewPage")
	if err != nil {
		return nil, err
	}

	pageID := bpi.allocatePage()
	if err := bpi.diskManager.AllocatePage(pageID); err != nil {
		bpi.releaseFrame(frameID)
		return nil, ErrDiskWrite("NewPage", pageID, err)
	}

	page := bpi.pages[frameID]
	page.reset()
	page.setID(pageID)
	page.setPinCount(1)

	bpi.pageTable[pageID] = frameID
	bpi.replacer.Pin(frameID)

	return page, nil
}

// FetchPage returns a pinned frame holding pageID, reading it from disk on a
// miss. Fails with ErrCodeNoFreeFrames when the page is absent and every
// frame is pinned. A failed disk read returns the chosen frame to the free
// list and leaves pageID unregistered; a replacer victim chosen for the read
// stays evicted.
func (bpi *BufferPoolManagerInstance) FetchPage(pageID PageID) (*Page, error) {
	start := time.Now()
	defer func() {
		bpi.metrics.RecordPageFetchLatency(time.Since(start))
	}()

	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	if frameID, ok := bpi.pageTable[pageID]; ok {
		bpi.metrics.RecordCacheHit()
		page := bpi.pages[frameID]
		page.pin()
		bpi.replacer.Pin(frameID)
		return page, nil
	}

	bpi.metrics.RecordCacheMiss()

	frameID, err := bpi.acquireFrame("FetchPage")
	if err != nil {
		return nil, err
	}

	page := bpi.pages[frameID]
	if err := bpi.diskManager.ReadPage(pageID, page.Data()); err != nil {
		bpi.releaseFrame(frameID)
		return nil, ErrDiskRead("FetchPage", pageID, err)
	}

	page.setID(pageID)
	page.setPinCount(1)
	page.setDirty(false)
	page.SetLSN(InvalidLSN)

	bpi.pageTable[pageID] = frameID
	bpi.replacer.Pin(frameID)

	return page, nil
}

// UnpinPage releases one pin on pageID, marking the frame dirty if the
// holder modified it. Dirtiness is sticky: unpinning clean never clears a
// dirty flag set earlier. Unpinning below zero is clamped to a no-op.
func (bpi *BufferPoolManagerInstance) UnpinPage(pageID PageID, isDirty bool) error {
	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	frameID, ok := bpi.pageTable[pageID]
	if !ok {
		return ErrPageNotFound("UnpinPage", pageID)
	}

	page := bpi.pages[frameID]
	if page.PinCount() == 0 {
		return nil
	}

	if isDirty {
		page.setDirty(true)
	}

	if page.unpin() == 0 {
		bpi.replacer.Unpin(frameID)
	}

	return nil
}

// FlushPage writes pageID's frame back to disk if it is dirty. Pin state is
// unchanged; flushing a clean page is a no-op.
func (bpi *BufferPoolManagerInstance) FlushPage(pageID PageID) error {
	start := time.Now()
	defer func() {
		bpi.metrics.RecordPageFlushLatency(time.Since(start))
	}()

	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	frameID, ok := bpi.pageTable[pageID]
	if !ok {
		return ErrPageNotFound("FlushPage", pageID)
	}

	return bpi.flushFrame(bpi.pages[frameID], "FlushPage")
}

// FlushAllPages writes every dirty resident page back to disk, in no
// particular order, and syncs the disk manager. The first error is
// reported after the sweep completes.
func (bpi *BufferPoolManagerInstance) FlushAllPages() error {
	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	var firstErr error
	for _, frameID := range bpi.pageTable {
		if err := bpi.flushFrame(bpi.pages[frameID], "FlushAllPages"); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := bpi.diskManager.Sync(); err != nil && firstErr == nil {
		firstErr = NewStorageError(ErrCodeDiskWriteFailed, "FlushAllPages", "disk sync failed", err)
	}

	return firstErr
}

// DeletePage drops pageID from the cache and returns its frame to the free
// list. Deleting an absent page succeeds; deleting a pinned page fails with
// ErrCodePagePinned and changes nothing.
func (bpi *BufferPoolManagerInstance) DeletePage(pageID PageID) error {
	bpi.mutex.Lock()
	defer bpi.mutex.Unlock()

	// Id-reuse bookkeeping hook, invoked whether or not the page is resident.
	_ = bpi.diskManager.DeallocatePage(pageID)

	frameID, ok := bpi.pageTable[pageID]
	if !ok {
		return nil
	}

	page := bpi.pages[frameID]
	if count := page.PinCount(); count != 0 {
		return ErrPagePinned("DeletePage", pageID, count)
	}

	delete(bpi.pageTable, pageID)
	page.reset()
	bpi.freeList = append(bpi.freeList, frameID)
	bpi.replacer.Pin(frameID)

	return nil
}

// acquireFrame secures a frame for reuse, preferring the free list over the
// replacer. A replacer victim is written back if dirty and unmapped from
// the page table. Must be called with the instance mutex held.
func (bpi *BufferPoolManagerInstance) acquireFrame(op string) (FrameID, error) {
	if len(bpi.freeList) > 0 {
		frameID := bpi.freeList[0]
		bpi.freeList = bpi.freeList[1:]
		return frameID, nil
	}

	frameID, ok := bpi.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrames(op)
	}

	page := bpi.pages[frameID]
	if page.IsDirty() {
		bpi.metrics.RecordDirtyPageFlush()
		if err := bpi.flushFrame(page, op); err != nil {
			// The frame stays resident and evictable; only its LRU
			// position is lost.
			bpi.replacer.Unpin(frameID)
			return 0, err
		}
	}

	bpi.metrics.RecordPageEviction()
	delete(bpi.pageTable, page.ID())

	return frameID, nil
}

// releaseFrame undoes a failed acquisition: the frame goes back to the free
// list with no page assigned. Must be called with the instance mutex held.
func (bpi *BufferPoolManagerInstance) releaseFrame(frameID FrameID) {
	bpi.pages[frameID].reset()
	bpi.freeList = append(bpi.freeList, frameID)
}

// flushFrame writes a dirty frame to disk and clears its dirty flag,
// honoring the write-ahead rule when a log manager is attached. Must be
// called with the instance mutex held.
func (bpi *BufferPoolManagerInstance) flushFrame(page *Page, op string) error {
	if !page.IsDirty() {
		return nil
	}

	if bpi.logManager != nil {
		if err := bpi.logManager.Flush(); err != nil {
			return fmt.Errorf("failed to flush log before page write: %w", err)
		}
	}

	if err := bpi.diskManager.WritePage(page.ID(), page.Data()); err != nil {
		return ErrDiskWrite(op, page.ID(), err)
	}

	page.setDirty(false)
	return nil
}

// allocatePage mints the next page id owned by this instance. Ids start at
// the instance index and advance by the instance count, so the partition
// invariant holds for every id ever produced here.
func (bpi *BufferPoolManagerInstance) allocatePage() PageID {
	pageID := bpi.nextPageID
	bpi.nextPageID += PageID(bpi.numInstances)
	bpi.validatePageID(pageID)
	return pageID
}

// validatePageID asserts the partition invariant for a freshly minted id.
func (bpi *BufferPoolManagerInstance) validatePageID(pageID PageID) {
	if uint32(pageID)%bpi.numInstances != bpi.instanceIndex {
		panic(fmt.Sprintf("page id %d does not belong to instance %d of %d", pageID, bpi.instanceIndex, bpi.numInstances))
	}
}
