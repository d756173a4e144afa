package storage

import (
	"sync"
)

// PageSize is the size of a page in bytes. Frame buffers, disk offsets and
// the WAL page images all use this unit.
const PageSize = 4096

// PageID identifies a page on disk. IDs are globally unique and partitioned
// across buffer pool instances: every id minted by instance i satisfies
// id % numInstances == i.
type PageID int32

// InvalidPageID marks a frame that holds no page.
const InvalidPageID PageID = -1

// FrameID indexes a frame within one instance's frame array, in [0, poolSize).
type FrameID uint32

// LSN is a log sequence number assigned by the LogManager.
type LSN uint64

// InvalidLSN marks a page that has no logged modification.
const InvalidLSN LSN = 0

// Page is one frame of the buffer pool: a PageSize byte buffer plus the
// metadata the pool needs to manage it. The data slice aliases the pool's
// contiguous frame region and is never reallocated.
//
// The pool mutates id/pinCount/isDirty under the instance mutex; the small
// metadata mutex here only makes holder-side reads safe while another
// goroutine runs a pool operation. The content latch protects the byte
// buffer itself: holders take WLatch around writes and RLatch around reads
// when they share a pinned page.
type Page struct {
	id       PageID
	pinCount int32
	isDirty  bool
	lsn      LSN
	data     []byte
	mutex    sync.RWMutex
	latch    *RWLatch
}

func newPage(data []byte) *Page {
	return &Page{
		id:    InvalidPageID,
		data:  data,
		latch: NewRWLatch(),
	}
}

// ID returns the id of the page currently held by this frame, or
// InvalidPageID for a free frame.
func (p *Page) ID() PageID {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.id
}

// PinCount returns the number of outstanding pins.
func (p *Page) PinCount() int32 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.pinCount
}

// IsDirty reports whether the in-memory contents differ from disk.
func (p *Page) IsDirty() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.isDirty
}

// LSN returns the log sequence number of the last logged change to this page.
func (p *Page) LSN() LSN {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.lsn
}

// SetLSN records the LSN of a change a holder has logged for this page.
func (p *Page) SetLSN(lsn LSN) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lsn = lsn
}

// Data returns the page's byte buffer. The slice is valid for the lifetime
// of the pool; a holder may mutate it freely while the page is pinned and
// must report the modification on unpin.
func (p *Page) Data() []byte {
	return p.data
}

// WLatch acquires the content latch in write mode.
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases the content latch held in write mode.
func (p *Page) WUnlatch() { p.latch.Unlock() }

// RLatch acquires the content latch in read mode.
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases the content latch held in read mode.
func (p *Page) RUnlatch() { p.latch.RUnlock() }

func (p *Page) setID(id PageID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.id = id
}

func (p *Page) setPinCount(count int32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pinCount = count
}

func (p *Page) pin() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pinCount++
}

// unpin decrements the pin count, clamping at zero, and reports the new
// count. Extra unpins beyond the pin count are treated as no-ops.
func (p *Page) unpin() int32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.pinCount > 0 {
		p.pinCount--
	}
	return p.pinCount
}

func (p *Page) setDirty(dirty bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.isDirty = dirty
}

// reset returns the frame to its free state: no page, clean, unpinned,
// zeroed buffer.
func (p *Page) reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.lsn = InvalidLSN
	clear(p.data)
}
