package storage

import (
	"container/list"
	"sync"
)

// LRUReplacer implements strict least-recently-used replacement over unpin
// events. The recency list holds frame ids with the oldest at the front; a
// map from frame id to list element makes every operation O(1).
type LRUReplacer struct {
	capacity uint32
	lruList  *list.List
	lruMap   map[FrameID]*list.Element
	mutex    sync.Mutex
}

// NewLRUReplacer creates an LRU replacer that tracks at most capacity frames.
func NewLRUReplacer(capacity uint32) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		lruList:  list.New(),
		lruMap:   make(map[FrameID]*list.Element),
	}
}

// Victim removes and returns the least recently unpinned frame.
func (lru *LRUReplacer) Victim() (FrameID, bool) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	oldest := lru.lruList.Front()
	if oldest == nil {
		return 0, false
	}

	frameID := oldest.Value.(FrameID)
	lru.lruList.Remove(oldest)
	delete(lru.lruMap, frameID)

	return frameID, true
}

// Pin removes a frame from the candidate set. The order of the remaining
// frames is unchanged.
func (lru *LRUReplacer) Pin(frameID FrameID) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if elem, exists := lru.lruMap[frameID]; exists {
		lru.lruList.Remove(elem)
		delete(lru.lruMap, frameID)
	}
}

// Unpin inserts a frame as the most-recent candidate. A frame already
// present keeps its position; recency is established by the unpin that
// inserted it, not refreshed by repeats. The capacity bound guards against
// caller accounting errors and is never reached in correct use.
func (lru *LRUReplacer) Unpin(frameID FrameID) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if _, exists := lru.lruMap[frameID]; exists {
		return
	}
	if uint32(lru.lruList.Len()) >= lru.capacity {
		return
	}

	lru.lruMap[frameID] = lru.lruList.PushBack(frameID)
}

// Size returns the number of evictable frames.
func (lru *LRUReplacer) Size() uint32 {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	return uint32(lru.lruList.Len())
}
