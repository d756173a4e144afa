package storage

import (
	"math/rand"
	"sync"
	"testing"
)

func newTestPool(t *testing.T, numInstances, poolSize uint32) (*ParallelBufferPoolManager, *memDiskManager) {
	t.Helper()
	dm := newMemDiskManager()
	pool, err := NewParallelBufferPoolManager(numInstances, poolSize, dm, nil)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	return pool, dm
}

func TestPoolPartitionInvariant(t *testing.T) {
	pool, _ := newTestPool(t, 4, 8)

	// Every minted id lands on the instance that will later serve it
	seen := make(map[PageID]bool)
	for i := 0; i < 24; i++ {
		page, err := pool.NewPage()
		if err != nil {
			t.Fatalf("Failed to create page %d: %v", i, err)
		}
		pageID := page.ID()
		if seen[pageID] {
			t.Errorf("Page id %d minted twice", pageID)
		}
		seen[pageID] = true

		owner := pool.instanceFor(pageID)
		if uint32(pageID)%pool.NumInstances() != owner.InstanceIndex() {
			t.Errorf("Page id %d routed to instance %d", pageID, owner.InstanceIndex())
		}
		if err := pool.UnpinPage(pageID, false); err != nil {
			t.Fatalf("Failed to unpin %d: %v", pageID, err)
		}
	}
}

func TestPoolRoundRobinNewPage(t *testing.T) {
	pool, _ := newTestPool(t, 4, 4)

	// Consecutive NewPage calls spread across instances
	counts := make(map[uint32]int)
	for i := 0; i < 8; i++ {
		page, err := pool.NewPage()
		if err != nil {
			t.Fatalf("Failed to create page %d: %v", i, err)
		}
		counts[uint32(page.ID())%pool.NumInstances()]++
		pool.UnpinPage(page.ID(), false)
	}

	for idx := uint32(0); idx < 4; idx++ {
		if counts[idx] != 2 {
			t.Errorf("Instance %d minted %d pages, expected 2", idx, counts[idx])
		}
	}
}

func TestPoolNewPageExhaustsAllInstances(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	// Pin every frame in both instances
	pages := make([]PageID, 0, 4)
	for i := 0; i < 4; i++ {
		page, err := pool.NewPage()
		if err != nil {
			t.Fatalf("Failed to create page %d: %v", i, err)
		}
		pages = append(pages, page.ID())
	}

	if _, err := pool.NewPage(); !IsErrorCode(err, ErrCodeNoFreeFrames) {
		t.Fatalf("Expected ErrCodeNoFreeFrames when all instances are full, got %v", err)
	}

	// Freeing a frame on any instance makes NewPage succeed again
	if err := pool.UnpinPage(pages[3], false); err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}
	if _, err := pool.NewPage(); err != nil {
		t.Fatalf("Expected NewPage to succeed after unpin: %v", err)
	}
}

func TestPoolRouting(t *testing.T) {
	pool, dm := newTestPool(t, 4, 4)

	page, err := pool.NewPage()
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	pageID := page.ID()
	copy(page.Data(), []byte("routed"))

	if err := pool.UnpinPage(pageID, true); err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}
	if err := pool.FlushPage(pageID); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if string(dm.pageContent(pageID)[:6]) != "routed" {
		t.Errorf("Flushed content mismatch")
	}

	if _, err := pool.FetchPage(pageID); err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if err := pool.UnpinPage(pageID, false); err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}
	if err := pool.DeletePage(pageID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	// Operations on ids the pool has never seen
	if err := pool.UnpinPage(9999, false); !IsErrorCode(err, ErrCodePageNotFound) {
		t.Errorf("Expected ErrCodePageNotFound, got %v", err)
	}
	if err := pool.DeletePage(9999); err != nil {
		t.Errorf("Delete of absent page should succeed: %v", err)
	}
	if _, err := pool.FetchPage(InvalidPageID); !IsErrorCode(err, ErrCodeInvalidPageID) {
		t.Errorf("Expected ErrCodeInvalidPageID, got %v", err)
	}
}

func TestPoolFlushAllPages(t *testing.T) {
	pool, dm := newTestPool(t, 2, 4)

	pages := make([]PageID, 0, 6)
	for i := 0; i < 6; i++ {
		page, err := pool.NewPage()
		if err != nil {
			t.Fatalf("Failed to create page %d: %v", i, err)
		}
		page.Data()[0] = 0xAB
		pages = append(pages, page.ID())
		if err := pool.UnpinPage(page.ID(), true); err != nil {
			t.Fatalf("Failed to unpin: %v", err)
		}
	}

	if err := pool.FlushAllPages(); err != nil {
		t.Fatalf("Failed to flush all: %v", err)
	}
	for _, pageID := range pages {
		if content := dm.pageContent(pageID); content == nil || content[0] != 0xAB {
			t.Errorf("Page %d not persisted by FlushAllPages", pageID)
		}
	}
}

func TestPoolConcurrentAccess(t *testing.T) {
	const (
		numInstances = 4
		poolSize     = 8 // 32 frames total
		numWorkers   = 8
		opsPerWorker = 5000
		pageSpace    = 100
	)

	pool, _ := newTestPool(t, numInstances, poolSize)

	// Materialize the page id space
	ids := make([]PageID, 0, pageSpace)
	for i := 0; i < pageSpace; i++ {
		page, err := pool.NewPage()
		if err != nil {
			t.Fatalf("Failed to create page %d: %v", i, err)
		}
		ids = append(ids, page.ID())
		if err := pool.UnpinPage(page.ID(), false); err != nil {
			t.Fatalf("Failed to unpin: %v", err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for op := 0; op < opsPerWorker; op++ {
				pageID := ids[rng.Intn(len(ids))]
				page, err := pool.FetchPage(pageID)
				if err != nil {
					if IsErrorCode(err, ErrCodeNoFreeFrames) {
						continue
					}
					t.Errorf("Fetch of %d failed: %v", pageID, err)
					return
				}
				if page.ID() != pageID {
					t.Errorf("Fetched frame holds %d, wanted %d", page.ID(), pageID)
					pool.UnpinPage(pageID, false)
					return
				}

				dirty := rng.Intn(2) == 0
				if dirty {
					page.WLatch()
					page.Data()[0] = byte(pageID)
					page.WUnlatch()
				}
				if err := pool.UnpinPage(pageID, dirty); err != nil {
					t.Errorf("Unpin of %d failed: %v", pageID, err)
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()

	if err := pool.FlushAllPages(); err != nil {
		t.Fatalf("Failed to flush after concurrent run: %v", err)
	}

	for i := uint32(0); i < numInstances; i++ {
		checkInvariants(t, pool.Instance(i))
	}
}
