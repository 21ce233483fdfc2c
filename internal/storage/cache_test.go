// internal/storage/cache_test.go
package storage

import "testing"

func TestPageCacheGetMiss(t *testing.T) {
	c := NewPageCache(2)
	if _, ok := c.Get(Position(0)); ok {
		t.Fatalf("Get on empty cache reported a hit")
	}
}

func TestPageCachePlaceAndGet(t *testing.T) {
	c := NewPageCache(2)
	page := NewPage(Position(0), 16)
	if ev := c.Place(Position(0), page); ev != nil {
		t.Fatalf("unexpected eviction placing into empty cache: %+v", ev)
	}
	got, ok := c.Get(Position(0))
	if !ok || got != page {
		t.Fatalf("Get = %v, %v, want the placed page", got, ok)
	}
}

func TestPageCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewPageCache(2)
	p0 := NewPage(Position(0), 8)
	p1 := NewPage(Position(8), 8)
	p2 := NewPage(Position(16), 8)

	c.Place(Position(0), p0)
	c.Place(Position(8), p1)
	// Touch p0 so it is more recently used than p1.
	c.Get(Position(0))

	ev := c.Place(Position(16), p2)
	if ev == nil {
		t.Fatalf("expected an eviction when placing a third page into a 2-capacity cache")
	}
	if ev.Pos != Position(8) {
		t.Fatalf("evicted %v, want the least-recently-used position %v", ev.Pos, Position(8))
	}
	if !ev.Dirty {
		t.Fatalf("evicted page should be dirty (placed, not read clean)")
	}
}

func TestPageCachePlaceCleanNotDirty(t *testing.T) {
	c := NewPageCache(1)
	c.PlaceClean(Position(0), NewPage(Position(0), 8))
	ev := c.Place(Position(8), NewPage(Position(8), 8))
	if ev == nil || ev.Dirty {
		t.Fatalf("eviction of a clean page reported dirty=%v, want false", ev != nil && ev.Dirty)
	}
}

func TestPageCacheDrop(t *testing.T) {
	c := NewPageCache(2)
	c.Place(Position(0), NewPage(Position(0), 8))
	c.Drop(Position(0))
	if _, ok := c.Get(Position(0)); ok {
		t.Fatalf("Get found a page after Drop")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after drop, want 0", c.Len())
	}
}

func TestPageCacheFlushReturnsEverythingAndEmpties(t *testing.T) {
	c := NewPageCache(3)
	c.Place(Position(0), NewPage(Position(0), 8))
	c.PlaceClean(Position(8), NewPage(Position(8), 8))
	c.Place(Position(16), NewPage(Position(16), 8))

	evicted := c.Flush()
	if len(evicted) != 3 {
		t.Fatalf("Flush returned %d entries, want 3", len(evicted))
	}
	if c.Len() != 0 {
		t.Fatalf("cache not empty after Flush: Len = %d", c.Len())
	}

	dirtyByPos := make(map[Position]bool)
	for _, ev := range evicted {
		dirtyByPos[ev.Pos] = ev.Dirty
	}
	if !dirtyByPos[Position(0)] || dirtyByPos[Position(8)] || !dirtyByPos[Position(16)] {
		t.Fatalf("dirty flags wrong: %+v", dirtyByPos)
	}
}
