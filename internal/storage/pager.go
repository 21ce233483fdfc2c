// internal/storage/pager.go
package storage

import (
	"fmt"
	"os"
)

// Pager serves fixed-size pages backed by a single on-disk file, read and
// written with positioned I/O (os.File.ReadAt/WriteAt) rather than a memory
// mapping: tur/pkg/pager.Pager maps the whole file with mmap, but the
// seek-and-write model here lets the file grow one Alloc at a time without
// ever re-mapping, and keeps the write path a plain syscall instead of a
// page-fault. Caching and allocation are delegated to a PageCache and an
// Allocator so the Pager itself only sequences disk I/O around them.
type Pager struct {
	file     *os.File
	pageSize int64
	alloc    Allocator
	cache    *PageCache
}

// Open opens or creates path as a page file of the given page size, using
// alloc for position allocation and a cache with room for cacheCapacity
// pages.
func Open(path string, pageSize int64, alloc Allocator, cacheCapacity int) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open page file %s: %w", path, err)
	}
	return &Pager{
		file:     f,
		pageSize: pageSize,
		alloc:    alloc,
		cache:    NewPageCache(cacheCapacity),
	}, nil
}

// Close flushes dirty pages and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.Sync(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}

// PageSize returns the fixed page size this pager was opened with.
func (p *Pager) PageSize() int64 { return p.pageSize }

// Alloc reserves and returns a fresh page position. The page is not written
// to disk until Place is called for it.
func (p *Pager) Alloc() (Position, error) {
	return p.alloc.Alloc()
}

// Free releases pos back to the allocator and drops it from the cache
// without writing it back, since a freed page's contents are no longer
// meaningful.
func (p *Pager) Free(pos Position) error {
	if err := p.alloc.Free(pos); err != nil {
		return err
	}
	p.cache.Drop(pos)
	return nil
}

// Get returns the page at pos, faulting it in from disk on a cache miss.
func (p *Pager) Get(pos Position) (*Page, error) {
	if page, ok := p.cache.Get(pos); ok {
		return page, nil
	}

	buf := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(buf, int64(pos))
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read page at %d: %w", pos, ErrBadRead)
	}
	page := WrapPage(pos, buf)
	if evicted := p.cache.PlaceClean(pos, page); evicted != nil {
		if err := p.writeBack(evicted); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// Place writes page into the cache at pos, marking it dirty; the write
// reaches disk on eviction or Sync, not immediately, matching the
// write-behind discipline tur/pkg/pager.Pager uses for its own cache.
func (p *Pager) Place(pos Position, page *Page) error {
	evicted := p.cache.Place(pos, page)
	if evicted == nil {
		return nil
	}
	return p.writeBack(evicted)
}

func (p *Pager) writeBack(ev *Evicted) error {
	if !ev.Dirty {
		return nil
	}
	if _, err := p.file.WriteAt(ev.Page.Bytes(), int64(ev.Pos)); err != nil {
		return fmt.Errorf("write back page at %d: %v: %w", ev.Pos, err, ErrBadWrite)
	}
	return nil
}

// Sync flushes every dirty page held in the cache to disk, then fdatasyncs
// the underlying file. The cache is empty afterward.
func (p *Pager) Sync() error {
	for _, ev := range p.cache.Flush() {
		if err := p.writeBack(&ev); err != nil {
			return err
		}
	}
	return fdatasync(p.file)
}

// stateFileSuffix names the sidecar file Save/Load use to persist the
// allocator's state across process restarts.
const stateFileSuffix = ".alloc"

// Save persists the allocator state to path+".alloc", after flushing all
// dirty pages so the two files agree on what has actually reached disk.
func (p *Pager) Save(path string) error {
	if err := p.Sync(); err != nil {
		return err
	}
	data := p.alloc.Encode()
	if err := os.WriteFile(path+stateFileSuffix, data, 0o644); err != nil {
		return fmt.Errorf("save allocator state: %w", ErrBadWrite)
	}
	return nil
}

// Load restores the allocator state previously written by Save.
func (p *Pager) Load(path string) error {
	data, err := os.ReadFile(path + stateFileSuffix)
	if err != nil {
		return fmt.Errorf("load allocator state: %w", ErrBadRead)
	}
	return p.alloc.Decode(data)
}
