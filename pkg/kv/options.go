// pkg/kv/options.go
package kv

import "bptreekv/internal/btree"

// AllocatorKind selects the page-position allocation strategy a database is
// opened with; stable for the database's lifetime (spec.md §6
// "Configuration").
type AllocatorKind byte

const (
	// AllocatorFreeList reuses freed pages before growing the file.
	AllocatorFreeList AllocatorKind = iota
	// AllocatorStack never reuses a freed page; Free always fails.
	AllocatorStack
)

// Options configures a Database at Create/Open time. Every field must stay
// the same across the database's lifetime; changing one requires a dump and
// reload, the same "all options stable across a lifetime" rule
// tur/pkg/dbfile.Options and tur/pkg/pager.Options both follow for page
// size and similar fixed-at-creation knobs.
type Options struct {
	// PageSize is the fixed page size in bytes, a power of two (4096 or
	// 16384 are the spec's suggested choices). Zero defaults to 4096.
	PageSize int

	// CacheSize is the page cache's capacity in bytes, converted to a page
	// count at Open. Zero defaults to 256 pages' worth.
	CacheSize int

	// MaxLeafRecords and MaxBranchRecords cap fanout directly; zero means
	// "compute from PageSize" (btree.CalcMaxLeafRecords/CalcMaxBranchLinks).
	MaxLeafRecords   int
	MaxBranchRecords int

	// ApplyCompression, when true, Huffman-compresses every stored value
	// (internal/huffman.Compress/Decompress) before it reaches the tree or
	// the indirection vector.
	ApplyCompression bool

	// DynamicEntries, when true, stores values out of line in an
	// indirection vector and keeps only an 8-byte slot reference in the
	// tree's leaves, so variable-sized payloads don't constrain fanout.
	DynamicEntries bool

	// RelaxedRemoves, when true, skips borrow/merge rebalancing after a
	// delete (see internal/btree.Options.RelaxedRemoves and DESIGN.md's
	// Open Questions entry). Defaults to false.
	RelaxedRemoves bool

	// Allocator selects the page allocation strategy. Defaults to
	// AllocatorFreeList.
	Allocator AllocatorKind

	// Compare orders keys; defaults to byte-lexicographic order.
	Compare btree.Compare
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return 4096
	}
	return o.PageSize
}

func (o Options) cachePages() int {
	if o.CacheSize <= 0 {
		return 256
	}
	n := o.CacheSize / o.pageSize()
	if n < 1 {
		n = 1
	}
	return n
}
