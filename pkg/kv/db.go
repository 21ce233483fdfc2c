// pkg/kv/db.go
package kv

import (
	"encoding/binary"
	"fmt"
	"os"

	"bptreekv/internal/btree"
	"bptreekv/internal/huffman"
	"bptreekv/internal/indirect"
	"bptreekv/internal/storage"
)

// Database is the public façade over the paged storage engine: it wires a
// Pager, its PageCache, a B+ Tree, and (when configured) an indirection
// vector and a value compressor into the single type spec.md §6 calls the
// engine's public operations surface. Grounded on tur/pkg/dbfile.Database's
// shape (Options, Create/Open/Close, an embedded header) and
// tur/pkg/turdb's advisory single-writer lock, adapted to own a Tree and
// optional Vector instead of a SQL page-0 header.
type Database struct {
	opts       Options
	basePath   string
	headerPath string
	lockFile   *os.File
	pager      *storage.Pager
	tree       *btree.Tree
	vec        *indirect.Vector
}

func paths(basePath string) (header, content, indHeap, indHeader, lock string) {
	return basePath + ".header", basePath, basePath + "-indvector", basePath + "-indvector-header", basePath + ".lock"
}

func allocatorFor(kind AllocatorKind, pageSize int64) storage.Allocator {
	if kind == AllocatorStack {
		return storage.NewStackAllocator(pageSize)
	}
	return storage.NewFreeListAllocator(pageSize, 0)
}

// Create initializes a brand-new database rooted at basePath. It fails if a
// header already exists there.
func Create(basePath string, opts Options) (*Database, error) {
	headerPath, contentPath, indHeap, indHeader, lockPath := paths(basePath)
	if _, err := os.Stat(headerPath); err == nil {
		return nil, fmt.Errorf("database %s already exists", basePath)
	}

	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return nil, err
	}

	pageSize := int64(opts.pageSize())
	alloc := allocatorFor(opts.Allocator, pageSize)
	pager, err := storage.Open(contentPath, pageSize, alloc, opts.cachePages())
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	tree, err := btree.Create(pager, headerPath, contentPath, btree.Options{
		PageSize:         int(pageSize),
		RelaxedRemoves:   opts.RelaxedRemoves,
		Compare:          opts.Compare,
		MaxLeafRecords:   opts.MaxLeafRecords,
		MaxBranchRecords: opts.MaxBranchRecords,
		PageCacheSize:    opts.CacheSize,
		ApplyCompression: opts.ApplyCompression,
		DynamicEntries:   opts.DynamicEntries,
		AllocatorKind:    byte(opts.Allocator),
	})
	if err != nil {
		pager.Close()
		releaseLock(lockFile)
		return nil, err
	}

	db := &Database{
		opts:       opts,
		basePath:   basePath,
		headerPath: headerPath,
		lockFile:   lockFile,
		pager:      pager,
		tree:       tree,
	}

	if opts.DynamicEntries {
		vec, err := indirect.Open(indHeap, indHeader)
		if err != nil {
			db.Close()
			return nil, err
		}
		db.vec = vec
	}
	return db, nil
}

// Open reopens a database previously created by Create; Tree.Load restores
// root/size/depth from the header. There is no Bare mode: Open always
// loads the stored tree, and a fresh empty tree over the same configuration
// comes from Create against a new basePath.
func Open(basePath string, opts Options) (*Database, error) {
	headerPath, contentPath, indHeap, indHeader, lockPath := paths(basePath)

	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return nil, err
	}

	pageSize := int64(opts.pageSize())
	alloc := allocatorFor(opts.Allocator, pageSize)
	pager, err := storage.Open(contentPath, pageSize, alloc, opts.cachePages())
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}
	if err := pager.Load(contentPath); err != nil {
		pager.Close()
		releaseLock(lockFile)
		return nil, err
	}

	tree, err := btree.Load(pager, headerPath, btree.Options{
		PageSize:         int(pageSize),
		RelaxedRemoves:   opts.RelaxedRemoves,
		Compare:          opts.Compare,
		MaxLeafRecords:   opts.MaxLeafRecords,
		MaxBranchRecords: opts.MaxBranchRecords,
	})
	if err != nil {
		pager.Close()
		releaseLock(lockFile)
		return nil, err
	}

	db := &Database{
		opts:       opts,
		basePath:   basePath,
		headerPath: headerPath,
		lockFile:   lockFile,
		pager:      pager,
		tree:       tree,
	}

	if opts.DynamicEntries {
		vec, err := indirect.Open(indHeap, indHeader)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := vec.Load(); err != nil {
			db.Close()
			return nil, err
		}
		db.vec = vec
	}
	return db, nil
}

// Save serializes the header and flushes every dirty page to disk -- the
// explicit durability boundary spec.md §1 and §5 describe ("a single-writer
// engine whose durability boundary is an explicit save call").
func (db *Database) Save() error {
	if err := db.tree.Close(); err != nil {
		return err
	}
	if err := db.pager.Save(db.basePath); err != nil {
		return err
	}
	if db.vec != nil {
		if err := db.vec.Save(); err != nil {
			return err
		}
	}
	return nil
}

// Close saves the database and releases the advisory single-writer lock.
func (db *Database) Close() error {
	saveErr := db.Save()
	if db.vec != nil {
		db.vec.Close()
	}
	closeErr := db.pager.Close()
	releaseLock(db.lockFile)
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

// Size returns the number of keys stored.
func (db *Database) Size() uint64 { return db.tree.Size() }

// Depth returns the tree's current depth.
func (db *Database) Depth() uint64 { return db.tree.Depth() }

// Empty reports whether the database holds no keys.
func (db *Database) Empty() bool { return db.tree.Empty() }

// Insert adds key/val, applying compression and/or indirection as
// configured. It returns storage.ErrInsertedNothing if key is already
// present.
func (db *Database) Insert(key, val []byte) error {
	stored, err := db.encodeValue(val)
	if err != nil {
		return err
	}
	return db.tree.Insert(key, stored)
}

// Update replaces the value stored for an existing key.
func (db *Database) Update(key, val []byte) error {
	stored, err := db.encodeValue(val)
	if err != nil {
		return err
	}
	return db.tree.Update(key, stored)
}

// Get returns the logical value stored for key, reversing compression and
// indirection.
func (db *Database) Get(key []byte) ([]byte, bool, error) {
	stored, ok, err := db.tree.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	val, err := db.decodeValue(stored)
	return val, true, err
}

// Contains reports whether key is present.
func (db *Database) Contains(key []byte) (bool, error) {
	return db.tree.Contains(key)
}

// Remove deletes key. When the database stores values out of line
// (Options.DynamicEntries), this also frees the referenced slot and
// renumbers every tree value whose slot ID shifted down, per
// internal/indirect.Vector's shifting-ID discipline.
func (db *Database) Remove(key []byte) error {
	if !db.opts.DynamicEntries {
		return db.tree.Remove(key)
	}

	stored, ok, err := db.tree.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrRemovedNothing
	}
	id := slotIDFromBytes(stored)

	if err := db.tree.Remove(key); err != nil {
		return err
	}
	shifted, err := db.vec.Remove(id)
	if err != nil {
		return err
	}
	if len(shifted) == 0 {
		return nil
	}
	return db.renumberAfterRemove(id)
}

// renumberAfterRemove decrements every stored slot reference greater than
// removed by one, matching the shift internal/indirect.Vector.Remove just
// applied to its own slot table.
func (db *Database) renumberAfterRemove(removed indirect.SlotID) error {
	entries, err := db.tree.Filter(func(k, v []byte) bool { return true })
	if err != nil {
		return err
	}
	for _, e := range entries {
		id := slotIDFromBytes(e[1])
		if id > removed {
			if err := db.tree.Update(e[0], slotIDBytes(id-1)); err != nil {
				return err
			}
		}
	}
	return nil
}

// MinEntry returns the smallest key and its (decoded) value.
func (db *Database) MinEntry() (key, val []byte, ok bool, err error) {
	k, v, ok, err := db.tree.MinEntry()
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	val, err = db.decodeValue(v)
	return k, val, true, err
}

// MaxEntry returns the largest key and its (decoded) value.
func (db *Database) MaxEntry() (key, val []byte, ok bool, err error) {
	k, v, ok, err := db.tree.MaxEntry()
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	val, err = db.decodeValue(v)
	return k, val, true, err
}

// Scan returns every entry with key in [lo, hi) in ascending order, or the
// whole tree if lo and hi are both nil.
func (db *Database) Scan(lo, hi []byte) ([][2][]byte, error) {
	c, err := db.tree.Begin(lo, hi)
	if err != nil {
		return nil, err
	}
	var out [][2][]byte
	for c.Valid() {
		val, err := db.decodeValue(c.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, [2][]byte{c.Key(), val})
		c.Next()
	}
	return out, nil
}

// Filter returns every entry for which keep(key, decodedValue) is true,
// scanning the whole tree in ascending key order.
func (db *Database) Filter(keep func(key, val []byte) bool) ([][2][]byte, error) {
	c, err := db.tree.Begin(nil, nil)
	if err != nil {
		return nil, err
	}
	var out [][2][]byte
	for c.Valid() {
		val, err := db.decodeValue(c.Value())
		if err != nil {
			return nil, err
		}
		if keep(c.Key(), val) {
			out = append(out, [2][]byte{c.Key(), val})
		}
		c.Next()
	}
	return out, nil
}

// SlotSet stores val directly in the indirection vector, bypassing the
// tree, and returns the slot ID a caller can embed in its own records. Only
// valid when Options.DynamicEntries is set.
func (db *Database) SlotSet(val []byte) (indirect.SlotID, error) {
	if db.vec == nil {
		return 0, fmt.Errorf("kv: SlotSet requires DynamicEntries")
	}
	payload, err := db.compress(val)
	if err != nil {
		return 0, err
	}
	return db.vec.Set(payload)
}

// SlotGet returns the payload at slot id.
func (db *Database) SlotGet(id indirect.SlotID) ([]byte, error) {
	if db.vec == nil {
		return nil, fmt.Errorf("kv: SlotGet requires DynamicEntries")
	}
	payload, err := db.vec.Get(id)
	if err != nil {
		return nil, err
	}
	return db.decompress(payload)
}

// SlotReplace overwrites the payload at slot id.
func (db *Database) SlotReplace(id indirect.SlotID, val []byte) error {
	if db.vec == nil {
		return fmt.Errorf("kv: SlotReplace requires DynamicEntries")
	}
	payload, err := db.compress(val)
	if err != nil {
		return err
	}
	return db.vec.Replace(id, payload)
}

// SlotRemove frees slot id and reports every slot ID that shifted down as a
// result.
func (db *Database) SlotRemove(id indirect.SlotID) ([]indirect.SlotID, error) {
	if db.vec == nil {
		return nil, fmt.Errorf("kv: SlotRemove requires DynamicEntries")
	}
	return db.vec.Remove(id)
}

func (db *Database) compress(val []byte) ([]byte, error) {
	if !db.opts.ApplyCompression {
		return val, nil
	}
	return huffman.Compress(val)
}

func (db *Database) decompress(val []byte) ([]byte, error) {
	if !db.opts.ApplyCompression {
		return val, nil
	}
	return huffman.Decompress(val)
}

func (db *Database) encodeValue(val []byte) ([]byte, error) {
	payload, err := db.compress(val)
	if err != nil {
		return nil, err
	}
	if !db.opts.DynamicEntries {
		return payload, nil
	}
	id, err := db.vec.Set(payload)
	if err != nil {
		return nil, err
	}
	return slotIDBytes(id), nil
}

func (db *Database) decodeValue(stored []byte) ([]byte, error) {
	payload := stored
	if db.opts.DynamicEntries {
		p, err := db.vec.Get(slotIDFromBytes(stored))
		if err != nil {
			return nil, err
		}
		payload = p
	}
	return db.decompress(payload)
}

func slotIDBytes(id indirect.SlotID) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	return buf
}

func slotIDFromBytes(b []byte) indirect.SlotID {
	return indirect.SlotID(binary.LittleEndian.Uint64(b))
}
