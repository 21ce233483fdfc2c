// pkg/kv/db_test.go
package kv

import (
	"errors"
	"path/filepath"
	"testing"

	"bptreekv/internal/storage"
)

func TestCreateInsertGetClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := db.Insert([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := db.Get([]byte("k1"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, ok=%v, err=%v, want v1", got, ok, err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenReopenPersistsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		v := []byte{byte(i), byte(i)}
		if err := db.Insert(k, v); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != 50 {
		t.Fatalf("Size = %d, want 50", reopened.Size())
	}
	for i := 0; i < 50; i++ {
		got, ok, err := reopened.Get([]byte{byte(i)})
		if err != nil || !ok {
			t.Fatalf("Get %d: ok=%v err=%v", i, ok, err)
		}
		if got[0] != byte(i) || got[1] != byte(i) {
			t.Fatalf("Get %d = %v, want [%d %d]", i, got, i, i)
		}
	}
}

func TestSecondOpenIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	if _, err := Open(path, Options{PageSize: 512}); !errors.Is(err, storage.ErrDatabaseLocked) {
		t.Fatalf("second Open = %v, want ErrDatabaseLocked", err)
	}
}

func TestApplyCompressionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512, ApplyCompression: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	val := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err := db.Insert([]byte("k"), val); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := db.Get([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != string(val) {
		t.Fatalf("Get = %q, want %q", got, val)
	}
}

func TestDynamicEntriesIndirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512, DynamicEntries: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	if err := db.Insert([]byte("a"), []byte("value-a")); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := db.Insert([]byte("b"), []byte("value-b")); err != nil {
		t.Fatalf("Insert b: %v", err)
	}
	if err := db.Insert([]byte("c"), []byte("value-c")); err != nil {
		t.Fatalf("Insert c: %v", err)
	}

	if err := db.Remove([]byte("a")); err != nil {
		t.Fatalf("Remove a: %v", err)
	}

	// b and c's slot references must have been renumbered after a's slot
	// (id 0) was removed and the vector shifted everything down.
	got, ok, err := db.Get([]byte("b"))
	if err != nil || !ok || string(got) != "value-b" {
		t.Fatalf("Get b after remove a = %q ok=%v err=%v, want value-b", got, ok, err)
	}
	got, ok, err = db.Get([]byte("c"))
	if err != nil || !ok || string(got) != "value-c" {
		t.Fatalf("Get c after remove a = %q ok=%v err=%v, want value-c", got, ok, err)
	}
}

func TestDynamicEntriesDirectSlotAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512, DynamicEntries: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	id, err := db.SlotSet([]byte("payload"))
	if err != nil {
		t.Fatalf("SlotSet: %v", err)
	}
	got, err := db.SlotGet(id)
	if err != nil || string(got) != "payload" {
		t.Fatalf("SlotGet = %q, err=%v, want payload", got, err)
	}
	if err := db.SlotReplace(id, []byte("new payload")); err != nil {
		t.Fatalf("SlotReplace: %v", err)
	}
	got, err = db.SlotGet(id)
	if err != nil || string(got) != "new payload" {
		t.Fatalf("SlotGet after replace = %q, err=%v", got, err)
	}
}

func TestSlotOpsRequireDynamicEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	if _, err := db.SlotSet([]byte("x")); err == nil {
		t.Fatalf("SlotSet without DynamicEntries succeeded, want an error")
	}
}

func TestScanAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	for i := byte(0); i < 20; i++ {
		if err := db.Insert([]byte{i}, []byte{i}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	entries, err := db.Scan([]byte{5}, []byte{10})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("Scan returned %d entries, want 5", len(entries))
	}

	evens, err := db.Filter(func(k, v []byte) bool { return k[0]%2 == 0 })
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(evens) != 10 {
		t.Fatalf("Filter returned %d entries, want 10", len(evens))
	}
}
