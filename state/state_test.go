package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	if store.Contains("a") {
		t.Error("empty store should not contain any key")
	}

	if err := store.Put("a"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if !store.Contains("a") {
		t.Error("store should contain key after Put")
	}
	if store.Contains("") {
		t.Error("empty key should never be reported present")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	tmpDir := t.TempDir()
	path := IndexPath(tmpDir, "tester@example.com")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	keys := []string{"101", "102", "103"}
	for _, key := range keys {
		if err := store.Put(key); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	for _, key := range keys {
		if !reopened.Contains(key) {
			t.Errorf("reopened store missing key %q", key)
		}
	}
	if reopened.Len() != len(keys) {
		t.Errorf("Len() = %d, want %d", reopened.Len(), len(keys))
	}
}

func TestFileStore_PutIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	path := HashesPath(tmpDir, "tester@example.com")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Put("deadbeef"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 1 {
		t.Errorf("expected 1 record line, got %d", lines)
	}
}

func TestFileStore_FlushMakesRecordsDurable(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "store.jsonl")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if err := store.Put("abc"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// A reader that opens the file now must already see the record.
	other, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer other.Close()

	if !other.Contains("abc") {
		t.Error("flushed record not visible to a fresh reader")
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
