package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a persistent set of string keys. Presence is the only signal; a
// key is never removed by normal operation.
type Store interface {
	Contains(key string) bool
	Put(key string) error
	Len() int
}

type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

func (m *MemoryStore) Contains(key string) bool {
	if key == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.keys[key]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryStore) Put(key string) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	m.keys[key] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	count := len(m.keys)
	m.mu.RUnlock()
	return count
}

// FileStore persists keys so future runs can skip already-handled work. New
// keys are appended to a JSONL file; a crash loses at most the unflushed
// tail, never previously-committed lines.
type FileStore struct {
	*MemoryStore
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Key string `json:"key"`
}

// IndexPath names the processed-message index file for an account.
func IndexPath(stateDir, username string) string {
	return filepath.Join(stateDir, fmt.Sprintf("index_%s.jsonl", username))
}

// HashesPath names the content hash store file for an account.
func HashesPath(stateDir, username string) string {
	return filepath.Join(stateDir, fmt.Sprintf("hashes_%s.jsonl", username))
}

// Open loads an existing store file (creating it if absent) and prepares it
// for appending.
func Open(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(store.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open store file for append: %w", err)
	}
	store.file = file
	store.writer = bufio.NewWriterSize(file, 64*1024) // 64KB buffer

	return store, nil
}

func (f *FileStore) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse store line %d: %w", line, err)
		}
		if record.Key == "" {
			continue
		}

		f.mu.Lock()
		f.keys[record.Key] = struct{}{}
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	return nil
}

func (f *FileStore) Put(key string) error {
	if key == "" {
		return nil
	}

	f.mu.Lock()
	if _, exists := f.keys[key]; exists {
		f.mu.Unlock()
		return nil
	}
	f.keys[key] = struct{}{}
	f.mu.Unlock()

	data, err := json.Marshal(fileRecord{Key: key})
	if err != nil {
		return fmt.Errorf("encode store record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write store record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered records to the underlying file.
func (f *FileStore) Flush() error {
	if f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync store file: %w", err)
	}
	return nil
}

// Close flushes and closes the store file.
func (f *FileStore) Close() error {
	if f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush store file: %w", err)
		}
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync store file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store file: %w", err)
	}
	f.file = nil

	return firstErr
}
