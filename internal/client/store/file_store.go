package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists every namespace into a single JSON file with
// owner-only permissions. Writes go through a temp file and rename so a
// crash never leaves a half-written store behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Get(namespace, key string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return Record{}, err
	}
	rec, ok := data[namespace][key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *FileStore) Put(namespace, key string, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}
	ns, ok := data[namespace]
	if !ok {
		ns = make(map[string]Record)
		data[namespace] = ns
	}
	ns[key] = rec
	return f.write(data)
}

func (f *FileStore) Delete(namespace, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := data[namespace][key]; !ok {
		return nil
	}
	delete(data[namespace], key)
	return f.write(data)
}

func (f *FileStore) List(namespace string) (map[string]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(data[namespace]))
	for k, v := range data[namespace] {
		out[k] = v
	}
	return out, nil
}

func (f *FileStore) read() (map[string]map[string]Record, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	data := make(map[string]map[string]Record)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: corrupt store file: %v", ErrStorage, err)
	}
	return data, nil
}

func (f *FileStore) write(data map[string]map[string]Record) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
