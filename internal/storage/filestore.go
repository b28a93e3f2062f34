package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// FileStore хранит смещения в JSON-файле.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (map[string]int64, error) {
	processed := make(map[string]int64)
	bs, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return processed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed file: %w", err)
	}
	if len(bs) == 0 {
		return processed, nil
	}
	if err := json.Unmarshal(bs, &processed); err != nil {
		return nil, fmt.Errorf("decode processed file %s: %w", f.Path, err)
	}
	return processed, nil
}

// Save пишет смещения во временный файл и переименовывает его поверх основного.
func (f *FileStore) Save(data map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := f.Path + ".tmp"
	bs, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode processed: %w", err)
	}
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return fmt.Errorf("write processed: %w", err)
	}
	// Удаляем старый файл, чтобы Rename не ошибся (актуально для Windows)
	_ = os.Remove(f.Path)
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("rename processed: %w", err)
	}
	return nil
}
