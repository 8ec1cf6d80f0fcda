package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSettings persists preferences as a JSON file.
type FileSettings struct {
	path string
	mu   sync.Mutex
}

// NewFileSettings stores preferences at path. The file is created on the
// first Update.
func NewFileSettings(path string) *FileSettings {
	return &FileSettings{path: path}
}

func (f *FileSettings) Load(context.Context) (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileSettings) read() (Preferences, error) {
	var p Preferences
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode settings: %w", err)
	}
	return p, nil
}

func (f *FileSettings) Update(_ context.Context, fn func(*Preferences)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.read()
	if err != nil {
		return err
	}
	fn(&p)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	// replace atomically
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, f.path)
}

var _ Settings = (*FileSettings)(nil)
