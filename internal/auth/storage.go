package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	configDirName   = "soundify"
	storageFileName = "storage.json"
)

// Storage is a durable key-value store scoped per browser session.
// It mirrors what a browser keeps in local storage.
type Storage interface {
	GetItem(ctx context.Context, scope, key string) (string, bool, error)
	SetItem(ctx context.Context, scope, key, value string) error
	RemoveItem(ctx context.Context, scope, key string) error
}

// SaveCredential mirrors the credential into storage under CredentialKey.
func SaveCredential(ctx context.Context, s Storage, scope string, c Credential) error {
	return s.SetItem(ctx, scope, CredentialKey, string(c))
}

// LoadCredential reads the mirrored credential. A missing item yields an empty Credential.
func LoadCredential(ctx context.Context, s Storage, scope string) (Credential, error) {
	v, ok, err := s.GetItem(ctx, scope, CredentialKey)
	if err != nil || !ok {
		return "", err
	}
	return Credential(v), nil
}

// ForgetCredential removes the mirrored credential.
func ForgetCredential(ctx context.Context, s Storage, scope string) error {
	return s.RemoveItem(ctx, scope, CredentialKey)
}

// MemoryStorage keeps items in memory. Used in tests and when no durable
// backend is configured.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]map[string]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]map[string]string)}
}

// GetItem returns the value stored under scope/key.
func (m *MemoryStorage) GetItem(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[scope][key]
	return v, ok, nil
}

// SetItem stores value under scope/key.
func (m *MemoryStorage) SetItem(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[scope] == nil {
		m.items[scope] = make(map[string]string)
	}
	m.items[scope][key] = value
	return nil
}

// RemoveItem deletes scope/key. Removing a missing item is not an error.
func (m *MemoryStorage) RemoveItem(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items[scope], key)
	if len(m.items[scope]) == 0 {
		delete(m.items, scope)
	}
	return nil
}

// FileStorage persists items as a JSON document on disk.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// DefaultFileStorage returns a FileStorage using the default location:
// ~/.config/soundify/storage.json
func DefaultFileStorage() (*FileStorage, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}

	path := filepath.Join(configDir, configDirName, storageFileName)
	return &FileStorage{path: path}, nil
}

// NewFileStorage creates a FileStorage with a custom path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the file path where items are stored.
func (f *FileStorage) Path() string {
	return f.path
}

// GetItem returns the value stored under scope/key.
func (f *FileStorage) GetItem(_ context.Context, scope, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := items[scope][key]
	return v, ok, nil
}

// SetItem stores value under scope/key, creating the file if needed.
func (f *FileStorage) SetItem(_ context.Context, scope, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}
	if items[scope] == nil {
		items[scope] = make(map[string]string)
	}
	items[scope][key] = value
	return f.save(items)
}

// RemoveItem deletes scope/key. Removing a missing item is not an error.
func (f *FileStorage) RemoveItem(_ context.Context, scope, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := items[scope][key]; !ok {
		return nil
	}
	delete(items[scope], key)
	if len(items[scope]) == 0 {
		delete(items, scope)
	}
	return f.save(items)
}

// load reads the storage file. A missing file yields an empty map.
func (f *FileStorage) load() (map[string]map[string]string, error) {
	items := make(map[string]map[string]string)

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return items, nil
		}
		return nil, fmt.Errorf("reading storage file: %w", err)
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing storage file: %w", err)
	}
	return items, nil
}

// save writes the storage file, creating the parent directory if needed.
func (f *FileStorage) save(items map[string]map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding storage: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing storage file: %w", err)
	}
	return nil
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)
