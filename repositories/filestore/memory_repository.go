// Package filestore keeps the memory table in process and persists it as a
// single indented JSON document after every write.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mintresearch/agent-engine/repositories"
	"go.uber.org/zap"
)

var _ repositories.MemoryRepository = (*MemoryRepository)(nil)

// MemoryRepository implements repositories.MemoryRepository over a JSON file
type MemoryRepository struct {
	path   string
	mu     sync.Mutex
	data   map[string]json.RawMessage
	logger *zap.Logger
}

// NewMemoryRepository loads path if it exists, otherwise starts empty
func NewMemoryRepository(path string, logger *zap.Logger) (*MemoryRepository, error) {
	r := &MemoryRepository{
		path:   path,
		data:   make(map[string]json.RawMessage),
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("memory file not found, starting empty", zap.String("path", path))
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.data); err != nil {
			return nil, fmt.Errorf("failed to parse memory file %s: %w", path, err)
		}
	}

	logger.Info("memory file loaded",
		zap.String("path", path),
		zap.Int("keys", len(r.data)))
	return r, nil
}

// Get retrieves the value stored under key
func (r *MemoryRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.data[key]
	if !ok {
		return nil, repositories.ErrMemoryNotFound
	}
	return cloneRaw(value), nil
}

// Put stores value under key and persists the table
func (r *MemoryRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("memory value for %s is not valid JSON", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.set(key, cloneRaw(value))
}

// Update holds the table lock across read, compute and write
func (r *MemoryRepository) Update(ctx context.Context, key string, fn repositories.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, found := r.data[key]
	next, err := fn(cloneRaw(current), found)
	if err != nil {
		return err
	}
	if !json.Valid(next) {
		return fmt.Errorf("memory value for %s is not valid JSON", key)
	}

	return r.set(key, cloneRaw(next))
}

// Keys lists the stored keys in ascending order
func (r *MemoryRepository) Keys(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping checks that the memory file's directory is still there
func (r *MemoryRepository) Ping(ctx context.Context) error {
	dir := filepath.Dir(r.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("memory directory unavailable: %w", err)
	}
	return nil
}

// Close is a no-op; every write is already persisted
func (r *MemoryRepository) Close() error {
	return nil
}

// set must be called with mu held. The previous value is restored when the
// table cannot be persisted.
func (r *MemoryRepository) set(key string, value json.RawMessage) error {
	previous, existed := r.data[key]
	r.data[key] = value

	if err := r.persist(); err != nil {
		if existed {
			r.data[key] = previous
		} else {
			delete(r.data, key)
		}
		return err
	}
	return nil
}

func (r *MemoryRepository) persist() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp memory file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}

	r.logger.Debug("memory persisted", zap.String("path", r.path), zap.Int("keys", len(r.data)))
	return nil
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
