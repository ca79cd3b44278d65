package objstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and the development server.
// Every Put assigns a fresh UUID as the change token.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	meta  map[string]Metadata
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
		meta:  make(map[string]Metadata),
	}
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *Memory) Meta(ctx context.Context, key string) (Metadata, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.meta[key]
	return md, ok, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, Metadata, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, Metadata{}, false, nil
	}
	return slices.Clone(data), m.meta[key], true, nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) (Metadata, error) {
	md := Metadata{
		Version:     uuid.NewString(),
		ModTime:     time.Now(),
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(data)
	m.meta[key] = md
	return md, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	delete(m.meta, key)
	return nil
}

// List returns matching keys in lexicographic order.
func (m *Memory) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.blobs {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	return nil
}
