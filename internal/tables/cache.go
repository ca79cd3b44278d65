package tables

import (
	"context"
	"fmt"
	"sync"

	"github.com/sdtp-io/tablehub/internal/objstore"
)

// Cache holds parsed tables keyed by table key, each entry tagged with the
// change token observed when the blob was loaded. Reads validate the token
// against the store's current metadata, so a hit costs one metadata
// round-trip and no re-parse, and no read ever returns data older than the
// last write the store has observed.
//
// Entries accumulate for every distinct key accessed; the store remains the
// source of truth and the cache is rebuildable at any time.
type Cache struct {
	store objstore.Store

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	table   *Table
	version string
}

// NewCache creates an empty cache over store.
func NewCache(store objstore.Store) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the parsed table for k, reloading from the store only when the
// change token no longer matches. Concurrent calls for the same key may race
// to repopulate the entry; both compute the same result from the same blob,
// so the last writer wins harmlessly.
func (c *Cache) Get(ctx context.Context, k Key) (*Table, error) {
	key := k.String()
	meta, ok, err := c.store.Meta(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	c.mu.RLock()
	entry, hit := c.entries[key]
	c.mu.RUnlock()
	if hit && entry.version == meta.Version {
		return entry.table, nil
	}

	data, curMeta, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Deleted between the metadata lookup and the fetch.
		c.Invalidate(k)
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{table: table, version: curMeta.Version}
	c.mu.Unlock()
	return table, nil
}

// Invalidate drops the entry for k unconditionally.
func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	delete(c.entries, k.String())
	c.mu.Unlock()
}

// Prime installs a just-written table with the metadata returned by the
// store's Put, so the publish path warms the cache without a second metadata
// read and a following Get sees no spurious change.
func (c *Cache) Prime(k Key, table *Table, meta objstore.Metadata) {
	c.mu.Lock()
	c.entries[k.String()] = cacheEntry{table: table, version: meta.Version}
	c.mu.Unlock()
}
