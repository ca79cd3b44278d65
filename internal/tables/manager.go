package tables

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sdtp-io/tablehub/internal/objstore"
)

// schemaLoadParallelism bounds the fanout when projecting schemas for every
// accessible table.
const schemaLoadParallelism = 8

// Manager mediates between the object store, the permission records embedded
// in it, and the in-memory table cache, keeping the three views consistent.
// It consumes already-resolved caller identities; it never inspects tokens
// or headers itself.
//
// A Manager is safe for concurrent use. It holds no lock across store
// round-trips: concurrent grant updates to the same key can race and the
// later write wins (callers needing strict serializability must serialize
// above this layer), and concurrent publish/get interleavings yield either
// the pre- or post-publish table, never a torn one, because the store's Put
// is the atomicity boundary.
type Manager struct {
	store objstore.Store
	cache *Cache
}

// NewManager creates a Manager over store with a fresh cache.
func NewManager(store objstore.Store) *Manager {
	return &Manager{
		store: store,
		cache: NewCache(store),
	}
}

// List returns the raw table inventory, optionally restricted to one owner.
// No permission filtering happens here.
func (m *Manager) List(ctx context.Context, owner string) ([]Key, error) {
	prefix := ""
	if owner != "" {
		prefix = owner + "/"
	}
	raw, err := m.store.List(ctx, prefix, TableSuffix)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(raw))
	for _, s := range raw {
		k, err := ParseKey(s)
		if err != nil {
			// Stray blob that merely shares the suffix.
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Exists reports whether the table blob is durably stored. It consults the
// store, not the cache, so the answer reflects durable truth.
func (m *Manager) Exists(ctx context.Context, k Key) (bool, error) {
	return m.store.Exists(ctx, k.String())
}

// Get returns the parsed table via the cache.
func (m *Manager) Get(ctx context.Context, k Key) (*Table, error) {
	return m.cache.Get(ctx, k)
}

// Permissions returns the table's permission record. A table with no
// permission blob — including one not yet published — yields the default
// record owned by the key's owner portion.
func (m *Manager) Permissions(ctx context.Context, k Key) (*PermissionRecord, error) {
	return LoadPermissions(ctx, m.store, k)
}

// Permitted reports whether identity may read the table under the grant
// rule of PermissionRecord.Permits.
func (m *Manager) Permitted(ctx context.Context, k Key, identity string, verified bool) (bool, error) {
	rec, err := LoadPermissions(ctx, m.store, k)
	if err != nil {
		return false, err
	}
	return rec.Permits(identity, verified), nil
}

// ListAccessible returns every table key identity may read.
func (m *Manager) ListAccessible(ctx context.Context, identity string, verified bool) ([]Key, error) {
	keys, err := m.List(ctx, "")
	if err != nil {
		return nil, err
	}
	accessible := make([]Key, 0, len(keys))
	for _, k := range keys {
		ok, err := m.Permitted(ctx, k, identity, verified)
		if err != nil {
			return nil, err
		}
		if ok {
			accessible = append(accessible, k)
		}
	}
	return accessible, nil
}

// GetIfPermitted loads the table, checking existence before permission:
// a missing table is always ErrNotFound, even for its would-be owner, and
// ErrNotPermitted only ever refers to a table that exists.
func (m *Manager) GetIfPermitted(ctx context.Context, k Key, identity string, verified bool) (*Table, error) {
	table, err := m.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	ok, err := m.Permitted(ctx, k, identity, verified)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, ErrNotPermitted)
	}
	return table, nil
}

// Publish validates and stores a serialized SDML table. Parsing happens
// before any write, so a malformed document never reaches the store. The
// permission record is untouched: ownership and grants survive a republish.
func (m *Manager) Publish(ctx context.Context, k Key, raw []byte) error {
	table, err := ParseTable(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return m.publish(ctx, k, table, raw)
}

// PublishTable stores an already-structured table, serializing it first.
func (m *Manager) PublishTable(ctx context.Context, k Key, table *Table) error {
	if err := table.validate(); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	raw, err := table.Bytes()
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return m.publish(ctx, k, table, raw)
}

func (m *Manager) publish(ctx context.Context, k Key, table *Table, raw []byte) error {
	meta, err := m.store.Put(ctx, k.String(), raw, "application/json")
	if err != nil {
		return err
	}
	m.cache.Prime(k, table, meta)
	return nil
}

// UpdateAccess sets or extends the table's grantee set. Only the record's
// owner may change it. With replace the grantees become the whole set;
// otherwise they are unioned into it. This read-modify-write is not guarded
// by any cross-request lock; see the type comment.
func (m *Manager) UpdateAccess(ctx context.Context, k Key, acting string, grantees []string, replace bool) error {
	ok, err := m.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	rec, err := LoadPermissions(ctx, m.store, k)
	if err != nil {
		return err
	}
	if acting != rec.Owner {
		return fmt.Errorf("%s is owned by %s, not %s: %w", k, rec.Owner, acting, ErrNotOwner)
	}
	rec.Grant(grantees, replace)
	return SavePermissions(ctx, m.store, k, rec)
}

// UserAccess returns a copy of the table's grantee list. Only the owner may
// ask.
func (m *Manager) UserAccess(ctx context.Context, k Key, acting string) ([]string, error) {
	rec, err := LoadPermissions(ctx, m.store, k)
	if err != nil {
		return nil, err
	}
	if acting != rec.Owner {
		return nil, fmt.Errorf("%s is owned by %s, not %s: %w", k, rec.Owner, acting, ErrNotOwner)
	}
	users := make([]string, len(rec.Users))
	copy(users, rec.Users)
	return users, nil
}

// Delete removes the table blob, its permission blob, and the cache entry.
// The permission delete is unconditional: an absent blob and an empty grant
// set are the same state, so it is a safe no-op.
func (m *Manager) Delete(ctx context.Context, k Key) error {
	ok, err := m.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	if err := m.store.Delete(ctx, k.String()); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, k.PermPath()); err != nil {
		return err
	}
	m.cache.Invalidate(k)
	return nil
}

// Clean bulk-deletes every table, optionally restricted to one owner. It is
// best-effort and stops on the first failure.
func (m *Manager) Clean(ctx context.Context, owner string) error {
	keys, err := m.List(ctx, owner)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// AccessibleSchemas maps every table key identity may read to that table's
// schema. A table that passes the permission check but then fails to load is
// skipped with a warning rather than failing the whole listing.
func (m *Manager) AccessibleSchemas(ctx context.Context, identity string, verified bool) (map[string]Schema, error) {
	keys, err := m.ListAccessible(ctx, identity, verified)
	if err != nil {
		return nil, err
	}
	schemas := make(map[string]Schema, len(keys))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(schemaLoadParallelism)
	for _, k := range keys {
		g.Go(func() error {
			table, err := m.Get(ctx, k)
			if err != nil {
				slog.WarnContext(ctx, "Skipping unreadable table in schema listing", "key", k.String(), "err", err)
				return nil
			}
			mu.Lock()
			schemas[k.String()] = table.Schema
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schemas, nil
}
