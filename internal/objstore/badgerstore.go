package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes inside the Badger keyspace. Blob bytes and their metadata
// live under separate keys, written in a single transaction so readers see
// them move together.
const (
	badgerDataPrefix = "d/"
	badgerMetaPrefix = "m/"
)

// Badger is a Store backed by a local Badger database.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// NewBadger opens (or creates) a Badger database at path.
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %v: %w", path, err, ErrUnavailable)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Exists(ctx context.Context, key string) (bool, error) {
	ok := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(badgerDataPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err == nil {
			ok = true
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("exists %q: %v: %w", key, err, ErrUnavailable)
	}
	return ok, nil
}

func (b *Badger) Meta(ctx context.Context, key string) (Metadata, bool, error) {
	var md Metadata
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerMetaPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &md)
		})
	})
	if err != nil {
		return Metadata{}, false, fmt.Errorf("meta %q: %v: %w", key, err, ErrUnavailable)
	}
	return md, found, nil
}

func (b *Badger) Get(ctx context.Context, key string) ([]byte, Metadata, bool, error) {
	var data []byte
	var md Metadata
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerDataPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		mItem, err := txn.Get([]byte(badgerMetaPrefix + key))
		if err != nil {
			return err
		}
		return mItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &md)
		})
	})
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("get %q: %v: %w", key, err, ErrUnavailable)
	}
	if !found {
		return nil, Metadata{}, false, nil
	}
	return data, md, true, nil
}

func (b *Badger) Put(ctx context.Context, key string, data []byte, contentType string) (Metadata, error) {
	md := Metadata{
		Version:     uuid.NewString(),
		ModTime:     time.Now(),
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	encoded, err := json.Marshal(md)
	if err != nil {
		return Metadata{}, fmt.Errorf("put %q: %v: %w", key, err, ErrUnavailable)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(badgerDataPrefix+key), data); err != nil {
			return err
		}
		return txn.Set([]byte(badgerMetaPrefix+key), encoded)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("put %q: %v: %w", key, err, ErrUnavailable)
	}
	return md, nil
}

func (b *Badger) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerDataPrefix + key)); err != nil {
			return err
		}
		return txn.Delete([]byte(badgerMetaPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %v: %w", key, err, ErrUnavailable)
	}
	return nil
}

// List iterates the data keyspace and returns matching keys in lexicographic
// order.
func (b *Badger) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		scan := []byte(badgerDataPrefix + prefix)
		for it.Seek(scan); it.Valid(); it.Next() {
			k := it.Item().Key()
			if !bytes.HasPrefix(k, scan) {
				break
			}
			key := strings.TrimPrefix(string(k), badgerDataPrefix)
			if strings.HasSuffix(key, suffix) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list: %v: %w", err, ErrUnavailable)
	}
	slices.Sort(keys)
	return keys, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
