package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Dir is a Store backed by a directory tree. Blob keys map directly to file
// paths under the root, so a key like "alice/t.sdml" becomes
// <root>/alice/t.sdml. Writes go through a temp file plus rename so readers
// never observe a partial blob.
//
// The change token is derived from the file's mtime and size. That is enough
// for equality comparison: any successful write moves the mtime forward.
type Dir struct {
	root string
}

var _ Store = (*Dir)(nil)

// NewDir creates the root directory if needed and returns a store over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root %q: %v: %w", root, err, ErrUnavailable)
	}
	return &Dir{root: root}, nil
}

var errBadStoreKey = errors.New("key escapes the store root")

func (d *Dir) filePath(key string) (string, error) {
	if key == "" || path.Clean("/"+key) != "/"+key {
		return "", fmt.Errorf("%q: %w", key, errBadStoreKey)
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

func fileMetadata(info fs.FileInfo, key string) Metadata {
	ct := ""
	switch path.Ext(key) {
	case ".sdml", ".perm", ".json":
		ct = "application/json"
	}
	return Metadata{
		Version:     strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 36),
		ModTime:     info.ModTime(),
		Size:        info.Size(),
		ContentType: ct,
	}
}

func (d *Dir) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.filePath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %v: %w", key, err, ErrUnavailable)
	}
	return !info.IsDir(), nil
}

func (d *Dir) Meta(ctx context.Context, key string) (Metadata, bool, error) {
	p, err := d.filePath(key)
	if err != nil {
		return Metadata{}, false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("stat %q: %v: %w", key, err, ErrUnavailable)
	}
	if info.IsDir() {
		return Metadata{}, false, nil
	}
	return fileMetadata(info, key), true, nil
}

func (d *Dir) Get(ctx context.Context, key string) ([]byte, Metadata, bool, error) {
	p, err := d.filePath(key)
	if err != nil {
		return nil, Metadata{}, false, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, false, nil
		}
		return nil, Metadata{}, false, fmt.Errorf("open %q: %v: %w", key, err, ErrUnavailable)
	}
	defer f.Close()
	// Bytes and change token must come from the same open descriptor: a
	// concurrent Put renames a new file over the path, and the descriptor
	// keeps the old inode, so data and token always describe one version.
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("read %q: %v: %w", key, err, ErrUnavailable)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("stat %q: %v: %w", key, err, ErrUnavailable)
	}
	return data, fileMetadata(info, key), true, nil
}

func (d *Dir) Put(ctx context.Context, key string, data []byte, contentType string) (Metadata, error) {
	p, err := d.filePath(key)
	if err != nil {
		return Metadata{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Metadata{}, fmt.Errorf("mkdir for %q: %v: %w", key, err, ErrUnavailable)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return Metadata{}, fmt.Errorf("temp for %q: %v: %w", key, err, ErrUnavailable)
	}
	_, err = tmp.Write(data)
	var info fs.FileInfo
	if err == nil {
		// Stat the temp file, not the destination path: rename preserves
		// mtime and size, and the path may already belong to a later write.
		info, err = tmp.Stat()
	}
	if err2 := tmp.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmp.Name(), p)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return Metadata{}, fmt.Errorf("write %q: %v: %w", key, err, ErrUnavailable)
	}
	return fileMetadata(info, key), nil
}

func (d *Dir) Delete(ctx context.Context, key string) error {
	p, err := d.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %v: %w", key, err, ErrUnavailable)
	}
	return nil
}

// List walks the root and returns matching keys with forward-slash
// separators, in lexicographic order.
func (d *Dir) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list: %v: %w", err, ErrUnavailable)
	}
	return keys, nil
}

func (d *Dir) Close() error {
	return nil
}
