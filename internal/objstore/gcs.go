package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is a Store backed by a Google Cloud Storage bucket. The change token
// is the object generation plus metageneration, which GCS bumps on every
// successful write.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

var _ Store = (*GCS)(nil)

// NewGCS connects to GCS using ambient credentials and wraps the named
// bucket. The bucket must already exist.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %v: %w", err, ErrUnavailable)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func gcsVersion(attrs *storage.ObjectAttrs) string {
	return strconv.FormatInt(attrs.Generation, 10) + "/" + strconv.FormatInt(attrs.Metageneration, 10)
}

func gcsMetadata(attrs *storage.ObjectAttrs) Metadata {
	return Metadata{
		Version:     gcsVersion(attrs),
		ModTime:     attrs.Updated,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
	}
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := g.Meta(ctx, key)
	return ok, err
}

func (g *GCS) Meta(ctx context.Context, key string) (Metadata, bool, error) {
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("attrs %q: %v: %w", key, err, ErrUnavailable)
	}
	return gcsMetadata(attrs), true, nil
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, Metadata, bool, error) {
	obj := g.bucket.Object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, Metadata{}, false, nil
		}
		return nil, Metadata{}, false, fmt.Errorf("attrs %q: %v: %w", key, err, ErrUnavailable)
	}
	// Pin the generation observed above so the blob and its change token
	// stay consistent even if a concurrent write lands in between.
	r, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, Metadata{}, false, nil
		}
		return nil, Metadata{}, false, fmt.Errorf("read %q: %v: %w", key, err, ErrUnavailable)
	}
	data, err := io.ReadAll(r)
	if err2 := r.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("read %q: %v: %w", key, err, ErrUnavailable)
	}
	return data, gcsMetadata(attrs), true, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) (Metadata, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	_, err := w.Write(data)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("write %q: %v: %w", key, err, ErrUnavailable)
	}
	return gcsMetadata(w.Attrs()), nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %q: %v: %w", key, err, ErrUnavailable)
	}
	return nil
}

// List enumerates bucket objects under prefix. GCS returns them in
// lexicographic order.
func (g *GCS) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list bucket %q: %v: %w", g.name, err, ErrUnavailable)
		}
		if strings.HasSuffix(attrs.Name, suffix) {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
