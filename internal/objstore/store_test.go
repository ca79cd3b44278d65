package objstore

import (
	"bytes"
	"context"
	"slices"
	"testing"
)

// withEachStore runs the contract suite against every local backend.
func withEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("dir", func(t *testing.T) {
		s, err := NewDir(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		fn(t, s)
	})
	t.Run("badger", func(t *testing.T) {
		s, err := NewBadger(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := s.Close(); err != nil {
				t.Error(err)
			}
		})
		fn(t, s)
	})
}

func TestStorePutGet(t *testing.T) {
	withEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := "alice/t.sdml"

		if ok, err := s.Exists(ctx, key); err != nil || ok {
			t.Fatalf("Exists before put = %v, %v", ok, err)
		}
		if _, _, ok, err := s.Get(ctx, key); err != nil || ok {
			t.Fatalf("Get before put: ok=%v err=%v; absence must not be an error", ok, err)
		}
		if _, ok, err := s.Meta(ctx, key); err != nil || ok {
			t.Fatalf("Meta before put: ok=%v err=%v", ok, err)
		}

		want := []byte(`{"hello":"world"}`)
		md, err := s.Put(ctx, key, want, "application/json")
		if err != nil {
			t.Fatal(err)
		}
		if md.Version == "" {
			t.Fatal("Put returned empty version token")
		}
		if md.Size != int64(len(want)) {
			t.Fatalf("Put size = %d, want %d", md.Size, len(want))
		}

		data, got, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get after put: ok=%v err=%v", ok, err)
		}
		if string(data) != string(want) {
			t.Fatalf("Get = %q, want %q", data, want)
		}
		if got.Version != md.Version {
			t.Fatalf("Get version = %q, Put returned %q", got.Version, md.Version)
		}
		if ok, err := s.Exists(ctx, key); err != nil || !ok {
			t.Fatalf("Exists after put = %v, %v", ok, err)
		}
	})
}

func TestStoreVersionChangesOnPut(t *testing.T) {
	withEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := "alice/t.sdml"
		md1, err := s.Put(ctx, key, []byte("one"), "")
		if err != nil {
			t.Fatal(err)
		}
		md2, err := s.Put(ctx, key, []byte("second, longer"), "")
		if err != nil {
			t.Fatal(err)
		}
		if md1.Version == md2.Version {
			t.Fatalf("version token did not change across writes: %q", md1.Version)
		}
		cur, ok, err := s.Meta(ctx, key)
		if err != nil || !ok {
			t.Fatal(ok, err)
		}
		if cur.Version != md2.Version {
			t.Fatalf("Meta version = %q, want %q", cur.Version, md2.Version)
		}
	})
}

func TestStoreDeleteIdempotent(t *testing.T) {
	withEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := "bob/gone.sdml"
		if _, err := s.Put(ctx, key, []byte("x"), ""); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if ok, err := s.Exists(ctx, key); err != nil || ok {
			t.Fatalf("Exists after delete = %v, %v", ok, err)
		}
		// Absent key: still not an error.
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("second Delete = %v", err)
		}
	})
}

func TestStoreListFilters(t *testing.T) {
	withEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, key := range []string{
			"alice/a.sdml", "alice/a.perm", "alice/b.sdml",
			"bob/c.sdml", "bob/c.perm",
		} {
			if _, err := s.Put(ctx, key, []byte("{}"), ""); err != nil {
				t.Fatal(err)
			}
		}

		got, err := s.List(ctx, "", ".sdml")
		if err != nil {
			t.Fatal(err)
		}
		slices.Sort(got)
		want := []string{"alice/a.sdml", "alice/b.sdml", "bob/c.sdml"}
		if !slices.Equal(got, want) {
			t.Fatalf("List(suffix) = %v, want %v", got, want)
		}

		got, err = s.List(ctx, "alice/", ".sdml")
		if err != nil {
			t.Fatal(err)
		}
		slices.Sort(got)
		want = []string{"alice/a.sdml", "alice/b.sdml"}
		if !slices.Equal(got, want) {
			t.Fatalf("List(prefix, suffix) = %v, want %v", got, want)
		}

		got, err = s.List(ctx, "bob/", "")
		if err != nil {
			t.Fatal(err)
		}
		slices.Sort(got)
		want = []string{"bob/c.perm", "bob/c.sdml"}
		if !slices.Equal(got, want) {
			t.Fatalf("List(prefix) = %v, want %v", got, want)
		}
	})
}

func TestDeleteAll(t *testing.T) {
	withEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, key := range []string{"alice/a.sdml", "alice/a.perm", "bob/c.sdml"} {
			if _, err := s.Put(ctx, key, []byte("{}"), ""); err != nil {
				t.Fatal(err)
			}
		}
		if err := DeleteAll(ctx, s, "alice/", ""); err != nil {
			t.Fatal(err)
		}
		left, err := s.List(ctx, "", "")
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(left, []string{"bob/c.sdml"}) {
			t.Fatalf("remaining keys = %v", left)
		}
	})
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if _, err := s.Put(ctx, "k", []byte("abc"), ""); err != nil {
		t.Fatal(err)
	}
	data, _, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	again, _, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != "abc" {
		t.Fatalf("stored blob mutated through returned slice: %q", again)
	}
}

// Rewrites race against reads; the bytes and the change token a Get returns
// must always describe the same write. Payload sizes differ per write so a
// mismatched pairing is visible as a size disagreement.
func TestDirGetPairsDataWithItsVersion(t *testing.T) {
	ctx := context.Background()
	s, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := "alice/t.sdml"
	if _, err := s.Put(ctx, key, []byte("seed"), ""); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 500 {
			data := bytes.Repeat([]byte("x"), 1+i%97)
			if _, err := s.Put(ctx, key, data, ""); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		data, md, ok, err := s.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if int64(len(data)) != md.Size {
			t.Fatalf("Get returned %d bytes with a token for %d bytes", len(data), md.Size)
		}
	}
}

func TestDirRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../evil", "a/../../b", "/abs"} {
		if _, err := s.Put(ctx, key, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}
