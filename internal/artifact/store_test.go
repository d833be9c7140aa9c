package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/config"
)

type backend struct {
	name string
	open func(t *testing.T) artifact.Store
}

func backends() []backend {
	return []backend{
		{"filesystem", func(t *testing.T) artifact.Store {
			store, err := artifact.NewFilesystem(t.TempDir())
			if err != nil {
				t.Fatalf("NewFilesystem: %v", err)
			}
			return store
		}},
		{"sqlite", func(t *testing.T) artifact.Store {
			store, err := artifact.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "artifacts.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		}},
		{"memory", func(t *testing.T) artifact.Store { return artifact.NewMemory() }},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t)
			payload := []byte(`{"nbformat":4,"cells":[]}`)

			exists, err := store.Exists(ctx, "abc123def456")
			if err != nil || exists {
				t.Fatalf("expected absent artifact, got exists=%v err=%v", exists, err)
			}
			if _, err := store.Get(ctx, "abc123def456"); !errors.Is(err, artifact.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := store.Put(ctx, "abc123def456", payload); err != nil {
				t.Fatalf("Put: %v", err)
			}
			exists, err = store.Exists(ctx, "abc123def456")
			if err != nil || !exists {
				t.Fatalf("expected artifact to exist, got exists=%v err=%v", exists, err)
			}
			got, err := store.Get(ctx, "abc123def456")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch: %q", got)
			}
		})
	}
}

func TestStoreIsWriteOnce(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t)
			if err := store.Put(ctx, "job_draft", []byte("draft")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := store.Put(ctx, "job_draft", []byte("other")); !errors.Is(err, artifact.ErrExists) {
				t.Fatalf("expected ErrExists on second put, got %v", err)
			}
			got, _ := store.Get(ctx, "job_draft")
			if string(got) != "draft" {
				t.Fatalf("artifact mutated: %q", got)
			}
		})
	}
}

func TestStoreDraftAndFinalAreIndependent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t)
			if err := store.Put(ctx, "0011aabbccdd_draft", []byte("draft")); err != nil {
				t.Fatalf("Put draft: %v", err)
			}
			if err := store.Put(ctx, "0011aabbccdd", []byte("final")); err != nil {
				t.Fatalf("Put final: %v", err)
			}
			draft, _ := store.Get(ctx, "0011aabbccdd_draft")
			final, _ := store.Get(ctx, "0011aabbccdd")
			if string(draft) != "draft" || string(final) != "final" {
				t.Fatalf("unexpected contents draft=%q final=%q", draft, final)
			}
		})
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t)
			for _, key := range []string{"", "../etc/passwd", "a/b", "a.b", "a-b", "ключ"} {
				if err := store.Put(ctx, key, []byte("x")); !errors.Is(err, artifact.ErrInvalidKey) {
					t.Fatalf("Put(%q): expected ErrInvalidKey, got %v", key, err)
				}
				if _, err := store.Get(ctx, key); !errors.Is(err, artifact.ErrInvalidKey) {
					t.Fatalf("Get(%q): expected ErrInvalidKey, got %v", key, err)
				}
			}
		})
	}
}

func TestStoreConcurrentPutsOneWinner(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t)
			var wg sync.WaitGroup
			results := make(chan error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results <- store.Put(ctx, "contended", []byte(fmt.Sprint(i)))
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, artifact.ErrExists):
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one successful put, got %d", wins)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	cases := map[string]bool{
		"abc123def456":       true,
		"abc123def456_draft": true,
		"":                   false,
		"..":                 false,
		"a b":                false,
		string(make([]byte, artifact.MaxKeyLength+1)): false,
	}
	for key, want := range cases {
		if got := artifact.ValidKey(key); got != want {
			t.Fatalf("ValidKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestFilesystemLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.NewFilesystem(dir)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if err := store.Put(context.Background(), "abc", []byte("nb")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "abc.ipynb")); err != nil {
		t.Fatalf("expected abc.ipynb on disk: %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ArtifactDir = t.TempDir()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "a.db")

	store, err := artifact.Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open filesystem: %v", err)
	}
	if _, ok := store.(*artifact.Filesystem); !ok {
		t.Fatalf("expected *Filesystem, got %T", store)
	}

	cfg.Storage.Backend = config.StorageSQLite
	store, err = artifact.Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if _, ok := store.(*artifact.SQLite); !ok {
		t.Fatalf("expected *SQLite, got %T", store)
	}
	if err := artifact.Close(store); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg.Storage.Backend = "tape"
	if _, err := artifact.Open(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
