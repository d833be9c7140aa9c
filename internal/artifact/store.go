// Package artifact stores generated notebooks keyed by job identifier.
//
// Artifacts are written once and read any number of times. Backends make a
// Put visible atomically: Exists never reports true for a partially written
// artifact. Retention is left to the operator (temp dir cleanup, bucket
// lifecycle rules).
package artifact

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no artifact exists for the key.
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned by Put when the key already holds an artifact.
	ErrExists = errors.New("artifact already exists")
	// ErrInvalidKey is returned for keys outside the allowed character set.
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Extension is appended to keys by backends that store named objects.
const Extension = ".ipynb"

// MaxKeyLength bounds key size.
const MaxKeyLength = 64

// Store is a write-once keyed blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ValidKey reports whether key is non-empty, at most MaxKeyLength long, and
// made only of ASCII letters, digits, and underscores.
func ValidKey(key string) bool {
	if key == "" || len(key) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
