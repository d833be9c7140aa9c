package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Davygupta47/notebook/internal/fileutil"
)

const lockDirName = ".locks"

// Filesystem stores each artifact as <dir>/<key>.ipynb.
//
// Writers for the same key are serialized with a lock file under <dir>/.locks
// so two processes sharing the directory cannot both win a Put.
type Filesystem struct {
	dir string
}

// NewFilesystem creates dir if needed and returns a store rooted there.
func NewFilesystem(dir string) (*Filesystem, error) {
	if dir == "" {
		return nil, errors.New("artifact dir is empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, lockDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Filesystem{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Filesystem) Dir() string { return s.dir }

func (s *Filesystem) path(key string) string {
	return filepath.Join(s.dir, key+Extension)
}

func (s *Filesystem) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.path(key)

	lock := flock.New(filepath.Join(s.dir, lockDirName, key+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, key)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat artifact: %w", err)
	}

	if err := fileutil.WriteAtomic(target, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	if err := fileutil.VerifyFile(target, data); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("verify artifact %s: %w", key, err)
	}
	return nil
}

func (s *Filesystem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, nil
}

func (s *Filesystem) Exists(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}
