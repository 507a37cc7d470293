package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ignite/bulk-mailer/internal/config"
)

// Store holds report artifacts by flat name.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Open returns the artifact body and its size, or ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// LocalStore keeps artifacts in one private directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir with mode 0700 if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) path(name string) (string, bool) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// Put writes a new file with mode 0600. Existing files are never overwritten.
// The directory is recreated if something removed it since NewLocalStore.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	p, ok := s.path(name)
	if !ok {
		return fmt.Errorf("invalid report name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	p, ok := s.path(name)
	if !ok {
		return nil, 0, ErrNotFound
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("open report: %w", err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, ErrNotFound
	}
	return f, info.Size(), nil
}

// StoreFromConfig builds the store selected by cfg.Type.
func StoreFromConfig(ctx context.Context, cfg config.ReportsConfig) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.LocalPath)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown report store type %q", cfg.Type)
	}
}
