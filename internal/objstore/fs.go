package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// FSStore is a filesystem-backed object store. Keys map directly to paths
// under the base directory.
type FSStore struct {
	basePath string
}

// NewFSStore creates the base directory and returns the store.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FSStore{basePath: basePath}, nil
}

func (f *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", rerr.Newf(rerr.CategoryValidation, rerr.SeverityError, "invalid object key %q", key)
	}
	return filepath.Join(f.basePath, clean), nil
}

// Put writes the object, creating parent directories as needed.
func (f *FSStore) Put(ctx context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return rerr.Wrap(err, rerr.CategoryStorage, rerr.SeverityError, "create object directory")
	}
	if err := os.WriteFile(p, data, 0600); err != nil {
		return rerr.Wrap(err, rerr.CategoryStorage, rerr.SeverityError, "write object")
	}
	return nil
}

// Get reads the object bytes.
func (f *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 - path is sanitized above
	if os.IsNotExist(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, rerr.Wrap(err, rerr.CategoryStorage, rerr.SeverityError, "read object")
	}
	return data, nil
}

// Exists reports whether the object is present.
func (f *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, rerr.Wrap(err, rerr.CategoryStorage, rerr.SeverityError, "stat object")
	}
	return true, nil
}

// Delete removes the object. Missing objects are not an error.
func (f *FSStore) Delete(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return rerr.Wrap(err, rerr.CategoryStorage, rerr.SeverityError, "delete object")
	}
	return nil
}
