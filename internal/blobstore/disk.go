package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps blobs as files under a root directory, served by the HTTP
// layer under a public prefix.
type DiskStore struct {
	root      string
	publicURL string
}

// NewDiskStore creates root if needed and returns a DiskStore over it.
func NewDiskStore(root, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, publicURL: publicURL}, nil
}

// Root returns the directory files are written to.
func (d *DiskStore) Root() string {
	return d.root
}

func (d *DiskStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		recordOp("disk", "put", err)
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	err := os.WriteFile(path, data, 0o644)
	recordOp("disk", "put", err)
	if err != nil {
		return "", fmt.Errorf("write blob %q: %w", key, err)
	}
	return joinURL(d.publicURL, key), nil
}

// Remove deletes the blob; a missing blob is not an error.
func (d *DiskStore) Remove(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	err := os.Remove(filepath.Join(d.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	recordOp("disk", "remove", err)
	return err
}
