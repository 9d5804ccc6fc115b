// Package media downloads inbound attachments and stores them under a public root.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrNoDownloader indicates the fetcher has no provider client.
	ErrNoDownloader = errors.New("media downloader not configured")
)

// StorageProvider abstracts object storage operations.
type StorageProvider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key. Missing keys yield an
	// error matching fs.ErrNotExist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// AccessPath returns the public reference for a storage key.
	AccessPath(key string) string
}

// Disk stores files below a root directory that is served under a public prefix.
type Disk struct {
	root   string
	prefix string
}

// NewDisk creates a disk provider. prefix is prepended to keys by AccessPath.
func NewDisk(root, prefix string) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	return &Disk{root: abs, prefix: strings.TrimRight(prefix, "/")}, nil
}

// Put writes reader to the file for key, creating parent directories.
func (d *Disk) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open reads the file for key.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open file: %s: %w", key, fs.ErrNotExist)
	}
	return f, nil
}

// AccessPath returns "<prefix>/<key>".
func (d *Disk) AccessPath(key string) string {
	return d.prefix + "/" + strings.TrimLeft(filepath.ToSlash(key), "/")
}

func (d *Disk) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, key)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, key)
	}
	joined := filepath.Join(d.root, clean)
	if !strings.HasPrefix(joined, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, key)
	}
	return joined, nil
}
