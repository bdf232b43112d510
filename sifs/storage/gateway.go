package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Common error types used across storage operations
var (
	ErrExists    = errors.New("path already exists")
	ErrNotExists = errors.New("path does not exist")
)

// Gateway abstracts the distributed file system operations the maintenance
// engine relies on: existence checks, atomic creation, rename, byte-level
// concatenation, recursive delete and filtered listing.
//
// Implementations are expected to block until the underlying storage call
// completes; none of these operations are retried internally.
type Gateway interface {
	// Exists reports whether path refers to an existing file or directory.
	Exists(path string) (bool, error)
	// Create opens a new writable file. When overwrite is false and the path
	// already exists, Create fails with ErrExists.
	Create(path string, overwrite bool) (io.WriteCloser, error)
	// Rename moves src to dst, replacing dst if it exists.
	Rename(src, dst string) error
	// Delete removes path. Non-empty directories require recursive=true.
	Delete(path string, recursive bool) error
	// ListMatching returns the full paths of the direct children of dir whose
	// base name satisfies the predicate.
	ListMatching(dir string, pred func(name string) bool) ([]string, error)
	// Concat appends the bytes of src to the end of dst and consumes src.
	// dst must already exist; the operation never re-encodes records.
	Concat(dst, src string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// ReadFile reads the whole file at path.
	ReadFile(path string) ([]byte, error)
	// Size returns the byte size of the file at path.
	Size(path string) (int64, error)
}

// AferoGateway implements Gateway over an afero filesystem. Production code
// uses afero.NewOsFs(); tests use afero.NewMemMapFs().
type AferoGateway struct {
	fs afero.Fs
}

// NewAferoGateway creates a gateway over the given afero filesystem.
func NewAferoGateway(fs afero.Fs) *AferoGateway {
	return &AferoGateway{fs: fs}
}

// NewLocalGateway creates a gateway over the host filesystem.
func NewLocalGateway() *AferoGateway {
	return &AferoGateway{fs: afero.NewOsFs()}
}

// Fs exposes the underlying filesystem, primarily for tests.
func (g *AferoGateway) Fs() afero.Fs {
	return g.fs
}

func (g *AferoGateway) Exists(path string) (bool, error) {
	_, err := g.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

func (g *AferoGateway) Create(path string, overwrite bool) (io.WriteCloser, error) {
	if !overwrite {
		exists, err := g.Exists(path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("create %s: %w", path, ErrExists)
		}
	}
	if err := g.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	f, err := g.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

func (g *AferoGateway) Rename(src, dst string) error {
	if err := g.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}

func (g *AferoGateway) Delete(path string, recursive bool) error {
	var err error
	if recursive {
		err = g.fs.RemoveAll(path)
	} else {
		err = g.fs.Remove(path)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (g *AferoGateway) ListMatching(dir string, pred func(name string) bool) ([]string, error) {
	entries, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var matches []string
	for _, entry := range entries {
		if pred == nil || pred(entry.Name()) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	return matches, nil
}

func (g *AferoGateway) Concat(dst, src string) error {
	in, err := g.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	out, err := g.fs.OpenFile(dst, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		in.Close()
		return fmt.Errorf("failed to open %s for append: %w", dst, err)
	}
	_, copyErr := io.Copy(out, in)
	in.Close()
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("failed to append %s to %s: %w", src, dst, copyErr)
	}
	// src is consumed once its bytes live in dst.
	if err := g.fs.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s after concat: %w", src, err)
	}
	return nil
}

func (g *AferoGateway) MkdirAll(dir string) error {
	if err := g.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func (g *AferoGateway) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(g.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (g *AferoGateway) Size(path string) (int64, error) {
	info, err := g.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}
