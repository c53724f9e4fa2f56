package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps each namespace in its own directory on local disk.
type FileStore struct {
	dirs map[Namespace]string
}

// NewFileStore creates the namespace directories if needed.
func NewFileStore(archiveDir, manifestDir string) (*FileStore, error) {
	dirs := map[Namespace]string{
		Archives:  archiveDir,
		Manifests: manifestDir,
	}
	for ns, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("no directory configured for %s", ns)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", ns, err)
		}
	}
	return &FileStore{dirs: dirs}, nil
}

func (s *FileStore) path(ns Namespace, name string) (string, error) {
	if err := Validate(ns, name); err != nil {
		return "", err
	}
	return filepath.Join(s.dirs[ns], name), nil
}

// Save writes data to a temporary file and links it into place so readers
// never observe a partially written artifact. An existing artifact with the
// same name is left untouched and ErrExists is returned.
func (s *FileStore) Save(_ context.Context, ns Namespace, name string, data []byte) error {
	dst, err := s.path(ns, name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("link %s: %w", name, err)
	}
	return nil
}

// Read returns the artifact contents.
func (s *FileStore) Read(_ context.Context, ns Namespace, name string) ([]byte, error) {
	p, err := s.path(ns, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Delete removes the artifact file.
func (s *FileStore) Delete(_ context.Context, ns Namespace, name string) error {
	p, err := s.path(ns, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
