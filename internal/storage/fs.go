// Package storage provides the filesystem-backed photo store. Uploaded
// photos are written under a configured root directory and referenced by
// relative paths of the form "uploads/<name>", which is what the API serves
// back to clients.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PublicPrefix is the URL path segment under which stored photos are served.
const PublicPrefix = "uploads"

// FSStore saves and removes photo files below a single root directory.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store.
func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the filesystem directory backing the store.
func (s *FSStore) Root() string { return s.root }

// Save writes data to a new uniquely named file, preserving the original
// extension, and returns the relative public path ("uploads/<name>").
func (s *FSStore) Save(data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", name, err)
	}
	return PublicPrefix + "/" + name, nil
}

// Read returns the contents of a stored photo given its public path.
func (s *FSStore) Read(publicPath string) ([]byte, error) {
	name, err := s.localName(publicPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.root, name))
}

// Delete removes a stored photo given its public path. Deleting a file
// that no longer exists is not an error.
func (s *FSStore) Delete(publicPath string) error {
	name, err := s.localName(publicPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}

// localName strips the public prefix and rejects traversal attempts.
func (s *FSStore) localName(publicPath string) (string, error) {
	name := strings.TrimPrefix(publicPath, PublicPrefix+"/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("storage: invalid path %q", publicPath)
	}
	return name, nil
}
