package storage

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for empty keys or keys escaping the base directory.
var ErrInvalidKey = errors.New("invalid storage key")

// FSStore is a BlobStore on the local filesystem, rooted at UPLOAD_DIR.
type FSStore struct{ base string }

// NewFSStore creates the base directory if needed.
func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./uploads"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", ErrInvalidKey
	}
	p := filepath.Join(s.base, clean)
	if !strings.HasPrefix(p, filepath.Clean(s.base)+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

// Put writes r under key. A partially written file is removed on error.
func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return key, nil
}

// Get opens the blob stored under key.
func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// URL returns a file:// URL for local development.
func (s *FSStore) URL(key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: abs}
	return u.String(), nil
}
