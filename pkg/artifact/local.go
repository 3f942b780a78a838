package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// LocalStore is a filesystem-backed Store rooted at a configured directory
//. References take the form
// "local://<root-relative key>".
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at root, creating the directory
// if it does not already exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating local store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolving local store root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func refToKey(ref Ref) (string, error) {
	u, err := url.Parse(string(ref))
	if err != nil {
		return "", fmt.Errorf("artifact: parsing ref %q: %w", ref, err)
	}
	if u.Scheme != "local" {
		return "", fmt.Errorf("artifact: ref %q is not a local:// reference", ref)
	}
	key := u.Host + u.Path
	if key == "" {
		return "", fmt.Errorf("artifact: ref %q has no key", ref)
	}
	return key, nil
}

// Put writes body to <root>/<key>, creating parent directories as needed.
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) (Ref, error) {
	if err := sanitizeKey(key); err != nil {
		return "", err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("artifact: creating parent dirs for %q: %w", key, err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("artifact: writing %q: %w", key, err)
	}
	return Ref("local://" + key), nil
}

// Get reads the blob behind ref.
func (s *LocalStore) Get(_ context.Context, ref Ref) ([]byte, error) {
	key, err := refToKey(ref)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: reading %q: %w", key, err)
	}
	return b, nil
}

// Delete removes the blob behind ref.
func (s *LocalStore) Delete(_ context.Context, ref Ref) (bool, error) {
	key, err := refToKey(ref)
	if err != nil {
		return false, err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("artifact: deleting %q: %w", key, err)
	}
	return true, nil
}

// Exists reports whether ref resolves to a file on disk.
func (s *LocalStore) Exists(_ context.Context, ref Ref) (bool, error) {
	key, err := refToKey(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("artifact: statting %q: %w", key, err)
	}
	return true, nil
}
