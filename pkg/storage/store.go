// Package storage keeps backup archives off the host.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is an object store keyed by slash separated paths.
type Store interface {
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// LocalStore writes objects under a directory.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (l *LocalStore) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *LocalStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalStore) PublicURL(key string) string {
	return "file://" + filepath.ToSlash(l.path(key))
}
