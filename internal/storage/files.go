package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when a stored book file does not exist
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores uploaded book files by key
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// FileStorage keeps uploaded books on the local file system
type FileStorage struct {
	basePath string
	booksDir string
}

// NewFileStorage creates a new file storage handler
func NewFileStorage(basePath string) (*FileStorage, error) {
	fs := &FileStorage{
		basePath: basePath,
		booksDir: filepath.Join(basePath, "uploads"),
	}

	if err := os.MkdirAll(fs.booksDir, 0755); err != nil {
		return nil, err
	}

	return fs, nil
}

// Path returns the file path for a key
func (fs *FileStorage) Path(key string) (string, error) {
	clean := filepath.Base(key)
	if clean != key || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(fs.booksDir, clean), nil
}

// Put writes a book file
func (fs *FileStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	filePath, err := fs.Path(key)
	if err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		os.Remove(filePath)
		return err
	}

	return nil
}

// Open opens a book file for reading
func (fs *FileStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := fs.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

// Delete removes a book file
func (fs *FileStorage) Delete(ctx context.Context, key string) error {
	filePath, err := fs.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LocalCopy makes a stored book available as a local file. Files kept by
// FileStorage are used in place; other stores are copied to a temp file
// that cleanup removes.
func LocalCopy(ctx context.Context, store BlobStore, key string) (path string, cleanup func(), err error) {
	if fs, ok := store.(*FileStorage); ok {
		p, err := fs.Path(key)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return "", nil, ErrBlobNotFound
		}
		return p, func() {}, nil
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "bookhaven-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
