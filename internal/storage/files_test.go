package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("plain text book")
	require.NoError(t, fs.Put(ctx, "book-1.txt", bytes.NewReader(content), int64(len(content)), "text/plain"))

	rc, err := fs.Open(ctx, "book-1.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, content, data)

	require.NoError(t, fs.Delete(ctx, "book-1.txt"))
	_, err = fs.Open(ctx, "book-1.txt")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// Deleting twice is fine
	assert.NoError(t, fs.Delete(ctx, "book-1.txt"))
}

func TestFileStorage_RejectsTraversal(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "a/b.txt", "..", ".hidden"} {
		_, err := fs.Path(key)
		assert.Error(t, err, key)
	}
}

type memoryBlobs struct {
	data map[string][]byte
}

func (m *memoryBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memoryBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryBlobs) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()

	t.Run("file storage uses the stored file", func(t *testing.T) {
		fs, err := NewFileStorage(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, fs.Put(ctx, "b.txt", bytes.NewReader([]byte("hi")), 2, "text/plain"))

		path, cleanup, err := LocalCopy(ctx, fs, "b.txt")
		require.NoError(t, err)
		cleanup()

		expected, _ := fs.Path("b.txt")
		assert.Equal(t, expected, path)
		_, err = os.Stat(path)
		assert.NoError(t, err)

		_, _, err = LocalCopy(ctx, fs, "missing.txt")
		assert.ErrorIs(t, err, ErrBlobNotFound)
	})

	t.Run("other stores are copied to a temp file", func(t *testing.T) {
		store := &memoryBlobs{data: map[string][]byte{"b.pdf": []byte("%PDF-1.4")}}

		path, cleanup, err := LocalCopy(ctx, store, "b.pdf")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(data))

		cleanup()
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		_, _, err = LocalCopy(ctx, store, "missing.pdf")
		assert.ErrorIs(t, err, ErrBlobNotFound)
	})
}
