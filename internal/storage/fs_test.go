package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("documents/a.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "documents/a.pdf", key)

	rc, err := s.Get(key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	u, err := s.URL(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/documents/a.pdf"))
}

func TestFSStore_RejectsBadKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put("", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	// Traversal is clamped to the base directory.
	key, err := s.Put("../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	rc, err := s.Get(key)
	require.NoError(t, err)
	rc.Close()
}
