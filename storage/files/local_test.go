package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/board"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "a.txt", "text/plain", strings.NewReader("hello")))
	assert.Error(t, store.Save(ctx, "a.txt", "text/plain", strings.NewReader("again")), "keys are never overwritten")

	f, err := store.Open(ctx, "a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "a.txt"))
	_, err = store.Open(ctx, "a.txt")
	assert.Equal(t, board.ErrFileMissing, err)
	assert.Equal(t, board.ErrFileMissing, store.Delete(ctx, "a.txt"))

	for _, key := range []string{"", "../escape.txt", "sub/dir.txt", ".hidden"} {
		assert.Error(t, store.Save(ctx, key, "text/plain", strings.NewReader("x")), key)
	}
}
