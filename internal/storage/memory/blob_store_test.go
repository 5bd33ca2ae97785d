package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBlobStorePutObjectCopiesData keeps stored content independent of callers.
func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/bundle.zip", "application/zip", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://path/bundle.zip", uri)

	payload[0] = 'C'
	obj, ok := store.Get("path/bundle.zip")
	require.True(t, ok)
	require.Equal(t, "content", string(obj.Data))
	require.Equal(t, "application/zip", obj.ContentType)

	obj.Data[0] = 'X'
	again, _ := store.Get("path/bundle.zip")
	require.Equal(t, "content", string(again.Data))
}

// TestBlobStoreKeys lists paths sorted and rejects empty paths.
func TestBlobStoreKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.zip", "a.zip"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a.zip", "b.zip"}, store.Keys())

	_, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
	_, ok := store.Get("missing.zip")
	require.False(t, ok)
}
