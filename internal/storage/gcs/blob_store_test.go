package gcs

import (
	"context"
	"hash/crc32"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// TestNewValidatesConfig requires a client and bucket.
func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b", Prefix: "/harvests/"})
	require.NoError(t, err)
	require.Equal(t, "harvests/bundle-2026-01-02.zip", store.ObjectName("bundle-2026-01-02.zip"))

	bare, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "bundle.zip", bare.ObjectName("bundle.zip"))

	_, err = bare.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}

// TestObjectAttrsDescribeArchive sets the download name, checksum, and defaults.
func TestObjectAttrsDescribeArchive(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "b", Prefix: "harvests"})
	require.NoError(t, err)

	data := []byte("PK\x05\x06")
	attrs := store.objectAttrs(store.ObjectName("whatsapp-resources-2024-05-01.zip"), "", data)
	require.Equal(t, "harvests/whatsapp-resources-2024-05-01.zip", attrs.Name)
	require.Equal(t, "application/zip", attrs.ContentType)
	require.Equal(t, "no-cache", attrs.CacheControl)
	require.Equal(t, `attachment; filename="whatsapp-resources-2024-05-01.zip"`, attrs.ContentDisposition)
	require.Equal(t, crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)), attrs.CRC32C)

	custom, err := New(client, Config{Bucket: "b", CacheControl: "private, max-age=60"})
	require.NoError(t, err)
	require.Equal(t, "private, max-age=60", custom.objectAttrs("a.zip", "application/octet-stream", nil).CacheControl)
}

// TestPutObjectRequiresBody rejects a nil reader before touching the bucket.
func TestPutObjectRequiresBody(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.zip", "application/zip", nil)
	require.ErrorContains(t, err, "body is required")
}
