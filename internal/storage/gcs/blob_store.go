// Package gcs delivers harvest archives to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Config captures the parameters required to upload archives to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "harvests/".
	Prefix string
	// CacheControl is set on uploaded objects. Empty means "no-cache".
	CacheControl string
}

// BlobStore writes archives to a configured bucket. Uploads carry a CRC32C
// checksum so GCS rejects a corrupted transfer.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	prefix       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	cc := cfg.CacheControl
	if cc == "" {
		cc = "no-cache"
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       strings.Trim(cfg.Prefix, "/"),
		cacheControl: cc,
	}, nil
}

// ObjectName resolves the object key for name under the configured prefix.
func (s *BlobStore) ObjectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// PutObject uploads the archive and returns its gs:// URI. The body is read
// fully first because the checksum must be known before the first write.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	if r == nil {
		return "", errors.New("body is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}

	object := s.ObjectName(name)
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	attrs := s.objectAttrs(object, contentType, data)
	w.ContentType = attrs.ContentType
	w.CacheControl = attrs.CacheControl
	w.ContentDisposition = attrs.ContentDisposition
	w.CRC32C = attrs.CRC32C
	w.Metadata = attrs.Metadata
	w.SendCRC32C = true

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		// Closing after a failed copy surfaces the upload error, if any.
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("upload %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func (s *BlobStore) objectAttrs(object, contentType string, data []byte) storage.ObjectAttrs {
	if contentType == "" {
		contentType = "application/zip"
	}
	return storage.ObjectAttrs{
		Name:               object,
		ContentType:        contentType,
		CacheControl:       s.cacheControl,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(object)),
		CRC32C:             crc32.Checksum(data, castagnoli),
		Metadata:           map[string]string{"generator": "spa-harvester"},
	}
}
