// Package archive builds the ZIP artifact that bundles harvested resources.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ErrFinalized is returned when entries are added after Finalize.
var ErrFinalized = errors.New("archive already finalized")

// Builder collects entries in any order and writes them out sorted by name,
// so the same inputs always produce the same bytes. Safe for concurrent use.
type Builder struct {
	mu        sync.Mutex
	entries   map[string][]byte
	modified  time.Time
	level     int
	finalized bool
}

// Option customizes a Builder.
type Option func(*Builder)

// WithModified stamps every entry with t instead of the zero DOS time.
func WithModified(t time.Time) Option {
	return func(b *Builder) { b.modified = t }
}

// WithLevel sets the DEFLATE level (flate.BestSpeed..flate.BestCompression).
func WithLevel(level int) Option {
	return func(b *Builder) { b.level = level }
}

// NewBuilder returns an empty builder using best compression by default.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		entries:  make(map[string][]byte),
		modified: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		level:    flate.BestCompression,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddEntry stores a copy of data under name. Names must be unique.
func (b *Builder) AddEntry(name string, data []byte) error {
	if name == "" {
		return errors.New("archive entry name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return ErrFinalized
	}
	if _, exists := b.entries[name]; exists {
		return fmt.Errorf("duplicate archive entry %q", name)
	}
	b.entries[name] = append([]byte(nil), data...)
	return nil
}

// Len reports how many entries have been added.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Finalize serializes the archive. The builder accepts no entries afterwards.
func (b *Builder) Finalize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, ErrFinalized
	}
	b.finalized = true

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := b.level
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: b.modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", name, err)
		}
		if _, err := w.Write(b.entries[name]); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	b.entries = nil
	return buf.Bytes(), nil
}

// Name returns the dated artifact name, e.g. whatsapp-resources-2024-05-01.zip.
func Name(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s.zip", prefix, at.Format("2006-01-02"))
}
