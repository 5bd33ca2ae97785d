package harvest

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a single resource. Non-2xx responses are returned as a
// Response rather than an error so callers can surface the status.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// LoaderRegistry is the late-arriving module registry installed by the host page.
type LoaderRegistry interface {
	// Snapshot returns the registry's current URL to opaque-id mapping.
	Snapshot(ctx context.Context) (map[string]string, error)
}

// RegistryProbe checks whether the loader registry is installed yet. A false
// result with a nil error means "not yet" and is retryable.
type RegistryProbe interface {
	Probe(ctx context.Context) (LoaderRegistry, bool, error)
}

// DocumentSource returns the serialized DOM of the loaded application page.
type DocumentSource interface {
	HTML(ctx context.Context) (string, error)
}

// Scanner discovers resources. includeStatic=false runs only the volatile source.
type Scanner interface {
	Scan(ctx context.Context, includeStatic bool) ([]string, error)
}

// Formatter reformats fetched source text.
type Formatter interface {
	Format(ctx context.Context, code string, opts FormatOptions) (string, error)
}

// ArchiveBuilder accumulates entries in any order and serializes them once.
type ArchiveBuilder interface {
	AddEntry(name string, data []byte) error
	Finalize() ([]byte, error)
}

// Reporter receives run events. Calls must not block the caller.
type Reporter interface {
	Progress(current, total, success, errors int, message string)
	FileStatus(url, displayName string, phase Phase)
	Completion(total, success, errors int)
	Error(message string)
}

// BlobStore writes the finished artifact and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// RateLimiter throttles outbound fetches per host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for integrity records.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
