package store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Key-value blob storage behind one cache tier. Implementations must keep
// Stat cheap (no blob transfer) and Put atomic: a concurrent reader sees
// either the whole object or [ErrNotFound], never partial content.
type Store interface {
	// Reports object metadata, or ErrNotFound.
	Stat(ctx context.Context, key string) (Info, error)

	// Opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Writes the object. Size is the exact byte count of r; a negative
	// size is rejected so backends never buffer unbounded input.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Lists keys under the prefix, relative to the store root.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Object metadata returned by Stat.
type Info struct {
	Key  string
	Size int64
}

// Connection settings for S3-compatible backends, shared by every s3://
// tier. Filled from environment configuration by the caller.
type Config struct {
	Endpoint  string `env:"ENDPOINT"` // Host:port, no scheme.
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Region    string `env:"REGION"`
	UseSSL    bool   `env:"USE_SSL"`
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrStore)
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("%w: endpoint must not include a scheme: %q", ErrStore, c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: credentials are required", ErrStore)
	}
	return nil
}

// Opens the store behind a tier URL. Consumers that probe or publish across
// tiers take an Opener instead of a concrete backend, which keeps them
// testable against file:// fixtures.
type Opener func(tierURL string) (Store, error)

// Binds connection settings once, yielding an Opener for tier URLs.
func NewOpener(cfg Config) Opener {
	return func(tierURL string) (Store, error) {
		return Open(tierURL, cfg)
	}
}

// Opens the store behind a tier URL. The scheme selects the backend:
// s3:// for object storage, file:// for the local filesystem.
func Open(tierURL string, cfg Config) (Store, error) {
	u, err := url.Parse(tierURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	switch u.Scheme {
	case "s3":
		prefix := strings.Trim(u.Path, "/")
		return newS3Store(cfg, u.Host, prefix)
	case "file":
		return newFSStore(u.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
}
