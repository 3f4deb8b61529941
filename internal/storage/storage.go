package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/profilehub/apiserver/config"
)

// DefaultPresignExpiry bounds how long an upload grant stays usable.
const DefaultPresignExpiry = 15 * time.Minute

// ErrObjectNotFound reports a key with no stored object behind it. Backends
// map their native not-found responses to this sentinel.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignPut returns a URL a client can PUT the object to directly.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	// PublicURL returns the backend's externally addressable URL for a key.
	PublicURL(key string) string
	Bucket() string
}

// NewBackend selects and constructs an object store backend from config.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Storage wraps an ObjectStorage backend with a stable API. An optional
// public base URL overrides the backend-derived object address, for setups
// serving objects through a CDN or reverse proxy.
type Storage struct {
	backend    ObjectStorage
	publicBase string
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage, publicBase string) *Storage {
	return &Storage{
		backend:    backend,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// PresignPut returns a time-bounded URL granting a direct upload of key.
func (s *Storage) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return s.backend.PresignPut(ctx, key, contentType, expiry)
}

// PublicURL returns the externally addressable URL for a stored object.
func (s *Storage) PublicURL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return s.backend.PublicURL(key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
