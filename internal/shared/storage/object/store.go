package object

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Store saves and serves binary objects under caller-chosen keys.
type Store interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a location the object can be fetched from. When downloadName
	// is set, the location asks clients to save the object under that name
	// where the backend supports it.
	URL(ctx context.Context, key string, downloadName string) (string, error)
}
