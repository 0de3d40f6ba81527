// Package blob stores raw uploaded files. The service treats it as an
// external object store with a narrow put/list surface; indexing and querying
// never depend on it, so a missing bucket only costs durable upload copies.
package blob

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Object describes one stored upload.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is the object-storage collaborator surface.
type Store interface {
	// Put stores the reader's bytes under key and returns a URL-ish locator.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	// List enumerates stored objects.
	List(ctx context.Context) ([]Object, error)
}

// NewStore returns a filesystem-backed store rooted at dataDir/bucket, or a
// disabled no-op store when bucket is empty or the directory cannot be
// prepared. Upload handling continues either way.
func NewStore(dataDir, bucket string) Store {
	if bucket == "" {
		slog.Warn("no bucket configured, uploads will not be stored durably")
		return disabledStore{}
	}
	fs, err := newFSStore(dataDir, bucket)
	if err != nil {
		slog.Warn("object store unavailable, uploads will not be stored durably", "error", err)
		return disabledStore{}
	}
	return fs
}

// disabledStore accepts every call and stores nothing.
type disabledStore struct{}

func (disabledStore) Put(context.Context, string, io.Reader) (string, error) {
	return "", nil
}

func (disabledStore) List(context.Context) ([]Object, error) {
	return nil, nil
}
