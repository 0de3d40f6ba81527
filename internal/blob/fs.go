package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// fsStore keeps objects as plain files under a bucket directory.
type fsStore struct {
	root string
}

func newFSStore(dataDir, bucket string) (*fsStore, error) {
	root := filepath.Join(dataDir, bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket directory: %w", err)
	}
	return &fsStore{root: root}, nil
}

func (s *fsStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = sanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}

	path := filepath.Join(s.root, key)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating object %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing object %s: %w", key, err)
	}
	return "file://" + path, nil
}

func (s *fsStore) List(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing bucket: %w", err)
	}

	var objects []Object
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{
			Key:      e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return objects, nil
}

// sanitizeKey strips path separators so a key cannot escape the bucket.
func sanitizeKey(key string) string {
	key = filepath.Base(strings.TrimSpace(key))
	if key == "." || key == string(filepath.Separator) {
		return ""
	}
	return key
}
