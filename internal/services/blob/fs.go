package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

// FS is a BlobStore rooted at a local directory. Buckets map to
// subdirectories.
type FS struct {
	root string
}

// NewFS returns a filesystem store rooted at dir.
func NewFS(dir string) (*FS, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "fs", "storage dir required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FS{root: dir}, nil
}

func (f *FS) objectPath(bucket, key string) (string, error) {
	cleanKey := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(cleanKey) || cleanKey == "." || strings.HasPrefix(cleanKey, "..") {
		return "", services.Wrap(services.ErrValidation, "blob", "fs", fmt.Sprintf("invalid object key %q", key), nil)
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", services.Wrap(services.ErrValidation, "blob", "fs", fmt.Sprintf("invalid bucket %q", bucket), nil)
	}
	return filepath.Join(f.root, bucket, cleanKey), nil
}

// Put writes body to a temporary file beside the target and renames it into
// place so readers never observe a partial object.
func (f *FS) Put(ctx context.Context, bucket, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("rename object: %w", err)
	}
	return nil
}

// PresignedGet returns a file URL. Local files have no expiry, so ttl is
// ignored.
func (f *FS) PresignedGet(ctx context.Context, bucket, key string, _ time.Duration) (string, error) {
	if _, err := f.Stat(ctx, bucket, key); err != nil {
		return "", err
	}
	target, err := f.objectPath(bucket, key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve object path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Stat reports object metadata. The content type is derived from the key's
// extension.
func (f *FS) Stat(_ context.Context, bucket, key string) (ports.ObjectInfo, error) {
	target, err := f.objectPath(bucket, key)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.ObjectInfo{}, services.Wrap(services.ErrNotFound, "blob", "stat", key, err)
		}
		return ports.ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		return ports.ObjectInfo{}, services.Wrap(services.ErrNotFound, "blob", "stat", key+" is a directory", nil)
	}
	return ports.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ContentType:  contentTypeFor(target),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes key. Deleting a missing object succeeds.
func (f *FS) Delete(_ context.Context, bucket, key string) error {
	target, err := f.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".mp3" {
		return "audio/mpeg"
	}
	if value := mime.TypeByExtension(ext); value != "" {
		return value
	}
	return "application/octet-stream"
}
