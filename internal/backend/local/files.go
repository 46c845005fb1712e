package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Upload writes an object under <dir>/files/<bucket>/<path>. Paths are
// confined to the bucket directory.
func (b *Backend) Upload(ctx context.Context, bucket, path string, r io.Reader) error {
	full, err := b.objectPath(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return err
	}
	return f.Close()
}

// PublicURL returns a file:// URL for a stored object.
func (b *Backend) PublicURL(bucket, path string) string {
	full, err := b.objectPath(bucket, path)
	if err != nil {
		return ""
	}
	return "file://" + full
}

func (b *Backend) objectPath(bucket, path string) (string, error) {
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	root := filepath.Join(b.dir, "files", bucket)
	full := filepath.Join(root, filepath.FromSlash(path))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return full, nil
}
