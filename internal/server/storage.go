package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"trolley/internal/api"
	"trolley/internal/backend"
)

// diskStore keeps uploaded objects under <root>/<bucket>/<path>.
type diskStore struct {
	root string
}

func newDiskStore(root string) *diskStore {
	return &diskStore{root: root}
}

func (d *diskStore) objectPath(bucket, path string) (string, error) {
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	root := filepath.Join(d.root, bucket)
	full := filepath.Join(root, filepath.FromSlash(path))
	if full == root || !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return full, nil
}

func (d *diskStore) save(bucket, path string, r io.Reader) error {
	full, err := d.objectPath(bucket, path)
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

func (s *Server) handleUpload(c *gin.Context) {
	bucket := c.Param("bucket")
	path := strings.TrimPrefix(c.Param("path"), "/")

	// Media objects live under <listID>/<file>; only members of that
	// list may write there.
	if bucket == backend.MediaBucket {
		listID, _, ok := strings.Cut(path, "/")
		if !ok || listID == "" {
			abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "media path must start with a list id")
			return
		}
		if !s.requireMember(c, listID) {
			return
		}
	}
	body := io.Reader(c.Request.Body)
	if s.cfg.MaxUploadMB > 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.cfg.MaxUploadMB)<<20)
	}
	if err := s.files.save(bucket, path, body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			abortError(c, http.StatusRequestEntityTooLarge, api.CodeInvalidRequest,
				fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return
		}
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, api.UploadResponse{Data: api.UploadResult{
		Path:      path,
		PublicURL: s.publicURL(bucket, path),
	}})
}

// handleServeObject serves stored objects without auth. Media URLs end
// up in list fields that render in any member's client.
func (s *Server) handleServeObject(c *gin.Context) {
	bucket := c.Param("bucket")
	path := strings.TrimPrefix(c.Param("path"), "/")
	full, err := s.files.objectPath(bucket, path)
	if err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	if _, err := os.Stat(full); err != nil {
		abortError(c, http.StatusNotFound, api.CodeNotFound, "object not found")
		return
	}
	c.File(full)
}

func (s *Server) publicURL(bucket, path string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return base + "/storage/" + bucket + "/" + path
}
