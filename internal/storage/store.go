// Package storage persists uploaded documents, screenshots and reports
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/labmate/labmate/config"
)

// ErrNotExist is returned by Open when nothing is stored under the key
var ErrNotExist = errors.New("storage: object does not exist")

// Store is an artifact store addressed by slash separated keys. Put is
// write-once: storing an existing key keeps the first object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Linker is implemented by stores that can hand out download links
type Linker interface {
	Link(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New builds the store selected by cfg.Backend
func New(ctx context.Context, cfg config.ArtifactConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendFile:
		return NewFileStore(cfg.Dir)
	case config.BackendGCS:
		return NewGCSStore(ctx, cfg.GCSBucket)
	case config.BackendS3:
		return NewS3Store(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// PutFile stores the local file at src under key
func PutFile(ctx context.Context, s Store, key, src, contentType string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", src, err)
	}
	defer f.Close()
	return s.Put(ctx, key, f, contentType)
}

// Fetch copies the object at key into dir and returns the local path
func Fetch(ctx context.Context, s Store, key, dir string) (string, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dst := filepath.Join(dir, path.Base(key))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("storage: create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("storage: copy %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// ContentTypeFor guesses the content type of a stored artifact from its key
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// sanitizeKey normalizes a key and prevents escaping the storage root
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
