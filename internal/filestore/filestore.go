// Package filestore is an object store over a local directory tree. Each
// bucket is a subdirectory of the root and keys map to relative paths, so
// "photos/cat.jpg" in bucket "src" lives at <root>/src/photos/cat.jpg.
//
// The content type of a stored object is kept in a sidecar file next to it
// (<name>.content-type). Objects without a sidecar report the type implied
// by their extension.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

const contentTypeSuffix = ".content-type"

// Store implements thumbnail.Store on the local filesystem.
type Store struct {
	root string
}

var _ thumbnail.Store = (*Store)(nil)

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// path resolves bucket/key under the root and rejects keys that escape it.
func (s *Store) path(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	base := filepath.Join(s.root, bucket)
	p := filepath.Join(base, filepath.FromSlash(key))
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("key %q escapes bucket %q", key, bucket)
	}
	return p, nil
}

// Get reads the object and its content type.
func (s *Store) Get(ctx context.Context, bucket, key string) (*thumbnail.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(p))
	if ct, err := os.ReadFile(p + contentTypeSuffix); err == nil {
		contentType = strings.TrimSpace(string(ct))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read content type: %w", err)
	}

	log.Debug().Str("path", p).Int("bytes", len(data)).Msg("Read object from disk")
	return &thumbnail.Object{Data: data, ContentType: contentType}, nil
}

// Put writes the object, creating parent directories as needed, and records
// contentType in the sidecar file.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := writeFileAtomic(p, data); err != nil {
		return fmt.Errorf("write object: %w", err)
	}

	sidecar := p + contentTypeSuffix
	if contentType == "" {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove content type: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(sidecar, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("write content type: %w", err)
	}
	return nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place so readers never see a partial object.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
