package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestPutThenGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, "dst", "nested/thumbnail-cat.jpg", []byte("thumb"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	obj, err := s.Get(ctx, "dst", "nested/thumbnail-cat.jpg")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Data) != "thumb" {
		t.Errorf("Data = %q, want thumb", obj.Data)
	}
	if obj.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", obj.ContentType)
	}
}

func TestGet_ContentTypeFromExtension(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "dog.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	obj, err := New(root).Get(context.Background(), "src", "dog.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", obj.ContentType)
	}
}

func TestGet_SidecarOverridesExtension(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, "b", "photo.png", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	obj, err := s.Get(ctx, "b", "photo.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if obj.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want the stored image/jpeg", obj.ContentType)
	}
}

func TestGet_Missing(t *testing.T) {
	_, err := New(t.TempDir()).Get(context.Background(), "src", "nope.jpg")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Get() error = %v, want fs.ErrNotExist", err)
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	for _, body := range []string{"first", "second"} {
		if err := s.Put(ctx, "b", "k", []byte(body), "text/plain"); err != nil {
			t.Fatalf("Put(%s) error = %v", body, err)
		}
	}
	obj, err := s.Get(ctx, "b", "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Data) != "second" {
		t.Errorf("Data = %q, want second", obj.Data)
	}
}

func TestPath_RejectsEscapes(t *testing.T) {
	s := New(t.TempDir())
	tests := []struct{ bucket, key string }{
		{"b", "../outside"},
		{"b", "a/../../outside"},
		{"b", ""},
		{"", "k"},
		{"..", "k"},
		{"a/b", "k"},
	}
	for _, tt := range tests {
		if _, err := s.path(tt.bucket, tt.key); err == nil {
			t.Errorf("path(%q, %q) succeeded, want error", tt.bucket, tt.key)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(t.TempDir())
	if err := s.Put(ctx, "b", "k", []byte("x"), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, err := s.Get(ctx, "b", "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}
