package filestore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long a path must stay quiet before Watch reports it.
const DefaultDebounce = 500 * time.Millisecond

// Watch reports keys created or rewritten in bucket until ctx is canceled.
// Subdirectories are watched as they appear, and files already inside a new
// subdirectory are reported. Sidecar and temp files are ignored, and each key
// is reported once per burst of writes.
func (s *Store) Watch(ctx context.Context, bucket string, debounce time.Duration, fn func(key string)) error {
	base, err := s.path(bucket, "_")
	if err != nil {
		return err
	}
	base = filepath.Dir(base)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, base, nil); err != nil {
		return err
	}
	log.Info().Str("dir", base).Msg("Watching bucket directory")

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(name string) {
		key, ok := objectKey(base, name)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if t, exists := pending[key]; exists {
			t.Stop()
		}
		pending[key] = time.AfterFunc(debounce, func() {
			mu.Lock()
			delete(pending, key)
			mu.Unlock()
			if ctx.Err() == nil {
				fn(key)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				// Files can land before the directory is watched.
				if err := addTree(w, event.Name, schedule); err != nil {
					log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
				}
				continue
			}
			schedule(event.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// objectKey maps a file path under base to its key. Sidecars and dotfiles
// (including in-flight temp files) are not objects.
func objectKey(base, name string) (string, bool) {
	rel, err := filepath.Rel(base, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	if strings.HasSuffix(rel, contentTypeSuffix) || strings.HasPrefix(filepath.Base(rel), ".") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree watches root and every directory below it. If onFile is set it is
// called with each regular file found.
func addTree(w *fsnotify.Watcher, root string, onFile func(path string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if onFile != nil && d.Type().IsRegular() {
				onFile(p)
			}
			return nil
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
