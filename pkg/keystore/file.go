package keystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/telemetry/events"
)

// DefaultDebounce is the quiet period after a file event before reloading.
const DefaultDebounce = 100 * time.Millisecond

// keyFile is the on-disk layout of a key file:
//
//	keys:
//	  - key: "$2b$10$..."
//	    user: alice
//	    environments: ["prod"]
//	    origins: ["https://app.example.com"]
type keyFile struct {
	Keys []*auth.KeyRecord `yaml:"keys"`
}

// FileStore serves key records loaded from a YAML file.
type FileStore struct {
	*MemoryStore

	path     string
	debounce time.Duration
	observer events.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithDebounce sets the reload debounce interval.
func WithDebounce(d time.Duration) FileStoreOption {
	return func(s *FileStore) { s.debounce = d }
}

// WithObserver sets where reload failures are reported.
func WithObserver(o events.Observer) FileStoreOption {
	return func(s *FileStore) { s.observer = o }
}

// NewFileStore loads path and returns a store serving its records.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	logger := slog.Default().With("component", "keystore.file")
	s := &FileStore{
		MemoryStore: NewMemoryStore(nil),
		path:        path,
		debounce:    DefaultDebounce,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observer == nil {
		s.observer = events.NewLogObserver(logger)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the key file path.
func (s *FileStore) Path() string {
	return s.path
}

// Reload reads the key file and swaps in its records. On error the
// previous records stay in place.
func (s *FileStore) Reload() error {
	records, err := readKeyFile(s.path)
	if err != nil {
		return err
	}
	s.Replace(records)
	s.logger.Info("key file loaded", "path", s.path, "keys", s.Len())
	return nil
}

func readKeyFile(path string) ([]*auth.KeyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	var kf keyFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}

	for i, rec := range kf.Keys {
		if rec == nil || rec.Key == "" {
			return nil, fmt.Errorf("key file %s: entry %d has no key", path, i)
		}
	}
	return kf.Keys, nil
}

// Watch reloads the key file whenever it changes, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	s.logger.Info("watching key file", "path", s.path, "debounce_ms", s.debounce.Milliseconds())

	defer s.stop()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			s.logger.Debug("key file event", "op", ev.Op.String())
			s.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("file watcher error", "error", err)
		}
	}
}

func (s *FileStore) scheduleReload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Reload(); err != nil {
			s.observer.Observe(ctx, events.Event{
				Kind:      events.KindKeysReloadFailed,
				Component: "keystore.file",
				Err:       err,
				Attrs:     []slog.Attr{slog.String("path", s.path)},
			})
		}
	})
}

// Close stops a running Watch.
func (s *FileStore) Close() error {
	s.stop()
	return nil
}

func (s *FileStore) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
}
