package conf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"chatshell/fsutil"
)

// FileName is the configuration document's file name inside the app dir.
const FileName = "chat.conf.json"

var (
	// ErrCorrupt marks an on-disk document that could not be parsed. Load
	// heals it with defaults; the error is only ever logged.
	ErrCorrupt = errors.New("config corrupt")
	// ErrWriteFailed marks a document that could not be persisted. The
	// in-memory document is left unchanged.
	ErrWriteFailed = errors.New("config write failed")
)

// Store is the single owner of the configuration document. Reads return
// copies; writes are serialized and replace the file atomically.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	cur Config

	notifyMu sync.Mutex
	hookMu   sync.Mutex
	hooks    []func(old, new Config)
}

// Open creates a store for path and loads it. It never fails: see Load.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "conf"),
		cur:    Default(),
	}
	s.Load()
	return s
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load reads the persisted document. A missing or unparsable file is replaced
// by defaults, which are written back immediately. Missing fields take their
// defaults and the completed document is written back, so a subsequent read
// of the file yields exactly the returned document. I/O failures degrade to
// the in-memory document with a warning.
func (s *Store) Load() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, raw, err := s.readLocked()
	if err != nil {
		s.logger.Warn("using default config", "path", s.path, "error", err)
	}

	data, merr := marshal(cfg)
	if merr == nil && !bytes.Equal(data, raw) {
		if werr := fsutil.AtomicWriteFile(s.path, data, 0o644); werr != nil {
			s.logger.Warn("config not persisted, continuing in memory", "path", s.path, "error", werr)
		}
	}

	s.cur = cfg
	return cfg.Clone()
}

// readLocked returns the healed document and the raw bytes it came from.
func (s *Store) readLocked() (Config, []byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("creating default config", "path", s.path)
			return Default(), nil, nil
		}
		return Default(), nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Default(), raw, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if cfg.normalize() {
		s.logger.Info("config repaired with defaults", "path", s.path)
	}
	return cfg, raw, nil
}

// Get returns a copy of the current document.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}

// Update applies mutate to a copy of the current document, persists the
// result atomically and makes it current. Concurrent updates are applied one
// at a time in lock order, so none is lost. mutate must not retain the
// pointer it is given.
func (s *Store) Update(mutate func(*Config)) (Config, error) {
	s.mu.Lock()
	old := s.cur.Clone()
	next := s.cur.Clone()
	mutate(&next)
	next.normalize()
	if err := s.persistLocked(next); err != nil {
		s.mu.Unlock()
		return old, err
	}
	s.cur = next
	// Taking notifyMu before releasing mu delivers hooks in commit order.
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.notify(old, next)
	s.notifyMu.Unlock()
	return next.Clone(), nil
}

// Reset replaces the document with defaults.
func (s *Store) Reset() (Config, error) {
	return s.Update(func(c *Config) { *c = Default() })
}

// OnChange registers fn to run after every successful Update or Reset.
// Hooks run on the updating goroutine, outside the store lock, one update at
// a time and in the order the updates were committed. A hook must not call
// Update or Reset.
func (s *Store) OnChange(fn func(old, new Config)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Store) notify(old, next Config) {
	s.hookMu.Lock()
	hooks := append([]func(old, new Config){}, s.hooks...)
	s.hookMu.Unlock()
	for _, fn := range hooks {
		fn(old.Clone(), next.Clone())
	}
}

func (s *Store) persistLocked(cfg Config) error {
	data, err := marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := fsutil.AtomicWriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("config write failed", "path", s.path, "error", err)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func marshal(cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
