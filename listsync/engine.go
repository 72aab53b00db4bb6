package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"chatshell/fsutil"
)

// DefaultTimeout bounds a single remote fetch.
const DefaultTimeout = 20 * time.Second

// maxPayload caps the size of a fetched list.
const maxPayload = 32 << 20

// Engine synchronizes list files. Syncs for different names run
// independently; syncs for the same name never overlap, and identical
// requests issued while one is pending share its result.
type Engine struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	paths map[string]string
	locks map[string]*sync.Mutex
	group singleflight.Group

	hookMu sync.Mutex
	hooks  []func(name string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		paths:   make(map[string]string),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "listsync")
	return e
}

// OnSynced registers fn to run after a list file has been replaced by a
// successful sync.
func (e *Engine) OnSynced(fn func(name string)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Register records where a list is stored so Read can find it by name.
func (e *Engine) Register(name, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths[name] = path
}

// Ensure registers req and creates an empty list file if none exists, so
// readers never block on or fail at a missing file.
func (e *Engine) Ensure(req Request) error {
	e.Register(req.Name, req.Path)

	lock := e.lockFor(req.Name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(req.Path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	e.logger.Info("creating empty list", "list", req.Name, "path", req.Path)
	return fsutil.AtomicWriteFile(req.Path, []byte("[]\n"), 0o644)
}

// Read returns the stored list without touching the network. A missing file
// yields an empty resource and an error wrapping ErrLocalMissing.
func (e *Engine) Read(name string) (Resource, error) {
	e.mu.Lock()
	path, ok := e.paths[name]
	e.mu.Unlock()
	if !ok {
		return Resource{Name: name, Entries: []json.RawMessage{}}, fmt.Errorf("%w: %s is not registered", ErrLocalMissing, name)
	}
	return readFile(name, path)
}

func readFile(name, path string) (Resource, error) {
	res := Resource{Name: name, Path: path, Entries: []json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, fmt.Errorf("%w: %s", ErrLocalMissing, path)
		}
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrLocalMissing, path, err)
	}
	res.Entries = entries
	if fi, err := os.Stat(path); err == nil {
		res.UpdatedAt = fi.ModTime()
	}
	return res, nil
}

// Sync refreshes the list described by req. Without a URL it is a local
// Read. With a URL the payload is fetched, validated, optionally merged and
// written atomically. On any failure the stored resource (or an empty one)
// is returned together with an error wrapping ErrNetworkUnavailable or
// ErrPayloadInvalid, and the file is left as it was.
func (e *Engine) Sync(ctx context.Context, req Request) (Resource, error) {
	e.Register(req.Name, req.Path)
	if req.URL == "" {
		res, err := readFile(req.Name, req.Path)
		if errors.Is(err, ErrLocalMissing) {
			err = nil
		}
		return res, err
	}

	// The shared fetch outlives any one caller's cancellation; fetch bounds
	// it with the engine timeout. Each caller stops waiting on its own ctx.
	ch := e.group.DoChan(requestKey(req), func() (any, error) {
		return e.syncLocked(context.WithoutCancel(ctx), req)
	})
	select {
	case r := <-ch:
		if r.Shared {
			e.logger.Debug("sync coalesced", "list", req.Name)
		}
		res := r.Val.(Resource)
		res.Entries = slices.Clone(res.Entries)
		return res, r.Err
	case <-ctx.Done():
		res, _ := readFile(req.Name, req.Path)
		res.Source = req.URL
		return res, fmt.Errorf("%w: %v", ErrNetworkUnavailable, ctx.Err())
	}
}

func (e *Engine) syncLocked(ctx context.Context, req Request) (Resource, error) {
	lock := e.lockFor(req.Name)
	lock.Lock()
	defer lock.Unlock()

	prev, prevErr := readFile(req.Name, req.Path)
	prev.Source = req.URL

	entries, err := e.fetch(ctx, req)
	if err != nil {
		e.logger.Warn("sync failed, keeping local copy", "list", req.Name, "url", req.URL, "error", err)
		return prev, err
	}

	if req.MergeKey != "" && prevErr == nil {
		merged, err := mergeEntries(prev.Entries, entries, req.MergeKey)
		if err != nil {
			err = fmt.Errorf("%w: merge: %v", ErrPayloadInvalid, err)
			e.logger.Warn("sync failed, keeping local copy", "list", req.Name, "error", err)
			return prev, err
		}
		entries = merged
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return prev, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if err := fsutil.AtomicWriteFile(req.Path, append(data, '\n'), 0o644); err != nil {
		e.logger.Error("list write failed", "list", req.Name, "path", req.Path, "error", err)
		return prev, fmt.Errorf("write %s: %w", req.Path, err)
	}

	e.logger.Info("list synced", "list", req.Name, "entries", len(entries))
	e.notify(req.Name)

	res, err := readFile(req.Name, req.Path)
	res.Source = req.URL
	return res, err
}

func (e *Engine) fetch(ctx context.Context, req Request) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrNetworkUnavailable, req.URL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetworkUnavailable, err)
	}
	if len(body) > maxPayload {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrPayloadInvalid, maxPayload)
	}

	var entries []json.RawMessage
	switch req.format() {
	case FormatCSV:
		entries, err = decodeCSV(body)
	case FormatJSON:
		entries, err = decodeEntries(body)
	default:
		err = fmt.Errorf("unknown format %q", req.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return entries, nil
}

// Result is the outcome of one sync within SyncAll.
type Result struct {
	Resource Resource
	Err      error
}

// SyncAll syncs every request concurrently and calls done once per request
// as each completes. It returns when all have completed or ctx is done.
func (e *Engine) SyncAll(ctx context.Context, reqs []Request, done func(name string, r Result)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, req := range reqs {
		g.Go(func() error {
			res, err := e.Sync(ctx, req)
			if done != nil {
				done(req.Name, Result{Resource: res, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) lockFor(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	return l
}

func (e *Engine) notify(name string) {
	e.hookMu.Lock()
	hooks := slices.Clone(e.hooks)
	e.hookMu.Unlock()
	for _, fn := range hooks {
		fn(name)
	}
}

// requestKey identifies requests that may share one fetch.
func requestKey(req Request) string {
	var b strings.Builder
	b.WriteString(req.Name)
	b.WriteByte('\x00')
	b.WriteString(req.Path)
	b.WriteByte('\x00')
	b.WriteString(req.URL)
	b.WriteByte('\x00')
	b.WriteString(req.format())
	b.WriteByte('\x00')
	b.WriteString(req.MergeKey)
	for _, k := range slices.Sorted(maps.Keys(req.Header)) {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Header[k])
	}
	return b.String()
}
