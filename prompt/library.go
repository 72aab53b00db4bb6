package prompt

import (
	"errors"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"chatshell/listsync"
)

// ListReader is the local, non-blocking side of the list sync engine.
type ListReader interface {
	Read(name string) (listsync.Resource, error)
}

// cacheSize bounds the number of per-list derivations kept in memory.
const cacheSize = 64

// Library projects the configured lists into prompt records. Derivations are
// cached per list and rebuilt lazily after Invalidate.
type Library struct {
	lists  ListReader
	logger *slog.Logger

	mu      sync.Mutex
	sources []string
	// gens counts invalidations per list; a derivation is cached only if no
	// invalidation happened while it was being built.
	gens  map[string]uint64
	cache *lru.Cache[string, []Record]
}

// NewLibrary creates a library over the named lists, searched in order.
func NewLibrary(lists ListReader, sources []string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, []Record](cacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Library{
		lists:   lists,
		logger:  logger.With("component", "prompt"),
		sources: slices.Clone(sources),
		gens:    make(map[string]uint64),
		cache:   cache,
	}
}

// SetSources replaces the lists the library draws from.
func (l *Library) SetSources(sources []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.Equal(l.sources, sources) {
		return
	}
	l.sources = slices.Clone(sources)
}

// Sources returns the lists the library draws from.
func (l *Library) Sources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sources)
}

// Invalidate drops the derivation of list name. The next access rebuilds it.
func (l *Library) Invalidate(name string) {
	l.mu.Lock()
	l.gens[name]++
	removed := l.cache.Remove(name)
	l.mu.Unlock()
	if removed {
		l.logger.Debug("prompt index invalidated", "list", name)
	}
}

// Records returns every record from every source, enabled or not.
func (l *Library) Records() []Record {
	var out []Record
	for _, src := range l.Sources() {
		out = append(out, l.derive(src)...)
	}
	return out
}

// Lookup finds an enabled record by command name.
func (l *Library) Lookup(cmd string) (Record, bool) {
	for _, r := range l.Records() {
		if r.Enabled && r.Cmd == cmd {
			return r, true
		}
	}
	return Record{}, false
}

// Search yields the enabled records whose title or body contains query,
// ignoring case. An empty query matches everything. The sequence is computed
// from a snapshot taken when Search is called and can be ranged over any
// number of times.
func (l *Library) Search(query string) iter.Seq[Record] {
	snapshot := l.Records()
	q := strings.ToLower(strings.TrimSpace(query))
	return func(yield func(Record) bool) {
		for _, r := range snapshot {
			if !r.Enabled {
				continue
			}
			if q != "" &&
				!strings.Contains(strings.ToLower(r.Title), q) &&
				!strings.Contains(strings.ToLower(r.Body), q) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

func (l *Library) derive(name string) []Record {
	if recs, ok := l.cache.Get(name); ok {
		return recs
	}
	l.mu.Lock()
	gen := l.gens[name]
	l.mu.Unlock()

	res, err := l.lists.Read(name)
	if err != nil && !errors.Is(err, listsync.ErrLocalMissing) {
		l.logger.Warn("prompt list unreadable", "list", name, "error", err)
	}
	recs, skipped := Parse(name, res.Entries)
	for _, s := range skipped {
		l.logger.Warn("prompt entry skipped", "list", name, "error", s)
	}
	l.mu.Lock()
	if l.gens[name] == gen {
		l.cache.Add(name, recs)
	}
	l.mu.Unlock()
	return recs
}
