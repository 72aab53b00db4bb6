package prompt

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatshell/listsync"
	"chatshell/logging"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestParse_SkipsMalformedEntries(t *testing.T) {
	entries := raws(
		`{"title":"Translator","body":"Translate {{text}} into {{ lang }}"}`,
		`{"act":"Linux Terminal","prompt":"act as a terminal"}`,
		`{"title":"no body"}`,
		`"just a string"`,
		`{"name":"Poet","content":"write a poem about {{topic}} and {{topic}}","enable":false,"tags":["user"]}`,
		`null`,
		`{"title":"","body":"untitled"}`,
	)

	recs, skipped := Parse("notes", entries)
	require.Len(t, recs, 3)
	require.Len(t, skipped, 4)
	for _, err := range skipped {
		assert.ErrorIs(t, err, ErrParseSkipped)
	}

	assert.Equal(t, Record{
		Title: "Translator", Body: "Translate {{text}} into {{ lang }}", Cmd: "translator",
		Slots: []string{"text", "lang"}, Enabled: true, Source: "notes",
	}, recs[0])
	assert.Equal(t, "linux_terminal", recs[1].Cmd)
	assert.Empty(t, recs[1].Slots)
	assert.False(t, recs[2].Enabled)
	assert.Equal(t, []string{"topic"}, recs[2].Slots)
	assert.Equal(t, []string{"user"}, recs[2].Tags)
}

func TestParse_OneBadAmongMany(t *testing.T) {
	const n = 10
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, `{"title":"t","body":"b"}`)
		if i == n/2 {
			items = append(items, `{"title":`)
		}
	}
	recs, skipped := Parse("notes", raws(items...))
	assert.Len(t, recs, n)
	assert.Len(t, skipped, 1)
}

func TestParse_Deterministic(t *testing.T) {
	entries := raws(`{"title":"A","body":"x {{y}}"}`, `{"title":"B","body":"z"}`)
	a, _ := Parse("s", entries)
	b, _ := Parse("s", entries)
	assert.Equal(t, a, b)
}

func TestRender(t *testing.T) {
	rec := Record{Cmd: "t", Body: "Translate {{text}} into {{ lang }}", Slots: []string{"text", "lang"}}

	out, err := rec.Render(map[string]string{"text": "hello", "lang": "French"})
	require.NoError(t, err)
	assert.Equal(t, "Translate hello into French", out)

	_, err = rec.Render(map[string]string{"text": "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lang")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "linux_terminal", Slug("Linux Terminal"))
	assert.Equal(t, "a_b_c", Slug("  A -- b / C!"))
	assert.Equal(t, "", Slug("!!!"))
}

type fakeLists struct {
	mu    sync.Mutex
	data  map[string][]json.RawMessage
	reads map[string]int
}

func (f *fakeLists) Read(name string) (listsync.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reads == nil {
		f.reads = map[string]int{}
	}
	f.reads[name]++
	entries, ok := f.data[name]
	if !ok {
		return listsync.Resource{Name: name, Entries: []json.RawMessage{}}, listsync.ErrLocalMissing
	}
	return listsync.Resource{Name: name, Entries: entries}, nil
}

func (f *fakeLists) set(name string, entries []json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[name] = entries
}

func newFakeLists() *fakeLists {
	return &fakeLists{data: map[string][]json.RawMessage{
		"prompts": raws(
			`{"act":"Linux Terminal","prompt":"I want you to act as a linux terminal"}`,
			`{"act":"English Translator","prompt":"translate {{text}}"}`,
			`{"act":"Disabled","prompt":"hidden terminal","enable":false}`,
		),
		"notes": raws(`{"title":"Standup","body":"Summarize my TERMINAL history"}`),
	}}
}

func titles(seq func(func(Record) bool)) []string {
	var out []string
	seq(func(r Record) bool {
		out = append(out, r.Title)
		return true
	})
	return out
}

func TestLibrary_Search(t *testing.T) {
	lib := NewLibrary(newFakeLists(), []string{"prompts", "notes", "missing"}, logging.Discard())

	assert.Equal(t, []string{"Linux Terminal", "Standup"}, titles(lib.Search("terminal")))
	assert.Equal(t, []string{"English Translator"}, titles(lib.Search("TRANSLAT")))
	assert.Equal(t, []string{"Linux Terminal", "English Translator", "Standup"}, titles(lib.Search("")))
	assert.Empty(t, titles(lib.Search("nothing matches")))
}

func TestLibrary_SearchIsRestartableAndLazy(t *testing.T) {
	lib := NewLibrary(newFakeLists(), []string{"prompts", "notes"}, logging.Discard())
	seq := lib.Search("")

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	var n int
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLibrary_InvalidateRebuildsLazily(t *testing.T) {
	lists := newFakeLists()
	lib := NewLibrary(lists, []string{"notes"}, logging.Discard())

	assert.Equal(t, []string{"Standup"}, titles(lib.Search("")))
	assert.Equal(t, []string{"Standup"}, titles(lib.Search("")))
	assert.Equal(t, 1, lists.reads["notes"], "derivation should be cached")

	lists.set("notes", raws(`{"title":"Retro","body":"what went well"}`))
	assert.Equal(t, []string{"Standup"}, titles(lib.Search("")), "stale until invalidated")

	lib.Invalidate("notes")
	assert.Equal(t, 1, lists.reads["notes"], "invalidate must not rebuild eagerly")
	assert.Equal(t, []string{"Retro"}, titles(lib.Search("")))
	assert.Equal(t, 2, lists.reads["notes"])
}

func TestLibrary_Lookup(t *testing.T) {
	lib := NewLibrary(newFakeLists(), []string{"prompts"}, logging.Discard())

	rec, ok := lib.Lookup("english_translator")
	require.True(t, ok)
	assert.Equal(t, []string{"text"}, rec.Slots)

	_, ok = lib.Lookup("disabled")
	assert.False(t, ok)
}

func TestLibrary_SetSources(t *testing.T) {
	lib := NewLibrary(newFakeLists(), []string{"prompts"}, logging.Discard())
	lib.SetSources([]string{"notes"})
	assert.Equal(t, []string{"notes"}, lib.Sources())
	assert.Equal(t, []string{"Standup"}, titles(lib.Search("")))
}

func TestLibrary_UnreadableListIsEmpty(t *testing.T) {
	lists := &errLists{}
	lib := NewLibrary(lists, []string{"x"}, logging.Discard())
	assert.Empty(t, lib.Records())
}

type errLists struct{}

func (errLists) Read(name string) (listsync.Resource, error) {
	return listsync.Resource{Name: name}, errors.New("disk on fire")
}

// racingLists swaps its contents and invalidates the library in the middle of
// the first read, as a sync finishing during a derivation would.
type racingLists struct {
	lib   *Library
	calls int
}

func (r *racingLists) Read(name string) (listsync.Resource, error) {
	r.calls++
	if r.calls == 1 {
		r.lib.Invalidate(name)
		return listsync.Resource{Name: name, Entries: raws(`{"title":"Old","body":"old"}`)}, nil
	}
	return listsync.Resource{Name: name, Entries: raws(`{"title":"New","body":"new"}`)}, nil
}

func TestLibrary_InvalidateDuringDeriveIsNotLost(t *testing.T) {
	lists := &racingLists{}
	lib := NewLibrary(lists, []string{"notes"}, logging.Discard())
	lists.lib = lib

	assert.Equal(t, []string{"Old"}, titles(lib.Search("")))
	assert.Equal(t, []string{"New"}, titles(lib.Search("")), "derivation read before the invalidation must not be cached")
	assert.Equal(t, []string{"New"}, titles(lib.Search("")))
	assert.Equal(t, 2, lists.calls)
}
