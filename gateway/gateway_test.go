package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatshell/conf"
	"chatshell/listsync"
	"chatshell/logging"
	"chatshell/prompt"
	"chatshell/update"
	"chatshell/window"
)

type fakeWindows struct {
	mu     sync.Mutex
	events []window.Event
	err    error
}

func (f *fakeWindows) Send(_ context.Context, ev window.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

type fixture struct {
	gw     *Gateway
	env    conf.Env
	store  *conf.Store
	lists  *listsync.Engine
	links  []string
	window *fakeWindows
}

func newFixture(t *testing.T, withWindows bool) *fixture {
	t.Helper()
	env := conf.Env{Home: t.TempDir()}
	store := conf.Open(env.ConfigPath(), logging.Discard())
	engine := listsync.New(listsync.WithLogger(logging.Discard()), listsync.WithTimeout(2*time.Second))
	for _, req := range listsync.Requests(env, store.Get()) {
		engine.Register(req.Name, req.Path)
	}
	lib := prompt.NewLibrary(engine, store.Get().PromptLists, logging.Discard())
	engine.OnSynced(lib.Invalidate)

	f := &fixture{env: env, store: store, lists: engine}
	deps := Deps{
		Config:  store,
		Env:     env,
		Lists:   engine,
		Prompts: lib,
		OpenURL: func(u string) error { f.links = append(f.links, u); return nil },
		Logger:  logging.Discard(),
	}
	if withWindows {
		f.window = &fakeWindows{}
		deps.Windows = f.window
	}
	f.gw = New(deps)
	return f
}

func (f *fixture) invoke(t *testing.T, cmd string, args string) (any, error) {
	t.Helper()
	return f.gw.Invoke(context.Background(), cmd, json.RawMessage(args))
}

func TestInvoke_UnknownCommand(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.invoke(t, "format_disk", "")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestInvoke_BadArgs(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.invoke(t, "set_theme", `{"theme":42}`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestConfigCommands(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.invoke(t, "get_config", "")
	require.NoError(t, err)
	assert.Equal(t, conf.ThemeSystem, res.(conf.Config).Theme)

	res, err = f.invoke(t, "set_theme", `{"theme":"Dark"}`)
	require.NoError(t, err)
	assert.Equal(t, conf.ThemeDark, res.(conf.Config).Theme)
	assert.Equal(t, conf.ThemeDark, conf.Open(f.env.ConfigPath(), logging.Discard()).Get().Theme)

	_, err = f.invoke(t, "set_theme", `{"theme":"neon"}`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	assert.Equal(t, conf.ThemeDark, f.store.Get().Theme)

	res, err = f.invoke(t, "toggle_tray", `{"enabled":false}`)
	require.NoError(t, err)
	assert.False(t, res.(conf.Config).Tray)

	res, err = f.invoke(t, "reset_config", "")
	require.NoError(t, err)
	assert.Equal(t, conf.Default(), res.(conf.Config))
}

func TestConfigWriteFailureSurfaces(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := conf.Open(filepath.Join(blocker, conf.FileName), logging.Discard())
	gw := New(Deps{Config: store, Logger: logging.Discard()})

	_, err := gw.SetTheme("light")
	require.ErrorIs(t, err, conf.ErrWriteFailed)
	assert.Equal(t, conf.ThemeSystem, gw.GetConfig().Theme)
}

func TestWindowCommands_NoController(t *testing.T) {
	f := newFixture(t, false)
	for _, cmd := range []string{"open_window", "reload_window", "drag_window", "fullscreen"} {
		_, err := f.invoke(t, cmd, `{"id":"core"}`)
		assert.ErrorIs(t, err, ErrNoWindows, cmd)
	}
}

func TestWindowCommands(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.invoke(t, "open_window", `{"id":"dalle2-search","params":{"query":"cats"}}`)
	require.NoError(t, err)
	_, err = f.invoke(t, "control_window", `{"id":"core","action":"Minimize"}`)
	require.NoError(t, err)
	_, err = f.invoke(t, "fullscreen", `{"enabled":true}`)
	require.NoError(t, err)
	_, err = f.invoke(t, "drag_window", "")
	require.NoError(t, err)

	assert.Equal(t, []window.Event{
		window.OpenRequested{ID: window.Search, Params: map[string]string{"query": "cats"}},
		window.ControlRequested{ID: window.Core, Op: window.OpMinimize},
		window.ControlRequested{ID: window.Core, Op: window.OpFullscreen},
		window.ControlRequested{ID: window.Core, Op: window.OpDrag},
	}, f.window.events)

	_, err = f.invoke(t, "control_window", `{"id":"core","action":"explode"}`)
	assert.ErrorIs(t, err, window.ErrUnknownControl)

	f.window.err = window.ErrAlreadyClosed
	_, err = f.invoke(t, "control_window", `{"id":"settings","action":"close"}`)
	assert.NoError(t, err)
}

func TestSyncList(t *testing.T) {
	fail := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"title":"Fresh","body":"from remote {{x}}"}]`))
	}))
	defer srv.Close()

	f := newFixture(t, false)
	_, err := f.store.Update(func(c *conf.Config) {
		c.Lists["notes"] = conf.ListSource{File: "chat.notes.json", URL: srv.URL}
	})
	require.NoError(t, err)
	notes := filepath.Join(f.env.Home, "chat.notes.json")
	require.NoError(t, os.WriteFile(notes, []byte(`[{"title":"Local","body":"kept"}]`), 0o644))

	assert.Len(t, f.gw.SearchPrompts("kept"), 1)

	res, err := f.gw.SyncList(context.Background(), "notes")
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, res.Resource.Entries, 1)

	mu.Lock()
	fail = false
	mu.Unlock()

	out, err := f.invoke(t, "sync_list", `{"name":"notes"}`)
	require.NoError(t, err)
	res = out.(SyncResult)
	assert.False(t, res.Stale)
	assert.Len(t, res.Resource.Entries, 1)

	recs := f.gw.SearchPrompts("remote")
	require.Len(t, recs, 1)
	assert.Equal(t, "Fresh", recs[0].Title)
	assert.Empty(t, f.gw.SearchPrompts("kept"))

	_, err = f.gw.SyncList(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownList)
}

func TestGetList(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.gw.GetList("download")
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, filepath.Join(f.env.Home, "chat.download.json"), res.Path)

	_, err = f.gw.GetList("nope")
	assert.ErrorIs(t, err, ErrUnknownList)

	out, err := f.invoke(t, "search_prompts", `{"query":"anything"}`)
	require.NoError(t, err)
	assert.Equal(t, []prompt.Record{}, out)
}

func TestFileCommands(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.gw.SaveFile("exports/chat.md", "# hello"))
	saved := filepath.Join(f.env.Home, "exports", "chat.md")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "# hello", string(data))

	got, err := f.invoke(t, "open_file", `{"path":"`+filepath.ToSlash(saved)+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "# hello", got)

	meta, err := f.gw.GetFileMetadata("exports/chat.md")
	require.NoError(t, err)
	assert.Equal(t, int64(7), meta.Size)
	assert.Equal(t, "file", meta.Kind)
	assert.False(t, meta.ModifiedTime.IsZero())

	meta, err = f.gw.GetFileMetadata("exports")
	require.NoError(t, err)
	assert.Equal(t, "dir", meta.Kind)

	_, err = f.gw.OpenFile("missing.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, f.gw.SaveFile(" ", "x"), ErrInvalidArgs)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	f := newFixture(t, false)
	out, err := f.invoke(t, "download", `{"url":"`+srv.URL+`/img.png","destination":"img.png"}`)
	require.NoError(t, err)
	res := out.(DownloadResult)
	assert.Equal(t, int64(7), res.Bytes)
	assert.Equal(t, filepath.Join(f.env.Home, "download", "img.png"), res.Path)

	_, err = f.gw.Download(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestOpenLink(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.gw.OpenLink("https://example.com/a?b=c"))
	assert.ErrorIs(t, f.gw.OpenLink("javascript:alert(1)"), ErrInvalidArgs)
	assert.ErrorIs(t, f.gw.OpenLink("file:///etc/passwd"), ErrInvalidArgs)
	assert.Equal(t, []string{"https://example.com/a?b=c"}, f.links)
}

func TestRunCheckUpdate_NoChecker(t *testing.T) {
	f := newFixture(t, false)
	out, err := f.invoke(t, "run_check_update", "")
	require.NoError(t, err)
	assert.Equal(t, update.Result{}, out)
}

func TestCommandsListed(t *testing.T) {
	f := newFixture(t, false)
	for _, cmd := range Commands() {
		_, err := f.invoke(t, cmd, "")
		assert.NotErrorIs(t, err, ErrUnknownCommand, cmd)
	}
}

func TestWebsocketIPC(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.gw.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ipc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{ID: "1", Cmd: "get_config"}))
	require.NoError(t, conn.WriteJSON(Frame{ID: "2", Cmd: "nope"}))
	require.NoError(t, conn.WriteJSON(Frame{ID: "3", Cmd: "set_theme", Args: json.RawMessage(`{"theme":"light"}`)}))

	replies := map[string]map[string]any{}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(replies) < 3 {
		var rep map[string]any
		require.NoError(t, conn.ReadJSON(&rep))
		replies[rep["id"].(string)] = rep
	}

	assert.Equal(t, true, replies["1"]["ok"])
	assert.Equal(t, "system", replies["1"]["result"].(map[string]any)["theme"])
	assert.Equal(t, false, replies["2"]["ok"])
	assert.Contains(t, replies["2"]["error"], "unknown command")
	assert.Equal(t, true, replies["3"]["ok"])
	assert.Equal(t, conf.ThemeLight, f.store.Get().Theme)
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.gw.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ipc"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {conf.DefaultOrigin}})
	require.NoError(t, err)
	conn.Close()
}

func TestListenIPC(t *testing.T) {
	f := newFixture(t, false)
	s, err := ListenIPC("127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(f.gw.Handler()) }()
	assert.Contains(t, s.URL("/settings"), "http://127.0.0.1:")

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ipc", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{ID: "a", Cmd: "get_list", Args: json.RawMessage(`{"name":"notes"}`)}))
	var rep Reply
	require.NoError(t, conn.ReadJSON(&rep))
	assert.True(t, rep.OK)
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	assert.NoError(t, <-done)
}

func TestSettingsPage(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.gw.SetTheme("dark")
	require.NoError(t, err)

	srv := httptest.NewServer(f.gw.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/settings")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"theme":"dark"`)
	assert.Contains(t, string(body), "/ipc")
}

func TestLookupAndRenderPrompt(t *testing.T) {
	f := newFixture(t, false)
	notes := filepath.Join(f.env.Home, "chat.notes.json")
	require.NoError(t, os.WriteFile(notes, []byte(`[{"title":"Greet Friend","body":"Hello {{name}}, from {{place}}"}]`), 0o644))

	out, err := f.invoke(t, "lookup_prompt", `{"cmd":"greet_friend"}`)
	require.NoError(t, err)
	rec := out.(prompt.Record)
	assert.Equal(t, "Greet Friend", rec.Title)
	assert.Equal(t, []string{"name", "place"}, rec.Slots)

	out, err = f.invoke(t, "render_prompt", `{"cmd":"greet_friend","vars":{"name":"Ada","place":"London"}}`)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, from London", out)

	_, err = f.invoke(t, "render_prompt", `{"cmd":"greet_friend","vars":{"name":"Ada"}}`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	assert.ErrorContains(t, err, "place")

	_, err = f.invoke(t, "lookup_prompt", `{"cmd":"nope"}`)
	assert.ErrorIs(t, err, ErrUnknownPrompt)
	_, err = f.gw.RenderPrompt("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownPrompt)
}
