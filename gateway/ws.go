package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one command sent by the webview over /ipc.
type Frame struct {
	ID   string          `json:"id"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Reply answers the Frame with the same ID.
type Reply struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

const writeWait = 10 * time.Second

// Handler returns the HTTP handler serving the /ipc websocket endpoint and
// the settings page.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", g.handleWS)
	mux.HandleFunc("GET /settings", g.handleSettings)
	return mux
}

func (g *Gateway) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     g.checkOrigin,
	}
}

// checkOrigin accepts the local UI, loopback pages and the configured chat
// origin the core window injects its script into.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if u.Scheme == "file" {
		return true
	}
	chat, err := url.Parse(g.config.Get().Origin)
	return err == nil && chat.Scheme == u.Scheme && chat.Host == u.Host
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader().Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(rep Reply) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(rep); err != nil {
			g.logger.Debug("websocket write failed", "error", err)
		}
	}

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var (
					syntax *json.SyntaxError
					typ    *json.UnmarshalTypeError
				)
				if errors.As(err, &syntax) || errors.As(err, &typ) {
					write(Reply{Error: "malformed frame: " + err.Error()})
					continue
				}
				g.logger.Debug("websocket read ended", "error", err)
			}
			break
		}

		// Commands may block on the network; answer them out of order.
		wg.Add(1)
		go func(f Frame) {
			defer wg.Done()
			write(g.reply(ctx, f))
		}(f)
	}

	cancel()
	wg.Wait()
}

func (g *Gateway) reply(ctx context.Context, f Frame) Reply {
	res, err := g.Invoke(ctx, f.Cmd, f.Args)
	if err != nil {
		return Reply{ID: f.ID, Error: err.Error()}
	}
	return Reply{ID: f.ID, OK: true, Result: res}
}

// IPCServer serves the websocket endpoint on a TCP listener. Binding and
// serving are separate so the bound address can be handed to windows before
// the gateway exists.
type IPCServer struct {
	srv *http.Server
	ln  net.Listener
}

// ListenIPC binds addr. Use port 0 to pick a free port; Addr reports it.
func ListenIPC(addr string) (*IPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &IPCServer{
		srv: &http.Server{ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}, nil
}

// Addr is the bound address.
func (s *IPCServer) Addr() net.Addr { return s.ln.Addr() }

// URL returns an http URL for path on the bound address.
func (s *IPCServer) URL(path string) string {
	return "http://" + s.ln.Addr().String() + path
}

// Serve serves h until the server is closed.
func (s *IPCServer) Serve(h http.Handler) error {
	s.srv.Handler = h
	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting connections and waits for handlers until ctx ends.
func (s *IPCServer) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
