package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatshell/logging"
)

type echoRouter struct{}

func (echoRouter) Invoke(_ context.Context, cmd string, args json.RawMessage) (any, error) {
	switch cmd {
	case "echo":
		var v map[string]any
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "nothing":
		return nil, nil
	}
	return nil, errors.New("unknown command: " + cmd)
}

// shortSocket keeps the path under the sun_path limit on macOS.
func shortSocket(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "b.sock")
}

func startServer(t *testing.T) string {
	t.Helper()
	sock := shortSocket(t)
	srv, err := NewServer(sock, echoRouter{}, logging.Discard())
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(srv.Close)
	return sock
}

func TestInvokeRoundTrip(t *testing.T) {
	c := NewClient(startServer(t))
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	raw, err := c.Invoke(ctx, "echo", map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(raw))

	raw, err = c.Invoke(ctx, "nothing", nil)
	require.NoError(t, err)
	assert.True(t, len(raw) == 0 || string(raw) == "null", "got %s", raw)

	_, err = c.Invoke(ctx, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nope")
}

func TestMalformedAndUnknownRequests(t *testing.T) {
	sock := startServer(t)
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	dec := json.NewDecoder(conn)
	_, err = conn.Write([]byte("{not json\n{\"type\":\"Explode\"}\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, CodeParse, resp.Code)
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, CodeUnknown, resp.Code)
}

func TestClientNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotRunning)
}

func TestStaleSocketReplaced(t *testing.T) {
	sock := shortSocket(t)
	require.NoError(t, os.WriteFile(sock, nil, 0o600))

	srv, err := NewServer(sock, echoRouter{}, logging.Discard())
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	require.NoError(t, NewClient(sock).Ping(context.Background()))
}
