package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotRunning is returned when no app is listening on the socket.
var ErrNotRunning = errors.New("chatshell is not running")

// Client talks to a running app over its bridge socket.
type Client struct {
	sockPath string
	timeout  time.Duration
}

// NewClient creates a Client for sockPath.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath, timeout: 60 * time.Second}
}

// Ping reports whether an app is answering on the socket.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, Request{Type: "Ping"})
	if err != nil {
		return err
	}
	if resp.Type != "Pong" {
		return fmt.Errorf("bridge: unexpected reply %q", resp.Type)
	}
	return nil
}

// Invoke runs a gateway command in the running app and returns the raw JSON
// result. args is marshalled; nil sends no arguments.
func (c *Client) Invoke(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	resp, err := c.send(ctx, Request{Type: "Invoke", Cmd: cmd, Args: raw})
	if err != nil {
		return nil, fmt.Errorf("bridge request failed: %w", err)
	}
	if resp.Type == "Error" {
		return nil, fmt.Errorf("bridge error (code %d): %s", resp.Code, resp.Message)
	}
	return resp.Result, nil
}

// send opens a connection, writes the request, reads one response, and closes.
func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRunning, c.sockPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return nil, errors.New("bridge closed connection")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}
	return &resp, nil
}
