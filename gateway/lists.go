package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"chatshell/listsync"
	"chatshell/prompt"
)

// SyncResult is the outcome of sync_list. A failed refresh is not a command
// failure: the stored list comes back marked stale with the reason.
type SyncResult struct {
	Resource listsync.Resource `json:"resource"`
	Stale    bool              `json:"stale"`
	Error    string            `json:"error,omitempty"`
}

func (g *Gateway) request(name string) (listsync.Request, error) {
	src, ok := g.config.Get().Lists[name]
	if !ok {
		return listsync.Request{}, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	return listsync.RequestFor(g.env, name, src), nil
}

// SyncList refreshes a configured list from its source.
func (g *Gateway) SyncList(ctx context.Context, name string) (SyncResult, error) {
	req, err := g.request(name)
	if err != nil {
		return SyncResult{}, err
	}
	res, err := g.lists.Sync(ctx, req)
	if err != nil {
		if errors.Is(err, listsync.ErrNetworkUnavailable) || errors.Is(err, listsync.ErrPayloadInvalid) {
			return SyncResult{Resource: res, Stale: true, Error: err.Error()}, nil
		}
		return SyncResult{}, err
	}
	return SyncResult{Resource: res}, nil
}

// GetList returns the stored list. A list with no local file yet is empty.
func (g *Gateway) GetList(name string) (listsync.Resource, error) {
	req, err := g.request(name)
	if err != nil {
		return listsync.Resource{}, err
	}
	res, err := g.lists.Read(name)
	if errors.Is(err, listsync.ErrLocalMissing) {
		res.Path = req.Path
		return res, nil
	}
	return res, err
}

// SearchPrompts returns the enabled prompts matching query.
func (g *Gateway) SearchPrompts(query string) []prompt.Record {
	out := slices.Collect(g.prompts.Search(query))
	if out == nil {
		out = []prompt.Record{}
	}
	return out
}

// LookupPrompt returns the enabled prompt whose command name is cmd.
func (g *Gateway) LookupPrompt(cmd string) (prompt.Record, error) {
	rec, ok := g.prompts.Lookup(strings.TrimSpace(cmd))
	if !ok {
		return prompt.Record{}, fmt.Errorf("%w: %q", ErrUnknownPrompt, cmd)
	}
	return rec, nil
}

// RenderPrompt fills the slots of prompt cmd from vars. Every slot needs a
// value.
func (g *Gateway) RenderPrompt(cmd string, vars map[string]string) (string, error) {
	rec, err := g.LookupPrompt(cmd)
	if err != nil {
		return "", err
	}
	out, err := rec.Render(vars)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return out, nil
}

// DownloadResult reports the bytes written by download.
type DownloadResult struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Download fetches url into destination. Relative destinations land in the
// download directory under the application directory.
func (g *Gateway) Download(ctx context.Context, url, destination string) (DownloadResult, error) {
	if url == "" || destination == "" {
		return DownloadResult{}, fmt.Errorf("%w: url and destination are required", ErrInvalidArgs)
	}
	dest, err := g.resolve(destination, "download")
	if err != nil {
		return DownloadResult{}, err
	}
	n, err := g.lists.Download(ctx, url, dest)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{Path: dest, Bytes: n}, nil
}
