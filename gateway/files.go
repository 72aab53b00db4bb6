package gateway

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatshell/fsutil"
	"chatshell/update"
)

// FileMetadata is the result of get_file_metadata.
type FileMetadata struct {
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
	Kind         string    `json:"kind"` // "file", "dir" or "symlink"
}

// resolve expands "~/" and places relative paths under the application
// directory, inside sub when it is given.
func (g *Gateway) resolve(path, sub string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidArgs)
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, rest), nil
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(g.env.Home, sub, path), nil
}

// SaveFile writes contents to path atomically.
func (g *Gateway) SaveFile(path, contents string) error {
	p, err := g.resolve(path, "")
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(p, []byte(contents), 0o644)
}

// OpenFile returns the contents of path.
func (g *Gateway) OpenFile(path string) (string, error) {
	p, err := g.resolve(path, "")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetFileMetadata describes path without following a final symlink.
func (g *Gateway) GetFileMetadata(path string) (FileMetadata, error) {
	p, err := g.resolve(path, "")
	if err != nil {
		return FileMetadata{}, err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return FileMetadata{}, err
	}
	kind := "file"
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = "symlink"
	case fi.IsDir():
		kind = "dir"
	}
	return FileMetadata{Size: fi.Size(), ModifiedTime: fi.ModTime(), Kind: kind}, nil
}

// OpenLink opens an http(s) or mailto link in the default handler.
func (g *Gateway) OpenLink(link string) error {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	switch u.Scheme {
	case "http", "https", "mailto":
	default:
		return fmt.Errorf("%w: unsupported link scheme %q", ErrInvalidArgs, u.Scheme)
	}
	return g.openURL(u.String())
}

// RunCheckUpdate asks the update checker for a newer release. Without a
// checker there is never an update.
func (g *Gateway) RunCheckUpdate(ctx context.Context) (update.Result, error) {
	if g.updater == nil {
		return update.Result{}, nil
	}
	return g.updater.Check(ctx)
}
