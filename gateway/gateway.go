// Package gateway is the command surface the embedded UI and the CLI call
// into. Every command is a thin wrapper over the config store, the list sync
// engine, the prompt library and the window controller.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/pkg/browser"

	"chatshell/conf"
	"chatshell/listsync"
	"chatshell/prompt"
	"chatshell/update"
	"chatshell/window"
)

var (
	// ErrUnknownCommand is returned by Invoke for a command it does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNoWindows is returned by window commands when no controller is
	// attached, as in offline CLI use.
	ErrNoWindows = errors.New("no window controller")
	// ErrInvalidArgs marks arguments that could not be decoded or are out of
	// range.
	ErrInvalidArgs = errors.New("invalid arguments")
	// ErrUnknownList is returned for a list name absent from the config.
	ErrUnknownList = errors.New("unknown list")
	// ErrUnknownPrompt is returned when no enabled prompt has the command
	// name.
	ErrUnknownPrompt = errors.New("unknown prompt")
)

// ConfigStore is the config store surface the gateway uses.
type ConfigStore interface {
	Get() conf.Config
	Update(mutate func(*conf.Config)) (conf.Config, error)
	Reset() (conf.Config, error)
}

// Lists is the list sync engine surface the gateway uses.
type Lists interface {
	Sync(ctx context.Context, req listsync.Request) (listsync.Resource, error)
	Read(name string) (listsync.Resource, error)
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Prompts searches the prompt library.
type Prompts interface {
	Search(query string) iter.Seq[prompt.Record]
	Lookup(cmd string) (prompt.Record, bool)
}

// Windows accepts controller events and waits for them to be applied.
type Windows interface {
	Send(ctx context.Context, ev window.Event) error
}

// Updater checks for a newer release.
type Updater interface {
	Check(ctx context.Context) (update.Result, error)
}

// Deps wires a Gateway. Windows and Updater may be nil.
type Deps struct {
	Config  ConfigStore
	Env     conf.Env
	Lists   Lists
	Prompts Prompts
	Windows Windows
	Updater Updater
	OpenURL func(url string) error
	Logger  *slog.Logger
}

// Gateway dispatches commands.
type Gateway struct {
	config  ConfigStore
	env     conf.Env
	lists   Lists
	prompts Prompts
	windows Windows
	updater Updater
	openURL func(string) error
	logger  *slog.Logger
}

// New creates a Gateway from its dependencies.
func New(d Deps) *Gateway {
	g := &Gateway{
		config:  d.Config,
		env:     d.Env,
		lists:   d.Lists,
		prompts: d.Prompts,
		windows: d.Windows,
		updater: d.Updater,
		openURL: d.OpenURL,
		logger:  d.Logger,
	}
	if g.openURL == nil {
		g.openURL = browser.OpenURL
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// Commands lists the command names Invoke accepts.
func Commands() []string {
	return slices.Clone(commands)
}

var commands = []string{
	"get_config", "reset_config", "set_theme", "toggle_tray",
	"open_window", "control_window", "reload_window", "drag_window", "fullscreen",
	"sync_list", "get_list", "search_prompts", "lookup_prompt", "render_prompt",
	"download", "save_file", "open_file", "open_link", "get_file_metadata",
	"run_check_update",
}

// Invoke decodes args for cmd and runs it. Commands without a result return
// nil.
func (g *Gateway) Invoke(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
	res, err := g.invoke(ctx, cmd, args)
	if err != nil {
		g.logger.Warn("command failed", "cmd", cmd, "error", err)
	}
	return res, err
}

func (g *Gateway) invoke(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
	switch cmd {
	case "get_config":
		return g.GetConfig(), nil

	case "reset_config":
		return g.ResetConfig()

	case "set_theme":
		var a struct {
			Theme string `json:"theme"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.SetTheme(a.Theme)

	case "toggle_tray":
		var a struct {
			Enabled bool `json:"enabled"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.ToggleTray(a.Enabled)

	case "open_window":
		var a struct {
			ID     string            `json:"id"`
			Params map[string]string `json:"params"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.OpenWindow(ctx, a.ID, a.Params)

	case "control_window":
		var a struct {
			ID       string `json:"id"`
			Action   string `json:"action"`
			Instance string `json:"instance"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.ControlWindow(ctx, a.ID, a.Instance, a.Action)

	case "reload_window":
		var a struct {
			ID string `json:"id"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.ReloadWindow(ctx, a.ID)

	case "drag_window":
		return nil, g.DragWindow(ctx)

	case "fullscreen":
		var a struct {
			Enabled bool `json:"enabled"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.Fullscreen(ctx, a.Enabled)

	case "sync_list", "get_list":
		var a struct {
			Name string `json:"name"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		if cmd == "get_list" {
			return g.GetList(a.Name)
		}
		return g.SyncList(ctx, a.Name)

	case "search_prompts":
		var a struct {
			Query string `json:"query"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.SearchPrompts(a.Query), nil

	case "lookup_prompt", "render_prompt":
		var a struct {
			Cmd  string            `json:"cmd"`
			Vars map[string]string `json:"vars"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		if cmd == "lookup_prompt" {
			return g.LookupPrompt(a.Cmd)
		}
		return g.RenderPrompt(a.Cmd, a.Vars)

	case "download":
		var a struct {
			URL         string `json:"url"`
			Destination string `json:"destination"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.Download(ctx, a.URL, a.Destination)

	case "save_file":
		var a struct {
			Path     string `json:"path"`
			Contents string `json:"contents"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.SaveFile(a.Path, a.Contents)

	case "open_file":
		var a struct {
			Path string `json:"path"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.OpenFile(a.Path)

	case "open_link":
		var a struct {
			URL string `json:"url"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return nil, g.OpenLink(a.URL)

	case "get_file_metadata":
		var a struct {
			Path string `json:"path"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return g.GetFileMetadata(a.Path)

	case "run_check_update":
		return g.RunCheckUpdate(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func decode(args json.RawMessage, v any) error {
	if len(strings.TrimSpace(string(args))) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// GetConfig returns the current configuration document.
func (g *Gateway) GetConfig() conf.Config {
	return g.config.Get()
}

// ResetConfig restores the defaults.
func (g *Gateway) ResetConfig() (conf.Config, error) {
	return g.config.Reset()
}

// SetTheme persists a theme. Names are case-insensitive.
func (g *Gateway) SetTheme(theme string) (conf.Config, error) {
	t := conf.Theme(strings.ToLower(strings.TrimSpace(theme)))
	if !t.Valid() {
		return g.config.Get(), fmt.Errorf("%w: theme %q", ErrInvalidArgs, theme)
	}
	return g.config.Update(func(c *conf.Config) { c.Theme = t })
}

// ToggleTray enables or disables the tray icon.
func (g *Gateway) ToggleTray(enabled bool) (conf.Config, error) {
	return g.config.Update(func(c *conf.Config) { c.Tray = enabled })
}
