package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"slices"
	"strings"

	"github.com/google/uuid"

	"chatshell/conf"
)

// ConfigStore is the part of the config store the controller writes through.
type ConfigStore interface {
	Get() conf.Config
	Update(mutate func(*conf.Config)) (conf.Config, error)
}

// SearchURL is the page loaded by dalle2-search windows; the query is appended.
const SearchURL = "https://labs.openai.com/search?q="

// settingsPage is the bundled settings view, used until WithSettingsURL
// points the settings window somewhere else.
const settingsPage = "index.html#/settings"

type envelope struct {
	ev    Event
	reply chan error
}

// Controller is the window/tray/menu state machine. Run owns every field
// below the channels; other goroutines only Post or Send events.
type Controller struct {
	platform  Platform
	store     ConfigStore
	concealer Concealer
	logger    *slog.Logger
	syncLists func()
	settings  string

	events chan envelope
	done   chan struct{}

	cfg      conf.Config
	entries  map[string]*Entry
	menu     *Menu
	tray     *Menu
	dirty    bool
	quitting bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithConcealer overrides the OS-selected concealer.
func WithConcealer(c Concealer) Option { return func(ctl *Controller) { ctl.concealer = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(ctl *Controller) { ctl.logger = l } }

// WithListSync sets the function run in the background for the Sync Prompts
// action.
func WithListSync(fn func()) Option { return func(ctl *Controller) { ctl.syncLists = fn } }

// WithSettingsURL sets the page loaded by the settings window.
func WithSettingsURL(u string) Option { return func(ctl *Controller) { ctl.settings = u } }

// New creates a controller. It does nothing until Run is called.
func New(p Platform, store ConfigStore, opts ...Option) *Controller {
	c := &Controller{
		platform:  p,
		store:     store,
		concealer: ConcealerFor(runtime.GOOS),
		logger:    slog.Default(),
		settings:  settingsPage,
		events:    make(chan envelope, 64),
		done:      make(chan struct{}),
		entries:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "window")
	return c
}

// Post queues ev without waiting. Events posted after Run has returned are
// dropped.
func (c *Controller) Post(ev Event) {
	select {
	case c.events <- envelope{ev: ev}:
	case <-c.done:
	}
}

// Send queues ev and waits for its transition to finish. It must not be
// called from the dispatcher goroutine.
func (c *Controller) Send(ctx context.Context, ev Event) error {
	reply := make(chan error, 1)
	select {
	case c.events <- envelope{ev: ev, reply: reply}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns a snapshot of the live window table, ordered by key.
func (c *Controller) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := c.Send(ctx, inspect{fn: func(c *Controller) { out = c.snapshot() }})
	return out, err
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run is the dispatcher loop. It installs the initial menus, then handles
// events one at a time until Quit or until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.cfg = c.store.Get()
	c.logger.Info("controller started", "concealer", c.concealer.Name())
	c.rebuild()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case env := <-c.events:
			err := c.dispatch(env.ev)
			c.report(env.ev, err)
			if c.dirty {
				c.rebuild()
			}
			if env.reply != nil {
				env.reply <- err
			}
			if c.quitting {
				return nil
			}
		}
	}
}

func (c *Controller) report(ev Event, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyClosed):
		c.logger.Info("ignored", "event", fmt.Sprintf("%T", ev), "error", err)
	case errors.Is(err, ErrUnknownAction):
		c.logger.Warn("ignored", "event", fmt.Sprintf("%T", ev), "error", err)
	default:
		c.logger.Error("window transition failed", "event", fmt.Sprintf("%T", ev), "error", err)
	}
}

func (c *Controller) dispatch(ev Event) error {
	switch ev := ev.(type) {
	case OpenRequested:
		return c.open(ev.ID, ev.Params)
	case CloseRequested:
		return c.closeRequest(ev.ID, ev.Instance)
	case ControlRequested:
		return c.control(ev.ID, ev.Instance, ev.Op)
	case MenuClicked:
		a, ok := c.menu.Action(ev.ItemID)
		if !ok {
			return fmt.Errorf("%w: menu item %d", ErrUnknownAction, ev.ItemID)
		}
		return c.perform(a)
	case TrayClicked:
		a, ok := c.tray.Action(ev.ItemID)
		if !ok {
			return fmt.Errorf("%w: tray item %d", ErrUnknownAction, ev.ItemID)
		}
		return c.perform(a)
	case TrayIconClicked:
		return c.toggleTrayWindow()
	case ConfigChanged:
		c.applyConfig(ev.Config)
		return nil
	case SyncCompleted:
		if ev.Err != nil {
			c.logger.Warn("list sync failed, keeping local copy", "list", ev.Name, "error", ev.Err)
		} else {
			c.logger.Info("list synced", "list", ev.Name)
		}
		return nil
	case QuitRequested:
		c.shutdown()
		return nil
	case inspect:
		ev.fn(c)
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

func (c *Controller) perform(a Action) error {
	switch a := a.(type) {
	case Open:
		return c.open(a.ID, nil)
	case Close:
		return c.closeRequest(a.ID, a.Instance)
	case ToggleCore:
		if e, ok := c.entries[Core]; ok && e.State == Visible {
			return c.closeRequest(Core, "")
		}
		return c.open(Core, nil)
	case Toggle:
		c.writeConfig(string(a.Setting), a.Setting.Flip)
		return nil
	case SetTheme:
		c.writeConfig("theme", func(cfg *conf.Config) { cfg.Theme = a.Theme })
		return nil
	case SyncLists:
		if c.syncLists != nil {
			go c.syncLists()
		}
		return nil
	case OpenLink:
		return c.platform.OpenURL(a.URL)
	case Reload:
		return c.control(a.ID, "", OpReload)
	case Quit:
		c.shutdown()
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnknownAction, a)
}

// writeConfig persists off the dispatcher goroutine. The store's change hook
// brings the result back as ConfigChanged.
func (c *Controller) writeConfig(what string, mutate func(*conf.Config)) {
	go func() {
		if _, err := c.store.Update(mutate); err != nil {
			c.logger.Error("config update failed", "setting", what, "error", err)
		}
	}()
}

func (c *Controller) applyConfig(cfg conf.Config) {
	old := c.cfg
	c.cfg = cfg
	if e, ok := c.entries[Core]; ok && old.StayOnTop != cfg.StayOnTop {
		if err := e.handle.SetAlwaysOnTop(cfg.StayOnTop); err != nil {
			c.logger.Warn("stay on top", "error", err)
		}
	}
	c.dirty = true
}

func (c *Controller) open(id string, params map[string]string) error {
	kind, ok := KindOf(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWindow, id)
	}
	instance := ""
	if kind == Auxiliary {
		instance = params["instance"]
		if instance == "" {
			instance = uuid.NewString()
		}
	}

	if e, ok := c.entries[key(id, instance)]; ok {
		if e.State == Hidden {
			if err := e.handle.Show(); err != nil {
				return fmt.Errorf("show %s: %w", e.Key(), err)
			}
			e.State = Visible
			c.dirty = true
		}
		return e.handle.Focus()
	}

	h, err := c.platform.OpenWindow(c.spec(id, instance, params))
	if err != nil {
		return fmt.Errorf("open %s: %w", key(id, instance), err)
	}
	e := &Entry{ID: id, Instance: instance, Kind: kind, State: Visible, handle: h}
	c.entries[e.Key()] = e
	c.dirty = true
	c.logger.Debug("window opened", "window", e.Key())
	return nil
}

// closeRequest intercepts every close. The core window is concealed and
// stays resident; every other window is destroyed.
func (c *Controller) closeRequest(id, instance string) error {
	targets, err := c.lookup(id, instance)
	if err != nil {
		return err
	}
	for _, e := range targets {
		if e.ID == Core {
			if e.State == Hidden {
				continue
			}
			if err := c.concealer.Conceal(e.handle); err != nil {
				return fmt.Errorf("conceal core: %w", err)
			}
			e.State = Hidden
			c.dirty = true
			continue
		}
		c.destroy(e)
	}
	return nil
}

func (c *Controller) destroy(e *Entry) {
	if err := e.handle.Close(); err != nil {
		c.logger.Warn("close window", "window", e.Key(), "error", err)
	}
	delete(c.entries, e.Key())
	c.dirty = true
	c.logger.Debug("window closed", "window", e.Key())
}

func (c *Controller) control(id, instance string, op ControlOp) error {
	if op == OpClose {
		return c.closeRequest(id, instance)
	}
	targets, err := c.lookup(id, instance)
	if err != nil {
		return err
	}
	for _, e := range targets {
		if err := c.apply(e, op); err != nil {
			return fmt.Errorf("%s %s: %w", op, e.Key(), err)
		}
	}
	return nil
}

func (c *Controller) apply(e *Entry, op ControlOp) error {
	h := e.handle
	switch op {
	case OpMinimize:
		return c.setState(e, Hidden, h.Minimize())
	case OpHide:
		return c.setState(e, Hidden, h.Hide())
	case OpShow:
		return c.setState(e, Visible, h.Show())
	case OpFocus:
		if e.State == Hidden {
			if err := c.setState(e, Visible, h.Show()); err != nil {
				return err
			}
		}
		return h.Focus()
	case OpReload:
		return h.Reload()
	case OpFullscreen:
		return h.SetFullscreen(true)
	case OpExitFullscreen:
		return h.SetFullscreen(false)
	case OpDrag:
		return h.StartDrag()
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, op)
}

func (c *Controller) setState(e *Entry, s State, err error) error {
	if err != nil {
		return err
	}
	if e.State != s {
		e.State = s
		c.dirty = true
	}
	return nil
}

func (c *Controller) toggleTrayWindow() error {
	if !c.cfg.Tray {
		return nil
	}
	if e, ok := c.entries[Tray]; ok && e.State == Visible {
		return c.setState(e, Hidden, e.handle.Hide())
	}
	return c.open(Tray, nil)
}

// lookup resolves id and instance to live entries. An empty instance on an
// auxiliary id matches every instance.
func (c *Controller) lookup(id, instance string) ([]*Entry, error) {
	if kind, ok := KindOf(id); ok && kind == Auxiliary && instance == "" {
		var out []*Entry
		for _, e := range c.entries {
			if e.ID == id {
				out = append(out, e)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
		}
		slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Key(), b.Key()) })
		return out, nil
	}
	e, ok := c.entries[key(id, instance)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, key(id, instance))
	}
	return []*Entry{e}, nil
}

// shutdown closes every window without interception, then quits the
// platform. The dispatcher exits after the current event.
func (c *Controller) shutdown() {
	for _, e := range c.snapshotEntries() {
		if err := e.handle.Close(); err != nil {
			c.logger.Warn("close window on quit", "window", e.Key(), "error", err)
		}
	}
	clear(c.entries)
	c.dirty = false
	c.quitting = true
	c.platform.Quit()
	c.logger.Info("quit")
}

func (c *Controller) rebuild() {
	entries := c.snapshot()
	c.menu = BuildMenu(c.cfg, entries)
	c.tray = BuildTray(c.cfg, entries)
	c.platform.SetMenu(c.menu)
	c.platform.SetTray(c.tray)
	c.dirty = false
}

func (c *Controller) snapshotEntries() []*Entry {
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Key(), b.Key()) })
	return out
}

func (c *Controller) snapshot() []Entry {
	ptrs := c.snapshotEntries()
	out := make([]Entry, len(ptrs))
	for i, e := range ptrs {
		out[i] = *e
		out[i].handle = nil
	}
	return out
}

func (c *Controller) spec(id, instance string, params map[string]string) Spec {
	g := c.cfg.Windows[id]
	s := Spec{
		ID:          id,
		Instance:    instance,
		Title:       "ChatShell",
		Width:       g.Width,
		Height:      g.Height,
		X:           g.X,
		Y:           g.Y,
		UserAgent:   c.cfg.UAWindow,
		Decorations: c.cfg.Titlebar,
		Params:      params,
	}
	switch id {
	case Core:
		s.URL = c.cfg.Origin
		s.AlwaysOnTop = c.cfg.StayOnTop
	case Tray:
		s.URL = c.cfg.Origin
		s.Decorations = false
		s.AlwaysOnTop = true
		s.SkipTaskbar = true
	case Settings:
		s.Title = "Settings"
		s.URL = c.settings
	case Search:
		s.Title = "DALL·E 2 Search"
		s.URL = SearchURL + url.QueryEscape(params["query"])
	}
	return s
}
