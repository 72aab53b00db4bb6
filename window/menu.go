package window

import (
	"fmt"
	"hash/fnv"

	"chatshell/conf"
)

// Action is what a menu item does. The set is closed and every item is bound
// to one when the menu is built.
type Action interface{ isAction() }

type (
	Open       struct{ ID string }
	Close      struct{ ID, Instance string }
	ToggleCore struct{}
	Toggle     struct{ Setting Setting }
	SetTheme   struct{ Theme conf.Theme }
	SyncLists  struct{}
	OpenLink   struct{ URL string }
	Reload     struct{ ID string }
	Quit       struct{}
)

func (Open) isAction()       {}
func (Close) isAction()      {}
func (ToggleCore) isAction() {}
func (Toggle) isAction()     {}
func (SetTheme) isAction()   {}
func (SyncLists) isAction()  {}
func (OpenLink) isAction()   {}
func (Reload) isAction()     {}
func (Quit) isAction()       {}

// Setting is a boolean configuration field that a menu item can flip.
type Setting string

const (
	SettingTray         Setting = "tray"
	SettingTitlebar     Setting = "titlebar"
	SettingStayOnTop    Setting = "stay_on_top"
	SettingHideDockIcon Setting = "hide_dock_icon"
	SettingPopupSearch  Setting = "popup_search"
)

func (s Setting) field(c *conf.Config) *bool {
	switch s {
	case SettingTray:
		return &c.Tray
	case SettingTitlebar:
		return &c.Titlebar
	case SettingStayOnTop:
		return &c.StayOnTop
	case SettingHideDockIcon:
		return &c.HideDockIcon
	case SettingPopupSearch:
		return &c.PopupSearch
	}
	return nil
}

// Value reads the setting from c.
func (s Setting) Value(c conf.Config) bool {
	if f := s.field(&c); f != nil {
		return *f
	}
	return false
}

// Flip inverts the setting in c.
func (s Setting) Flip(c *conf.Config) {
	if f := s.field(c); f != nil {
		*f = !*f
	}
}

// Item is one menu entry as handed to the platform.
type Item struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Enabled   bool   `json:"enabled"`
	Checked   bool   `json:"checked,omitempty"`
	Separator bool   `json:"separator,omitempty"`
	Children  []Item `json:"children,omitempty"`
}

// Menu is a built menu tree plus the action bound to each leaf id.
type Menu struct {
	Items   []Item
	actions map[int]Action
}

// Action returns the action bound to item id.
func (m *Menu) Action(id int) (Action, bool) {
	if m == nil {
		return nil, false
	}
	a, ok := m.actions[id]
	return a, ok
}

// Links opened from the Help menu.
const (
	IssuesURL  = "https://github.com/chatshell/chatshell/issues"
	ReleaseURL = "https://github.com/chatshell/chatshell/releases"
)

// Each section numbers its items from a fixed base so that adding or
// removing window items never renumbers another section. A click queued
// against an older menu then either hits the same action or misses.
const (
	idApp    = 100
	idPrefs  = 200
	idWindow = 300
	idHelp   = 400
	idTray   = 500
	// Close items are keyed by instance: idWindowAux + hash(instance).
	idWindowAux  = 1 << 20
	windowAuxIDs = 1 << 20
)

type builder struct {
	next    int
	actions map[int]Action
}

func newBuilder() *builder {
	return &builder{next: 1, actions: make(map[int]Action)}
}

// section makes the following items number from base.
func (b *builder) section(base int) *builder {
	b.next = base
	return b
}

func (b *builder) item(title string, a Action) Item {
	id := b.next
	b.next++
	return b.itemAt(id, title, a)
}

func (b *builder) itemAt(id int, title string, a Action) Item {
	b.actions[id] = a
	return Item{ID: id, Title: title, Enabled: true}
}

// instanceID derives a stable id for the item closing one auxiliary window.
func (b *builder) instanceID(id, instance string) int {
	h := fnv.New32a()
	h.Write([]byte(id + "/" + instance))
	n := idWindowAux + int(h.Sum32()%windowAuxIDs)
	for {
		if _, taken := b.actions[n]; !taken {
			return n
		}
		n++
	}
}

func (b *builder) check(title string, on bool, a Action) Item {
	it := b.item(title, a)
	it.Checked = on
	return it
}

func (b *builder) toggle(title string, s Setting, cfg conf.Config) Item {
	return b.check(title, s.Value(cfg), Toggle{Setting: s})
}

func separator() Item { return Item{Separator: true} }

func submenu(title string, children ...Item) Item {
	return Item{Title: title, Enabled: true, Children: children}
}

func (b *builder) menu(items ...Item) *Menu {
	return &Menu{Items: items, actions: b.actions}
}

// BuildMenu derives the application menu from the configuration and the
// live window table. The result depends only on its inputs.
func BuildMenu(cfg conf.Config, entries []Entry) *Menu {
	b := newBuilder()

	b.section(idApp)
	app := submenu("ChatShell",
		b.item("Settings...", Open{ID: Settings}),
		separator(),
		b.item("Quit", Quit{}),
	)

	b.section(idPrefs)
	theme := submenu("Theme",
		b.check("Light", cfg.Theme == conf.ThemeLight, SetTheme{Theme: conf.ThemeLight}),
		b.check("Dark", cfg.Theme == conf.ThemeDark, SetTheme{Theme: conf.ThemeDark}),
		b.check("System", cfg.Theme == conf.ThemeSystem, SetTheme{Theme: conf.ThemeSystem}),
	)
	prefs := submenu("Preferences",
		theme,
		b.toggle("Stay On Top", SettingStayOnTop, cfg),
		b.toggle("Titlebar", SettingTitlebar, cfg),
		b.toggle("Hide Dock Icon", SettingHideDockIcon, cfg),
		b.toggle("System Tray", SettingTray, cfg),
		b.toggle("Popup Search", SettingPopupSearch, cfg),
		separator(),
		b.item("Sync Prompts", SyncLists{}),
	)

	b.section(idWindow)
	win := []Item{
		b.item(coreToggleTitle(entries), ToggleCore{}),
		b.item("Reload", Reload{ID: Core}),
	}
	search := b.item("Search DALL·E 2", Open{ID: Search})
	search.Enabled = cfg.PopupSearch
	win = append(win, search)
	var aux []Item
	for _, e := range entries {
		if e.Kind != Auxiliary {
			continue
		}
		title := fmt.Sprintf("Close %s (%s)", e.ID, shortInstance(e.Instance))
		aux = append(aux, b.itemAt(b.instanceID(e.ID, e.Instance), title, Close{ID: e.ID, Instance: e.Instance}))
	}
	if len(aux) > 0 {
		win = append(win, separator())
		win = append(win, aux...)
	}

	b.section(idHelp)
	help := submenu("Help",
		b.item("Open Chat Website", OpenLink{URL: cfg.Origin}),
		b.item("Release Notes", OpenLink{URL: ReleaseURL}),
		b.item("Report Bug", OpenLink{URL: IssuesURL}),
	)

	return b.menu(app, prefs, submenu("Window", win...), help)
}

// BuildTray derives the tray menu. It is nil when the tray is disabled.
func BuildTray(cfg conf.Config, entries []Entry) *Menu {
	if !cfg.Tray {
		return nil
	}
	b := newBuilder().section(idTray)
	return b.menu(
		b.item(coreToggleTitle(entries), ToggleCore{}),
		b.item("Settings...", Open{ID: Settings}),
		b.item("Sync Prompts", SyncLists{}),
		separator(),
		b.item("Quit", Quit{}),
	)
}

func coreToggleTitle(entries []Entry) string {
	for _, e := range entries {
		if e.ID == Core && e.State == Visible {
			return "Hide ChatShell"
		}
	}
	return "Show ChatShell"
}

func shortInstance(instance string) string {
	if len(instance) > 8 {
		return instance[:8]
	}
	return instance
}
