// Package conf owns the persisted configuration document and the process
// environment the application is started with.
package conf

import (
	"maps"
	"strings"
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// AutoUpdate selects how update checks are surfaced.
type AutoUpdate string

const (
	UpdatePrompt  AutoUpdate = "prompt"
	UpdateSilent  AutoUpdate = "silent"
	UpdateDisable AutoUpdate = "disable"
)

// Geometry is the persisted size and optional position of a logical window.
type Geometry struct {
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// ListSource describes where a named list lives locally and, optionally,
// where it is synchronized from.
type ListSource struct {
	File     string            `json:"file"`
	URL      string            `json:"url,omitempty"`
	Format   string            `json:"format,omitempty"` // "json" (default) or "csv"
	Headers  map[string]string `json:"headers,omitempty"`
	MergeKey string            `json:"merge_key,omitempty"`
}

// Config is the single configuration document persisted as chat.conf.json.
type Config struct {
	Theme        Theme                 `json:"theme"`
	Tray         bool                  `json:"tray"`
	Titlebar     bool                  `json:"titlebar"`
	StayOnTop    bool                  `json:"stay_on_top"`
	HideDockIcon bool                  `json:"hide_dock_icon"`
	PopupSearch  bool                  `json:"popup_search"`
	AutoUpdate   AutoUpdate            `json:"auto_update"`
	Origin       string                `json:"origin"`
	UAWindow     string                `json:"ua_window"`
	Windows      map[string]Geometry   `json:"windows"`
	Features     map[string]bool       `json:"features"`
	Lists        map[string]ListSource `json:"lists"`
	PromptLists  []string              `json:"prompt_lists"`
}

// DefaultOrigin is the chat application loaded by the core window.
const DefaultOrigin = "https://chat.openai.com"

// Default returns a complete document with built-in defaults.
func Default() Config {
	return Config{
		Theme:       ThemeSystem,
		Tray:        true,
		Titlebar:    true,
		AutoUpdate:  UpdatePrompt,
		Origin:      DefaultOrigin,
		Windows:     defaultWindows(),
		Features:    map[string]bool{},
		Lists:       defaultLists(),
		PromptLists: []string{"prompts", "notes"},
	}
}

func defaultWindows() map[string]Geometry {
	return map[string]Geometry{
		"core":          {Width: 800, Height: 600},
		"tray":          {Width: 360, Height: 540},
		"settings":      {Width: 700, Height: 600},
		"dalle2-search": {Width: 400, Height: 600},
	}
}

func defaultLists() map[string]ListSource {
	return map[string]ListSource{
		"download": {File: "chat.download.json"},
		"notes":    {File: "chat.notes.json"},
		"prompts": {
			File:     "chat.prompts.json",
			URL:      "https://raw.githubusercontent.com/f/awesome-chatgpt-prompts/main/prompts.csv",
			Format:   "csv",
			MergeKey: "act",
		},
	}
}

// Clone returns a deep copy so callers never share maps with the store.
func (c Config) Clone() Config {
	out := c
	out.Windows = make(map[string]Geometry, len(c.Windows))
	for k, g := range c.Windows {
		if g.X != nil {
			x := *g.X
			g.X = &x
		}
		if g.Y != nil {
			y := *g.Y
			g.Y = &y
		}
		out.Windows[k] = g
	}
	out.Features = maps.Clone(c.Features)
	if out.Features == nil {
		out.Features = map[string]bool{}
	}
	out.Lists = make(map[string]ListSource, len(c.Lists))
	for k, l := range c.Lists {
		l.Headers = maps.Clone(l.Headers)
		out.Lists[k] = l
	}
	out.PromptLists = append([]string(nil), c.PromptLists...)
	return out
}

// normalize repairs invalid or missing values in place so the document is
// always complete. It reports whether anything changed.
func (c *Config) normalize() bool {
	changed := false
	def := Default()

	if t := Theme(strings.ToLower(string(c.Theme))); t != c.Theme {
		c.Theme = t
		changed = true
	}
	if !c.Theme.Valid() {
		c.Theme = def.Theme
		changed = true
	}

	if u := AutoUpdate(strings.ToLower(string(c.AutoUpdate))); u != c.AutoUpdate {
		c.AutoUpdate = u
		changed = true
	}
	switch c.AutoUpdate {
	case UpdatePrompt, UpdateSilent, UpdateDisable:
	default:
		c.AutoUpdate = def.AutoUpdate
		changed = true
	}

	if strings.TrimSpace(c.Origin) == "" {
		c.Origin = def.Origin
		changed = true
	}

	if c.Windows == nil {
		c.Windows = map[string]Geometry{}
		changed = true
	}
	for id, g := range def.Windows {
		cur, ok := c.Windows[id]
		if !ok || cur.Width <= 0 || cur.Height <= 0 {
			if ok {
				g.X, g.Y = cur.X, cur.Y
			}
			c.Windows[id] = g
			changed = true
		}
	}

	if c.Features == nil {
		c.Features = map[string]bool{}
		changed = true
	}

	if c.Lists == nil {
		c.Lists = map[string]ListSource{}
		changed = true
	}
	for name, l := range def.Lists {
		if _, ok := c.Lists[name]; !ok {
			c.Lists[name] = l
			changed = true
		}
	}
	for name, l := range c.Lists {
		if strings.TrimSpace(l.File) == "" {
			l.File = "chat." + name + ".json"
			c.Lists[name] = l
			changed = true
		}
	}

	if c.PromptLists == nil {
		c.PromptLists = def.PromptLists
		changed = true
	}
	return changed
}
