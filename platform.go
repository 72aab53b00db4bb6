package main

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pkg/browser"

	"chatshell/window"
)

// Platform is the native UI host: the window operations the controller
// drives plus the tray icon bitmap, which is installed once at startup.
type Platform interface {
	window.Platform
	SetupTray(rgba []byte, w, h int)
}

// NewPlatform returns the host for this build. There is no webview binding
// yet, so every build gets the headless host: windows are tracked and
// logged, links open in the system browser.
func NewPlatform(logger *slog.Logger) Platform {
	return newHeadlessPlatform(logger)
}

type headlessPlatform struct {
	logger *slog.Logger

	mu      sync.Mutex
	menu    string
	tray    string
	icon    bool
	windows map[*headlessWindow]struct{}
	quit    bool
}

func newHeadlessPlatform(logger *slog.Logger) *headlessPlatform {
	return &headlessPlatform{
		logger:  logger.With("component", "platform"),
		windows: make(map[*headlessWindow]struct{}),
	}
}

func (p *headlessPlatform) SetupTray(rgba []byte, w, h int) {
	p.mu.Lock()
	p.icon = len(rgba) == w*h*4
	p.mu.Unlock()
	p.logger.Debug("tray icon installed", "width", w, "height", h)
}

func (p *headlessPlatform) OpenWindow(spec window.Spec) (window.Handle, error) {
	w := &headlessWindow{platform: p, spec: spec, visible: true}
	p.mu.Lock()
	p.windows[w] = struct{}{}
	p.mu.Unlock()
	p.logger.Info("window opened", "id", spec.ID, "instance", spec.Instance, "url", spec.URL)
	return w, nil
}

// SetMenu serializes the menu the way a native host receives it.
func (p *headlessPlatform) SetMenu(m *window.Menu) {
	data := menuJSON(m)
	p.mu.Lock()
	p.menu = data
	p.mu.Unlock()
	p.logger.Debug("menu updated", "menu", data)
}

func (p *headlessPlatform) SetTray(m *window.Menu) {
	data := menuJSON(m)
	p.mu.Lock()
	p.tray = data
	p.mu.Unlock()
	if m == nil {
		p.logger.Debug("tray removed")
		return
	}
	p.logger.Debug("tray updated", "menu", data)
}

func (p *headlessPlatform) OpenURL(url string) error {
	p.logger.Info("opening in browser", "url", url)
	return browser.OpenURL(url)
}

func (p *headlessPlatform) Quit() {
	p.mu.Lock()
	p.quit = true
	p.mu.Unlock()
	p.logger.Info("quit")
}

// openWindows returns the ids of live windows.
func (p *headlessPlatform) openWindows() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for w := range p.windows {
		ids = append(ids, w.spec.ID)
	}
	return ids
}

func menuJSON(m *window.Menu) string {
	if m == nil {
		return ""
	}
	data, err := json.Marshal(m.Items)
	if err != nil {
		return ""
	}
	return string(data)
}

// headlessWindow records the state a native window would have.
type headlessWindow struct {
	platform *headlessPlatform
	spec     window.Spec

	mu         sync.Mutex
	visible    bool
	fullscreen bool
	onTop      bool
}

func (w *headlessWindow) log(op string, args ...any) {
	w.platform.logger.Debug("window "+op, append([]any{"id", w.spec.ID, "instance", w.spec.Instance}, args...)...)
}

func (w *headlessWindow) setVisible(v bool) {
	w.mu.Lock()
	w.visible = v
	w.mu.Unlock()
}

func (w *headlessWindow) Show() error {
	w.setVisible(true)
	w.log("show")
	return nil
}

func (w *headlessWindow) Hide() error {
	w.setVisible(false)
	w.log("hide")
	return nil
}

func (w *headlessWindow) Minimize() error {
	w.setVisible(false)
	w.log("minimize")
	return nil
}

func (w *headlessWindow) Focus() error {
	w.setVisible(true)
	w.log("focus")
	return nil
}

func (w *headlessWindow) Close() error {
	w.platform.mu.Lock()
	delete(w.platform.windows, w)
	w.platform.mu.Unlock()
	w.log("close")
	return nil
}

func (w *headlessWindow) Reload() error {
	w.log("reload", "url", w.spec.URL)
	return nil
}

func (w *headlessWindow) SetFullscreen(on bool) error {
	w.mu.Lock()
	w.fullscreen = on
	w.mu.Unlock()
	w.log("fullscreen", "on", on)
	return nil
}

func (w *headlessWindow) StartDrag() error {
	w.log("drag")
	return nil
}

func (w *headlessWindow) SetAlwaysOnTop(on bool) error {
	w.mu.Lock()
	w.onTop = on
	w.mu.Unlock()
	w.log("always on top", "on", on)
	return nil
}
