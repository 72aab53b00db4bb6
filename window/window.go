// Package window owns the logical window table, the native menu and the tray
// model. All transitions run on a single dispatcher goroutine; everything
// else talks to it by posting events.
package window

import (
	"errors"
	"fmt"
)

// Logical window identifiers.
const (
	Core     = "core"
	Tray     = "tray"
	Settings = "settings"
	Search   = "dalle2-search"
)

var (
	// ErrAlreadyClosed is returned for a transition on a window with no live
	// entry. It is logged and otherwise ignored.
	ErrAlreadyClosed = errors.New("window already closed")
	// ErrUnknownAction is returned for a menu or tray item id that is not in
	// the current model.
	ErrUnknownAction = errors.New("unknown menu action")
	// ErrUnknownWindow is returned when opening an id outside the window family.
	ErrUnknownWindow = errors.New("unknown window")
	// ErrUnknownControl is returned for an unrecognised control operation.
	ErrUnknownControl = errors.New("unknown window control")
	// ErrStopped is returned by Send once the dispatcher has exited.
	ErrStopped = errors.New("window controller stopped")
)

// Kind separates singleton windows from windows that may have many instances.
type Kind int

const (
	Primary Kind = iota
	Auxiliary
)

func (k Kind) String() string {
	if k == Auxiliary {
		return "auxiliary"
	}
	return "primary"
}

// KindOf reports the kind of a logical id and whether the id is known.
func KindOf(id string) (Kind, bool) {
	switch id {
	case Core, Tray, Settings:
		return Primary, true
	case Search:
		return Auxiliary, true
	}
	return 0, false
}

// State is the lifecycle state of a logical window.
type State int

const (
	Closed State = iota
	Visible
	Hidden
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	default:
		return "closed"
	}
}

// Entry is one live logical window. Instance is empty for primary windows.
type Entry struct {
	ID       string `json:"id"`
	Instance string `json:"instance,omitempty"`
	Kind     Kind   `json:"kind"`
	State    State  `json:"state"`

	handle Handle
}

// Key is the table key: the id for primary windows, id/instance otherwise.
func (e Entry) Key() string { return key(e.ID, e.Instance) }

func key(id, instance string) string {
	if instance == "" {
		return id
	}
	return id + "/" + instance
}

// Spec describes a window to create.
type Spec struct {
	ID          string
	Instance    string
	Title       string
	URL         string
	Width       float64
	Height      float64
	X, Y        *float64
	UserAgent   string
	Decorations bool
	AlwaysOnTop bool
	SkipTaskbar bool
	Params      map[string]string
}

// Handle is a live native window.
type Handle interface {
	Show() error
	Hide() error
	Minimize() error
	Focus() error
	Close() error
	Reload() error
	SetFullscreen(on bool) error
	StartDrag() error
	SetAlwaysOnTop(on bool) error
}

// Platform is the native UI host the controller drives. Every method is
// called from the dispatcher goroutine.
type Platform interface {
	OpenWindow(spec Spec) (Handle, error)
	SetMenu(m *Menu)
	// SetTray installs the tray menu; nil removes the tray icon.
	SetTray(m *Menu)
	OpenURL(url string) error
	Quit()
}

// ControlOp is an operation requested on an existing window.
type ControlOp string

const (
	OpMinimize       ControlOp = "minimize"
	OpHide           ControlOp = "hide"
	OpShow           ControlOp = "show"
	OpFocus          ControlOp = "focus"
	OpClose          ControlOp = "close"
	OpReload         ControlOp = "reload"
	OpFullscreen     ControlOp = "fullscreen"
	OpExitFullscreen ControlOp = "exit_fullscreen"
	OpDrag           ControlOp = "drag"
)

// ParseControlOp validates a control operation name.
func ParseControlOp(s string) (ControlOp, error) {
	switch op := ControlOp(s); op {
	case OpMinimize, OpHide, OpShow, OpFocus, OpClose, OpReload, OpFullscreen, OpExitFullscreen, OpDrag:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownControl, s)
}
