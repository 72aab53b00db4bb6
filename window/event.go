package window

import "chatshell/conf"

// Event is an input to the controller. The set is closed: only the types in
// this file implement it.
type Event interface{ isEvent() }

// OpenRequested opens or refocuses a window. Auxiliary windows read their
// instance from Params["instance"] and get a fresh one when it is absent.
type OpenRequested struct {
	ID     string
	Params map[string]string
}

// CloseRequested is the OS close button (or an explicit close) on a window.
type CloseRequested struct {
	ID       string
	Instance string
}

// ControlRequested applies a control operation. An empty Instance on an
// auxiliary id targets every instance of it.
type ControlRequested struct {
	ID       string
	Instance string
	Op       ControlOp
}

// MenuClicked is a click on an item of the application menu.
type MenuClicked struct{ ItemID int }

// TrayClicked is a click on an item of the tray menu.
type TrayClicked struct{ ItemID int }

// TrayIconClicked is a left click on the tray icon itself.
type TrayIconClicked struct{}

// ConfigChanged carries a newly persisted configuration document.
type ConfigChanged struct{ Config conf.Config }

// SyncCompleted reports the end of a background list sync.
type SyncCompleted struct {
	Name string
	Err  error
}

// QuitRequested ends the application.
type QuitRequested struct{}

type inspect struct{ fn func(c *Controller) }

func (OpenRequested) isEvent()    {}
func (CloseRequested) isEvent()   {}
func (ControlRequested) isEvent() {}
func (MenuClicked) isEvent()      {}
func (TrayClicked) isEvent()      {}
func (TrayIconClicked) isEvent()  {}
func (ConfigChanged) isEvent()    {}
func (SyncCompleted) isEvent()    {}
func (QuitRequested) isEvent()    {}
func (inspect) isEvent()          {}
