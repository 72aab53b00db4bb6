package gateway

import (
	"context"
	"errors"
	"strings"

	"chatshell/window"
)

func (g *Gateway) send(ctx context.Context, ev window.Event) error {
	if g.windows == nil {
		return ErrNoWindows
	}
	err := g.windows.Send(ctx, ev)
	if errors.Is(err, window.ErrAlreadyClosed) {
		return nil
	}
	return err
}

// OpenWindow opens or refocuses a logical window.
func (g *Gateway) OpenWindow(ctx context.Context, id string, params map[string]string) error {
	return g.send(ctx, window.OpenRequested{ID: strings.TrimSpace(id), Params: params})
}

// ControlWindow applies minimize, hide, close or focus (and the other control
// operations) to a window. Acting on a closed window is not an error.
func (g *Gateway) ControlWindow(ctx context.Context, id, instance, action string) error {
	op, err := window.ParseControlOp(strings.ToLower(strings.TrimSpace(action)))
	if err != nil {
		return err
	}
	return g.send(ctx, window.ControlRequested{ID: id, Instance: instance, Op: op})
}

// ReloadWindow reloads every instance of id.
func (g *Gateway) ReloadWindow(ctx context.Context, id string) error {
	return g.send(ctx, window.ControlRequested{ID: id, Op: window.OpReload})
}

// DragWindow starts a drag of the core window.
func (g *Gateway) DragWindow(ctx context.Context) error {
	return g.send(ctx, window.ControlRequested{ID: window.Core, Op: window.OpDrag})
}

// Fullscreen enters or leaves fullscreen on the core window.
func (g *Gateway) Fullscreen(ctx context.Context, enabled bool) error {
	op := window.OpExitFullscreen
	if enabled {
		op = window.OpFullscreen
	}
	return g.send(ctx, window.ControlRequested{ID: window.Core, Op: op})
}
