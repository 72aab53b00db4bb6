package window

// Concealer takes the core window out of sight without destroying it.
type Concealer interface {
	Conceal(h Handle) error
	Name() string
}

// MinimizeConcealer minimizes to the dock. Used on macOS, where hidden
// windows cannot be restored from the dock icon.
type MinimizeConcealer struct{}

func (MinimizeConcealer) Conceal(h Handle) error { return h.Minimize() }
func (MinimizeConcealer) Name() string           { return "minimize" }

// HideConcealer hides the window; the tray brings it back.
type HideConcealer struct{}

func (HideConcealer) Conceal(h Handle) error { return h.Hide() }
func (HideConcealer) Name() string           { return "hide" }

// ConcealerFor picks the strategy for an OS family (a runtime.GOOS value).
func ConcealerFor(goos string) Concealer {
	if goos == "darwin" {
		return MinimizeConcealer{}
	}
	return HideConcealer{}
}
