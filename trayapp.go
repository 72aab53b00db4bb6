package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chatshell/bridge"
	"chatshell/conf"
	"chatshell/fsutil"
	"chatshell/gateway"
	"chatshell/listsync"
	"chatshell/logging"
	"chatshell/prompt"
	"chatshell/update"
	"chatshell/window"
)

const shutdownTimeout = 5 * time.Second

// services are the headless components shared by the tray app and offline
// CLI invocations.
type services struct {
	env     conf.Env
	store   *conf.Store
	lists   *listsync.Engine
	library *prompt.Library
	updater *update.Checker
}

func newServices(env conf.Env, logger *slog.Logger) *services {
	store := conf.Open(env.ConfigPath(), logger)
	cfg := store.Get()

	lists := listsync.New(
		listsync.WithTimeout(env.SyncTimeout),
		listsync.WithLogger(logger),
	)
	for _, req := range listsync.Requests(env, cfg) {
		lists.Register(req.Name, req.Path)
	}

	library := prompt.NewLibrary(lists, cfg.PromptLists, logger)
	lists.OnSynced(library.Invalidate)

	return &services{
		env:     env,
		store:   store,
		lists:   lists,
		library: library,
		updater: update.NewChecker(env.UpdateURL, version, nil, logger),
	}
}

// newGateway builds a command gateway over the services. windows may be nil.
func (s *services) newGateway(windows gateway.Windows, logger *slog.Logger) *gateway.Gateway {
	return gateway.New(gateway.Deps{
		Config:  s.store,
		Env:     s.env,
		Lists:   s.lists,
		Prompts: s.library,
		Windows: windows,
		Updater: s.updater,
		Logger:  logger,
	})
}

// App is the running tray application.
type App struct {
	*services

	platform Platform
	logger   *slog.Logger
	ctl      *window.Controller
	gw       *gateway.Gateway
	ipc      *gateway.IPCServer
	bridge   *bridge.Server

	// ctx bounds background work (list syncs, update checks) and is
	// cancelled when the app stops.
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// runTrayApp starts the tray app and blocks until it quits. A second
// instance asks the running one to show its main window and returns.
func runTrayApp(ctx context.Context, env conf.Env) error {
	logger, logFile := logging.New(env.Home, logging.ParseLevel(env.LogLevel))
	defer logFile.Close()
	slog.SetDefault(logger)

	lock, err := fsutil.Lock(env.LockPath())
	if errors.Is(err, fsutil.ErrLocked) {
		logger.Info("already running, showing the existing instance")
		_, err := bridge.NewClient(env.SocketPath()).Invoke(ctx, "open_window", map[string]string{"id": window.Core})
		return err
	}
	if err != nil {
		return fmt.Errorf("single instance lock: %w", err)
	}
	defer lock.Unlock()

	logger.Info("starting", "version", version, "home", env.Home)

	app, err := newApp(env, NewPlatform(logger), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		app.ctl.Post(window.QuitRequested{})
	}()

	return app.Run(context.WithoutCancel(ctx))
}

// newApp wires every component. Nothing is served until Run.
func newApp(env conf.Env, platform Platform, logger *slog.Logger) (*App, error) {
	a := &App{
		services: newServices(env, logger),
		platform: platform,
		logger:   logger.With("component", "app"),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	cfg := a.store.Get()
	for _, req := range listsync.Requests(env, cfg) {
		if err := a.lists.Ensure(req); err != nil {
			a.logger.Warn("list file not created", "list", req.Name, "error", err)
		}
	}

	ipc, err := gateway.ListenIPC(env.IPCAddr)
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("ipc listen: %w", err)
	}
	a.ipc = ipc

	a.ctl = window.New(platform, a.store,
		window.WithConcealer(window.ConcealerFor(runtime.GOOS)),
		window.WithLogger(logger),
		window.WithListSync(func() { a.background(a.syncAll) }),
		window.WithSettingsURL(ipc.URL("/settings")),
	)
	a.store.OnChange(a.configChanged)

	a.gw = a.newGateway(a.ctl, logger)

	bs, err := bridge.NewServer(env.SocketPath(), a.gw, logger)
	if err != nil {
		a.cancel()
		_ = ipc.Close(context.Background())
		return nil, fmt.Errorf("bridge listen: %w", err)
	}
	a.bridge = bs

	return a, nil
}

// Run serves the gateway transports and runs the window controller until
// the app quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	rgba, w, h := CreateIconRGBA()
	a.platform.SetupTray(rgba, w, h)

	var g errgroup.Group
	g.Go(func() error { return a.ipc.Serve(a.gw.Handler()) })
	g.Go(a.bridge.Serve)

	a.background(a.syncAll)
	if a.store.Get().AutoUpdate != conf.UpdateDisable {
		a.background(a.checkUpdate)
	}

	a.ctl.Post(window.OpenRequested{ID: window.Core})

	err := a.ctl.Run(ctx)
	a.close()
	if gerr := g.Wait(); gerr != nil {
		a.logger.Error("transport stopped", "error", gerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// close stops background work and both transports once the controller has
// returned.
func (a *App) close() {
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.ipc.Close(ctx); err != nil {
		a.logger.Warn("ipc shutdown", "error", err)
	}
	a.bridge.Close()
	a.bg.Wait()
	a.logger.Info("stopped")
}

func (a *App) background(fn func(ctx context.Context)) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn(a.ctx)
	}()
}

// syncAll refreshes every remote list and reports each outcome to the
// controller.
func (a *App) syncAll(ctx context.Context) {
	reqs := listsync.Remote(listsync.Requests(a.env, a.store.Get()))
	if len(reqs) == 0 {
		return
	}
	a.lists.SyncAll(ctx, reqs, func(name string, r listsync.Result) {
		a.ctl.Post(window.SyncCompleted{Name: name, Err: r.Err})
	})
}

func (a *App) checkUpdate(ctx context.Context) {
	res, err := a.updater.Check(ctx)
	if err != nil {
		a.logger.Warn("update check failed", "error", err)
		return
	}
	if res.HasUpdate {
		a.logger.Info("update available", "version", res.Version, "notes", res.Notes)
	}
}

// configChanged keeps list registrations and prompt sources current and
// hands the new document to the controller.
func (a *App) configChanged(old, cfg conf.Config) {
	for _, req := range listsync.Requests(a.env, cfg) {
		a.lists.Register(req.Name, req.Path)
		if old.Lists[req.Name].File != cfg.Lists[req.Name].File {
			a.library.Invalidate(req.Name)
		}
	}
	a.library.SetSources(cfg.PromptLists)
	a.ctl.Post(window.ConfigChanged{Config: cfg})
}
