// Package app wires the settings service, the change watcher and the
// HTTP server together and owns their lifecycle.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/dshills/settingsd/internal/config"
	"github.com/dshills/settingsd/internal/config/watcher"
	"github.com/dshills/settingsd/internal/logging"
	"github.com/dshills/settingsd/internal/server"
)

// Application holds the long-lived components of one settingsd process.
type Application struct {
	opts     Options
	logger   *logging.Logger
	paths    config.Paths
	settings *config.Service
	watcher  *watcher.Watcher
	server   *server.Server

	shutdownOnce sync.Once
}

// New creates an Application. Log output goes to logOutput, or stderr
// when nil.
func New(opts Options, logOutput io.Writer) (*Application, error) {
	if err := opts.Validate(); err != nil {
		return nil, &InitError{Component: "options", Err: err}
	}
	if logOutput == nil {
		logOutput = os.Stderr
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(opts.LogLevel)
	logCfg.Output = logOutput
	logger := logging.New(logCfg)

	paths, err := config.DefaultPaths(opts.Root, opts.EnterprisePath)
	if err != nil {
		return nil, &InitError{Component: "paths", Err: err}
	}

	a := &Application{
		opts:     opts,
		logger:   logger,
		paths:    paths,
		settings: config.New(paths, config.WithLogger(logger)),
		watcher: watcher.New(
			watcher.WithLogger(logger),
			watcher.WithLocator(paths.Locate),
		),
	}
	a.server = server.New(a.settings, a.watcher, server.WithLogger(logger))

	return a, nil
}

// Options returns the options the application was built with.
func (a *Application) Options() Options { return a.opts }

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger { return a.logger }

// Settings returns the settings service.
func (a *Application) Settings() *config.Service { return a.settings }

// Watcher returns the change watcher.
func (a *Application) Watcher() *watcher.Watcher { return a.watcher }

// Server returns the HTTP server.
func (a *Application) Server() *server.Server { return a.server }

// Run starts watching and serves HTTP on the configured address until
// ctx is canceled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.watcher.Start(a.paths.All()); err != nil {
		return &InitError{Component: "watcher", Err: err}
	}

	a.logger.Info("project root %s", a.paths.Root())
	return a.server.ListenAndServe(ctx, a.opts.Addr)
}

// Watch starts watching and calls fn for every change until ctx is
// canceled.
func (a *Application) Watch(ctx context.Context, fn watcher.Observer) error {
	sub := a.watcher.Subscribe(fn)
	defer sub.Unsubscribe()

	if err := a.watcher.Start(a.paths.All()); err != nil {
		return &InitError{Component: "watcher", Err: err}
	}

	<-ctx.Done()
	return nil
}

// Shutdown stops the watcher. It is safe to call more than once.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		if err := a.watcher.Close(); err != nil {
			a.logger.Warn("closing watcher: %v", err)
		}
	})
}
