// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/logging"
	"github.com/jeranaias/pyllamaui/internal/ollama"
	"github.com/jeranaias/pyllamaui/internal/session"
	"github.com/jeranaias/pyllamaui/internal/storage"
	"github.com/jeranaias/pyllamaui/internal/transport"
	"github.com/jeranaias/pyllamaui/internal/ui/styles"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds what every command shares: configuration, logger and the
// optional history store.
type app struct {
	cfg     *config.Config
	cfgPath string
	log     *slog.Logger
	history *storage.Store

	closers []io.Closer
}

// newApp loads configuration and sets up logging. Flags override the file.
func newApp(opts *options) (*app, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Stderr: opts.logStderr}
	if !opts.logStderr {
		if logOpts.Path, err = cfg.LogPath(); err != nil {
			logOpts.Stderr = true
		}
	}
	logger, closer, err := logging.Setup(logOpts)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	a := &app{cfg: cfg, cfgPath: path, log: logger, closers: []io.Closer{closer}}
	a.log.Debug("CONFIG_LOADED", "path", path, "backend", cfg.Backend.Kind, "model", cfg.DefaultModel)
	return a, nil
}

// loadFileConfig reads the config file named by --config or the default
// one. A missing file yields the defaults.
func loadFileConfig(opts *options) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = opts.configPath
		err  error
	)
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err = config.LoadFromPath(path)
		} else {
			cfg = config.Default()
			cfg.ApplyEnvOverrides()
		}
	} else {
		if path, err = config.Path(); err != nil {
			path = ""
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}

// loadConfig is loadFileConfig with the global flags applied.
func loadConfig(opts *options) (*config.Config, string, error) {
	cfg, path, err := loadFileConfig(opts)
	if err != nil {
		return nil, "", err
	}

	if opts.backend != "" {
		cfg.Backend.Kind = strings.ToLower(opts.backend)
	}
	if opts.model != "" {
		cfg.DefaultModel = opts.model
	}
	if opts.ollamaURL != "" {
		cfg.Backend.OllamaURL = opts.ollamaURL
	}
	if opts.startOllama {
		cfg.Backend.StartOllama = true
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newTransport builds the configured backend. The HTTP backend optionally
// starts a local Ollama server first.
func (a *app) newTransport(ctx context.Context) transport.Transport {
	if a.cfg.Backend.Kind == config.BackendProcess {
		pc := transport.DefaultProcessConfig()
		pc.Command = a.cfg.Backend.PythonPath
		pc.Args = []string{a.cfg.Backend.ScriptPath}
		return transport.NewProcessTransport(pc, a.log)
	}

	client := a.ollamaClient()
	if a.cfg.Backend.StartOllama {
		if err := client.EnsureRunning(ctx); err != nil {
			a.log.Warn("OLLAMA_START_FAILED", "url", client.BaseURL(), "error", err)
		}
	}
	return transport.NewHTTPTransport(client, a.log)
}

func (a *app) ollamaClient() *ollama.Client {
	oc := ollama.DefaultConfig()
	oc.BaseURL = a.cfg.Backend.OllamaURL
	oc.Logger = a.log
	return ollama.NewClientWithConfig(oc)
}

// markdown returns a terminal markdown renderer for the configured theme.
func (a *app) markdown() *styles.Markdown {
	return styles.NewMarkdown(a.cfg.UI.Theme)
}

// openHistory opens the turn history store.
func (a *app) openHistory() (*storage.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	path, err := a.cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(path, a.cfg.History.MaxTurns)
	if err != nil {
		return nil, err
	}
	a.history = store
	a.closers = append(a.closers, store)
	return store, nil
}

// sessionOptions returns the controller options, recording turns when
// history is enabled. A history database that cannot be opened is logged
// and skipped.
func (a *app) sessionOptions() []session.Option {
	opts := []session.Option{session.WithLogger(a.log)}
	if !a.cfg.History.Enabled {
		return opts
	}
	store, err := a.openHistory()
	if err != nil {
		a.log.Warn("HISTORY_UNAVAILABLE", "error", err)
		return opts
	}
	return append(opts, session.WithRecorder(store))
}

// watchConfig reloads the config file until ctx is done and hands each
// valid result to fn.
func (a *app) watchConfig(ctx context.Context, fn func(*config.Config)) {
	if a.cfgPath == "" {
		return
	}
	err := config.Watch(ctx, a.cfgPath, config.DefaultDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			a.log.Warn("CONFIG_RELOAD_FAILED", "path", a.cfgPath, "error", err)
			return
		}
		a.log.Info("CONFIG_RELOADED", "path", a.cfgPath)
		fn(cfg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Debug("CONFIG_WATCH_STOPPED", "path", a.cfgPath, "error", err)
	}
}

// Close releases the history store and the log file.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// CONTROLLER LIFECYCLE
// =============================================================================

// startController runs a controller until ctx is done. The returned stop
// function cancels it, waits for it to finish, and closes the transport.
func startController(ctx context.Context, tr transport.Transport, sink session.Sink, opts ...session.Option) (*session.Controller, func()) {
	ctrl := session.New(tr, sink, opts...)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = ctrl.Run(runCtx)
	}()
	return ctrl, func() {
		cancel()
		<-ctrl.Done()
		_ = tr.Close()
	}
}
