package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/grantha-tools/grantha/internal/batch"
	"github.com/grantha-tools/grantha/internal/config"
	"github.com/grantha-tools/grantha/internal/prefs"
	"github.com/grantha-tools/grantha/internal/qagen"
	"github.com/grantha-tools/grantha/internal/state"
	"github.com/grantha-tools/grantha/internal/ui"
)

// Options configure the grantha application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/grantha/prefs.toml
	APIURL     string // overrides the config file when set
	PollEvery  int    // seconds; zero uses the config value
	Debug      bool   // write a debug log to the configured log path
}

// Run boots the grantha TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	log, err := buildLogger(cfg.LogPath, opts.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	apiURL := cfg.APIURL
	if opts.APIURL != "" {
		apiURL = opts.APIURL
	}
	client, err := qagen.NewClient(apiURL, log)
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	store := &state.Store{}

	interval := cfg.PollInterval()
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}

	runner := batch.NewRunner(client, log.Named("batch"), interval)
	defer runner.Close()

	StartPoller(ctx, store, client, interval, log.Named("poller"))

	// Populate the store before the UI draws its first frame.
	refresh(ctx, store, client, log)

	uiOpts := ui.Options{
		Context:   ctx,
		Client:    client,
		Store:     store,
		Runner:    runner,
		Logger:    log.Named("ui"),
		PollTick:  interval,
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		QACount:   cfg.QACount,
	}
	return ui.Run(uiOpts)
}

// buildLogger returns a no-op logger unless debug logging was requested.
// The TUI owns the terminal, so debug output goes to a file.
func buildLogger(path string, debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{path}
	logCfg.ErrorOutputPaths = []string{path}
	return logCfg.Build()
}
