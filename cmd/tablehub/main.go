// Package main is the entry point for the tablehub server.
//
// tablehub hosts SDML tables: authenticated users publish, fetch, query and
// share tables keyed by owner/name over an HTTP API. Configuration comes
// from a YAML file plus CLI flag overrides; the storage backend (memory,
// dir, badger, gcs) is selected there.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/sdtp-io/tablehub/internal/config"
	"github.com/sdtp-io/tablehub/internal/objstore"
	"github.com/sdtp-io/tablehub/internal/server"
	"github.com/sdtp-io/tablehub/internal/tables"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "tablehub: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path to YAML config file")
	httpAddr := flag.String("http", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *httpAddr != "" {
		cfg.Listen = *httpAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := setLogLevel(ll, cfg.LogLevel); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close store", "err", err)
		}
	}()

	if *configPath != "" {
		stopWatch, err := watchConfig(ctx, *configPath, ll)
		if err != nil {
			slog.Warn("Config watch disabled", "err", err)
		} else {
			defer stopWatch()
		}
	}

	mgr := tables.NewManager(store)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.NewRouter(mgr, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.Listen, "backend", cfg.Storage.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore constructs the configured object store backend.
func openStore(ctx context.Context, cfg config.Storage) (objstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return objstore.NewMemory(), nil
	case config.BackendDir:
		return objstore.NewDir(cfg.Dir)
	case config.BackendBadger:
		return objstore.NewBadger(cfg.BadgerPath)
	case config.BackendGCS:
		return objstore.NewGCS(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func setLogLevel(ll *slog.LevelVar, level string) error {
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// watchConfig applies log-level changes from the config file without a
// restart. Other fields require one.
func watchConfig(ctx context.Context, path string, ll *slog.LevelVar) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					slog.Warn("Ignoring config change", "err", err)
					continue
				}
				if err := setLogLevel(ll, cfg.LogLevel); err == nil {
					slog.Info("Log level updated", "level", cfg.LogLevel)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watch error", "err", err)
			}
		}
	}()
	return func() {
		if err := watcher.Close(); err != nil {
			slog.Warn("Failed to close config watcher", "err", err)
		}
	}, nil
}

func printVersion() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Println("tablehub", info.Main.Version)
		return
	}
	fmt.Println("tablehub (unknown version)")
}
