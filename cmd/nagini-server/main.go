package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/nagini/internal/api"
	"github.com/mattjoyce/nagini/internal/config"
	"github.com/mattjoyce/nagini/internal/lock"
	"github.com/mattjoyce/nagini/internal/log"
	"github.com/mattjoyce/nagini/internal/server"
	"github.com/mattjoyce/nagini/internal/storage"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("nagini-server", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: nagini-server [--version] <config-path> <host-name>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *showVersion {
		fmt.Printf("nagini-server %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		return 0
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 1
	}
	configPath, host := fs.Arg(0), fs.Arg(1)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("main").With("host", host)
	logger.Info("nagini-server starting", "version", version, "config", cfg.Dir)

	layout := cfg.ServerLayout()
	if err := os.MkdirAll(layout.NaginiPath(), 0o755); err != nil {
		logger.Error("failed to create agent directory", "path", layout.NaginiPath(), "error", err)
		return 1
	}
	if err := storage.RequireLocal(layout.LockPath(), "PID lock"); err != nil {
		logger.Error("refusing PID lock location", "error", err)
		return 1
	}
	pidLock, err := lock.Acquire(layout.LockPath())
	if err != nil {
		logger.Error("failed to acquire PID lock", "error", err)
		return 1
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Error("failed to release PID lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []server.Option
	var runs api.RunLister
	if hp := cfg.Server.HistoryPath; hp != "" && !strings.EqualFold(hp, "off") {
		db, err := storage.OpenSQLite(ctx, hp)
		if err != nil {
			logger.Error("failed to open run history", "path", hp, "error", err)
			return 1
		}
		defer db.Close()
		runLog := storage.NewRunLog(db)
		opts = append(opts, server.WithRecorder(runLog))
		runs = runLog
		logger.Info("run history enabled", "path", hp)
	}

	srv, err := server.New(configPath, host, opts...)
	if err != nil {
		logger.Error("failed to start server", "error", err)
		return 1
	}
	logger.Info("listening", "addr", srv.Addr().String())

	errCh := make(chan error, 1)
	if cfg.Server.HTTP.Enabled {
		admin := api.New(api.Config{Listen: cfg.Server.HTTP.Listen}, srv, runs, log.WithComponent("api"))
		go func() {
			if err := admin.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("admin endpoint: %w", err)
			}
		}()
		logger.Info("admin endpoint enabled", "listen", cfg.Server.HTTP.Listen)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx) }()

	select {
	case err = <-served:
	case err = <-errCh:
		logger.Error("shutting down", "error", err)
		cancel()
		<-served
		return 1
	}

	switch {
	case err == nil, errors.Is(err, server.ErrStopped), errors.Is(err, context.Canceled):
		logger.Info("nagini-server stopped")
		return 0
	default:
		logger.Error("server failed", "error", err)
		return 1
	}
}
