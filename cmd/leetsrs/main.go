package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/leetsrs/internal/backup"
	"github.com/conorfennell/leetsrs/internal/cards"
	"github.com/conorfennell/leetsrs/internal/config"
	"github.com/conorfennell/leetsrs/internal/fsrs"
	"github.com/conorfennell/leetsrs/internal/gist"
	"github.com/conorfennell/leetsrs/internal/notes"
	"github.com/conorfennell/leetsrs/internal/settings"
	"github.com/conorfennell/leetsrs/internal/stats"
	"github.com/conorfennell/leetsrs/internal/storage"
	"github.com/conorfennell/leetsrs/internal/syncer"
	"github.com/conorfennell/leetsrs/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("leetsrs", pflag.ExitOnError)
	configFile := flags.String("config", "", "Path to a YAML config file")
	flags.String("db", "leetsrs.db", "Path to the SQLite database file")
	flags.String("listen", "127.0.0.1:8787", "Address for the message API")
	flags.String("github-api", gist.DefaultBaseURL, "GitHub API base URL")
	flags.Int("sync-interval-minutes", 1, "Minutes between periodic sync attempts")
	flags.String("timezone", "", "IANA time zone for day boundaries (default: local)")
	flags.String("mirror-path", "", "Directory for the git backup mirror (disabled when empty)")
	flags.String("mirror-remote", "", "Git remote URL to push the backup mirror to")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		slog.Error("failed to resolve timezone", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(storage.Migrations); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	settingsSvc := settings.New(store)
	notesSvc := notes.New(store)
	statsSvc := stats.New(store, loc)
	cardsSvc := cards.New(store, notesSvc, statsSvc, settingsSvc, fsrs.DefaultParams())
	backupSvc := backup.New(store)
	engine := syncer.New(store, backupSvc, func(token string) syncer.API {
		return gist.NewClient(cfg.GithubAPI, token)
	})

	var mirror *backup.Mirror
	if cfg.MirrorPath != "" {
		mirror = backup.NewMirror(cfg.MirrorPath, cfg.MirrorRemote)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.RunPeriodic(ctx, cfg.SyncInterval())

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: web.NewServer(cardsSvc, notesSvc, statsSvc, settingsSvc, backupSvc, engine, mirror),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("leetsrs listening", "addr", cfg.Listen, "db", cfg.DB)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
