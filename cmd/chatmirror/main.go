package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatmirror/internal/config"
	"chatmirror/internal/engine"
	"chatmirror/internal/model"
	"chatmirror/internal/source/slack"
	"chatmirror/internal/storage"
	"chatmirror/internal/users"
	"chatmirror/internal/vault"
)

const userCacheTTL = 12 * time.Hour

func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	reset := flag.Bool("reset", false, "clear all saved channel cursors and exit")
	history := flag.Int("history", 0, "print the N most recent sync runs and exit")
	flag.Parse()

	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *reset {
		if err := db.ResetCursors(ctx); err != nil {
			log.Error("reset cursors", "error", err)
			os.Exit(1)
		}
		log.Info("all channel cursors cleared")
		return
	}
	if *history > 0 {
		printHistory(ctx, db, *history)
		return
	}

	store, err := vault.NewFS(cfg.VaultPath)
	if err != nil {
		log.Error("open vault", "path", cfg.VaultPath, "error", err)
		os.Exit(1)
	}

	client := slack.New(http.DefaultClient, cfg.SlackToken)
	cache := users.New(client.ResolveUser, userCacheTTL)
	eng := engine.New(client, store, db, cache, cfg, log)

	log.Info("starting sync", "channels", len(cfg.Channels), "mode", string(cfg.Mode))

	runPass(ctx, eng, db, cfg, log)

	if *once || cfg.IntervalMin <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.IntervalMin) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("sync stopped")
			return
		case <-ticker.C:
			runPass(ctx, eng, db, cfg, log)
		}
	}
}

func runPass(ctx context.Context, eng *engine.Engine, db storage.Storage, cfg *config.Config, log *slog.Logger) {
	started := time.Now().UTC()
	results, err := eng.RunPass(ctx, cfg.Channels)
	if err != nil {
		log.Warn("pass not started", "error", err)
		return
	}

	run := &model.SyncRun{StartedAt: started, FinishedAt: time.Now().UTC(), Channels: len(results)}
	for _, r := range results {
		run.NotesCreated += r.NotesCreated
		run.ThreadsUpdated += r.ThreadsUpdated
		run.FilesSaved += r.FilesSaved
		for _, e := range r.Errors {
			run.Errors = append(run.Errors, r.ChannelID+": "+e)
			log.Error("sync error", "channel", r.ChannelID, "error", e)
		}
	}
	if err := db.RecordRun(ctx, run); err != nil {
		log.Error("record run", "error", err)
	}

	log.Info("pass finished",
		"notes", run.NotesCreated, "threads", run.ThreadsUpdated,
		"files", run.FilesSaved, "errors", len(run.Errors),
		"took", time.Since(started).Round(time.Millisecond).String())
}

func printHistory(ctx context.Context, db storage.Storage, limit int) {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Printf("#%d %s  channels=%d notes=%d threads=%d files=%d errors=%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Channels, r.NotesCreated, r.ThreadsUpdated, r.FilesSaved, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("    %s\n", e)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
