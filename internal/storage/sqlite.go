package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"chatmirror/internal/model"
	"chatmirror/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetCursor returns the saved watermark for a channel, or "" if absent.
func (s *SQLite) GetCursor(ctx context.Context, channelID string) (string, error) {
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_ts FROM channel_cursors WHERE channel_id = ?`, channelID,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return ts, nil
}

// SetCursor inserts or updates the watermark for a channel.
func (s *SQLite) SetCursor(ctx context.Context, channelID, ts string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_cursors (channel_id, last_seen_ts, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET last_seen_ts = excluded.last_seen_ts, updated_at = excluded.updated_at`,
		channelID, ts, now,
	)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ResetCursors deletes all saved cursors.
func (s *SQLite) ResetCursors(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channel_cursors`); err != nil {
		return fmt.Errorf("reset cursors: %w", err)
	}
	return nil
}

// RecordRun inserts a completed pass record and populates its ID.
func (s *SQLite) RecordRun(ctx context.Context, run *model.SyncRun) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (started_at, finished_at, channels, notes_created, threads_updated, files_saved, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Channels, run.NotesCreated, run.ThreadsUpdated, run.FilesSaved,
		strings.Join(run.Errors, "\n"),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// ListRuns returns the most recent pass records, newest first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, channels, notes_created, threads_updated, files_saved, errors
		 FROM sync_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var started, finished, errs string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Channels,
			&r.NotesCreated, &r.ThreadsUpdated, &r.FilesSaved, &errs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		if errs != "" {
			r.Errors = strings.Split(errs, "\n")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
