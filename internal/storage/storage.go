// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"chatmirror/internal/model"
)

// Storage is the interface for all persistence operations: per-channel
// sync cursors and the pass run log.
type Storage interface {
	// GetCursor returns the saved watermark for a channel, or "" when
	// the channel has never completed a pass.
	GetCursor(ctx context.Context, channelID string) (string, error)
	// SetCursor saves the watermark for a channel.
	SetCursor(ctx context.Context, channelID, ts string) error
	// ResetCursors deletes all cursors. Explicit user reset is the only
	// path that ever removes one.
	ResetCursors(ctx context.Context) error

	RecordRun(ctx context.Context, run *model.SyncRun) error
	ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	Close() error
}
