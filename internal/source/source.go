// Package source defines the message source interface consumed by the
// sync engine. Implementations live in subpackages.
package source

import (
	"context"
	"fmt"

	"chatmirror/internal/model"
)

// HistoryPage is one page of channel history.
type HistoryPage struct {
	Messages   []model.Message
	HasMore    bool
	NextCursor string
}

// Thread is a full conversation thread: the root message plus its
// replies in source order.
type Thread struct {
	Root    *model.Message
	Replies []model.Message
}

// Source is the remote chat API consumed by the engine. All calls block
// until the transport resolves; the engine layers its own inter-page
// delays on top.
type Source interface {
	// ListHistory returns one page of messages newer than oldest.
	// An empty oldest means the beginning of history; pageCursor
	// continues a previous page's NextCursor.
	ListHistory(ctx context.Context, channelID, oldest, pageCursor string, limit int) (*HistoryPage, error)

	// GetThread fetches a thread root and all of its replies.
	GetThread(ctx context.Context, channelID, rootTs string) (*Thread, error)

	// ResolveUser looks up a user by id.
	ResolveUser(ctx context.Context, id string) (*model.UserInfo, error)

	// DownloadAttachment fetches the raw bytes of an uploaded file.
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
}

// TransportError is a failure reported by the remote API, carrying the
// human-readable reason from the wire.
type TransportError struct {
	Op     string
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
