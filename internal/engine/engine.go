// Package engine implements the sync reconciliation pass: it pages new
// messages out of the message source per channel, classifies and
// deduplicates them, writes notes through the vault store, and retrofits
// previously written notes whose threads gained replies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"chatmirror/internal/config"
	"chatmirror/internal/markup"
	"chatmirror/internal/model"
	"chatmirror/internal/source"
	"chatmirror/internal/storage"
	"chatmirror/internal/users"
	"chatmirror/internal/vault"
)

// ErrPassInProgress is returned when a pass is triggered while another
// one is still running. The trigger is rejected, not queued.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Message subtypes that still carry author-visible content. Everything
// else with a subtype is channel housekeeping and is skipped.
var contentSubtypes = map[string]bool{
	"file_share":       true,
	"bot_message":      true,
	"me_message":       true,
	"thread_broadcast": true,
}

// Engine orchestrates sync passes. Exactly one pass may be active at a
// time, guarded by a compare-and-set flag cleared on every exit path.
type Engine struct {
	src   source.Source
	vault vault.Store
	db    storage.Storage
	users *users.Cache
	cfg   *config.Config
	log   *slog.Logger

	inFlight atomic.Bool

	// Sequential sleeps keeping the pass inside the source's request
	// rate budget. The whole pass is latency-bound on purpose.
	pageDelay time.Duration
	userDelay time.Duration
	pageSize  int
}

// New creates an Engine wired to its collaborators.
func New(src source.Source, store vault.Store, db storage.Storage, cache *users.Cache, cfg *config.Config, log *slog.Logger) *Engine {
	return &Engine{
		src:       src,
		vault:     store,
		db:        db,
		users:     cache,
		cfg:       cfg,
		log:       log,
		pageDelay: 1200 * time.Millisecond,
		userDelay: 300 * time.Millisecond,
		pageSize:  200,
	}
}

// SetDelays overrides the inter-page and per-lookup delays (useful for testing).
func (e *Engine) SetDelays(page, user time.Duration) {
	e.pageDelay = page
	e.userDelay = user
}

// RunPass syncs all given channels once, sequentially. A concurrent call
// while a pass is active returns ErrPassInProgress with no results.
func (e *Engine) RunPass(ctx context.Context, channels []model.Channel) ([]model.ChannelResult, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer e.inFlight.Store(false)

	results := make([]model.ChannelResult, 0, len(channels))
	for _, ch := range channels {
		res := e.syncChannel(ctx, ch)
		results = append(results, res)
	}
	return results, nil
}

// syncChannel runs the per-channel algorithm. Every failure is recorded
// in the result; one bad channel never aborts the pass.
func (e *Engine) syncChannel(ctx context.Context, ch model.Channel) model.ChannelResult {
	res := model.ChannelResult{ChannelID: ch.ID, ChannelName: ch.Name}

	cursor, err := e.db.GetCursor(ctx, ch.ID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("channel %s: %v", ch.ID, err))
		return res
	}
	res.Cursor = cursor

	batch, err := e.fetchBatch(ctx, ch.ID, cursor)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("channel %s: %v", ch.ID, err))
		return res
	}
	e.log.Debug("fetched batch", "channel", ch.ID, "messages", len(batch), "cursor", cursor)

	// The source does not guarantee order across pages; sort the whole
	// batch numerically by timestamp before anything else looks at it.
	sort.Slice(batch, func(i, j int) bool {
		return model.TsLess(batch[i].Ts, batch[j].Ts)
	})

	// First pass: classify. The retrofit candidate set depends on having
	// seen the entire batch, so no rendering happens here.
	var topLevel []model.Message
	topLevelIDs := make(map[string]bool)
	replyParents := make(map[string]bool)
	maxTs := cursor
	for _, m := range batch {
		if cursor != "" && !model.TsLess(cursor, m.Ts) {
			continue // at or below the watermark, already processed
		}
		// Skipped messages still advance the watermark.
		if maxTs == "" || model.TsLess(maxTs, m.Ts) {
			maxTs = m.Ts
		}
		switch {
		case m.IsThreadReply():
			replyParents[m.ThreadTs] = true
		case skippable(&m):
		default:
			topLevel = append(topLevel, m)
			topLevelIDs[m.Ts] = true
		}
	}

	// Resolve every referenced user once, before any rendering, so no
	// note ends up with a mix of resolved and raw ids.
	e.resolveUsers(ctx, batchUserIDs(batch))

	// Second pass: render top-level messages in ascending order.
	for i := range topLevel {
		if err := e.writeNote(ctx, ch, &topLevel[i], &res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("message %s: %v", topLevel[i].Ts, err))
		}
	}

	// Persist the cursor now, before thread retrofit: a retrofit failure
	// must not cause top-level messages to be reprocessed next pass.
	if maxTs != "" && maxTs != cursor {
		if err := e.db.SetCursor(ctx, ch.ID, maxTs); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("channel %s: %v", ch.ID, err))
		} else {
			res.Cursor = maxTs
		}
	}

	// Thread retrofit: parents seen only as replies in this batch. A
	// root arriving together with its replies was already rendered with
	// its thread by the top-level path.
	if e.cfg.SyncThreads {
		for _, parent := range sortedKeys(replyParents) {
			if topLevelIDs[parent] {
				continue
			}
			if err := e.retrofitThread(ctx, ch, parent, &res); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("thread %s: %v", parent, err))
			}
		}
	}

	e.log.Info("channel synced", "channel", ch.ID,
		"notes", res.NotesCreated, "threads", res.ThreadsUpdated,
		"files", res.FilesSaved, "errors", len(res.Errors))
	return res
}

// fetchBatch pages through history from the cursor to the present,
// accumulating the full batch in memory.
func (e *Engine) fetchBatch(ctx context.Context, channelID, cursor string) ([]model.Message, error) {
	var batch []model.Message
	pageCursor := ""
	for {
		page, err := e.src.ListHistory(ctx, channelID, cursor, pageCursor, e.pageSize)
		if err != nil {
			return nil, err
		}
		batch = append(batch, page.Messages...)
		if !page.HasMore || page.NextCursor == "" {
			return batch, nil
		}
		pageCursor = page.NextCursor
		time.Sleep(e.pageDelay)
	}
}

// skippable reports whether a message carries no author-visible content:
// housekeeping subtypes, or an empty body with no attachments.
func skippable(m *model.Message) bool {
	if m.Subtype != "" && !contentSubtypes[m.Subtype] {
		return true
	}
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// batchUserIDs collects the union of message authors and every user id
// mentioned inline in message bodies.
func batchUserIDs(batch []model.Message) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range batch {
		add(batch[i].User)
		for _, id := range markup.MentionIDs(batch[i].Text) {
			add(id)
		}
	}
	return ids
}

// resolveUsers warms the user cache, pausing before each remote lookup
// to stay inside the per-user request budget. Cache hits cost nothing.
func (e *Engine) resolveUsers(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, ok := e.users.Peek(id); ok {
			continue
		}
		time.Sleep(e.userDelay)
		e.users.Resolve(ctx, id)
	}
}

// authorName returns the display name for a message's author.
func (e *Engine) authorName(ctx context.Context, m *model.Message) string {
	switch {
	case m.User != "":
		return e.users.Resolve(ctx, m.User)
	case m.BotID != "":
		return m.BotID
	default:
		return "unknown"
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return model.TsLess(keys[i], keys[j]) })
	return keys
}
