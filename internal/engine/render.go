package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatmirror/internal/config"
	"chatmirror/internal/markup"
	"chatmirror/internal/model"
	"chatmirror/internal/note"
	"chatmirror/internal/source"
	"chatmirror/internal/tmpl"
	"chatmirror/internal/vault"
)

// writeNote renders one top-level message and creates or appends the
// note appropriate to the configured mode.
func (e *Engine) writeNote(ctx context.Context, ch model.Channel, m *model.Message, res *model.ChannelResult) error {
	author := e.authorName(ctx, m)
	vars := tmpl.NewVars(m.Ts, ch.Name, author)

	body := e.renderBody(ctx, ch, m, vars, res)

	var thread string
	if e.cfg.SyncThreads && m.ReplyCount > 0 {
		_, section, err := e.fetchRenderedThread(ctx, ch.ID, m.Ts)
		if err != nil {
			// The note is still written; only the thread section is lost
			// until a later retrofit picks it up.
			res.Errors = append(res.Errors, fmt.Sprintf("thread %s: %v", m.Ts, err))
		} else {
			thread = section
		}
	}

	entry := note.Entry{
		Ts:     m.Ts,
		Author: author,
		Header: tmpl.Render(e.cfg.EntryHeader, vars.WithText(firstLine(body))),
		Body:   body,
		Thread: thread,
	}
	frontmatter := "---\n" + tmpl.Render(e.cfg.Frontmatter, vars) + "\n---\n"

	folder := tmpl.SanitizePath(tmpl.Render(e.cfg.NoteFolder, vars))
	if folder != "" {
		if err := e.vault.EnsureFolder(folder); err != nil {
			return err
		}
	}

	if e.cfg.Mode == config.ModeGrouped {
		return e.writeGrouped(folder, vars, frontmatter, entry, res)
	}
	return e.writeIndividual(folder, vars, frontmatter, entry, res)
}

// writeIndividual creates a one-message note. An already existing target
// file is the dedup signal: individual notes are immutable once written.
func (e *Engine) writeIndividual(folder string, vars tmpl.Vars, frontmatter string, entry note.Entry, res *model.ChannelResult) error {
	path := joinNotePath(folder, tmpl.Render(e.cfg.NoteFilename, vars))
	err := e.vault.CreateText(path, note.BuildIndividual(frontmatter, entry))
	if errors.Is(err, vault.ErrExists) {
		e.log.Debug("note exists, skipping", "path", path, "ts", entry.Ts)
		return nil
	}
	if err != nil {
		return err
	}
	res.NotesCreated++
	return nil
}

// writeGrouped appends the entry to the channel's daily note, creating
// it on first write. The identity marker dedups re-served messages and
// the contributing author is merged into the frontmatter author set.
func (e *Engine) writeGrouped(folder string, vars tmpl.Vars, frontmatter string, entry note.Entry, res *model.ChannelResult) error {
	path := joinNotePath(folder, tmpl.Render(e.cfg.GroupedFilename, vars))

	existing, err := e.vault.ReadText(path)
	if errors.Is(err, vault.ErrNotFound) {
		if err := e.vault.CreateText(path, note.BuildGrouped(frontmatter, entry)); err != nil {
			return err
		}
		res.NotesCreated++
		return nil
	}
	if err != nil {
		return err
	}

	merged, appended := note.AppendEntry(existing, entry)
	if !appended {
		e.log.Debug("entry exists, skipping", "path", path, "ts", entry.Ts)
		return nil
	}
	if err := e.vault.ModifyText(path, merged); err != nil {
		return err
	}
	res.NotesCreated++
	return nil
}

// renderBody converts the message text and renders attachment embeds.
// A message with attachments and an empty body is a bare file drop: it
// gets a short title-derived caption instead of converted body text.
func (e *Engine) renderBody(ctx context.Context, ch model.Channel, m *model.Message, vars tmpl.Vars, res *model.ChannelResult) string {
	resolver := func(id string) string { return e.users.Resolve(ctx, id) }

	var parts []string
	if strings.TrimSpace(m.Text) == "" && len(m.Attachments) > 0 {
		parts = append(parts, attachmentCaption(m.Attachments[0]))
	} else {
		parts = append(parts, markup.Convert(m.Text, resolver))
	}

	for _, att := range m.Attachments {
		embed, err := e.attachmentEmbed(ctx, att, vars, res)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("file %s: %v", att.Name, err))
			continue
		}
		parts = append(parts, embed)
	}
	return strings.Join(parts, "\n\n")
}

// attachmentEmbed downloads the attachment into the vault (unless
// downloads are disabled, in which case it links the remote URL) and
// returns the Markdown embed for it.
func (e *Engine) attachmentEmbed(ctx context.Context, att model.Attachment, vars tmpl.Vars, res *model.ChannelResult) (string, error) {
	label := attachmentCaption(att)
	if !e.cfg.DownloadFiles {
		return fmt.Sprintf("[%s](%s)", label, att.URL), nil
	}

	folder := tmpl.SanitizePath(tmpl.Render(e.cfg.AttachmentFolder, vars))
	if err := e.vault.EnsureFolder(folder); err != nil {
		return "", err
	}

	name := tmpl.SanitizeFilename(att.Name)
	if name == "" {
		name = tmpl.SanitizeFilename(att.ID)
	}
	path, err := e.vault.FreePath(folder + "/" + name)
	if err != nil {
		return "", err
	}

	data, err := e.src.DownloadAttachment(ctx, att.URL)
	if err != nil {
		return "", err
	}
	if err := e.vault.CreateBinary(path, data); err != nil {
		return "", err
	}

	res.FilesSaved++
	if strings.HasPrefix(att.Mimetype, "image/") {
		return fmt.Sprintf("![%s](%s)", label, path), nil
	}
	return fmt.Sprintf("[%s](%s)", label, path), nil
}

// fetchRenderedThread fetches a thread, resolves any newly-seen
// participants, and renders its reply section.
func (e *Engine) fetchRenderedThread(ctx context.Context, channelID, rootTs string) (*source.Thread, string, error) {
	thread, err := e.src.GetThread(ctx, channelID, rootTs)
	if err != nil {
		return nil, "", err
	}

	// Reply bodies can reference users the batch never mentioned.
	e.resolveUsers(ctx, batchUserIDs(append([]model.Message{*thread.Root}, thread.Replies...)))

	resolver := func(id string) string { return e.users.Resolve(ctx, id) }
	replies := make([]note.ThreadReply, 0, len(thread.Replies))
	for i := range thread.Replies {
		r := &thread.Replies[i]
		replies = append(replies, note.ThreadReply{
			Ts:     r.Ts,
			Author: e.authorName(ctx, r),
			Body:   markup.Convert(r.Text, resolver),
		})
	}
	return thread, note.RenderThread(replies), nil
}

// retrofitThread re-opens the note holding rootTs and replaces or
// appends its thread section with the freshly fetched reply set.
func (e *Engine) retrofitThread(ctx context.Context, ch model.Channel, rootTs string, res *model.ChannelResult) error {
	thread, section, err := e.fetchRenderedThread(ctx, ch.ID, rootTs)
	if err != nil {
		return err
	}

	// Recompute the note path from the root message, the same way the
	// top-level path built it when the root was first written.
	author := e.authorName(ctx, thread.Root)
	vars := tmpl.NewVars(rootTs, ch.Name, author)
	folder := tmpl.SanitizePath(tmpl.Render(e.cfg.NoteFolder, vars))

	var path string
	if e.cfg.Mode == config.ModeGrouped {
		path = joinNotePath(folder, tmpl.Render(e.cfg.GroupedFilename, vars))
	} else {
		path = joinNotePath(folder, tmpl.Render(e.cfg.NoteFilename, vars))
	}

	existing, err := e.vault.ReadText(path)
	if errors.Is(err, vault.ErrNotFound) {
		// The root predates the first sync; there is no note to update.
		e.log.Debug("no note for thread root", "ts", rootTs, "path", path)
		return nil
	}
	if err != nil {
		return err
	}

	updated, found := note.RetrofitThread(existing, rootTs, section)
	if !found {
		e.log.Debug("no entry marker for thread root", "ts", rootTs, "path", path)
		return nil
	}
	if updated == existing {
		return nil // byte-identical, not counted as an update
	}
	if err := e.vault.ModifyText(path, updated); err != nil {
		return err
	}
	res.ThreadsUpdated++
	return nil
}

func joinNotePath(folder, name string) string {
	file := tmpl.SanitizeFilename(name) + ".md"
	if folder == "" {
		return file
	}
	return folder + "/" + file
}

func attachmentCaption(att model.Attachment) string {
	if att.Title != "" {
		return att.Title
	}
	if att.Name != "" {
		return att.Name
	}
	return att.ID
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
