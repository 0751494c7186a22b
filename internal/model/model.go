// Package model defines the domain types used across the application.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Channel identifies one chat channel to mirror.
type Channel struct {
	ID   string
	Name string
}

// Attachment describes a file uploaded with a message.
type Attachment struct {
	ID       string
	Name     string
	Title    string
	Mimetype string
	URL      string
}

// Message is a single chat message as returned by the message source.
// Its identity is the Ts string, a fixed-point "seconds.microseconds"
// timestamp unique within a channel.
type Message struct {
	Ts          string
	ThreadTs    string
	User        string
	Text        string
	Subtype     string
	BotID       string
	ReplyCount  int
	Attachments []Attachment
}

// IsThreadReply reports whether the message is a reply inside a thread.
// A message whose ThreadTs equals its own Ts is a thread root, not a reply.
func (m *Message) IsThreadReply() bool {
	return m.ThreadTs != "" && m.ThreadTs != m.Ts
}

// UserInfo is a resolved workspace user.
type UserInfo struct {
	ID          string
	Name        string
	RealName    string
	DisplayName string
}

// Label returns the best human-readable name for the user.
func (u *UserInfo) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.RealName != "" {
		return u.RealName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// ChannelResult aggregates the outcome of syncing one channel in a pass.
type ChannelResult struct {
	ChannelID      string
	ChannelName    string
	NotesCreated   int
	ThreadsUpdated int
	FilesSaved     int
	Cursor         string
	Errors         []string
}

// SyncRun is the persisted record of one completed sync pass.
type SyncRun struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Channels       int
	NotesCreated   int
	ThreadsUpdated int
	FilesSaved     int
	Errors         []string
}

// TsLess compares two fixed-point timestamps numerically.
// Returns true when a < b.
func TsLess(a, b string) bool {
	as, au := splitTs(a)
	bs, bu := splitTs(b)
	if as != bs {
		return as < bs
	}
	return au < bu
}

// TsTime converts a fixed-point timestamp to a time.Time in UTC.
func TsTime(ts string) time.Time {
	sec, usec := splitTs(ts)
	return time.Unix(sec, usec*1000).UTC()
}

func splitTs(ts string) (sec, usec int64) {
	intPart, frac, _ := strings.Cut(ts, ".")
	sec, _ = strconv.ParseInt(intPart, 10, 64)
	// Fractional digits are microseconds, right-padded to six places.
	for len(frac) < 6 {
		frac += "0"
	}
	usec, _ = strconv.ParseInt(frac[:6], 10, 64)
	return sec, usec
}
