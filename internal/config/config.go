// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"chatmirror/internal/model"
)

// SyncMode selects how top-level messages map onto notes.
type SyncMode string

// Supported sync modes.
const (
	// ModeIndividual writes one note file per message.
	ModeIndividual SyncMode = "individual"
	// ModeGrouped appends messages to one note per channel and day.
	ModeGrouped SyncMode = "grouped"
)

// Config holds the application configuration.
type Config struct {
	SlackToken   string
	VaultPath    string
	DatabasePath string
	LogLevel     string
	Channels     []model.Channel

	Mode          SyncMode
	SyncThreads   bool
	DownloadFiles bool
	IntervalMin   int

	NoteFolder       string
	NoteFilename     string
	GroupedFilename  string
	EntryHeader      string
	Frontmatter      string
	AttachmentFolder string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("SLACK_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("SLACK_TOKEN is required")
	}

	vault := os.Getenv("VAULT_PATH")
	if vault == "" {
		return nil, fmt.Errorf("VAULT_PATH is required")
	}

	channels, err := parseChannels(os.Getenv("CHANNELS"))
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("CHANNELS is required")
	}

	mode := SyncMode(envOr("SYNC_MODE", string(ModeIndividual)))
	if mode != ModeIndividual && mode != ModeGrouped {
		return nil, fmt.Errorf("invalid SYNC_MODE %q, use: individual, grouped", mode)
	}

	interval := 0
	if raw := os.Getenv("SYNC_INTERVAL_MINUTES"); raw != "" {
		interval, err = strconv.Atoi(raw)
		if err != nil || interval < 0 {
			return nil, fmt.Errorf("invalid SYNC_INTERVAL_MINUTES %q", raw)
		}
	}

	return &Config{
		SlackToken:   token,
		VaultPath:    vault,
		DatabasePath: envOr("DATABASE_PATH", "./data/chatmirror.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		Channels:     channels,

		Mode:          mode,
		SyncThreads:   envBool("SYNC_THREADS", true),
		DownloadFiles: envBool("DOWNLOAD_FILES", true),
		IntervalMin:   interval,

		NoteFolder:       envOr("NOTE_FOLDER", "{channelName}"),
		NoteFilename:     envOr("NOTE_FILENAME", "{date} {timecompact} {userName}"),
		GroupedFilename:  envOr("GROUPED_FILENAME", "{date}"),
		EntryHeader:      envOr("ENTRY_HEADER", "## {time} {userName}"),
		Frontmatter:      envOr("FRONTMATTER", "date: {date}\nchannel: {channelName}\nauthor: {userName}"),
		AttachmentFolder: envOr("ATTACHMENT_FOLDER", "{channelName}/files"),
	}, nil
}

// parseChannels parses a comma-separated "id:name" list.
// The name part is optional; a bare id uses the id as its name.
func parseChannels(raw string) ([]model.Channel, error) {
	var channels []model.Channel
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, ok := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("invalid channel entry %q in CHANNELS", part)
		}
		if !ok || name == "" {
			name = id
		}
		channels = append(channels, model.Channel{ID: id, Name: name})
	}
	return channels, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
