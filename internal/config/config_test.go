package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"chatmirror/internal/model"
)

var configEnvKeys = []string{
	"SLACK_TOKEN", "VAULT_PATH", "CHANNELS", "DATABASE_PATH", "LOG_LEVEL",
	"SYNC_MODE", "SYNC_THREADS", "DOWNLOAD_FILES", "SYNC_INTERVAL_MINUTES",
	"NOTE_FOLDER", "NOTE_FILENAME", "GROUPED_FILENAME", "ENTRY_HEADER",
	"FRONTMATTER", "ATTACHMENT_FOLDER",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"VAULT_PATH": "/tmp/vault", "CHANNELS": "C1"},
			wantErr: true,
		},
		{
			name:    "missing vault path",
			env:     map[string]string{"SLACK_TOKEN": "tok", "CHANNELS": "C1"},
			wantErr: true,
		},
		{
			name:    "missing channels",
			env:     map[string]string{"SLACK_TOKEN": "tok", "VAULT_PATH": "/tmp/vault"},
			wantErr: true,
		},
		{
			name: "defaults applied",
			env: map[string]string{
				"SLACK_TOKEN": "tok",
				"VAULT_PATH":  "/tmp/vault",
				"CHANNELS":    "C1:general",
			},
			want: &Config{
				SlackToken:       "tok",
				VaultPath:        "/tmp/vault",
				DatabasePath:     "./data/chatmirror.db",
				LogLevel:         "info",
				Channels:         []model.Channel{{ID: "C1", Name: "general"}},
				Mode:             ModeIndividual,
				SyncThreads:      true,
				DownloadFiles:    true,
				NoteFolder:       "{channelName}",
				NoteFilename:     "{date} {timecompact} {userName}",
				GroupedFilename:  "{date}",
				EntryHeader:      "## {time} {userName}",
				Frontmatter:      "date: {date}\nchannel: {channelName}\nauthor: {userName}",
				AttachmentFolder: "{channelName}/files",
			},
		},
		{
			name: "full configuration",
			env: map[string]string{
				"SLACK_TOKEN":           "tok",
				"VAULT_PATH":            "/vault",
				"CHANNELS":              "C1:general, C2:random ,C3",
				"DATABASE_PATH":         "/tmp/m.db",
				"LOG_LEVEL":             "debug",
				"SYNC_MODE":             "grouped",
				"SYNC_THREADS":          "false",
				"DOWNLOAD_FILES":        "no",
				"SYNC_INTERVAL_MINUTES": "15",
				"NOTE_FOLDER":           "chats/{channelName}",
				"GROUPED_FILENAME":      "{date} {channelName}",
			},
			want: &Config{
				SlackToken:   "tok",
				VaultPath:    "/vault",
				DatabasePath: "/tmp/m.db",
				LogLevel:     "debug",
				Channels: []model.Channel{
					{ID: "C1", Name: "general"},
					{ID: "C2", Name: "random"},
					{ID: "C3", Name: "C3"},
				},
				Mode:             ModeGrouped,
				SyncThreads:      false,
				DownloadFiles:    false,
				IntervalMin:      15,
				NoteFolder:       "chats/{channelName}",
				NoteFilename:     "{date} {timecompact} {userName}",
				GroupedFilename:  "{date} {channelName}",
				EntryHeader:      "## {time} {userName}",
				Frontmatter:      "date: {date}\nchannel: {channelName}\nauthor: {userName}",
				AttachmentFolder: "{channelName}/files",
			},
		},
		{
			name: "invalid sync mode",
			env: map[string]string{
				"SLACK_TOKEN": "tok",
				"VAULT_PATH":  "/vault",
				"CHANNELS":    "C1",
				"SYNC_MODE":   "weekly",
			},
			wantErr: true,
		},
		{
			name: "invalid interval",
			env: map[string]string{
				"SLACK_TOKEN":           "tok",
				"VAULT_PATH":            "/vault",
				"CHANNELS":              "C1",
				"SYNC_INTERVAL_MINUTES": "soon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range configEnvKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
