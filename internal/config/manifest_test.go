package config

import (
	"path/filepath"
	"testing"
)

func TestSessionManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions", "r-abc123.json")
	jsonl := "/home/dev/.claude/projects/-home-dev-myproj/abc.jsonl"
	want := SessionManifest{
		ID:        "r-abc123",
		Command:   "claude",
		CWD:       "/home/dev/myproj",
		PID:       4242,
		JSONLFile: &jsonl,
		StartedAt: "2026-07-30T12:00:00Z",
	}
	if err := WriteSessionManifest(path, want); err != nil {
		t.Fatalf("WriteSessionManifest: %v", err)
	}
	got, err := ReadSessionManifest(path)
	if err != nil {
		t.Fatalf("ReadSessionManifest: %v", err)
	}
	if got.ID != want.ID || got.Command != want.Command || got.PID != want.PID {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
	if got.JSONLFile == nil || *got.JSONLFile != jsonl {
		t.Fatalf("JSONLFile = %v, want %q", got.JSONLFile, jsonl)
	}

	if err := RemoveSessionManifest(path); err != nil {
		t.Fatalf("RemoveSessionManifest: %v", err)
	}
	if err := RemoveSessionManifest(path); err != nil {
		t.Fatalf("RemoveSessionManifest on missing file should be a no-op: %v", err)
	}
}

func TestSessionManifestNilJSONLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r-xyz.json")
	if err := WriteSessionManifest(path, SessionManifest{ID: "r-xyz", PID: 1}); err != nil {
		t.Fatalf("WriteSessionManifest: %v", err)
	}
	got, err := ReadSessionManifest(path)
	if err != nil {
		t.Fatalf("ReadSessionManifest: %v", err)
	}
	if got.JSONLFile != nil {
		t.Fatalf("JSONLFile = %v, want nil", got.JSONLFile)
	}
}

func TestLoadDaemonConfigMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadDaemonConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if cfg.Channels == nil || cfg.ChatPreferences == nil {
		t.Fatalf("expected initialized maps on a missing config file, got %+v", cfg)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("expected no channels, got %v", cfg.Channels)
	}
}

func TestSaveAndLoadDaemonConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	outputMode := "condensed"
	muted := true
	cfg := DaemonConfig{
		Channels: map[string]ChannelConfig{
			"telegram": {
				Type:        "telegram",
				Credentials: map[string]string{"botToken": "secret"},
				PairedUsers: []PairedUser{{UserID: "111", PairedAt: "2026-07-01T00:00:00Z"}},
			},
		},
		Settings: Settings{MaxSessions: 4, DefaultShell: "/bin/zsh"},
		ChatPreferences: map[string]ChatPreference{
			"111": {OutputMode: &outputMode, Muted: &muted},
		},
	}
	if err := SaveDaemonConfig(path, cfg); err != nil {
		t.Fatalf("SaveDaemonConfig: %v", err)
	}

	got, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	ch, ok := got.Channels["telegram"]
	if !ok {
		t.Fatalf("expected telegram channel, got %+v", got.Channels)
	}
	if ch.Credentials["botToken"] != "secret" {
		t.Fatalf("botToken = %q", ch.Credentials["botToken"])
	}
	if len(ch.PairedUsers) != 1 || ch.PairedUsers[0].UserID != "111" {
		t.Fatalf("PairedUsers = %+v", ch.PairedUsers)
	}
	pref, ok := got.ChatPreferences["111"]
	if !ok || pref.OutputMode == nil || *pref.OutputMode != "condensed" {
		t.Fatalf("ChatPreferences[111] = %+v", pref)
	}
	if pref.Muted == nil || !*pref.Muted {
		t.Fatalf("Muted = %v, want true", pref.Muted)
	}
	if got.Settings.MaxSessions != 4 {
		t.Fatalf("MaxSessions = %d, want 4", got.Settings.MaxSessions)
	}
}

func TestChatPreferenceZeroValuesNotPersisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := DaemonConfig{
		Channels:        map[string]ChannelConfig{},
		ChatPreferences: map[string]ChatPreference{"222": {}},
	}
	if err := SaveDaemonConfig(path, cfg); err != nil {
		t.Fatalf("SaveDaemonConfig: %v", err)
	}
	got, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	pref := got.ChatPreferences["222"]
	if pref.OutputMode != nil || pref.Thinking != nil || pref.Muted != nil {
		t.Fatalf("expected all-nil defaults, got %+v", pref)
	}
}
