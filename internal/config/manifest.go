package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// SessionManifest is the 0600 JSON file the CLI adapter writes per session
// for discovery by other commands (spec §4.4 step 4, §6).
type SessionManifest struct {
	ID        string  `json:"id"`
	Command   string  `json:"command"`
	CWD       string  `json:"cwd"`
	PID       int     `json:"pid"`
	JSONLFile *string `json:"jsonlFile"`
	StartedAt string  `json:"startedAt"`
}

// WriteSessionManifest writes a manifest atomically (temp file + rename) at
// mode 0600, the same pattern routes.go uses for its own JSONL state.
func WriteSessionManifest(path string, m SessionManifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal session manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write session manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename session manifest: %w", err)
	}
	return nil
}

// ReadSessionManifest reads and decodes a manifest file.
func ReadSessionManifest(path string) (SessionManifest, error) {
	var m SessionManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("config: read session manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("config: parse session manifest: %w", err)
	}
	return m, nil
}

// RemoveSessionManifest deletes a manifest file; a missing file is not an error.
func RemoveSessionManifest(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: remove session manifest: %w", err)
	}
	return nil
}

// PairedUser is one user who has completed the pairing exchange for a channel.
type PairedUser struct {
	UserID   string `json:"userId"`
	PairedAt string `json:"pairedAt"`
	Username string `json:"username,omitempty"`
}

// LinkedGroup is a group chat linked to receive session traffic.
type LinkedGroup struct {
	ChatID   string `json:"chatId"`
	Title    string `json:"title,omitempty"`
	LinkedAt string `json:"linkedAt"`
}

// ChannelConfig is one configured chat-network backend (spec §6).
type ChannelConfig struct {
	Type         string            `json:"type"`
	Credentials  map[string]string `json:"credentials,omitempty"`
	PairedUsers  []PairedUser      `json:"pairedUsers,omitempty"`
	LinkedGroups []LinkedGroup     `json:"linkedGroups,omitempty"`
}

// Settings are the daemon-wide tunables named in spec §6.
type Settings struct {
	OutputBatchMinMs     int    `json:"outputBatchMinMs,omitempty"`
	OutputBatchMaxMs     int    `json:"outputBatchMaxMs,omitempty"`
	OutputBufferMaxChars int    `json:"outputBufferMaxChars,omitempty"`
	MaxSessions          int    `json:"maxSessions,omitempty"`
	DefaultShell         string `json:"defaultShell,omitempty"`
}

// ChatPreference holds per-chat display preferences (spec §3). Zero values
// are not persisted — a nil pointer means "default".
type ChatPreference struct {
	OutputMode *string `json:"outputMode,omitempty"`
	Thinking   *bool   `json:"thinking,omitempty"`
	Muted      *bool   `json:"muted,omitempty"`
}

// DaemonConfig is the full 0600 JSON config file (spec §6).
type DaemonConfig struct {
	Channels        map[string]ChannelConfig  `json:"channels"`
	Settings        Settings                  `json:"settings"`
	ChatPreferences map[string]ChatPreference `json:"chatPreferences"`
}

const configLockTimeout = 2 * time.Second

// LoadDaemonConfig reads the config file, returning a populated-but-empty
// DaemonConfig if it doesn't exist yet.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), configLockTimeout)
	defer cancel()
	if ok, err := fl.TryRLockContext(ctx, 20*time.Millisecond); err == nil && ok {
		defer fl.Unlock()
	}

	cfg := DaemonConfig{
		Channels:        map[string]ChannelConfig{},
		ChatPreferences: map[string]ChatPreference{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read daemon config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse daemon config: %w", err)
	}
	if cfg.Channels == nil {
		cfg.Channels = map[string]ChannelConfig{}
	}
	if cfg.ChatPreferences == nil {
		cfg.ChatPreferences = map[string]ChatPreference{}
	}
	return cfg, nil
}

// SaveDaemonConfig writes cfg atomically under an exclusive lock, mode 0600.
func SaveDaemonConfig(path string, cfg DaemonConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), configLockTimeout)
	defer cancel()
	if ok, err := fl.TryLockContext(ctx, 20*time.Millisecond); err == nil && ok {
		defer fl.Unlock()
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal daemon config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write daemon config: %w", err)
	}
	return os.Rename(tmp, path)
}
