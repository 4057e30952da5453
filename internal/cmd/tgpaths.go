package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"touchgrass/internal/config"
)

// tgBaseDir resolves the directory the daemon's state files live under:
// the control socket, pid file, auth token, daemon-config.json, and one
// session manifest per registered CLI.
func tgBaseDir() (string, error) {
	dir := config.ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create touchgrass dir: %w", err)
	}
	return dir, nil
}

func tgSocketPath(baseDir string) string  { return filepath.Join(baseDir, "daemon.sock") }
func tgPidPath(baseDir string) string     { return filepath.Join(baseDir, "daemon.pid") }
func tgTokenPath(baseDir string) string   { return filepath.Join(baseDir, "daemon.token") }
func tgConfigPath(baseDir string) string  { return filepath.Join(baseDir, "daemon-config.json") }
func tgSessionsDir(baseDir string) string { return filepath.Join(baseDir, "sessions") }

func tgManifestPath(baseDir, sessionID string) string {
	return filepath.Join(tgSessionsDir(baseDir), sessionID+".json")
}

// readOrCreateAuthToken loads the daemon's auth token file, generating a
// fresh random one on first run (spec §4.6).
func readOrCreateAuthToken(baseDir string) (string, error) {
	path := tgTokenPath(baseDir)
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("write auth token: %w", err)
	}
	return token, nil
}
