package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// campHeartbeatInterval must stay well under daemon.CampRegistry's active
// timeout so a live `tg camp` process never looks inactive between polls.
const campHeartbeatInterval = 5 * time.Second

type campRequest struct {
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
	Tool    string `json:"tool"`
	Project string `json:"project"`
}

// newCampCmd implements `tg camp --root <dir>` (spec §6, glossary "Camp"):
// registers as the external controller that turns a chat `/start` with no
// attached session into a newly spawned session rooted under --root.
func newCampCmd() *cobra.Command {
	var root string

	c := &cobra.Command{
		Use:   "camp",
		Short: "Run the Camp controller: spawn sessions from chat /start commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				return fmt.Errorf("--root is required")
			}
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			return runCamp(cmd.Context(), absRoot)
		},
	}
	c.Flags().StringVar(&root, "root", "", "directory new sessions are spawned under")
	_ = c.MarkFlagRequired("root")
	return c
}

func runCamp(ctx context.Context, root string) error {
	baseDir, err := tgBaseDir()
	if err != nil {
		return err
	}
	token, err := readOrCreateAuthToken(baseDir)
	if err != nil {
		return err
	}
	client, err := ensureDaemonRunning(ctx, baseDir, token)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Post(ctx, "/camp/register", map[string]any{"root": root}, nil); err != nil {
		return fmt.Errorf("register camp: %w", err)
	}
	log.Printf("camp: active, spawning sessions under %s", root)

	ticker := time.NewTicker(campHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := client.Post(ctx, "/camp/register", map[string]any{"root": root}, nil); err != nil {
				log.Printf("camp: heartbeat failed: %v", err)
				continue
			}
			var out struct {
				Requests []campRequest `json:"requests"`
			}
			if err := client.Get(ctx, "/camp/requests", &out); err != nil {
				log.Printf("camp: poll failed: %v", err)
				continue
			}
			for _, r := range out.Requests {
				spawnCampSession(ctx, root, r)
			}
		}
	}
}

// spawnCampSession starts `tg <tool> --channel <chatId>` detached, rooted
// at root/project (or root itself if project is empty), per spec §4.7's
// "/start [tool] [project]" dispatch.
func spawnCampSession(ctx context.Context, root string, r campRequest) {
	tool := r.Tool
	if tool == "" {
		tool = "claude"
	}
	dir := root
	if r.Project != "" {
		dir = filepath.Join(root, r.Project)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("camp: create project dir %s: %v", dir, err)
		return
	}

	exe, err := os.Executable()
	if err != nil {
		log.Printf("camp: resolve executable: %v", err)
		return
	}
	cmd := exec.Command(exe, tool, "--channel", r.ChatID)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		log.Printf("camp: spawn %s in %s: %v", tool, dir, err)
		return
	}
	go cmd.Wait()
}
