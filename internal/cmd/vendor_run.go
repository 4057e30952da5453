package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"touchgrass/internal/adapter"
	"touchgrass/internal/config"
)

// newVendorCmd builds `tg claude|codex|pi|kimi [--channel <value>]
// [--agent-mode] [args...]` (spec §4.4): the short-lived foreground process
// that registers a session with the daemon and drives the assistant CLI.
func newVendorCmd(vendor adapter.Vendor, command string) *cobra.Command {
	var channel string
	var agentMode bool

	c := &cobra.Command{
		Use:                command + " [args...]",
		Short:              fmt.Sprintf("Run %s under touchgrass", command),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVendor(cmd.Context(), vendorRunOpts{
				vendor:    vendor,
				command:   command,
				args:      args,
				channel:   channel,
				agentMode: agentMode,
			})
		},
	}
	c.Flags().StringVar(&channel, "channel", "", "bind this session to a chat ID instead of the interactive picker")
	c.Flags().BoolVar(&agentMode, "agent-mode", false, "drive the assistant one turn at a time instead of an attached PTY")
	return c
}

type vendorRunOpts struct {
	vendor     adapter.Vendor
	command    string
	args       []string
	channel    string
	agentMode  bool
	existingID string // reconnect path: resume an existing session record (spec §3)
}

// runVendor implements spec §4.4 steps 1-5: resolve the owner, ensure the
// daemon, register, bind a chat, write the manifest, then hand off to
// interactive or agent mode.
func runVendor(ctx context.Context, opts vendorRunOpts) error {
	baseDir, err := tgBaseDir()
	if err != nil {
		return err
	}
	token, err := readOrCreateAuthToken(baseDir)
	if err != nil {
		return err
	}

	ownerUserID, err := resolvePairedOwner(tgConfigPath(baseDir))
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve cwd: %w", err)
	}

	client, err := ensureDaemonRunning(ctx, baseDir, token)
	if err != nil {
		return err
	}

	var reg struct {
		SessionID    string   `json:"sessionId"`
		DMBusy       bool     `json:"dmBusy"`
		LinkedGroups []string `json:"linkedGroups"`
	}
	err = client.Post(ctx, "/remote/register", map[string]any{
		"command":     fullCommandLine(opts.command, opts.args),
		"chatId":      opts.channel,
		"ownerUserId": ownerUserID,
		"cwd":         cwd,
		"existingId":  opts.existingID,
	}, &reg)
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}

	chatID := opts.channel
	if chatID == "" {
		chatID, err = pickChannel(ctx, client, reg.LinkedGroups)
		if err != nil {
			return err
		}
	}
	if chatID != "" {
		if err := client.Post(ctx, "/remote/bind-chat", map[string]any{
			"sessionId": reg.SessionID,
			"chatId":    chatID,
		}, nil); err != nil {
			return fmt.Errorf("bind chat: %w", err)
		}
	}

	manifestPath := tgManifestPath(baseDir, reg.SessionID)

	agentsMD := readAgentsMD(cwd)

	spawnCfg := adapter.Config{
		Vendor:        opts.vendor,
		Command:       opts.command,
		Args:          opts.args,
		CWD:           cwd,
		ChatID:        chatID,
		OwnerUserID:   ownerUserID,
		SessionID:     reg.SessionID,
		DaemonBaseURL: daemonBaseURL,
		AuthToken:     token,
		ManifestPath:  manifestPath,
		Prompt:        vendorApprovalPrompt(opts.vendor),
		Columns:       80,
		Rows:          24,
		AgentsMD:      agentsMD,
	}

	var exitCode int
	if opts.agentMode {
		exitCode, err = adapter.SpawnAgentMode(ctx, spawnCfg)
	} else {
		exitCode, err = adapter.Spawn(ctx, spawnCfg)
	}
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func fullCommandLine(command string, args []string) string {
	out := command
	for _, a := range args {
		out += " " + a
	}
	return out
}

// resolvePairedOwner reads the local daemon config for the first paired
// Telegram user, failing fast per spec §4.4 step 1 ("fail fast if unpaired").
func resolvePairedOwner(configPath string) (string, error) {
	cfg, err := config.LoadDaemonConfig(configPath)
	if err != nil {
		return "", err
	}
	tg := cfg.Channels["telegram"]
	if len(tg.PairedUsers) == 0 {
		return "", fmt.Errorf("no paired Telegram user yet; run `tg pair` first")
	}
	return tg.PairedUsers[0].UserID, nil
}

// pickChannel presents a terminal picker over the daemon's linked groups
// plus the owner DM when --channel wasn't given (spec §4.4 step 3).
func pickChannel(ctx context.Context, client *daemonClient, linkedGroups []string) (string, error) {
	if len(linkedGroups) == 0 {
		return "", nil
	}
	fmt.Println("Select a channel:")
	fmt.Println("  0) owner DM (default)")
	for i, g := range linkedGroups {
		fmt.Printf("  %d) %s\n", i+1, g)
	}
	fmt.Print("> ")
	var choice int
	if _, err := fmt.Scanln(&choice); err != nil {
		return "", nil
	}
	if choice <= 0 || choice > len(linkedGroups) {
		return "", nil
	}
	return linkedGroups[choice-1], nil
}

func readAgentsMD(cwd string) string {
	data, err := os.ReadFile(filepath.Join(cwd, "AGENTS.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// vendorApprovalPrompt returns the per-vendor {promptText, optionText} tuple
// (spec §4.4.1). Pi and Kimi have none defined yet, so approval-prompt
// detection is simply inert for them (ExtractApprovalPrompt never matches a
// zero-value VendorPrompt).
func vendorApprovalPrompt(v adapter.Vendor) adapter.VendorPrompt {
	switch v {
	case adapter.VendorClaude:
		return adapter.ClaudePrompt
	case adapter.VendorCodex:
		return adapter.CodexPrompt
	default:
		return adapter.VendorPrompt{}
	}
}
