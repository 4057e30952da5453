package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"touchgrass/internal/activitylog"
	"touchgrass/internal/board"
	"touchgrass/internal/bridge"
	"touchgrass/internal/config"
	"touchgrass/internal/daemon"
	"touchgrass/internal/router"
)

// newDaemonRunCmd returns the hidden command that runs the real daemon
// process (spec §4.1/§4.6/§4.10): the Session Manager, the authenticated
// control server, the Telegram long-poll bridge, and the reaper/auto-stop
// timers. `tg claude|codex|...` spawns this in the background the first
// time EnsureDaemonHealthy fails (see client.go).
func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_daemon",
		Short:  "Run the touchgrass daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	baseDir, err := tgBaseDir()
	if err != nil {
		return err
	}
	token, err := readOrCreateAuthToken(baseDir)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tgPidPath(baseDir), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(tgPidPath(baseDir))

	daemon.ReapRedundantDaemons(os.Getpid())

	pairing, err := newPairingStore(tgConfigPath(baseDir))
	if err != nil {
		return err
	}

	tgCfg, err := config.LoadDaemonConfig(tgConfigPath(baseDir))
	if err != nil {
		return err
	}
	botToken := tgCfg.Channels["telegram"].Credentials["bot_token"]

	manager := daemon.NewManager()

	var chat *bridge.Telegram
	if botToken != "" {
		chat = &bridge.Telegram{Token: botToken}
	}

	store := board.NewStore(tgSessionsDir(baseDir) + "/status-boards.json")
	var sender board.ChatSender
	if chat != nil {
		sender = chat
	}
	jobs := board.NewTracker(sender, store)

	logPath := baseDir + "/activity.jsonl"
	activityLog := activitylog.New(true, logPath, "daemon", "")
	defer activityLog.Close()

	events := &eventSink{Manager: manager, Jobs: jobs, Log: activityLog}
	if chat != nil {
		events.Chat = chat
	}

	camp := daemon.NewCampRegistry()
	rtr := &router.Router{
		Manager:     manager,
		Pairing:     pairing,
		Links:       pairing,
		Preferences: pairing,
		Camp:        camp,
		BotName:     "touchgrassbot",
	}

	if chat != nil {
		chat.OnDeadChat = func(chatID string) {
			log.Printf("daemon: chat %s marked dead after repeated send failures", chatID)
		}
		handler := func(in bridge.InboundChat) {
			result := rtr.Dispatch(router.Inbound{ChatID: in.ChatID, UserID: in.UserID, Text: in.Text, IsGroup: in.IsGroup})
			if result.Reply != "" {
				_ = chat.Send(in.ChatID, result.Reply)
			}
			if result.Injected {
				manager.EnqueueInput(mustAttachedSession(manager, in.ChatID), in.Text)
			}
		}
		if err := chat.Start(context.Background(), handler); err != nil {
			return fmt.Errorf("start telegram bridge: %w", err)
		}
		defer chat.Stop()
	}

	startedAt := time.Now()
	server := &daemon.Server{
		Manager:   manager,
		AuthToken: token,
		StartedAt: startedAt,
		Events:    events,
		Channels:  pairing,
		Codes:     pairing,
		Camp:      camp,
	}

	unixLn, tcpLn, err := daemon.ListenSocketAndTCP(tgSocketPath(baseDir), "")
	if err != nil {
		return err
	}

	lifecycle := daemon.NewLifecycle(manager, chatNotifierOrNil(chat))
	stop := make(chan struct{})
	go lifecycle.RunStaleReaper(stop)
	go jobs.RunReconcileLoop(stop)

	shutdownOnce := make(chan struct{})
	var closeShutdown sync.Once
	signalShutdown := func() { closeShutdown.Do(func() { close(shutdownOnce) }) }
	lifecycle.Shutdown = signalShutdown
	go runSessionCountWatcher(lifecycle, stop)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server.OnShutdown = signalShutdown

	go server.Serve(unixLn, tcpLn)
	log.Printf("daemon: listening on %s (pid %d)", tgSocketPath(baseDir), os.Getpid())

	select {
	case <-ctx.Done():
	case <-shutdownOnce:
	}

	close(stop)
	unixLn.Close()
	if tcpLn != nil {
		tcpLn.Close()
	}
	_ = os.Remove(tgSocketPath(baseDir))
	return nil
}

func chatNotifierOrNil(chat *bridge.Telegram) daemon.ChatNotifier {
	if chat == nil {
		return nil
	}
	return chat
}

// runSessionCountWatcher re-arms/cancels the auto-stop timer on a tick since
// Manager has no direct count-changed hook to call lifecycle from (spec
// §4.10's 30s idle auto-stop). OnSessionCountChanged is idempotent, so a
// short poll interval is sufficient rather than exact event-driven calls.
func runSessionCountWatcher(lifecycle *daemon.Lifecycle, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lifecycle.OnSessionCountChanged()
		case <-stop:
			return
		}
	}
}

// mustAttachedSession resolves the session id a group/DM chat is currently
// attached to, for queuing plain-text input (spec §4.7's "Injected" path).
func mustAttachedSession(m *daemon.Manager, chatID string) string {
	sess, _ := m.GetAttachedRemote(chatID)
	if sess == nil {
		return ""
	}
	return sess.ID
}
