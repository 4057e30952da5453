package adapter

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"touchgrass/internal/config"
	"touchgrass/internal/control"
	"touchgrass/internal/parser"
)

// killEscalateDelay is how long a SIGTERM'd agent-mode turn gets before
// SIGKILL (spec §4.4 agent mode: "escalating to SIGKILL after 1 s").
const killEscalateDelay = 1 * time.Second

// SpawnAgentMode runs the adapter's agent-mode loop (spec §4.4): no PTY,
// one vendor subprocess per queued input turn, session continuity kept via
// the vendor's own resume flag. It blocks until ctx is canceled or the
// daemon removes the session (a /remote/<id>/input poll reporting unknown).
func SpawnAgentMode(ctx context.Context, cfg Config) (exitCode int, err error) {
	client := &http.Client{Timeout: 10 * time.Second}
	s := &session{
		cfg:    cfg,
		client: client,
		ring:   newApprovalRing(approvalRingSize),
	}

	if cfg.ManifestPath != "" {
		_ = config.WriteSessionManifest(cfg.ManifestPath, config.SessionManifest{
			ID:        cfg.SessionID,
			Command:   cfg.Command,
			CWD:       cfg.CWD,
			StartedAt: time.Now().Format(time.RFC3339),
		})
	}
	defer config.RemoveSessionManifest(cfg.ManifestPath)

	a := &agentRunner{session: s}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.reportExit(130)
			return 130, nil
		case <-ticker.C:
			input, action := s.fetchQueuedInput()
			if action != nil && action.Kind == control.Kill {
				a.reportExit(137)
				return 137, nil
			}
			for _, text := range input {
				if ctx.Err() != nil {
					break
				}
				a.runTurn(ctx, text)
			}
		}
	}
}

// agentRunner drives one vendor one-shot subprocess at a time.
type agentRunner struct {
	*session

	mu      sync.Mutex
	resume  string
	running *exec.Cmd
}

// runTurn invokes the vendor CLI once for a single input turn, streaming
// its JSON-lines output through the same parser as interactive mode.
func (a *agentRunner) runTurn(ctx context.Context, text string) {
	args := a.turnArgs(text)
	cmd := exec.CommandContext(ctx, a.cfg.Command, args...)
	cmd.Dir = a.cfg.CWD

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return
	}
	if err := cmd.Start(); err != nil {
		a.postEvent("assistant", map[string]any{"text": fmt.Sprintf("(%s failed to start: %v)", a.cfg.Command, err)})
		return
	}

	a.mu.Lock()
	a.running = cmd
	a.mu.Unlock()

	done := make(chan struct{})
	go a.watchControl(done)

	p := parser.New()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		msg, err := p.ParseLine(line)
		if err != nil || msg == nil {
			continue
		}
		a.emitParsed(msg)
		if msg.AssistantText != nil {
			a.resume = a.cfg.SessionID
		}
	}

	waitErr := cmd.Wait()
	close(done)
	a.mu.Lock()
	a.running = nil
	a.mu.Unlock()

	if waitErr != nil {
		a.postEvent("assistant", map[string]any{"text": fmt.Sprintf("(%s exited: %v)", a.cfg.Command, waitErr)})
	}
}

// watchControl polls for a mid-turn Stop/Kill and escalates SIGTERM->SIGKILL,
// since an agent-mode turn has no PTY loop of its own to react to it.
func (a *agentRunner) watchControl(done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_, action := a.fetchQueuedInput()
			if action == nil {
				continue
			}
			a.mu.Lock()
			cmd := a.running
			a.mu.Unlock()
			if cmd == nil || cmd.Process == nil {
				continue
			}
			switch action.Kind {
			case control.Stop:
				_ = cmd.Process.Signal(syscall.SIGINT)
			case control.Kill:
				_ = cmd.Process.Signal(syscall.SIGTERM)
				time.AfterFunc(killEscalateDelay, func() { _ = cmd.Process.Signal(syscall.SIGKILL) })
			}
			return
		}
	}
}

// turnArgs builds the one-shot invocation for a single turn, resuming the
// prior turn's session when one exists (spec §4.4 agent mode).
func (a *agentRunner) turnArgs(text string) []string {
	switch a.cfg.Vendor {
	case VendorClaude:
		args := []string{"--print", "--output-format", "stream-json"}
		if a.resume != "" {
			args = append(args, "--resume", a.resume)
		}
		return append(args, text)
	case VendorCodex:
		args := []string{"exec", "--json"}
		if a.resume != "" {
			args = append(args, "resume", a.resume)
		}
		return append(args, text)
	case VendorPi:
		return []string{"--mode", "rpc", text}
	default:
		return append(append([]string{}, a.cfg.Args...), text)
	}
}
