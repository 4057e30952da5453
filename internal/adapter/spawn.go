package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vito/midterm"

	"touchgrass/internal/config"
	"touchgrass/internal/control"
	"touchgrass/internal/heartbeat"
	"touchgrass/internal/parser"
	"touchgrass/internal/virtualterminal"
)

// pollInterval is the input-queue poll period (spec §4.4).
const pollInterval = 200 * time.Millisecond

// jsonlFallbackPoll covers filesystem-watch drops (spec §4.4.2).
const jsonlFallbackPoll = 2 * time.Second

// approvalRingSize is the rolling ANSI-stripped ring kept for approval-
// prompt detection (spec §4.4.1).
const approvalRingSize = 2048

// approvalNotifyDelay lets the tool-call notification arrive first.
const approvalNotifyDelay = 1 * time.Second

// uploadSettleDelay is the extra wait between a file-path input and Enter.
const uploadSettleDelay = 1500 * time.Millisecond

// ptyWriteTimeout bounds how long a keystroke write waits on a child that
// has stopped reading its stdin (spec §4.4.3).
const ptyWriteTimeout = 5 * time.Second

// Config is everything the interactive-mode spawn loop (spec §4.4) needs.
type Config struct {
	Vendor      Vendor
	Command     string
	Args        []string
	CWD         string
	ChatID      string
	OwnerUserID string
	SessionID   string // assigned by the daemon's /remote/register response

	DaemonBaseURL string
	AuthToken     string

	ManifestPath string

	Prompt  VendorPrompt
	Columns int
	Rows    int

	// AgentsMD is the contents of AGENTS.md, if present, used to resolve an
	// optional heartbeat block (spec §4.5).
	AgentsMD string
}

// Spawn runs the interactive-mode adapter loop to completion: start the
// PTY, mirror output, tail JSONL, poll for queued input/control actions,
// and clean up on exit. It blocks until the child process exits.
func Spawn(ctx context.Context, cfg Config) (exitCode int, err error) {
	vt := &virtualterminal.VT{Rows: cfg.Rows, Cols: cfg.Columns, ChildRows: cfg.Rows}
	if err := vt.StartPTY(cfg.Command, cfg.Args, cfg.CWD, cfg.Rows, cfg.Columns, nil); err != nil {
		return -1, fmt.Errorf("adapter: start pty: %w", err)
	}
	defer vt.Ptm.Close()

	// Vt mirrors the child's rendered screen; Scrollback is append-only so
	// approval-prompt scanning never loses a redrawn line (spec §4.4.1).
	vt.Vt = midterm.NewTerminal(cfg.Rows, cfg.Columns)
	vt.Scrollback = midterm.NewTerminal(cfg.Rows, cfg.Columns)
	vt.Scrollback.AutoResizeY = true
	vt.Scrollback.AppendOnly = true
	vt.LastOut = time.Now()

	cmd := vt.Cmd
	if cfg.ManifestPath != "" {
		_ = config.WriteSessionManifest(cfg.ManifestPath, config.SessionManifest{
			ID:        cfg.SessionID,
			Command:   cfg.Command,
			CWD:       cfg.CWD,
			PID:       cmd.Process.Pid,
			StartedAt: time.Now().Format(time.RFC3339),
		})
	}

	client := &http.Client{Timeout: 10 * time.Second}

	s := &session{
		cfg:     cfg,
		cmd:     cmd,
		vt:      vt,
		client:  client,
		ring:    newApprovalRing(approvalRingSize),
		hbState: heartbeat.NewState(),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.pipeOutput(ctx) }()
	go func() { defer wg.Done(); s.tailJSONL(ctx) }()
	go func() { defer wg.Done(); s.pollInput(ctx) }()

	if cfg.AgentsMD != "" {
		if blk, ok := heartbeat.ParseBlock(cfg.AgentsMD); ok && !blk.Empty() {
			wg.Add(1)
			go func() { defer wg.Done(); s.runHeartbeat(ctx, blk) }()
		}
	}

	waitErr := cmd.Wait()
	cancel()
	wg.Wait()

	code := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	s.reportExit(code)
	_ = config.RemoveSessionManifest(cfg.ManifestPath)
	return code, nil
}

// session is the adapter's per-run state: the live PTY (owned by vt in
// interactive mode, nil in agent mode), the approval ring, and the daemon
// HTTP client.
type session struct {
	cfg    Config
	cmd    *exec.Cmd
	vt     *virtualterminal.VT
	client *http.Client

	mu   sync.Mutex
	ring *approvalRing

	lastApprovalPrompt string
	hbState            *heartbeat.State
}

// pipeOutput reads PTY bytes through the virtual terminal (answering OSC
// 10/11 color queries and tracking idle time along the way), mirrors the raw
// bytes to stdout, and feeds the approval ring, firing an approval-needed
// POST when a new prompt is detected.
func (s *session) pipeOutput(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.vt.Ptm.Read(buf)
		if n > 0 {
			s.vt.RespondOSCColors(buf[:n])

			s.vt.Mu.Lock()
			s.vt.LastOut = time.Now()
			s.vt.Vt.Write(buf[:n])
			s.vt.Scrollback.Write(buf[:n])
			s.vt.Mu.Unlock()

			os.Stdout.Write(buf[:n])
			s.mu.Lock()
			s.ring.Write(buf[:n])
			text := s.ring.String()
			s.mu.Unlock()
			s.checkApproval(text)
		}
		if err != nil {
			return
		}
	}
}

func (s *session) checkApproval(ringText string) {
	prompt, options, found := ExtractApprovalPrompt(ringText, s.cfg.Prompt)
	if !found || prompt == s.lastApprovalPrompt {
		return
	}
	s.lastApprovalPrompt = prompt
	go func() {
		time.Sleep(approvalNotifyDelay)
		s.postEvent("approval-needed", map[string]any{
			"promptText":  prompt,
			"pollOptions": options,
		})
	}()
}

// tailJSONL watches the vendor's session directory and tails the active
// JSONL file, parsing each line and POSTing the resulting events to the
// daemon (spec §4.4.2).
func (s *session) tailJSONL(ctx context.Context) {
	dir, err := JSONLSessionDir(s.cfg.Vendor, s.cfg.CWD, func() (int, int, int) {
		t := time.Now()
		return t.Year(), int(t.Month()), t.Day()
	})
	if err != nil {
		// Vendors without a known JSONL directory (e.g. Kimi) simply skip
		// the tail; approval detection and the raw PTY mirror still work.
		return
	}
	p := parser.New()
	var activeFile string
	var offset int64
	var lastSessionID string

	ticker := time.NewTicker(jsonlFallbackPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newest, records, err := newestJSONLFile(dir)
			if err != nil {
				continue
			}
			if newest == "" {
				continue
			}
			if activeFile == "" {
				activeFile = newest
			} else if newest != activeFile {
				if DetectRollover(records, lastSessionID, RolloverScanLines) {
					activeFile = newest
					offset = 0
				}
			}
			if activeFile == "" {
				continue
			}
			lines, newOffset, sessID := s.readNewLines(activeFile, offset)
			offset = newOffset
			if sessID != "" {
				lastSessionID = sessID
			}
			for _, line := range lines {
				msg, err := p.ParseLine([]byte(line))
				if err != nil || msg == nil {
					continue
				}
				s.emitParsed(msg)
			}
		}
	}
}

// readNewLines reads path starting at offset, returning complete new lines,
// the new offset, and the first line's sessionId (if present) for rollover
// detection.
func (s *session) readNewLines(path string, offset int64) (lines []string, newOffset int64, sessionID string) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, ""
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, ""
	}
	if len(data) == 0 {
		return nil, offset, ""
	}
	lastNewline := bytes.LastIndexByte(data, '\n')
	if lastNewline < 0 {
		return nil, offset, ""
	}
	complete := data[:lastNewline]
	newOffset = offset + int64(lastNewline) + 1
	for _, l := range strings.Split(string(complete), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	var probe struct {
		SessionID string `json:"sessionId"`
	}
	if len(lines) > 0 {
		_ = json.Unmarshal([]byte(lines[0]), &probe)
	}
	return lines, newOffset, probe.SessionID
}

func newestJSONLFile(dir string) (path string, firstLines []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, err
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", nil, nil
	}
	data, err := os.ReadFile(newest)
	if err != nil {
		return newest, nil, nil
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > RolloverScanLines {
		lines = lines[:RolloverScanLines]
	}
	return newest, lines, nil
}

func (s *session) emitParsed(msg *parser.ParsedMessage) {
	if msg.AssistantText != nil {
		s.postEvent("assistant", map[string]any{"text": *msg.AssistantText})
	}
	if msg.Thinking != nil {
		s.postEvent("thinking", map[string]any{"text": *msg.Thinking})
	}
	for _, q := range msg.Questions {
		s.postEvent("question", q)
	}
	for _, tc := range msg.ToolCalls {
		s.postEvent("tool-call", tc)
	}
	for _, tr := range msg.ToolResults {
		s.postEvent("tool-result", tr)
	}
	for _, bg := range msg.BackgroundJobEvents {
		s.postEvent("background-job", bg)
	}
	if msg.Usage != nil {
		s.postEvent("usage", msg.Usage)
	}
}

// pollInput polls the daemon for queued input and control actions every
// 200 ms, writing keystrokes to the PTY (spec §4.4.3).
func (s *session) pollInput(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			input, action := s.fetchQueuedInput()
			for _, text := range input {
				s.writeInput(text)
			}
			s.applyControlAction(action)
		}
	}
}

func (s *session) fetchQueuedInput() (input []string, action *control.Action) {
	url := fmt.Sprintf("%s/remote/%s/input", s.cfg.DaemonBaseURL, s.cfg.SessionID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set(authHeaderName, s.cfg.AuthToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	var out struct {
		Input   []string `json:"input"`
		Control any      `json:"control"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil
	}
	parsed, _ := control.ParseRemoteControlAction(out.Control)
	return out.Input, parsed
}

// applyControlAction acts on a remote Stop/Kill request (spec §4.2). Resume
// and Start target the daemon's session manager, not a running adapter, and
// are ignored here.
func (s *session) applyControlAction(action *control.Action) {
	if action == nil || s.cmd.Process == nil {
		return
	}
	switch action.Kind {
	case control.Stop:
		_ = s.cmd.Process.Signal(syscall.SIGINT)
	case control.Kill:
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// writeInput replays a control token as keystrokes, or wraps plain text in
// bracketed paste, per spec §4.4.3.
func (s *session) writeInput(text string) {
	tok := ParseControlToken(text)
	switch tok.Kind {
	case ControlSelect:
		for _, id := range tok.IDs {
			s.writeRaw(downArrows(id))
			s.writeRaw("\r")
		}
		return
	case ControlNext:
		s.writeRaw(downArrows(tok.Count))
		s.writeRaw("\r")
		return
	case ControlSubmit:
		s.writeRaw("\r")
		return
	case ControlOther:
		return
	}

	if IsUploadPath(text) {
		s.writeRaw(BracketedPaste(text))
		time.Sleep(uploadSettleDelay)
		s.writeRaw("\r")
		return
	}
	s.writeRaw(BracketedPaste(text))
	s.writeRaw("\r")
}

func downArrows(n int) string {
	return strings.Repeat("\x1b[B", n)
}

func (s *session) writeRaw(text string) {
	_, _ = s.vt.WritePTY([]byte(text), ptyWriteTimeout)
}

// runHeartbeat enqueues due heartbeat prompts as ordinary PTY input on
// their own schedule (spec §4.5). Runs inside the CLI adapter, not the
// daemon, since the heartbeat clock is local to the running session.
func (s *session) runHeartbeat(ctx context.Context, blk heartbeat.Block) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, due := range heartbeat.DueRuns(blk, time.Now(), s.hbState) {
				workflowText := s.readWorkflowFile(due.Run.Workflow)
				prompt := heartbeat.FormatPrompt(due.Run.Workflow, blk.Text, workflowText, time.Now())
				s.writeInput(prompt)
			}
		}
	}
}

// readWorkflowFile loads cwd/workflows/<name>.md for a due heartbeat run,
// per spec §4.5. A missing or empty workflow name yields no extra context.
func (s *session) readWorkflowFile(workflow string) string {
	if workflow == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(s.cfg.CWD, "workflows", workflow+".md"))
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *session) postEvent(kind string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	url := fmt.Sprintf("%s/remote/%s/%s", s.cfg.DaemonBaseURL, s.cfg.SessionID, kind)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeaderName, s.cfg.AuthToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (s *session) reportExit(code int) {
	s.postEvent("exit", map[string]any{"exitCode": code})
}

// authHeaderName mirrors internal/daemon's control-server auth header
// without importing that package (the adapter and daemon packages are
// kept independent; the CLI binary wires the literal value through once).
const authHeaderName = "x-touchgrass-auth"

// approvalRing is a fixed-capacity byte ring holding the last N bytes of
// ANSI-stripped child output, used for approval-prompt detection
// (spec §4.4.1).
type approvalRing struct {
	buf []byte
	cap int
}

func newApprovalRing(capacity int) *approvalRing {
	return &approvalRing{cap: capacity}
}

func (r *approvalRing) Write(p []byte) {
	stripped := []byte(StripANSI(string(p)))
	r.buf = append(r.buf, stripped...)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

func (r *approvalRing) String() string {
	return string(r.buf)
}
