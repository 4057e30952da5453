package activitylog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger writes structured JSONL entries to an activity log file.
// All methods are safe for concurrent use. When disabled (w is nil),
// all methods are no-ops.
type Logger struct {
	mu        sync.Mutex
	w         *os.File
	actor     string
	sessionID string
}

// New creates a Logger that appends to logPath. If enabled is false or the
// file cannot be opened, returns a no-op logger (safe to call methods on).
func New(enabled bool, logPath, actor, sessionID string) *Logger {
	if !enabled {
		return &Logger{}
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Logger{}
	}
	return &Logger{w: f, actor: actor, sessionID: sessionID}
}

// Nop returns a disabled logger. All methods are no-ops.
func Nop() *Logger {
	return &Logger{}
}

// entry is the common envelope for all log lines.
type entry struct {
	Timestamp string `json:"ts"`
	Actor     string `json:"actor"`
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// ToolCall logs a tool invocation parsed from the assistant's JSONL output
// (spec §4.3).
func (l *Logger) ToolCall(sessionID, toolName, toolID string) {
	l.log(struct {
		entry
		ToolName string `json:"tool_name"`
		ToolID   string `json:"tool_id,omitempty"`
	}{
		entry:    l.entryWithSession("tool_call", sessionID),
		ToolName: toolName,
		ToolID:   toolID,
	})
}

// ApprovalPrompt logs an approval prompt surfaced to chat, and the choice
// the user eventually made (chosen is empty until resolved).
func (l *Logger) ApprovalPrompt(sessionID, toolName, prompt, chosen string) {
	l.log(struct {
		entry
		ToolName string `json:"tool_name,omitempty"`
		Prompt   string `json:"prompt"`
		Chosen   string `json:"chosen,omitempty"`
	}{
		entry:    l.entryWithSession("approval_prompt", sessionID),
		ToolName: toolName,
		Prompt:   prompt,
		Chosen:   chosen,
	})
}

// ControlAction logs a remote control action (stop/kill/resume/start,
// spec §4.2) taking effect against a session.
func (l *Logger) ControlAction(sessionID, kind, requestedBy string) {
	l.log(struct {
		entry
		Kind        string `json:"kind"`
		RequestedBy string `json:"requested_by,omitempty"`
	}{
		entry:       l.entryWithSession("control_action", sessionID),
		Kind:        kind,
		RequestedBy: requestedBy,
	})
}

// HeartbeatFire logs a heartbeat rule firing and the input it injected
// (spec §4.5).
func (l *Logger) HeartbeatFire(sessionID, rule, injected string) {
	l.log(struct {
		entry
		Rule     string `json:"rule"`
		Injected string `json:"injected,omitempty"`
	}{
		entry:    l.entryWithSession("heartbeat_fire", sessionID),
		Rule:     rule,
		Injected: injected,
	})
}

// StateChange logs a session lifecycle transition (spawned, exited, reaped).
func (l *Logger) StateChange(sessionID, from, to string) {
	l.log(struct {
		entry
		From string `json:"from"`
		To   string `json:"to"`
	}{
		entry: l.entryWithSession("state_change", sessionID),
		From:  from,
		To:    to,
	})
}

// SessionEnded logs a session's exit, the reason it ended, and a per-tool
// call count for the session's lifetime.
func (l *Logger) SessionEnded(sessionID, reason string, durationSeconds int64, toolCounts map[string]int64) {
	l.log(struct {
		entry
		Reason          string           `json:"reason"`
		DurationSeconds int64            `json:"duration_seconds"`
		ToolCounts      map[string]int64 `json:"tool_counts,omitempty"`
	}{
		entry:           l.entryWithSession("session_ended", sessionID),
		Reason:          reason,
		DurationSeconds: durationSeconds,
		ToolCounts:      toolCounts,
	})
}

// Usage logs a per-turn token/cost delta parsed from the assistant's JSONL
// output (spec §4.3), adapted from the teacher's OTEL-based
// ClaudeCodeParser, which tracked the same input/output token counts and
// cost over an OTEL log stream instead of the transcript itself.
func (l *Logger) Usage(sessionID string, inputTokens, outputTokens int64, costUSD float64) {
	l.log(struct {
		entry
		InputTokens  int64   `json:"input_tokens"`
		OutputTokens int64   `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd,omitempty"`
	}{
		entry:        l.entryWithSession("usage", sessionID),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
	})
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l.w == nil {
		return nil
	}
	return l.w.Close()
}

func (l *Logger) entryWithSession(event, sessionID string) entry {
	return entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     l.actor,
		SessionID: sessionID,
		Event:     event,
	}
}

func (l *Logger) log(v any) {
	if l.w == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.mu.Lock()
	l.w.Write(data)
	l.mu.Unlock()
}
