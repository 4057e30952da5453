package cmd

import (
	"encoding/json"

	"touchgrass/internal/activitylog"
	"touchgrass/internal/board"
	"touchgrass/internal/daemon"
	"touchgrass/internal/parser"
)

// chatSender is the minimal send surface eventSink needs to deliver
// assistant output and approval prompts to a session's bound chat.
type chatSender interface {
	Send(chatID, text string) error
}

// eventSink implements daemon.EventSink (spec §4.6), fanning "CLI -> daemon"
// events out to the bound chat, the background-job tracker, and the
// activity log.
type eventSink struct {
	Manager *daemon.Manager
	Chat    chatSender
	Jobs    *board.Tracker
	Log     *activitylog.Logger
}

func (e *eventSink) OnSessionEvent(sessionID, kind string, body []byte) (any, error) {
	sess, ok := e.Manager.GetRemote(sessionID)
	if !ok {
		return map[string]any{"unknown": true}, nil
	}
	chatID := sess.ChatID

	switch kind {
	case "assistant":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Text != "" {
			e.send(chatID, payload.Text)
		}
	case "thinking":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Text != "" {
			e.send(chatID, "💭 "+payload.Text)
		}
	case "approval-needed":
		var payload struct {
			PromptText  string   `json:"promptText"`
			PollOptions []string `json:"pollOptions"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			e.Log.ApprovalPrompt(sessionID, lastToolName(sess), payload.PromptText, "")
			e.send(chatID, payload.PromptText)
		}
	case "question":
		var q parser.AskQuestion
		if err := json.Unmarshal(body, &q); err == nil {
			e.send(chatID, q.Question)
		}
	case "tool-call":
		var tc parser.ToolCall
		if err := json.Unmarshal(body, &tc); err == nil {
			e.Log.ToolCall(sessionID, tc.Name, tc.ID)
		}
	case "usage":
		var u parser.UsageDelta
		if err := json.Unmarshal(body, &u); err == nil {
			e.Log.Usage(sessionID, u.InputTokens, u.OutputTokens, u.CostUSD)
		}
	case "background-job":
		var bg parser.BackgroundJobEvent
		if err := json.Unmarshal(body, &bg); err == nil {
			e.Jobs.OnEvent(sessionID, bg.TaskID, board.JobStatus(bg.Status), bg.Command, bg.OutputFile, bg.Summary, bg.URLs, e.Manager.GetSubscribedGroups(sessionID))
		}
	case "exit":
		var payload struct {
			ExitCode int `json:"exitCode"`
		}
		_ = json.Unmarshal(body, &payload)
		e.Log.SessionEnded(sessionID, "exit", 0, nil)
		e.Jobs.RemoveSession(sessionID)
	}
	return map[string]any{"ok": true}, nil
}

func (e *eventSink) send(chatID, text string) {
	if chatID == "" || e.Chat == nil {
		return
	}
	_ = e.Chat.Send(chatID, text)
}

// lastToolName has no durable record in Manager.Session today; callers that
// need real attribution should track it alongside the approval prompt
// itself. Returning "" keeps ApprovalPrompt logging honest rather than
// guessing.
func lastToolName(sess *daemon.Session) string { return "" }
