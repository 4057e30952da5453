package parser

import (
	"encoding/json"
	"testing"
)

func TestDialectATextAndThinking(t *testing.T) {
	p := New()
	line := []byte(`{"type":"assistant","content":[{"type":"thinking","thinking":"pondering"},{"type":"text","text":"hello"}]}`)
	msg, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if msg.AssistantText == nil || *msg.AssistantText != "hello" {
		t.Errorf("AssistantText = %v, want hello", msg.AssistantText)
	}
	if msg.Thinking == nil || *msg.Thinking != "pondering" {
		t.Errorf("Thinking = %v, want pondering", msg.Thinking)
	}
}

func TestDialectAAskUserQuestion(t *testing.T) {
	p := New()
	line := []byte(`{"type":"assistant","content":[{"type":"tool_use","id":"tu1","name":"AskUserQuestion","input":{"questions":[{"header":"Pick","question":"Which?","options":["A","B"],"multiSelect":false}]}}]}`)
	msg, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg.Questions) != 1 || msg.Questions[0].Question != "Which?" {
		t.Fatalf("Questions = %+v", msg.Questions)
	}
	if len(msg.ToolCalls) != 0 {
		t.Fatalf("AskUserQuestion should not also appear as a ToolCall: %+v", msg.ToolCalls)
	}
}

func TestDialectAToolResultAllowlistAndRejection(t *testing.T) {
	p := New()
	// Remember a Bash tool_use first.
	p.ParseLine([]byte(`{"type":"assistant","content":[{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"ls"}}]}`))

	allowed := []byte(`{"type":"user","content":[{"type":"tool_result","tool_use_id":"tu1","content":"file.txt"}]}`)
	msg, err := p.ParseLine(allowed)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg.ToolResults) != 1 || msg.ToolResults[0].Content != "file.txt" {
		t.Fatalf("ToolResults = %+v, want allowlisted Bash result", msg.ToolResults)
	}

	// Remember a non-allowlisted tool_use (e.g. Edit), then reject a
	// rejection-phrase error.
	p.ParseLine([]byte(`{"type":"assistant","content":[{"type":"tool_use","id":"tu2","name":"Edit","input":{}}]}`))
	rejected := []byte(`{"type":"user","content":[{"type":"tool_result","tool_use_id":"tu2","is_error":true,"content":"The user doesn't want to proceed with this tool use"}]}`)
	msg2, err := p.ParseLine(rejected)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg2.ToolResults) != 0 {
		t.Fatalf("ToolResults = %+v, want none (rejection phrase)", msg2.ToolResults)
	}

	otherErr := []byte(`{"type":"user","content":[{"type":"tool_result","tool_use_id":"tu2","is_error":true,"content":"boom"}]}`)
	msg3, _ := p.ParseLine(otherErr)
	if len(msg3.ToolResults) != 1 || !msg3.ToolResults[0].IsError {
		t.Fatalf("ToolResults = %+v, want one error forwarded", msg3.ToolResults)
	}
}

// TestBackgroundJobExtraction is spec §8 scenario 5, literally.
func TestBackgroundJobExtraction(t *testing.T) {
	p := New()
	p.ParseLine([]byte(`{"type":"assistant","content":[{"type":"tool_use","id":"toolu_123","name":"Bash","input":{"command":"npm run dev","run_in_background":true}}]}`))

	resultText := "Command running in background with ID: bg_abc123. Output is being written to: /tmp/bg_abc123.output\nDetected URLs:\n- http://localhost:5173/"
	line := []byte(`{"type":"user","content":[{"type":"tool_result","tool_use_id":"toolu_123","content":` + quoteJSON(resultText) + `}]}`)
	msg, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg.BackgroundJobEvents) != 1 {
		t.Fatalf("BackgroundJobEvents = %+v, want 1", msg.BackgroundJobEvents)
	}
	ev := msg.BackgroundJobEvents[0]
	if ev.TaskID != "bg_abc123" || ev.Status != "running" || ev.Command != "npm run dev" || ev.OutputFile != "/tmp/bg_abc123.output" {
		t.Fatalf("event = %+v", ev)
	}
	if len(ev.URLs) != 1 || ev.URLs[0] != "http://localhost:5173/" {
		t.Fatalf("URLs = %v", ev.URLs)
	}
}

func TestQueueOperationTaskNotification(t *testing.T) {
	p := New()
	text := "<task-notification><task-id>bg_xyz</task-id><status>completed</status><summary>done</summary><output-file>/tmp/out</output-file></task-notification>"
	line := []byte(`{"type":"queue-operation","content":` + quoteJSON(text) + `}`)
	msg, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg.BackgroundJobEvents) != 1 {
		t.Fatalf("BackgroundJobEvents = %+v", msg.BackgroundJobEvents)
	}
	ev := msg.BackgroundJobEvents[0]
	if ev.TaskID != "bg_xyz" || ev.Status != "completed" || ev.Summary != "done" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDialectBToolCallAndResult(t *testing.T) {
	p := New()
	toolCallLine := []byte(`{"message":{"role":"assistant","content":[{"type":"toolCall","toolCallId":"c1","name":"WebSearch","input":{}}]}}`)
	if _, err := p.ParseLine(toolCallLine); err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	resultLine := []byte(`{"message":{"role":"toolResult","content":[{"type":"toolResult","toolCallId":"c1","content":"results"}]}}`)
	msg, err := p.ParseLine(resultLine)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if len(msg.ToolResults) != 1 || msg.ToolResults[0].Content != "results" {
		t.Fatalf("ToolResults = %+v", msg.ToolResults)
	}
}

func TestDialectCAgentMessageAndReasoning(t *testing.T) {
	p := New()
	line := []byte(`{"type":"event_msg","payload":{"type":"agent_message","message":"hi there"}}`)
	msg, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if msg.AssistantText == nil || *msg.AssistantText != "hi there" {
		t.Fatalf("AssistantText = %v", msg.AssistantText)
	}

	reasonLine := []byte(`{"type":"response_item","payload":{"type":"agent_reasoning","text":"thinking hard"}}`)
	msg2, err := p.ParseLine(reasonLine)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if msg2.Thinking == nil || *msg2.Thinking != "thinking hard" {
		t.Fatalf("Thinking = %v", msg2.Thinking)
	}
}

func TestMalformedLineReturnsError(t *testing.T) {
	p := New()
	if _, err := p.ParseLine([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestPurity(t *testing.T) {
	// Two independent parsers given the same input produce the same output;
	// the parser's only state is its own tool-use-id map.
	line := []byte(`{"type":"assistant","content":[{"type":"text","text":"hi"}]}`)
	p1, p2 := New(), New()
	m1, _ := p1.ParseLine(line)
	m2, _ := p2.ParseLine(line)
	if *m1.AssistantText != *m2.AssistantText {
		t.Fatalf("parser outputs diverged: %v vs %v", *m1.AssistantText, *m2.AssistantText)
	}
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
