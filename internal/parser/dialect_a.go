package parser

import "encoding/json"

// dialectABlock is a typed content block as emitted by the Claude-style
// "assistant"/"user" root dialect.
type dialectABlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`         // tool_use id
	Name      string          `json:"name,omitempty"`       // tool name
	Input     json.RawMessage `json:"input,omitempty"`       // tool_use input
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result back-reference
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // tool_result content: string or block array
}

type askUserQuestionInput struct {
	Questions []struct {
		Header      string   `json:"header"`
		Question    string   `json:"question"`
		Options     []string `json:"options"`
		MultiSelect bool     `json:"multiSelect"`
	} `json:"questions"`
}

type bashToolInput struct {
	Command         string `json:"command"`
	RunInBackground bool   `json:"run_in_background"`
}

func (p *Parser) parseDialectA(env envelope) *ParsedMessage {
	var blocks []dialectABlock
	if len(env.Content) > 0 {
		_ = json.Unmarshal(env.Content, &blocks)
	}

	msg := &ParsedMessage{}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if env.Role == "assistant" {
				t := b.Text
				msg.AssistantText = &t
			}
		case "thinking":
			t := b.Thinking
			msg.Thinking = &t
		case "tool_use":
			p.handleToolUse(b, msg)
		case "tool_result":
			p.handleToolResult(b, msg)
		}
	}
	msg.Usage = parseUsage(env)
	return msg
}

func (p *Parser) handleToolUse(b dialectABlock, msg *ParsedMessage) {
	info := toolUseInfo{Name: b.Name}
	if b.Name == "Bash" || b.Name == "bash" {
		var bash bashToolInput
		if json.Unmarshal(b.Input, &bash) == nil && bash.RunInBackground {
			info.Command = bash.Command
		}
	}
	p.rememberToolUse(b.ID, info)

	if b.Name == "AskUserQuestion" {
		var qin askUserQuestionInput
		if json.Unmarshal(b.Input, &qin) == nil {
			for _, q := range qin.Questions {
				msg.Questions = append(msg.Questions, AskQuestion{
					ToolUseID:   b.ID,
					Header:      q.Header,
					Question:    q.Question,
					Options:     q.Options,
					MultiSelect: q.MultiSelect,
				})
			}
		}
		return
	}

	msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
}

func (p *Parser) handleToolResult(b dialectABlock, msg *ParsedMessage) {
	info, _ := p.lookupToolUse(b.ToolUseID)
	text := extractResultText(b.Content)

	forward := toolUseAllowlist[info.Name]
	if b.IsError && text != rejectionPhrase {
		forward = true
	}
	if forward {
		msg.ToolResults = append(msg.ToolResults, ToolResult{
			ToolUseID: b.ToolUseID,
			ToolName:  info.Name,
			Content:   text,
			IsError:   b.IsError,
		})
	}

	if bg := detectBackgroundJobFromText(text, info.Command); bg != nil {
		msg.BackgroundJobEvents = append(msg.BackgroundJobEvents, *bg)
	}
}

// extractResultText normalizes a tool_result's content, which may be a bare
// JSON string or an array of {"type":"text","text":...} blocks, into plain text.
func extractResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) == nil {
		out := ""
		for _, blk := range blocks {
			if blk.Type == "text" {
				out += blk.Text
			}
		}
		return out
	}
	return ""
}

// parseQueueOperation handles the Dialect A "queue-operation" record shape,
// which carries a <task-notification> XML-like fragment describing a
// background job transition.
func (p *Parser) parseQueueOperation(env envelope) *ParsedMessage {
	msg := &ParsedMessage{}
	text := extractResultText(env.Content)
	if bg := parseTaskNotification(text); bg != nil {
		msg.BackgroundJobEvents = append(msg.BackgroundJobEvents, *bg)
	}
	return msg
}
