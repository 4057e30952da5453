package parser

import "encoding/json"

// dialectBMessage is the "message" root used by the Pi-style dialect:
// {"message": {"role": "assistant"|"toolResult", "content": [...]}}.
type dialectBMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// dialectBBlock is a typed content block within a Dialect B message.
type dialectBBlock struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Thinking   string          `json:"thinking,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

func (p *Parser) parseDialectB(env envelope) (*ParsedMessage, error) {
	var m dialectBMessage
	if err := json.Unmarshal(env.Message, &m); err != nil {
		return nil, err
	}

	var blocks []dialectBBlock
	if len(m.Content) > 0 {
		_ = json.Unmarshal(m.Content, &blocks)
	}

	msg := &ParsedMessage{}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if m.Role == "assistant" {
				t := b.Text
				msg.AssistantText = &t
			}
		case "thinking":
			t := b.Thinking
			msg.Thinking = &t
		case "toolCall":
			info := toolUseInfo{Name: b.Name}
			if b.Name == "Bash" || b.Name == "bash" {
				var bash bashToolInput
				if json.Unmarshal(b.Input, &bash) == nil && bash.RunInBackground {
					info.Command = bash.Command
				}
			}
			p.rememberToolUse(b.ToolCallID, info)
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: b.ToolCallID, Name: b.Name, Input: b.Input})
		case "toolResult":
			p.handleDialectBToolResult(b, msg)
		}
	}
	return msg, nil
}

func (p *Parser) handleDialectBToolResult(b dialectBBlock, msg *ParsedMessage) {
	info, _ := p.lookupToolUse(b.ToolCallID)
	text := extractResultText(b.Content)

	forward := toolUseAllowlist[info.Name]
	if b.IsError && text != rejectionPhrase {
		forward = true
	}
	if forward {
		msg.ToolResults = append(msg.ToolResults, ToolResult{
			ToolUseID: b.ToolCallID,
			ToolName:  info.Name,
			Content:   text,
			IsError:   b.IsError,
		})
	}

	if bg := detectBackgroundJobFromText(text, info.Command); bg != nil {
		msg.BackgroundJobEvents = append(msg.BackgroundJobEvents, *bg)
	}
}
