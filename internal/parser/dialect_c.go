package parser

import "encoding/json"

// dialectCPayload is the payload discriminator used by the Codex-style
// "event_msg"/"response_item" root dialect.
type dialectCPayload struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`   // agent_message text
	Text      string          `json:"text,omitempty"`       // agent_reasoning text
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
}

func (p *Parser) parseDialectC(env envelope) (*ParsedMessage, error) {
	var payload dialectCPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, err
	}

	msg := &ParsedMessage{}
	switch payload.Type {
	case "agent_message":
		t := payload.Message
		msg.AssistantText = &t
	case "agent_reasoning":
		t := payload.Text
		msg.Thinking = &t
	case "function_call", "custom_tool_call":
		info := toolUseInfo{Name: payload.Name}
		if payload.Name == "exec_command" {
			var args struct {
				Command         string `json:"command"`
				RunInBackground bool   `json:"run_in_background"`
			}
			if json.Unmarshal(payload.Arguments, &args) == nil && args.RunInBackground {
				info.Command = args.Command
			}
		}
		p.rememberToolUse(payload.CallID, info)
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: payload.CallID, Name: payload.Name, Input: payload.Arguments})
	case "function_call_output", "custom_tool_call_output":
		info, _ := p.lookupToolUse(payload.CallID)
		forward := toolUseAllowlist[info.Name]
		if forward {
			msg.ToolResults = append(msg.ToolResults, ToolResult{
				ToolUseID: payload.CallID,
				ToolName:  info.Name,
				Content:   payload.Output,
			})
		}
		if bg := detectBackgroundJobFromText(payload.Output, info.Command); bg != nil {
			msg.BackgroundJobEvents = append(msg.BackgroundJobEvents, *bg)
		}
	}
	return msg, nil
}
