// Package parser converts a single assistant JSONL record, emitted by one
// of three vendor dialects (Claude-style, Pi-style, Codex-style), into a
// unified ParsedMessage. The parser is pure: ParseLine is a function of the
// input line and the parser's own bounded tool-use-id state only — it
// performs no I/O (spec §4.3).
package parser

import "encoding/json"

// ParsedMessage is the unified event model produced from one JSONL record.
type ParsedMessage struct {
	AssistantText       *string
	Thinking            *string
	Questions           []AskQuestion
	ToolCalls           []ToolCall
	ToolResults         []ToolResult
	BackgroundJobEvents []BackgroundJobEvent
	Usage               *UsageDelta
}

// AskQuestion is one question surfaced by an AskUserQuestion tool call.
type AskQuestion struct {
	ToolUseID   string
	Header      string
	Question    string
	Options     []string
	MultiSelect bool
}

// ToolCall records a tool invocation the assistant made.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult records a tool's output, forwarded only when it passes the
// allowlist/error filter in dialectAToolResult (and the analogous dialect
// B/C paths).
type ToolResult struct {
	ToolUseID string
	ToolName  string
	Content   string
	IsError   bool
}

// BackgroundJobEvent is a lifecycle event for an assistant-spawned background
// command, harvested from queue-operation notifications or tool_result text.
type BackgroundJobEvent struct {
	TaskID     string
	Status     string // running | completed | failed | killed
	Command    string
	OutputFile string
	Summary    string
	URLs       []string
}

// toolUseAllowlist is the fixed set of tools whose results are always
// forwarded (spec §4.3); anything else is forwarded only on error.
var toolUseAllowlist = map[string]bool{
	"WebFetch":     true,
	"WebSearch":    true,
	"Bash":         true,
	"bash":         true,
	"exec_command": true,
}

// rejectionPhrase is the one error text tool_result that must never be
// forwarded even though it's nominally an error.
const rejectionPhrase = "The user doesn't want to proceed with this tool use"

// lruCap bounds the parser's tool-use-id → name/command memory.
const lruCap = 200

// Parser holds the bounded, parser-owned state: a tool_use_id → tool
// metadata map used to label later tool_result blocks. It carries no other
// state and performs no I/O.
type Parser struct {
	toolUses boundedMap
}

// New returns a Parser with empty state.
func New() *Parser {
	return &Parser{toolUses: newBoundedMap(lruCap)}
}

type toolUseInfo struct {
	Name    string
	Command string // non-empty only for Bash-family tool_use with a command input
}

// ParseLine parses one JSONL line into a ParsedMessage. A malformed line
// returns a non-nil error; callers (the CLI adapter's tailer) skip such
// lines silently per spec §7.
func (p *Parser) ParseLine(line []byte) (*ParsedMessage, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	switch {
	case env.Type == "assistant" || env.Type == "user":
		return p.parseDialectA(env), nil
	case env.Type == "queue-operation":
		return p.parseQueueOperation(env), nil
	case len(env.Message) > 0:
		return p.parseDialectB(env)
	case env.Type == "event_msg" || env.Type == "response_item":
		return p.parseDialectC(env)
	default:
		return &ParsedMessage{}, nil
	}
}

// envelope is the superset of top-level fields across all three dialects;
// each dialect only populates the fields it uses.
type envelope struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message json.RawMessage `json:"message"`
	Payload json.RawMessage `json:"payload"`
	Usage   json.RawMessage `json:"usage"`
	CostUSD json.RawMessage `json:"costUSD"`
}

func (p *Parser) rememberToolUse(id string, info toolUseInfo) {
	if id == "" {
		return
	}
	p.toolUses.put(id, info)
}

func (p *Parser) lookupToolUse(id string) (toolUseInfo, bool) {
	v, ok := p.toolUses.get(id)
	if !ok {
		return toolUseInfo{}, false
	}
	return v.(toolUseInfo), true
}
