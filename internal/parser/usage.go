package parser

import (
	"encoding/json"
	"strconv"
)

// UsageDelta carries Claude Code's per-turn token/cost accounting. Adapted
// from the teacher's ClaudeCodeParser, which pulled the same
// input_tokens/output_tokens/cost_usd trio out of api_request/tool_result
// OTEL log records; the JSONL transcript carries the same fields inline on
// the message itself instead of over an OTEL log stream.
type UsageDelta struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// usageBlock is the shape of a dialect A message's "usage" object.
type usageBlock struct {
	InputTokens  json.RawMessage `json:"input_tokens"`
	OutputTokens json.RawMessage `json:"output_tokens"`
}

// parseUsage extracts a UsageDelta from a dialect A envelope, probing for
// presence before decoding (the same probe-then-extract shape as the
// teacher's getAttr/getIntAttr pair) since most transcript lines carry
// neither field.
func parseUsage(env envelope) *UsageDelta {
	if len(env.Usage) == 0 && len(env.CostUSD) == 0 {
		return nil
	}

	delta := &UsageDelta{}
	if len(env.Usage) > 0 {
		var u usageBlock
		if json.Unmarshal(env.Usage, &u) == nil {
			delta.InputTokens = parseTokenCount(u.InputTokens)
			delta.OutputTokens = parseTokenCount(u.OutputTokens)
			delta.TotalTokens = delta.InputTokens + delta.OutputTokens
		}
	}
	if len(env.CostUSD) > 0 {
		delta.CostUSD = parseCost(env.CostUSD)
	}

	if delta.InputTokens == 0 && delta.OutputTokens == 0 && delta.CostUSD == 0 {
		return nil
	}
	return delta
}

// parseTokenCount accepts a token count encoded as either a bare JSON
// number or a quoted numeric string, matching Claude Code's own
// inconsistency between CLI versions here.
func parseTokenCount(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var v int64
	if json.Unmarshal(raw, &v) == nil {
		return v
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// parseCost accepts costUSD as either a bare JSON number or a quoted string.
func parseCost(raw json.RawMessage) float64 {
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return 0
}
