// Package adapter implements the CLI adapter (spec §4.4): spawning an
// assistant under a PTY or as a one-shot agent-mode subprocess, watching
// its JSONL event log, replaying poll keystrokes, and detecting approval
// prompts in its rendered output.
package adapter

import (
	"regexp"
	"strings"
)

// ansiRe strips CSI/OSC escape sequences from PTY output before the
// approval-prompt scanner looks at it. The live display keeps the raw
// bytes (rendered through the kept virtualterminal.VT/midterm pipeline);
// this stripping is specific to the rolling detection ring.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][AB012]`)

// StripANSI removes escape sequences, leaving plain text.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// VendorPrompt is the {promptText, optionText} tuple spec §4.4.1 scans for,
// per assistant vendor.
type VendorPrompt struct {
	PromptText string // e.g. "Do you want to"
	OptionText string // e.g. "1. Yes"
}

// optionRe splits a run of "N. text  N. text  N. text" into individual
// numbered options, whether they're separated by newlines (a real
// rendered terminal) or by runs of spaces (a flattened single-line
// fixture, spec §8 scenario 3).
var optionRe = regexp.MustCompile(`(?s)(\d+)\.\s*(.*?)(?:(?:\n|\s{2,})(?=\d+\.)|$)`)

// hintParenRe strips a trailing keyboard-hint parenthetical, e.g. "Yes (y)".
var hintParenRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// escHintRe strips a trailing ", Esc ..." cancel hint, e.g.
// "No, Esc to cancel" -> "No", while leaving unrelated trailing clauses
// (e.g. "Yes, and don't ask again") untouched.
var escHintRe = regexp.MustCompile(`(?i),\s*esc[^,]*$`)

// ExtractApprovalPrompt scans ring (already ANSI-stripped) for vp's prompt
// and option markers. It returns the prompt sentence (up to the next '?')
// and the parsed numbered options, stripped of trailing hint
// parentheticals (spec §4.4.1, scenario 3).
func ExtractApprovalPrompt(ring string, vp VendorPrompt) (prompt string, options []string, found bool) {
	if !strings.Contains(ring, vp.PromptText) || !strings.Contains(ring, vp.OptionText) {
		return "", nil, false
	}

	idx := strings.Index(ring, vp.PromptText)
	rest := ring[idx:]
	qIdx := strings.IndexByte(rest, '?')
	if qIdx < 0 {
		prompt = strings.TrimSpace(rest)
	} else {
		prompt = strings.TrimSpace(rest[:qIdx+1])
	}
	prompt = collapseSpace(prompt)

	for _, m := range optionRe.FindAllStringSubmatch(ring, -1) {
		opt := strings.TrimSpace(m[2])
		opt = hintParenRe.ReplaceAllString(opt, "")
		opt = escHintRe.ReplaceAllString(opt, "")
		opt = strings.TrimSpace(opt)
		if opt != "" {
			options = append(options, opt)
		}
	}
	return prompt, options, true
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// toolAttributionAllowlist is the set of tools that set lastToolCall
// attribution for an approval prompt (spec §4.4.1).
var toolAttributionAllowlist = map[string]bool{
	"Bash": true, "Edit": true, "Write": true, "NotebookEdit": true,
}

// AllowsAttribution reports whether toolName may set lastToolCall.
func AllowsAttribution(toolName string) bool { return toolAttributionAllowlist[toolName] }

// ClaudePrompt and CodexPrompt are the per-vendor tuples named in spec §4.4.1.
var (
	ClaudePrompt = VendorPrompt{PromptText: "Do you want to", OptionText: "1. Yes"}
	CodexPrompt  = VendorPrompt{PromptText: "Would you like to run the following command", OptionText: "1. Yes, proceed"}
)
