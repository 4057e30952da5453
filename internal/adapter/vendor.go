package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Vendor identifies one of the four supported assistant CLIs (spec §1).
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorCodex  Vendor = "codex"
	VendorPi     Vendor = "pi"
	VendorKimi   Vendor = "kimi"
)

// JSONLSessionDir returns the deterministic directory the adapter watches
// for a new session's JSONL file, per spec §4.4.2.
func JSONLSessionDir(v Vendor, cwd string, now func() (year, month, day int)) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("adapter: resolve home dir: %w", err)
	}
	switch v {
	case VendorClaude:
		return filepath.Join(home, ".claude", "projects", slugifyPath(cwd)), nil
	case VendorCodex:
		y, m, d := now()
		return filepath.Join(home, ".codex", "sessions", fmt.Sprintf("%04d", y), fmt.Sprintf("%02d", m), fmt.Sprintf("%02d", d)), nil
	case VendorPi:
		return filepath.Join(home, ".pi", "agent", "sessions", "--"+encodeCWD(cwd)+"--"), nil
	default:
		return "", fmt.Errorf("adapter: vendor %q has no JSONL directory", v)
	}
}

// slugifyPath turns an absolute cwd into Claude's project-directory slug:
// every path separator becomes "-".
func slugifyPath(cwd string) string {
	cwd = strings.TrimPrefix(cwd, string(filepath.Separator))
	return "-" + strings.ReplaceAll(cwd, string(filepath.Separator), "-")
}

// encodeCWD turns an absolute cwd into Pi's "--<encoded-cwd>--" directory
// name: path separators become "-".
func encodeCWD(cwd string) string {
	cwd = strings.Trim(cwd, string(filepath.Separator))
	return strings.ReplaceAll(cwd, string(filepath.Separator), "-")
}

// CodexResume is the parsed shape of a codex invocation's "resume" argument
// (spec §8 scenario 1).
type CodexResume struct {
	ResumeID      string
	UseResumeLast bool
	BaseArgs      []string
}

// ParseCodexResumeArgs extracts a "resume <id>" or "resume --last" pair out
// of a codex argv, returning the remaining arguments as BaseArgs in their
// original order.
func ParseCodexResumeArgs(args []string) CodexResume {
	for i, a := range args {
		if a != "resume" {
			continue
		}
		base := make([]string, 0, len(args)-1)
		base = append(base, args[:i]...)
		if i+1 < len(args) {
			base = append(base, args[i+2:]...)
			next := args[i+1]
			if next == "--last" {
				return CodexResume{UseResumeLast: true, BaseArgs: base}
			}
			return CodexResume{ResumeID: next, BaseArgs: base}
		}
		return CodexResume{BaseArgs: base}
	}
	return CodexResume{BaseArgs: append([]string(nil), args...)}
}

// DetectRollover implements the Claude plan-mode rollover heuristic (spec
// §9 Open Question): a *different* JSONL file is considered a rollover of
// prevSessionID if any of its first maxScanLines records reference it.
// This is documented as heuristic behavior, not a contract: a vendor-
// provided rollover marker would replace it if one existed.
func DetectRollover(records []string, prevSessionID string, maxScanLines int) bool {
	if prevSessionID == "" {
		return false
	}
	n := len(records)
	if n > maxScanLines {
		n = maxScanLines
	}
	for i := 0; i < n; i++ {
		if strings.Contains(records[i], prevSessionID) {
			return true
		}
	}
	return false
}

// RolloverScanLines is the fixed scan depth spec §9 names ("~80 records").
const RolloverScanLines = 80
