// Package control implements the remote control action tagged variant and
// its merge/priority rules (spec §4.2).
package control

import (
	"encoding/json"
	"strings"
)

// Kind discriminates the tagged Action variant.
type Kind int

const (
	// None means no control action is pending.
	None Kind = iota
	Stop
	Kill
	Resume
	Start
)

func (k Kind) String() string {
	switch k {
	case Stop:
		return "stop"
	case Kill:
		return "kill"
	case Resume:
		return "resume"
	case Start:
		return "start"
	default:
		return "none"
	}
}

// Action is the tagged variant Stop | Kill | Resume{sessionRef} | Start{tool?,args?}.
type Action struct {
	Kind       Kind
	SessionRef string   // set when Kind == Resume
	Tool       string   // optional, set when Kind == Start
	Args       []string // optional, set when Kind == Start
}

// MarshalJSON renders an Action the way the control server's wire protocol
// expects: {"type":"kill"} or {"type":"resume","sessionRef":"..."} etc.
func (a *Action) MarshalJSON() ([]byte, error) {
	if a == nil || a.Kind == None {
		return []byte("null"), nil
	}
	wire := struct {
		Type       string   `json:"type"`
		SessionRef string   `json:"sessionRef,omitempty"`
		Tool       string   `json:"tool,omitempty"`
		Args       []string `json:"args,omitempty"`
	}{Type: a.Kind.String(), SessionRef: a.SessionRef, Tool: a.Tool, Args: a.Args}
	return json.Marshal(wire)
}

// unsafeChars are the shell-metacharacters a Resume session ref must not contain.
const unsafeChars = `;&|` + "`" + `$(){}!#<>\'"`

// ValidSessionRef reports whether ref is free of shell-unsafe characters.
func ValidSessionRef(ref string) bool {
	if ref == "" {
		return false
	}
	return !strings.ContainsAny(ref, unsafeChars)
}

// Merge applies the merge rule of spec §4.2: Kill always wins; otherwise a
// non-Stop incoming action replaces current; otherwise a non-Stop current
// survives; otherwise the result is Stop. A nil action is treated as None.
func Merge(current, incoming *Action) *Action {
	cur := orNone(current)
	in := orNone(incoming)

	if cur.Kind == Kill || in.Kind == Kill {
		return &Action{Kind: Kill}
	}
	if in.Kind != None && in.Kind != Stop {
		return cloneAction(in)
	}
	if cur.Kind != None && cur.Kind != Stop {
		return cloneAction(cur)
	}
	if cur.Kind == Stop || in.Kind == Stop {
		return &Action{Kind: Stop}
	}
	return &Action{Kind: None}
}

func orNone(a *Action) *Action {
	if a == nil {
		return &Action{Kind: None}
	}
	return a
}

func cloneAction(a *Action) *Action {
	cp := *a
	if a.Args != nil {
		cp.Args = append([]string(nil), a.Args...)
	}
	return &cp
}

// ParseRemoteControlAction parses a raw value (as decoded from JSON into
// interface{}) into an Action. It returns nil, false iff x is not one of:
// the string "stop", the string "kill", a map {"type":"resume","sessionRef":<safe>},
// or a map {"type":"start","tool"?:...,"args"?:[...]}.
func ParseRemoteControlAction(x any) (*Action, bool) {
	switch v := x.(type) {
	case string:
		switch v {
		case "stop":
			return &Action{Kind: Stop}, true
		case "kill":
			return &Action{Kind: Kill}, true
		default:
			return nil, false
		}
	case map[string]any:
		t, _ := v["type"].(string)
		switch t {
		case "resume":
			ref, _ := v["sessionRef"].(string)
			if !ValidSessionRef(ref) {
				return nil, false
			}
			return &Action{Kind: Resume, SessionRef: ref}, true
		case "start":
			tool, _ := v["tool"].(string)
			var args []string
			if rawArgs, ok := v["args"].([]any); ok {
				for _, a := range rawArgs {
					s, ok := a.(string)
					if !ok {
						return nil, false
					}
					args = append(args, s)
				}
			}
			return &Action{Kind: Start, Tool: tool, Args: args}, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}
