package router

import (
	"strings"

	"touchgrass/internal/control"
	"touchgrass/internal/daemon"
)

// Pairing answers whether userId has completed the one-time pairing
// exchange that gates all further commands (spec glossary "Pairing").
type Pairing interface {
	IsPaired(userID string) bool
}

// Links tracks which group chats have been linked via /link (spec §4.7).
type Links interface {
	IsLinked(chatID string) bool
	Link(chatID string) error
	Unlink(chatID string) error
}

// Preferences mutates per-chat output/thinking settings (spec §3 ChatPreference).
type Preferences interface {
	SetOutputMode(chatID, mode string)
	SetThinking(chatID string, on bool)
	ToggleThinking(chatID string) bool
}

// Camp is the external "spawn a new session from a chat command"
// controller (spec glossary "Camp"); nil Camp means Camp is inactive.
type Camp interface {
	Active() bool
	Start(chatID, userID, tool, project string) error
}

// alwaysAllowedBeforeLink is the set of commands spec §4.7 permits inside
// an unlinked group (they may themselves trigger auto-linking via Camp).
var alwaysAllowedBeforeLink = map[string]bool{
	"/link": true, "/unlink": true, "/start": true, "/kill": true,
}

// Router dispatches inbound chat text, per spec §4.7.
type Router struct {
	Manager     *daemon.Manager
	Pairing     Pairing
	Links       Links
	Preferences Preferences
	Camp        Camp
	BotName     string
}

// Inbound is one inbound chat message.
type Inbound struct {
	ChatID  string
	UserID  string
	Text    string
	IsGroup bool
}

// Result is what the router decided to do with an Inbound message.
type Result struct {
	Reply    string // non-empty: send this text back to ChatID
	Injected bool   // true: Text (possibly mention-prefixed) was queued as stdin
}

// Dispatch implements spec §4.7's priority order.
func (r *Router) Dispatch(in Inbound) Result {
	cmd, isCmd := ParseCommand(in.Text, r.BotName)

	if isCmd && cmd.Name == "/pair" {
		return r.handlePair(in)
	}

	if isCmd && cmd.Name == "/start" && !in.IsGroup {
		if _, attached := r.Manager.GetAttachedRemote(in.ChatID); !attached {
			return Result{Reply: r.helpText()}
		}
	}

	if isCmd && cmd.Name == "/help" {
		return Result{Reply: r.helpText()}
	}

	if r.Pairing != nil && !r.Pairing.IsPaired(in.UserID) {
		return Result{Reply: "Pair your account first: send /pair."}
	}

	if isCmd && in.IsGroup && r.Links != nil && !r.Links.IsLinked(in.ChatID) && !alwaysAllowedBeforeLink[cmd.Name] {
		return Result{Reply: "This group isn't linked yet. An owner can run /link here."}
	}

	if isCmd {
		return r.dispatchCommand(in, cmd)
	}

	return r.handlePlainText(in)
}

func (r *Router) handlePair(in Inbound) Result {
	return Result{Reply: "Pairing is handled by /pair — check your DM for a code."}
}

func (r *Router) helpText() string {
	return "touchgrass: run `tg claude|codex|pi|kimi` from your workstation, then talk to me here."
}

func (r *Router) dispatchCommand(in Inbound, cmd Command) Result {
	switch cmd.Name {
	case "/link":
		if r.Links == nil {
			return Result{Reply: "linking is not configured"}
		}
		if err := r.Links.Link(in.ChatID); err != nil {
			return Result{Reply: "could not link this chat: " + err.Error()}
		}
		return Result{Reply: "This chat is now linked."}

	case "/unlink":
		if r.Links == nil {
			return Result{Reply: "linking is not configured"}
		}
		if err := r.Links.Unlink(in.ChatID); err != nil {
			return Result{Reply: "could not unlink this chat: " + err.Error()}
		}
		return Result{Reply: "This chat is now unlinked."}

	case "/start":
		return r.handleStart(in, cmd.Args)

	case "/kill":
		return r.handleControl(in, control.Kill, nil)

	case "/stop":
		return r.handleControl(in, control.Stop, nil)

	case "/resume":
		return Result{Reply: "Building a session picker…"}

	case "/files":
		return Result{Reply: "Building a file picker…"}

	case "/output_mode":
		return r.handleOutputMode(in, cmd.Args)

	case "/thinking":
		return r.handleThinking(in, cmd.Args)

	default:
		return Result{Reply: "unrecognized command: " + cmd.Name}
	}
}

func (r *Router) handleStart(in Inbound, args []string) Result {
	sess, attached := r.Manager.GetAttachedRemote(in.ChatID)
	if !attached {
		if r.Camp == nil || !r.Camp.Active() {
			return Result{Reply: "Camp is inactive."}
		}
		var tool, project string
		if len(args) > 0 {
			tool = args[0]
		}
		if len(args) > 1 {
			project = args[1]
		}
		if err := r.Camp.Start(in.ChatID, in.UserID, tool, project); err != nil {
			return Result{Reply: "could not start: " + err.Error()}
		}
		return Result{Reply: "Starting " + tool + "…"}
	}

	if !r.Manager.CanUserAccessSession(in.UserID, sess.ID) {
		return Result{Reply: "only the session owner can do that"}
	}
	var tool string
	if len(args) > 0 {
		tool = args[0]
	}
	r.Manager.RequestRemoteStart(sess.ID, tool, args[minInt(1, len(args)):])
	return Result{Reply: "queued a restart"}
}

func (r *Router) handleControl(in Inbound, kind control.Kind, _ []string) Result {
	sess, attached := r.Manager.GetAttachedRemote(in.ChatID)
	if !attached {
		return Result{Reply: "no session attached to this chat"}
	}
	if !r.Manager.CanUserAccessSession(in.UserID, sess.ID) {
		return Result{Reply: "only the session owner can do that"}
	}
	switch kind {
	case control.Kill:
		r.Manager.RequestRemoteKill(sess.ID)
		return Result{Reply: "killing the session"}
	default:
		r.Manager.RequestRemoteStop(sess.ID)
		return Result{Reply: "stopping the session"}
	}
}

func (r *Router) handleOutputMode(in Inbound, args []string) Result {
	if r.Preferences == nil || len(args) == 0 {
		return Result{Reply: "usage: /output_mode simple|verbose"}
	}
	mode := strings.ToLower(args[0])
	if mode != "simple" && mode != "verbose" {
		return Result{Reply: "usage: /output_mode simple|verbose"}
	}
	r.Preferences.SetOutputMode(in.ChatID, mode)
	return Result{Reply: "output mode set to " + mode}
}

func (r *Router) handleThinking(in Inbound, args []string) Result {
	if r.Preferences == nil {
		return Result{Reply: "usage: /thinking on|off|toggle"}
	}
	if len(args) == 0 {
		on := r.Preferences.ToggleThinking(in.ChatID)
		return Result{Reply: thinkingLabel(on)}
	}
	switch strings.ToLower(args[0]) {
	case "on":
		r.Preferences.SetThinking(in.ChatID, true)
		return Result{Reply: thinkingLabel(true)}
	case "off":
		r.Preferences.SetThinking(in.ChatID, false)
		return Result{Reply: thinkingLabel(false)}
	case "toggle":
		on := r.Preferences.ToggleThinking(in.ChatID)
		return Result{Reply: thinkingLabel(on)}
	default:
		return Result{Reply: "usage: /thinking on|off|toggle"}
	}
}

func thinkingLabel(on bool) string {
	if on {
		return "thinking: on"
	}
	return "thinking: off"
}

func (r *Router) handlePlainText(in Inbound) Result {
	sess, attached := r.Manager.GetAttachedRemote(in.ChatID)
	if !attached {
		return Result{}
	}
	mentions := r.Manager.TakePendingMentions(daemon.MentionKey{SessionID: sess.ID, ChatID: in.ChatID, UserID: in.UserID})
	text := ApplyMention(mentions, in.Text)
	r.Manager.EnqueueInput(sess.ID, text)
	return Result{Injected: true}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
