package router

import (
	"testing"

	"touchgrass/internal/daemon"
)

type fakePairing struct{ paired map[string]bool }

func (f *fakePairing) IsPaired(userID string) bool { return f.paired[userID] }

type fakeLinks struct{ linked map[string]bool }

func (f *fakeLinks) IsLinked(chatID string) bool { return f.linked[chatID] }
func (f *fakeLinks) Link(chatID string) error {
	if f.linked == nil {
		f.linked = map[string]bool{}
	}
	f.linked[chatID] = true
	return nil
}
func (f *fakeLinks) Unlink(chatID string) error {
	delete(f.linked, chatID)
	return nil
}

type fakePrefs struct {
	outputMode map[string]string
	thinking   map[string]bool
}

func (f *fakePrefs) SetOutputMode(chatID, mode string) {
	if f.outputMode == nil {
		f.outputMode = map[string]string{}
	}
	f.outputMode[chatID] = mode
}
func (f *fakePrefs) SetThinking(chatID string, on bool) {
	if f.thinking == nil {
		f.thinking = map[string]bool{}
	}
	f.thinking[chatID] = on
}
func (f *fakePrefs) ToggleThinking(chatID string) bool {
	if f.thinking == nil {
		f.thinking = map[string]bool{}
	}
	f.thinking[chatID] = !f.thinking[chatID]
	return f.thinking[chatID]
}

func newTestRouter() (*Router, *daemon.Manager) {
	m := daemon.NewManager()
	r := &Router{
		Manager:     m,
		Pairing:     &fakePairing{paired: map[string]bool{"tg:u1": true}},
		Links:       &fakeLinks{linked: map[string]bool{}},
		Preferences: &fakePrefs{},
		BotName:     "tgbot",
	}
	return r, m
}

func TestDispatchRequiresPairing(t *testing.T) {
	r, _ := newTestRouter()
	res := r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:unpaired", Text: "/kill"})
	if res.Reply == "" {
		t.Fatalf("expected a pairing prompt")
	}
}

func TestDispatchHelpBypassesPairing(t *testing.T) {
	r, _ := newTestRouter()
	res := r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:unpaired", Text: "/help"})
	if res.Reply == "" {
		t.Fatalf("expected help text")
	}
}

func TestDispatchKillRequiresOwnership(t *testing.T) {
	r, m := newTestRouter()
	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")
	_ = sess

	res := r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:u1", Text: "/kill"})
	if res.Reply != "killing the session" {
		t.Fatalf("owner kill = %q", res.Reply)
	}

	action := m.DrainRemoteControl(sess.ID)
	if action == nil {
		t.Fatalf("expected a control action to be queued")
	}
}

func TestDispatchGroupRequiresLinkExceptAllowlist(t *testing.T) {
	r, _ := newTestRouter()
	res := r.Dispatch(Inbound{ChatID: "tg:group", UserID: "tg:u1", Text: "/output_mode simple", IsGroup: true})
	if res.Reply == "" || res.Reply == "output mode set to simple" {
		t.Fatalf("unlinked group should be rejected before reaching the command, got %q", res.Reply)
	}

	res = r.Dispatch(Inbound{ChatID: "tg:group", UserID: "tg:u1", Text: "/link", IsGroup: true})
	if res.Reply != "This chat is now linked." {
		t.Fatalf("/link should be allowed before linking, got %q", res.Reply)
	}
}

func TestDispatchPlainTextInjectsInput(t *testing.T) {
	r, m := newTestRouter()
	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")

	res := r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:u1", Text: "hello there"})
	if !res.Injected {
		t.Fatalf("expected plain text to be injected")
	}
	input := m.DrainRemoteInput(sess.ID)
	if len(input) != 1 || input[0] != "hello there" {
		t.Fatalf("input = %v", input)
	}
}

func TestDispatchPlainTextPrependsPendingMentions(t *testing.T) {
	r, m := newTestRouter()
	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")
	m.SetPendingMentions(daemon.MentionKey{SessionID: sess.ID, ChatID: "tg:owner", UserID: "tg:u1"}, []string{"@a.go"})

	r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:u1", Text: "fix this"})
	input := m.DrainRemoteInput(sess.ID)
	if len(input) != 1 || input[0] != "@a.go fix this" {
		t.Fatalf("input = %v", input)
	}
}

func TestDispatchOutputModeAndThinking(t *testing.T) {
	r, _ := newTestRouter()
	res := r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:u1", Text: "/output_mode verbose"})
	if res.Reply != "output mode set to verbose" {
		t.Fatalf("output_mode reply = %q", res.Reply)
	}
	res = r.Dispatch(Inbound{ChatID: "tg:owner", UserID: "tg:u1", Text: "/thinking on"})
	if res.Reply != "thinking: on" {
		t.Fatalf("thinking reply = %q", res.Reply)
	}
}
