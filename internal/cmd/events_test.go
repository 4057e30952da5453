package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"touchgrass/internal/activitylog"
	"touchgrass/internal/board"
	"touchgrass/internal/daemon"
)

type fakeChatSender struct {
	sent []string
}

func (f *fakeChatSender) Send(chatID, text string) error {
	f.sent = append(f.sent, chatID+": "+text)
	return nil
}

func newTestEventSink(t *testing.T) (*eventSink, *daemon.Manager, *fakeChatSender) {
	t.Helper()
	manager := daemon.NewManager()
	chat := &fakeChatSender{}
	store := board.NewStore(filepath.Join(t.TempDir(), "board.json"))
	jobs := board.NewTracker(chat, store)
	log := activitylog.New(false, "", "daemon", "")
	return &eventSink{Manager: manager, Chat: chat, Jobs: jobs, Log: log}, manager, chat
}

func TestEventSinkUnknownSession(t *testing.T) {
	sink, _, _ := newTestEventSink(t)
	out, err := sink.OnSessionEvent("r-missing", "assistant", []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("OnSessionEvent: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["unknown"] != true {
		t.Errorf("got %v, want unknown:true", out)
	}
}

func TestEventSinkAssistantSendsToBoundChat(t *testing.T) {
	sink, manager, chat := newTestEventSink(t)
	sess, err := manager.RegisterRemote("claude", "chat-1", "user-1", "/tmp", "")
	if err != nil {
		t.Fatalf("RegisterRemote: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"text": "hello there"})
	if _, err := sink.OnSessionEvent(sess.ID, "assistant", body); err != nil {
		t.Fatalf("OnSessionEvent: %v", err)
	}

	if len(chat.sent) != 1 || chat.sent[0] != "chat-1: hello there" {
		t.Errorf("chat.sent = %v, want one message to chat-1", chat.sent)
	}
}

func TestEventSinkThinkingPrefixesEmoji(t *testing.T) {
	sink, manager, chat := newTestEventSink(t)
	sess, err := manager.RegisterRemote("claude", "chat-2", "user-1", "/tmp", "")
	if err != nil {
		t.Fatalf("RegisterRemote: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"text": "pondering"})
	if _, err := sink.OnSessionEvent(sess.ID, "thinking", body); err != nil {
		t.Fatalf("OnSessionEvent: %v", err)
	}

	if len(chat.sent) != 1 || chat.sent[0] != "chat-2: 💭 pondering" {
		t.Errorf("chat.sent = %v", chat.sent)
	}
}
