package daemon

import (
	"testing"
	"time"
)

type fakeNotifier struct {
	sent map[string]string
}

func (f *fakeNotifier) Send(chatID, text string) error {
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[chatID] = text
	return nil
}

func TestReapOnceRemovesStaleSessionAndNotifies(t *testing.T) {
	m := NewManager()
	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")
	m.mu.Lock()
	m.sessions[sess.ID].LastHeartbeatAt = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	notifier := &fakeNotifier{}
	lc := NewLifecycle(m, notifier)
	lc.reapOnce()

	if _, ok := m.GetRemote(sess.ID); ok {
		t.Fatalf("stale session should be reaped")
	}
	if notifier.sent["tg:owner"] == "" {
		t.Fatalf("bound chat should be notified of disconnect")
	}
}

func TestReapOnceIgnoresFreshSessions(t *testing.T) {
	m := NewManager()
	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")

	lc := NewLifecycle(m, &fakeNotifier{})
	lc.reapOnce()

	if _, ok := m.GetRemote(sess.ID); !ok {
		t.Fatalf("fresh session should survive reaping")
	}
}

func TestOnSessionCountChangedFiresShutdownWhenIdle(t *testing.T) {
	m := NewManager()
	done := make(chan struct{}, 1)
	lc := &Lifecycle{Manager: m, Shutdown: func() { done <- struct{}{} }}

	sess, _ := m.RegisterRemote("claude", "tg:owner", "tg:u1", "/tmp", "")
	lc.OnSessionCountChanged() // session present, no timer armed

	m.RemoveRemote(sess.ID)
	lc.OnSessionCountChanged() // now idle, timer armed with autoStopDelay

	select {
	case <-done:
		t.Fatalf("shutdown fired before autoStopDelay elapsed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShouldRestartDaemonGate(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	if !ShouldRestartDaemon(older, newer, true, 0) {
		t.Fatalf("should restart: older daemon, reachable, zero sessions")
	}
	if ShouldRestartDaemon(older, newer, true, 1) {
		t.Fatalf("should not restart: active sessions present")
	}
	if ShouldRestartDaemon(older, newer, false, 0) {
		t.Fatalf("should not restart: status unreachable")
	}
	if ShouldRestartDaemon(newer, older, true, 0) {
		t.Fatalf("should not restart: daemon is not older than the binary")
	}
}
