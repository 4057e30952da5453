package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// DaemonProcessName is the argv[0] marker used to recognize the daemon's
// own process when scanning the process list (spec §4.10 "__daemon__").
const DaemonProcessName = "__touchgrass_daemon__"

const (
	staleSessionAge  = 30 * time.Second
	reapInterval     = 60 * time.Second
	autoStopDelay    = 30 * time.Second
	healthPollDelay  = 250 * time.Millisecond
	healthPollTries  = 20
	killEscalateWait = 200 * time.Millisecond
)

// ChatNotifier is the minimal chat-send surface the reaper needs to tell a
// bound chat its session went away.
type ChatNotifier interface {
	Send(chatID, text string) error
}

// Lifecycle owns the background timers named in spec §4.10: the
// stale-session reaper, the auto-stop timer, and redundant-daemon reaping.
type Lifecycle struct {
	Manager  *Manager
	Notifier ChatNotifier

	// Shutdown is called exactly once, from the auto-stop timer, when the
	// daemon should exit: close listeners, remove pid/socket/auth-token
	// files, and return.
	Shutdown func()

	mu        sync.Mutex
	stopTimer *time.Timer
}

// NewLifecycle returns a Lifecycle wired to m.
func NewLifecycle(m *Manager, notifier ChatNotifier) *Lifecycle {
	return &Lifecycle{Manager: m, Notifier: notifier}
}

// RunStaleReaper removes sessions whose last heartbeat is older than
// staleSessionAge every reapInterval, notifying each session's bound chat,
// until stop is closed.
func (l *Lifecycle) RunStaleReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.reapOnce()
		case <-stop:
			return
		}
	}
}

func (l *Lifecycle) reapOnce() {
	for _, sess := range l.Manager.sessionsSnapshotForReap() {
		if time.Since(sess.LastHeartbeatAt) <= staleSessionAge {
			continue
		}
		bound, hasBound := l.Manager.GetBoundChat(sess.ID)
		l.Manager.RemoveRemote(sess.ID)
		if hasBound && l.Notifier != nil {
			_ = l.Notifier.Send(bound, "disconnected (CLI stopped responding)")
		}
	}
}

// sessionsSnapshotForReap returns a point-in-time copy of session pointers
// safe to range over without holding the manager mutex during notification.
func (m *Manager) sessionsSnapshotForReap() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// OnSessionCountChanged re-arms or cancels the auto-stop timer. Call it
// after every RegisterRemote/RemoveRemote (spec §4.10: 30s after the last
// session ends, the daemon shuts itself down).
func (l *Lifecycle) OnSessionCountChanged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Manager.Count() > 0 {
		if l.stopTimer != nil {
			l.stopTimer.Stop()
			l.stopTimer = nil
		}
		return
	}
	if l.stopTimer != nil {
		return
	}
	l.stopTimer = time.AfterFunc(autoStopDelay, func() {
		l.mu.Lock()
		l.stopTimer = nil
		l.mu.Unlock()
		if l.Manager.Count() == 0 && l.Shutdown != nil {
			log.Printf("daemon: auto-stopping after %s idle", autoStopDelay)
			l.Shutdown()
		}
	})
}

// ReapRedundantDaemons SIGTERMs (then SIGKILLs after killEscalateWait) every
// process whose argv[0] marks it as a touchgrass daemon other than
// authoritativePID (spec §4.10).
func ReapRedundantDaemons(authoritativePID int) {
	procs, err := ps.Processes()
	if err != nil {
		log.Printf("daemon: list processes for redundant-daemon reap: %v", err)
		return
	}
	for _, p := range procs {
		if p.Pid() == authoritativePID {
			continue
		}
		if !strings.Contains(p.Executable(), DaemonProcessName) {
			continue
		}
		killGracefully(p.Pid())
	}
}

func killGracefully(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
	time.AfterFunc(killEscalateWait, func() {
		_ = proc.Signal(syscall.SIGKILL)
	})
}

// EnsureDaemonHealthy polls /health up to healthPollTries times at
// healthPollDelay intervals and reports whether it ever answered (spec §5
// timeouts: "ensureDaemon polls /health up to 20x250ms before giving up").
func EnsureDaemonHealthy(ctx context.Context, client *http.Client, baseURL, authToken string) bool {
	req := func() bool {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err != nil {
			return false
		}
		r.Header.Set(authHeader, authToken)
		resp, err := client.Do(r)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
	for i := 0; i < healthPollTries; i++ {
		if req() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(healthPollDelay):
		}
	}
	return false
}

// ShouldRestartDaemon implements spec §4.10's restart gate: a restart is
// warranted only when the daemon's startedAt predates the newest
// source/binary mtime AND /status reports zero active sessions.
func ShouldRestartDaemon(daemonStartedAt, newestBinaryMtime time.Time, statusReachable bool, activeSessions int) bool {
	if !statusReachable {
		return false
	}
	if activeSessions != 0 {
		return false
	}
	return daemonStartedAt.Before(newestBinaryMtime)
}

// ListenSocketAndTCP opens the UNIX socket listener (mode 0600) and, if
// tcpAddr is non-empty, a TCP listener too. Either return may be nil.
func ListenSocketAndTCP(socketPath, tcpAddr string) (net.Listener, net.Listener, error) {
	_ = os.Remove(socketPath)
	unixLn, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("listen unix %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		unixLn.Close()
		return nil, nil, fmt.Errorf("chmod socket: %w", err)
	}
	if tcpAddr == "" {
		return unixLn, nil, nil
	}
	tcpLn, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		unixLn.Close()
		return nil, nil, fmt.Errorf("listen tcp %s: %w", tcpAddr, err)
	}
	return unixLn, tcpLn, nil
}
