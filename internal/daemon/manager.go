// Package daemon implements the Session Manager (spec §4.1), the control
// server (§4.6), and the daemon lifecycle (§4.10).
package daemon

import (
	"sort"
	"sync"
	"time"

	"touchgrass/internal/control"
	"touchgrass/internal/ids"
	"touchgrass/internal/parser"
)

// Session is the daemon's record of one bridged CLI invocation (spec §3).
// Every field is owned by Manager and must only be touched under its mutex.
type Session struct {
	ID              string
	Command         string
	CWD             string
	ChatID          string // owner DM chat id, fixed at registration
	OwnerUserID     string
	CreatedAt       time.Time
	LastHeartbeatAt time.Time

	InputQueue    []string
	ControlAction *control.Action

	PendingQuestions []parser.AskQuestion
}

// MentionKey identifies one single-use pending file-mention slot (spec §3).
type MentionKey struct {
	SessionID string
	ChatID    string
	UserID    string
}

// Manager is the in-memory registry of sessions, chat attachments, group
// subscriptions, pickers, polls, and pending file mentions (spec §4.1). All
// of its state lives under one mutex (spec §5); it is never held across I/O.
type Manager struct {
	mu sync.Mutex

	sessions map[string]*Session

	chatToSession    map[string]string          // chatId -> sessionId
	sessionToChats   map[string]map[string]bool // sessionId -> set<chatId> (attachments)
	groupSubs        map[string]map[string]bool // sessionId -> set<chatId> (fan-out only)
	polls            map[string]*Poll
	pollsBySession   map[string][]string
	pendingMentions  map[MentionKey][]string
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions:        make(map[string]*Session),
		chatToSession:   make(map[string]string),
		sessionToChats:  make(map[string]map[string]bool),
		groupSubs:       make(map[string]map[string]bool),
		polls:           make(map[string]*Poll),
		pollsBySession:  make(map[string][]string),
		pendingMentions: make(map[MentionKey][]string),
	}
}

// RegisterRemote creates (or reconnects) a session. If existingID is
// non-empty it is reused verbatim (reconnect path, spec §7 "unknown
// session"); otherwise a fresh "r-"+6-hex id is generated, re-rolling on
// collision. It auto-attaches to chatID iff chatID has no session attached.
func (m *Manager) RegisterRemote(command, chatID, ownerUserID, cwd, existingID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := existingID
	if id == "" {
		taken := make(map[string]bool, len(m.sessions))
		for sid := range m.sessions {
			taken[sid] = true
		}
		var err error
		id, err = ids.New(taken)
		if err != nil {
			return nil, err
		}
	}

	sess, ok := m.sessions[id]
	if !ok {
		sess = &Session{
			ID:          id,
			Command:     command,
			CWD:         cwd,
			ChatID:      chatID,
			OwnerUserID: ownerUserID,
			CreatedAt:   time.Now(),
		}
		m.sessions[id] = sess
	}
	sess.LastHeartbeatAt = time.Now()

	if _, bound := m.chatToSession[chatID]; !bound {
		m.attachLocked(chatID, id)
	}
	return sess, nil
}

// RemoveRemote drops a session and cascades: detaches every chat bound to
// it, clears its group subscriptions, and evicts its polls and pending
// file mentions (spec §4.1).
func (m *Manager) RemoveRemote(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeRemoteLocked(id)
}

func (m *Manager) removeRemoteLocked(id string) {
	if _, ok := m.sessions[id]; !ok {
		return
	}
	for chatID := range m.sessionToChats[id] {
		delete(m.chatToSession, chatID)
	}
	delete(m.sessionToChats, id)
	delete(m.groupSubs, id)

	for _, pollID := range m.pollsBySession[id] {
		delete(m.polls, pollID)
	}
	delete(m.pollsBySession, id)

	for key := range m.pendingMentions {
		if key.SessionID == id {
			delete(m.pendingMentions, key)
		}
	}
	delete(m.sessions, id)
}

// GetRemote returns the session by id.
func (m *Manager) GetRemote(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetAttachedRemote returns the session attached to chatID, if any.
func (m *Manager) GetAttachedRemote(chatID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.chatToSession[chatID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// GetBoundChat returns the chat a session's output should primarily go to.
// When more than one chat is attached to the session, a chat other than
// the owner DM is preferred (group/topic takes precedence), per spec §4.1.
func (m *Manager) GetBoundChat(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return "", false
	}
	chats := m.sessionToChats[id]
	if len(chats) == 0 {
		return "", false
	}
	var ownerDM bool
	var nonOwner []string
	for chatID := range chats {
		if chatID == sess.ChatID {
			ownerDM = true
			continue
		}
		nonOwner = append(nonOwner, chatID)
	}
	if len(nonOwner) > 0 {
		sort.Strings(nonOwner)
		return nonOwner[0], true
	}
	if ownerDM {
		return sess.ChatID, true
	}
	return "", false
}

// Attach binds chatID to sessionID, first detaching chatID from whatever
// session it was previously bound to (spec §3 ChatAttachment invariant).
func (m *Manager) Attach(chatID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	m.attachLocked(chatID, sessionID)
	return true
}

func (m *Manager) attachLocked(chatID, sessionID string) {
	if prev, ok := m.chatToSession[chatID]; ok {
		if set := m.sessionToChats[prev]; set != nil {
			delete(set, chatID)
		}
	}
	m.chatToSession[chatID] = sessionID
	set, ok := m.sessionToChats[sessionID]
	if !ok {
		set = make(map[string]bool)
		m.sessionToChats[sessionID] = set
	}
	set[chatID] = true
}

// Detach removes chatID's attachment, if any.
func (m *Manager) Detach(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionID, ok := m.chatToSession[chatID]
	if !ok {
		return false
	}
	delete(m.chatToSession, chatID)
	if set := m.sessionToChats[sessionID]; set != nil {
		delete(set, chatID)
	}
	return true
}

// SubscribeGroup adds chatID to sessionID's fan-out set.
func (m *Manager) SubscribeGroup(sessionID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.groupSubs[sessionID]
	if !ok {
		set = make(map[string]bool)
		m.groupSubs[sessionID] = set
	}
	set[chatID] = true
}

// UnsubscribeGroup removes chatID from sessionID's fan-out set.
func (m *Manager) UnsubscribeGroup(sessionID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groupSubs[sessionID], chatID)
}

// GetSubscribedGroups returns the fan-out chats for sessionID.
func (m *Manager) GetSubscribedGroups(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.groupSubs[sessionID]))
	for chatID := range m.groupSubs[sessionID] {
		out = append(out, chatID)
	}
	sort.Strings(out)
	return out
}

// CanUserAccessSession reports whether userID owns sessionID.
func (m *Manager) CanUserAccessSession(userID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return ok && sess.OwnerUserID == userID
}

// EnqueueInput appends text to a session's input queue.
func (m *Manager) EnqueueInput(id, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return false
	}
	sess.InputQueue = append(sess.InputQueue, text)
	return true
}

// DrainRemoteInput atomically takes and clears a session's input queue.
func (m *Manager) DrainRemoteInput(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	out := sess.InputQueue
	sess.InputQueue = nil
	return out
}

// DrainRemoteControl atomically takes and clears a session's pending
// control action.
func (m *Manager) DrainRemoteControl(id string) *control.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	action := sess.ControlAction
	sess.ControlAction = nil
	return action
}

func (m *Manager) mergeControlLocked(id string, incoming *control.Action) bool {
	sess, ok := m.sessions[id]
	if !ok {
		return false
	}
	sess.ControlAction = control.Merge(sess.ControlAction, incoming)
	return true
}

// RequestRemoteStop merges a Stop action into the session's control slot.
func (m *Manager) RequestRemoteStop(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeControlLocked(id, &control.Action{Kind: control.Stop})
}

// RequestRemoteKill merges a Kill action into the session's control slot.
func (m *Manager) RequestRemoteKill(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeControlLocked(id, &control.Action{Kind: control.Kill})
}

// RequestRemoteResume merges a Resume action, rejecting an unsafe session
// ref outright rather than storing it.
func (m *Manager) RequestRemoteResume(id, sessionRef string) (bool, error) {
	if !control.ValidSessionRef(sessionRef) {
		return false, ErrSessionRefUnsafe
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeControlLocked(id, &control.Action{Kind: control.Resume, SessionRef: sessionRef}), nil
}

// RequestRemoteStart merges a Start action into the session's control slot.
func (m *Manager) RequestRemoteStart(id, tool string, args []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeControlLocked(id, &control.Action{Kind: control.Start, Tool: tool, Args: args})
}

// Touch refreshes a session's LastHeartbeatAt, called on any RPC from the CLI.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return false
	}
	sess.LastHeartbeatAt = time.Now()
	return true
}

// ReapStaleRemotes removes and returns every session whose LastHeartbeatAt
// is older than maxAge (spec §4.10 stale-session reaper).
func (m *Manager) ReapStaleRemotes(maxAge time.Duration) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var stale []*Session
	for id, sess := range m.sessions {
		if now.Sub(sess.LastHeartbeatAt) > maxAge {
			stale = append(stale, sess)
		}
	}
	for _, sess := range stale {
		m.removeRemoteLocked(sess.ID)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale
}

// Status is a lightweight snapshot for GET /status.
type Status struct {
	ID        string
	Command   string
	CreatedAt time.Time
}

// ListSessions returns a stable-ordered snapshot of all sessions.
func (m *Manager) ListSessions() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, Status{ID: sess.ID, Command: sess.Command, CreatedAt: sess.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SetPendingMentions stores a single-use ordered list of file mentions for
// (sessionId, chatId, userId), overwriting any previous value.
func (m *Manager) SetPendingMentions(key MentionKey, mentions []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingMentions[key] = mentions
}

// TakePendingMentions atomically takes and clears the mentions for key.
func (m *Manager) TakePendingMentions(key MentionKey) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pendingMentions[key]
	if !ok {
		return nil
	}
	delete(m.pendingMentions, key)
	return v
}
