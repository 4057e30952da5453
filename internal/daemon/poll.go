package daemon

import "touchgrass/internal/ids"

// PollKind discriminates the kinds of selection widget a Poll backs
// (spec §3 Poll/Picker state).
type PollKind string

const (
	PollAskQuestion  PollKind = "ask_question"
	PollFilePicker   PollKind = "file_picker"
	PollResumePicker PollKind = "resume_picker"
	PollOutputMode   PollKind = "output_mode"
)

// Poll is a short-lived record backing a chat-side selection widget: a
// regular AskUserQuestion poll, a file picker, a resume picker, or an
// output-mode poll (spec §3). Pagination state lives here so the command
// router (component H) can reissue a fresh page without recomputing offsets.
type Poll struct {
	ID          string
	SessionID   string
	ChatID      string
	OwnerUserID string
	Kind        PollKind

	Options  []string
	Offset   int
	PageSize int

	// SelectedMentions accumulates toggle selections for file pickers
	// across pages (spec §4.7.1).
	SelectedMentions []string
}

// CreatePoll assigns a fresh id to p, stores it, and indexes it under its
// session for cascade-on-remove.
func (m *Manager) CreatePoll(p *Poll) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := make(map[string]bool, len(m.polls))
	for id := range m.polls {
		taken[id] = true
	}
	id, err := ids.New(taken)
	if err != nil {
		// ids.New only fails after 64 collisions against taken; fall back
		// to the session+offset combination, which is unique in practice.
		id = p.SessionID + "-poll"
	}
	p.ID = id
	m.polls[id] = p
	m.pollsBySession[p.SessionID] = append(m.pollsBySession[p.SessionID], id)
	return id
}

// GetPoll returns the poll by id.
func (m *Manager) GetPoll(id string) (*Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	return p, ok
}

// DeletePoll removes a poll, e.g. on answer or explicit cancel.
func (m *Manager) DeletePoll(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return
	}
	delete(m.polls, id)
	ids := m.pollsBySession[p.SessionID]
	for i, pid := range ids {
		if pid == id {
			m.pollsBySession[p.SessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// PollsForSession lists the live polls belonging to a session.
func (m *Manager) PollsForSession(sessionID string) []*Poll {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.pollsBySession[sessionID]
	out := make([]*Poll, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.polls[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
