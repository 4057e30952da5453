package board

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ChatSender is the subset of the out-of-scope chat adapter (spec §1) the
// tracker drives: plain sends and the pinned-message upsert primitive.
type ChatSender interface {
	Send(chatID, text string) error
	UpsertStatusBoard(chatID, boardKey, body string) error
	ClearStatusBoard(chatID, boardKey string) error
}

// Tracker owns the background-job map and status-board entries for every
// session known to the daemon (spec §4.8).
type Tracker struct {
	mu     sync.Mutex
	sender ChatSender
	jobs   map[string]map[string]*Job // sessionID -> taskID -> Job
	boards map[string]*Entry          // chatId+"\x00"+boardKey -> Entry
	store  *Store
}

// NewTracker returns a Tracker backed by sender for chat I/O and store for
// persistence (nil store disables persistence, useful in tests).
func NewTracker(sender ChatSender, store *Store) *Tracker {
	t := &Tracker{
		sender: sender,
		jobs:   make(map[string]map[string]*Job),
		boards: make(map[string]*Entry),
		store:  store,
	}
	if store != nil {
		if snap, err := store.Load(); err == nil {
			t.restore(snap)
		}
	}
	return t
}

func (t *Tracker) restore(snap Snapshot) {
	for sid, jobs := range snap.Jobs {
		m := make(map[string]*Job, len(jobs))
		for i := range jobs {
			j := jobs[i]
			m[j.TaskID] = &j
		}
		t.jobs[sid] = m
	}
	for i := range snap.Boards {
		e := snap.Boards[i]
		t.boards[boardMapKey(e.ChatID, e.BoardKey)] = &e
	}
}

func boardMapKey(chatID, boardKey string) string { return chatID + "\x00" + boardKey }

// OnEvent applies a background job lifecycle transition observed in a
// session's JSONL stream, sending a one-time announcement to each of
// targetChats on the running→tracked and tracked→terminal edges, and
// upserting the status board for each of those chats afterward.
func (t *Tracker) OnEvent(sessionID, taskID string, status JobStatus, command, outputFile, summary string, urls []string, targetChats []string) {
	t.mu.Lock()
	sessionJobs, ok := t.jobs[sessionID]
	if !ok {
		sessionJobs = make(map[string]*Job)
		t.jobs[sessionID] = sessionJobs
	}

	job, existed := sessionJobs[taskID]
	if !existed {
		job = &Job{TaskID: taskID, SessionID: sessionID}
		sessionJobs[taskID] = job
	}
	job.Status = status
	if command != "" {
		job.Command = command
	}
	if outputFile != "" {
		job.OutputFile = outputFile
	}
	if summary != "" {
		job.Summary = summary
	}
	if len(urls) > 0 {
		job.URLs = urls
	}
	job.UpdatedAt = time.Now()

	announceStart := status == JobRunning && !job.StartedAnnounced
	if announceStart {
		job.StartedAnnounced = true
	}
	announceTerminal := job.isTerminal() && !job.TerminalAnnounced
	if announceTerminal {
		job.TerminalAnnounced = true
	}
	if job.isTerminal() {
		delete(sessionJobs, taskID)
	}
	t.mu.Unlock()

	if announceStart {
		t.announce(targetChats, fmt.Sprintf("▶ background job %s started: %s", taskID, command))
	}
	if announceTerminal {
		t.announce(targetChats, terminalMessage(*job))
	}
	for _, chatID := range targetChats {
		t.UpsertBoard(chatID, sessionID)
	}
	t.persist()
}

func terminalMessage(j Job) string {
	switch j.Status {
	case JobCompleted:
		if j.Summary != "" {
			return fmt.Sprintf("✅ background job %s completed: %s", j.TaskID, j.Summary)
		}
		return fmt.Sprintf("✅ background job %s completed", j.TaskID)
	case JobFailed:
		return fmt.Sprintf("❌ background job %s failed", j.TaskID)
	default:
		return fmt.Sprintf("⏹ background job %s stopped", j.TaskID)
	}
}

func (t *Tracker) announce(targetChats []string, text string) {
	for _, chatID := range targetChats {
		_ = t.sender.Send(chatID, text)
	}
}

// RunningJobsForSession returns the sessions's currently running jobs,
// newest first, for board rendering or diagnostics.
func (t *Tracker) RunningJobsForSession(sessionID string) []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	jobs := make([]Job, 0, len(t.jobs[sessionID]))
	for _, j := range t.jobs[sessionID] {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].UpdatedAt.After(jobs[k].UpdatedAt) })
	return jobs
}

// UpsertBoard recomputes the status board body for (chatID, boardKey) and
// pushes it to the chat adapter, capping the listed jobs at maxListedJobs.
func (t *Tracker) UpsertBoard(chatID, boardKey string) {
	jobs := t.RunningJobsForSession(boardKey)
	body := renderBoard(jobs)

	t.mu.Lock()
	key := boardMapKey(chatID, boardKey)
	entry, ok := t.boards[key]
	if !ok {
		entry = &Entry{ChatID: chatID, BoardKey: boardKey, Pinned: true}
		t.boards[key] = entry
	}
	entry.UpdatedAt = time.Now()
	t.mu.Unlock()

	_ = t.sender.UpsertStatusBoard(chatID, boardKey, body)
	t.persist()
}

func renderBoard(jobs []Job) string {
	if len(jobs) == 0 {
		return "No background jobs running."
	}
	var b strings.Builder
	b.WriteString("Running background jobs:\n")
	shown := jobs
	extra := 0
	if len(jobs) > maxListedJobs {
		shown = jobs[:maxListedJobs]
		extra = len(jobs) - maxListedJobs
	}
	for _, j := range shown {
		fmt.Fprintf(&b, "• %s — %s\n", j.TaskID, firstNonEmpty(j.Command, j.Summary, "(running)"))
	}
	if extra > 0 {
		fmt.Fprintf(&b, "+%d more\n", extra)
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Reconcile clears any board whose entry has gone untouched for
// orphanAge — e.g. its owning session was removed without a final
// UpsertBoard call (spec §4.8).
func (t *Tracker) Reconcile(now time.Time) {
	t.mu.Lock()
	var toClear []Entry
	for key, e := range t.boards {
		if now.Sub(e.UpdatedAt) > orphanAge {
			toClear = append(toClear, *e)
			delete(t.boards, key)
		}
	}
	t.mu.Unlock()

	for _, e := range toClear {
		_ = t.sender.ClearStatusBoard(e.ChatID, e.BoardKey)
	}
	if len(toClear) > 0 {
		t.persist()
	}
}

// RunReconcileLoop runs Reconcile every reconcileInterval until stop is closed.
func (t *Tracker) RunReconcileLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			t.Reconcile(now)
		case <-stop:
			return
		}
	}
}

// RemoveSession drops all jobs and boards owned by sessionID, e.g. on
// session removal.
func (t *Tracker) RemoveSession(sessionID string) {
	t.mu.Lock()
	delete(t.jobs, sessionID)
	for key, e := range t.boards {
		if e.BoardKey == sessionID {
			delete(t.boards, key)
		}
	}
	t.mu.Unlock()
	t.persist()
}

func (t *Tracker) persist() {
	if t.store == nil {
		return
	}
	t.mu.Lock()
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.store.ScheduleSave(snap)
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{Version: 1, Jobs: make(map[string][]Job, len(t.jobs))}
	for sid, jobs := range t.jobs {
		list := make([]Job, 0, len(jobs))
		for _, j := range jobs {
			list = append(list, *j)
		}
		snap.Jobs[sid] = list
	}
	for _, e := range t.boards {
		snap.Boards = append(snap.Boards, *e)
	}
	return snap
}
