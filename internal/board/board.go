// Package board implements the background-job tracker and per-chat status
// board described in spec §4.8: tracking running jobs, sending one-time
// start/terminal announcements, and upserting a pinned summary message.
package board

import "time"

// JobStatus enumerates a background job's lifecycle states.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobKilled    JobStatus = "killed"
)

// Job is a background task the daemon tracks independently of the
// foreground turn (spec §3 BackgroundJob), plus idempotency bookkeeping so
// a reload from disk doesn't re-announce a job that already was.
type Job struct {
	TaskID              string    `json:"taskId"`
	SessionID           string    `json:"sessionId"`
	Status              JobStatus `json:"status"`
	Command             string    `json:"command,omitempty"`
	OutputFile          string    `json:"outputFile,omitempty"`
	Summary             string    `json:"summary,omitempty"`
	URLs                []string  `json:"urls,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
	StartedAnnounced    bool      `json:"startedAnnounced"`
	TerminalAnnounced   bool      `json:"terminalAnnounced"`
}

func (j Job) isTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobKilled
}

// Entry is a pinned per-(chatId, boardKey) status message (spec §3 StatusBoardEntry).
type Entry struct {
	ChatID    string    `json:"chatId"`
	BoardKey  string    `json:"boardKey"`
	MessageID string    `json:"messageId"`
	Pinned    bool      `json:"pinned"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// maxListedJobs caps how many running jobs are listed in a board body
// before collapsing the remainder into a "+N more" suffix (spec §4.8).
const maxListedJobs = 8

// orphanAge is how long a board with no matching session must sit before
// reconciliation clears it.
const orphanAge = 5 * time.Minute

// reconcileInterval is how often the tracker re-derives running jobs from
// disk and clears orphaned boards.
const reconcileInterval = 30 * time.Second
