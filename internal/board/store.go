package board

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Snapshot is the on-disk shape of status-boards.json (spec §4.8):
// {version, boards:[...], jobs:{sessionId:[...]}}.
type Snapshot struct {
	Version int            `json:"version"`
	Boards  []Entry        `json:"boards"`
	Jobs    map[string][]Job `json:"jobs"`
}

const debounceDelay = 250 * time.Millisecond
const lockTimeout = 2 * time.Second

// Store persists board/job state to a single JSON file, debouncing writes
// so a burst of job events collapses into one disk write (spec §4.8).
type Store struct {
	path string

	mu      sync.Mutex
	timer   *time.Timer
	pending *Snapshot
}

// NewStore returns a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted snapshot, returning an empty Snapshot if the
// file does not yet exist.
func (s *Store) Load() (Snapshot, error) {
	fl := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if ok, err := fl.TryRLockContext(ctx, 20*time.Millisecond); err == nil && ok {
		defer fl.Unlock()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Version: 1, Jobs: map[string][]Job{}}, nil
		}
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ScheduleSave debounces a write of snap to disk by debounceDelay.
func (s *Store) ScheduleSave(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snap
	s.pending = &cp
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceDelay, s.flush)
}

func (s *Store) flush() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}
	_ = s.writeNow(*snap)
}

// writeNow writes snap immediately, taking an exclusive lock and writing
// via temp-file-then-rename so concurrent readers never see a partial file.
func (s *Store) writeNow(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	fl := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if ok, err := fl.TryLockContext(ctx, 20*time.Millisecond); err == nil && ok {
		defer fl.Unlock()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Flush forces any pending debounced write to happen immediately. Used on
// daemon shutdown so the last state isn't lost to the debounce window.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()
	if snap != nil {
		_ = s.writeNow(*snap)
	}
}
