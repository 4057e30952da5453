package daemon

import (
	"sync"
	"time"
)

// campActiveTimeout is how long Camp stays "active" without a heartbeat
// from the external `tg camp` process before the daemon considers it gone.
const campActiveTimeout = 15 * time.Second

// CampRequest is one pending "spawn a session" request queued by a chat
// /start command for the external Camp controller to pick up (spec
// glossary "Camp").
type CampRequest struct {
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
	Tool    string `json:"tool"`
	Project string `json:"project"`
}

// CampRegistry tracks whether an external `tg camp --root <dir>` process is
// currently registered, and queues Start requests for it to drain. It
// satisfies router.Camp directly: the router runs in-process inside the
// daemon, so no HTTP hop is needed on that side.
type CampRegistry struct {
	mu         sync.Mutex
	root       string
	lastBeatAt time.Time
	pending    []CampRequest
}

// NewCampRegistry returns an inactive registry.
func NewCampRegistry() *CampRegistry {
	return &CampRegistry{}
}

// Register marks Camp active for root, called on `tg camp`'s startup and
// every heartbeat tick.
func (c *CampRegistry) Register(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = root
	c.lastBeatAt = time.Now()
}

// Active satisfies router.Camp: true iff a Camp process has registered (or
// heartbeated) within campActiveTimeout.
func (c *CampRegistry) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastBeatAt.IsZero() && time.Since(c.lastBeatAt) < campActiveTimeout
}

// Start satisfies router.Camp: queues a spawn request for Camp to drain.
func (c *CampRegistry) Start(chatID, userID, tool, project string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, CampRequest{ChatID: chatID, UserID: userID, Tool: tool, Project: project})
	return nil
}

// DrainRequests atomically takes and clears all pending Start requests.
func (c *CampRegistry) DrainRequests() []CampRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// Root returns the last registered root directory.
func (c *CampRegistry) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}
