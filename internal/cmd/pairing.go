package cmd

import (
	"fmt"
	"sync"
	"time"

	"touchgrass/internal/config"
	"touchgrass/internal/ids"
)

// pairingStore is the in-memory-cached, disk-backed DaemonConfig, shared by
// the router's Pairing/Links/Preferences ports and the control server's
// ChannelLister/CodeGenerator ports. One instance per running daemon.
// Grounded on internal/board.Store's load-mutate-save-under-mutex shape.
type pairingStore struct {
	path string

	mu  sync.Mutex
	cfg config.DaemonConfig

	pendingCodes map[string]string // code -> userId, single use
}

func newPairingStore(path string) (*pairingStore, error) {
	cfg, err := config.LoadDaemonConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load daemon config: %w", err)
	}
	return &pairingStore{path: path, cfg: cfg, pendingCodes: make(map[string]string)}, nil
}

func (p *pairingStore) saveLocked() error {
	return config.SaveDaemonConfig(p.path, p.cfg)
}

// GenerateCode issues a one-time pairing code (spec §4.6 POST /generate-code).
func (p *pairingStore) GenerateCode() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	taken := make(map[string]bool, len(p.pendingCodes))
	for c := range p.pendingCodes {
		taken[c] = true
	}
	code, err := ids.New(taken)
	if err != nil {
		return nil, err
	}
	p.pendingCodes[code] = ""
	return map[string]any{"code": code}, nil
}

// RedeemCode completes pairing for userID if code is pending (spec §4.7 /pair).
func (p *pairingStore) RedeemCode(code, userID, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pendingCodes[code]; !ok {
		return false
	}
	delete(p.pendingCodes, code)

	tg := p.cfg.Channels["telegram"]
	for _, u := range tg.PairedUsers {
		if u.UserID == userID {
			return true
		}
	}
	tg.Type = "telegram"
	tg.PairedUsers = append(tg.PairedUsers, config.PairedUser{
		UserID: userID, Username: username, PairedAt: time.Now().Format(time.RFC3339),
	})
	if p.cfg.Channels == nil {
		p.cfg.Channels = map[string]config.ChannelConfig{}
	}
	p.cfg.Channels["telegram"] = tg
	_ = p.saveLocked()
	return true
}

// IsPaired satisfies router.Pairing.
func (p *pairingStore) IsPaired(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.cfg.Channels["telegram"].PairedUsers {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// IsLinked satisfies router.Links.
func (p *pairingStore) IsLinked(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.cfg.Channels["telegram"].LinkedGroups {
		if g.ChatID == chatID {
			return true
		}
	}
	return false
}

func (p *pairingStore) Link(chatID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tg := p.cfg.Channels["telegram"]
	for _, g := range tg.LinkedGroups {
		if g.ChatID == chatID {
			return nil
		}
	}
	tg.Type = "telegram"
	tg.LinkedGroups = append(tg.LinkedGroups, config.LinkedGroup{ChatID: chatID, LinkedAt: time.Now().Format(time.RFC3339)})
	if p.cfg.Channels == nil {
		p.cfg.Channels = map[string]config.ChannelConfig{}
	}
	p.cfg.Channels["telegram"] = tg
	return p.saveLocked()
}

func (p *pairingStore) Unlink(chatID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tg := p.cfg.Channels["telegram"]
	out := tg.LinkedGroups[:0]
	for _, g := range tg.LinkedGroups {
		if g.ChatID != chatID {
			out = append(out, g)
		}
	}
	tg.LinkedGroups = out
	p.cfg.Channels["telegram"] = tg
	return p.saveLocked()
}

// SetOutputMode/SetThinking/ToggleThinking satisfy router.Preferences.
func (p *pairingStore) SetOutputMode(chatID, mode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref := p.cfg.ChatPreferences[chatID]
	pref.OutputMode = &mode
	p.setPrefLocked(chatID, pref)
}

func (p *pairingStore) SetThinking(chatID string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref := p.cfg.ChatPreferences[chatID]
	pref.Thinking = &on
	p.setPrefLocked(chatID, pref)
}

func (p *pairingStore) ToggleThinking(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref := p.cfg.ChatPreferences[chatID]
	on := pref.Thinking == nil || !*pref.Thinking
	pref.Thinking = &on
	p.setPrefLocked(chatID, pref)
	return on
}

func (p *pairingStore) setPrefLocked(chatID string, pref config.ChatPreference) {
	if p.cfg.ChatPreferences == nil {
		p.cfg.ChatPreferences = map[string]config.ChatPreference{}
	}
	p.cfg.ChatPreferences[chatID] = pref
	_ = p.saveLocked()
}

// ListChannels satisfies daemon.ChannelLister.
func (p *pairingStore) ListChannels() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.cfg.Channels))
	for name := range p.cfg.Channels {
		names = append(names, name)
	}
	return names, nil
}
