package domain

import (
	"sync"
	"time"
)

// Protection action identifiers, executed in tier order.
const (
	ProtectionLog   = "log"
	ProtectionAlert = "alert"
	ProtectionBlock = "block"
)

// TierThresholds maps confidence scores onto severity tiers. A score
// resolves to the highest tier whose threshold it meets. Critical is
// optional (zero disables it) since the default policy tops out at high.
type TierThresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical,omitempty"`
}

// DefaultTiers matches the stock protection policy: low below 60,
// medium from 60, high from 80. Scores under the low floor still resolve
// to low because every threat gets at least logging.
func DefaultTiers() TierThresholds {
	return TierThresholds{Medium: 60, High: 80}
}

// TiersForLevel translates a configured protection level into tier
// thresholds. Low tolerates more before escalating, high escalates
// early and enables the critical tier. Unknown levels fall back to the
// default policy.
func TiersForLevel(level string) TierThresholds {
	switch level {
	case "low":
		return TierThresholds{Medium: 70, High: 90}
	case "high":
		return TierThresholds{Medium: 50, High: 70, Critical: 90}
	default:
		return DefaultTiers()
	}
}

// ActionsForSeverity returns the cumulative, ordered action set for a
// tier: higher tiers always contain the actions of the tiers below.
func ActionsForSeverity(s Severity) []string {
	switch s {
	case SeverityCritical, SeverityHigh:
		return []string{ProtectionLog, ProtectionAlert, ProtectionBlock}
	case SeverityMedium:
		return []string{ProtectionLog, ProtectionAlert}
	default:
		return []string{ProtectionLog}
	}
}

// ProtectionOutcome records which actions ran for one consumed threat.
type ProtectionOutcome struct {
	ThreatID     string    `json:"threat_id"`
	ActionsTaken []string  `json:"actions_taken"`
	ExecutedAt   time.Time `json:"executed_at"`
	Success      bool      `json:"success"`
}

// Whitelist is a concurrency-safe set of device identifiers exempt from
// block-type protection actions. Lookups happen on the protection
// consumer goroutine while the API may mutate concurrently.
type Whitelist struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewWhitelist(ids ...string) *Whitelist {
	w := &Whitelist{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		w.ids[id] = struct{}{}
	}
	return w
}

func (w *Whitelist) Add(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[id] = struct{}{}
}

func (w *Whitelist) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ids, id)
}

func (w *Whitelist) Contains(id string) bool {
	if id == "" {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.ids[id]
	return ok
}

func (w *Whitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ids)
}
