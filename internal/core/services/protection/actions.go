package protection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const (
	// temporaryBlockTTL is how long a block below the permanent
	// threshold stays in force before the janitor lifts it.
	temporaryBlockTTL = 300 * time.Second

	// permanentBlockConfidence marks the score at and above which a
	// block never expires on its own.
	permanentBlockConfidence = 80.0
)

type blockEntry struct {
	until     time.Time // zero = permanent
	threat    domain.ThreatType
	blockedAt time.Time
}

// Blocklist is the default ActionExecutor: enforcement stays in-process
// as a blocked-source set. Real firewall programming is an external
// capability; collaborators read the list through Blocked/Snapshot.
type Blocklist struct {
	logger  *slog.Logger
	now     func() time.Time
	enforce bool

	mu      sync.Mutex
	entries map[string]blockEntry
}

var _ ports.ActionExecutor = (*Blocklist)(nil)

func NewBlocklist(logger *slog.Logger) *Blocklist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blocklist{
		logger:  logger,
		now:     time.Now,
		enforce: true,
		entries: make(map[string]blockEntry),
	}
}

// SetEnforcement toggles whether block actions actually land on the
// list. With enforcement off, blocks are logged but nothing is blocked.
func (b *Blocklist) SetEnforcement(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enforce = on
}

// Execute carries out one protection action for a threat event.
func (b *Blocklist) Execute(ctx context.Context, action string, event *domain.ThreatEvent) error {
	switch action {
	case domain.ProtectionLog:
		b.logger.Info("protection log",
			"threat", event.ID, "type", event.Type, "severity", event.Severity)
		return nil
	case domain.ProtectionAlert:
		b.logger.Warn("protection alert",
			"threat", event.ID, "type", event.Type,
			"confidence", event.Confidence, "target", event.Target)
		return nil
	case domain.ProtectionBlock:
		return b.block(event)
	default:
		return domain.WrapAction(action, fmt.Errorf("unknown action"))
	}
}

func (b *Blocklist) block(event *domain.ThreatEvent) error {
	subject := event.Source
	if subject == "" {
		subject = event.Target
	}
	if subject == "" {
		return domain.WrapAction(domain.ProtectionBlock, fmt.Errorf("event %s has no blockable endpoint", event.ID))
	}

	now := b.now()
	entry := blockEntry{threat: event.Type, blockedAt: now}
	if event.Confidence < permanentBlockConfidence {
		entry.until = now.Add(temporaryBlockTTL)
	}

	b.mu.Lock()
	if !b.enforce {
		b.mu.Unlock()
		b.logger.Info("block suppressed, enforcement disabled",
			"subject", subject, "threat", event.Type)
		return nil
	}
	existing, ok := b.entries[subject]
	// never downgrade a permanent block to a temporary one
	if !ok || !existing.until.IsZero() || entry.until.IsZero() {
		if ok && existing.until.IsZero() {
			entry.until = time.Time{}
		}
		b.entries[subject] = entry
	}
	b.mu.Unlock()

	if entry.until.IsZero() {
		b.logger.Warn("source blocked", "subject", subject, "threat", event.Type)
	} else {
		b.logger.Warn("source temporarily blocked",
			"subject", subject, "threat", event.Type, "until", entry.until)
	}
	return nil
}

// Blocked reports whether a subject is currently blocked, expiring
// lapsed temporary entries on the way.
func (b *Blocklist) Blocked(subject string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[subject]
	if !ok {
		return false
	}
	if !entry.until.IsZero() && b.now().After(entry.until) {
		delete(b.entries, subject)
		return false
	}
	return true
}

// Sweep removes expired temporary blocks and returns how many were
// lifted. The engine runs it between queue pops.
func (b *Blocklist) Sweep() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	lifted := 0
	for subject, entry := range b.entries {
		if !entry.until.IsZero() && now.After(entry.until) {
			delete(b.entries, subject)
			lifted++
		}
	}
	if lifted > 0 {
		b.logger.Info("temporary blocks lifted", "count", lifted)
	}
	return lifted
}

// Snapshot lists currently blocked subjects.
func (b *Blocklist) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := make([]string, 0, len(b.entries))
	for subject, entry := range b.entries {
		if !entry.until.IsZero() && now.After(entry.until) {
			continue
		}
		out = append(out, subject)
	}
	return out
}
