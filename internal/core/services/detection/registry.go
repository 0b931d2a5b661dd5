package detection

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

var (
	ErrDuplicateRule = errors.New("rule already registered")
	ErrUnknownRule   = errors.New("unknown rule")
)

// Detection is one positive verdict tagged with its source rule.
type Detection struct {
	Rule    string
	Type    domain.ThreatType
	Verdict domain.Verdict
}

type registryEntry struct {
	rule    ports.Rule
	enabled bool
}

// Registry is an ordered collection of enabled rules. Rules are bound at
// construction to an explicit strategy map; there is no name-based
// dispatch at evaluation time. Enabled flags may be toggled at runtime
// and are read on every tick.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*registryEntry
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger, rules ...ports.Rule) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		entries: make(map[string]*registryEntry, len(rules)),
		logger:  logger,
	}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRules builds the stock rule set with its standard thresholds.
func DefaultRules(suspiciousDomains []string) []ports.Rule {
	return []ports.Rule{
		NewDDoSRule(0, 0, 0),
		NewMITMRule(0),
		NewFirmwareRule(suspiciousDomains),
		NewCredentialRule(0, 0),
		NewAnomalyRule(0),
	}
}

func (r *Registry) Register(rule ports.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[rule.Name()]; exists {
		return ErrDuplicateRule
	}
	r.order = append(r.order, rule.Name())
	r.entries[rule.Name()] = &registryEntry{rule: rule, enabled: true}
	return nil
}

// SetEnabled toggles a rule without removing its accumulated state.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return ErrUnknownRule
	}
	entry.enabled = enabled
	return nil
}

// Names returns the registered rule names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// EvaluateAll runs every enabled rule against the sample in registration
// order. A failing rule is isolated: its error becomes an ErrorRecord
// and the remaining rules still run.
func (r *Registry) EvaluateAll(sample domain.Sample) ([]Detection, []domain.ErrorRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	telemetry.SamplesEvaluated.WithLabelValues(string(sample.Kind())).Inc()

	var detections []Detection
	var failures []domain.ErrorRecord
	for _, name := range r.order {
		entry := r.entries[name]
		if !entry.enabled {
			continue
		}

		verdict, err := entry.rule.Evaluate(sample)
		if err != nil {
			r.logger.Error("rule evaluation failed", "rule", name, "error", err)
			failures = append(failures, domain.NewErrorRecord(
				"detection."+name, domain.ErrEvaluation, domain.SeverityLow, err,
			))
			continue
		}
		if !verdict.Detected {
			continue
		}
		detections = append(detections, Detection{
			Rule:    name,
			Type:    entry.rule.Type(),
			Verdict: verdict,
		})
	}
	return detections, failures
}
