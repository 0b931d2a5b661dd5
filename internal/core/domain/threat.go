package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain Errors for threat construction
var (
	ErrInvalidThreatType = errors.New("invalid threat type")
	ErrInvalidConfidence = errors.New("confidence must be within [0,100]")
	ErrInvalidSeverity   = errors.New("invalid severity level")
)

// ThreatType identifies the attack category a rule detects.
type ThreatType string

const (
	ThreatDDoS       ThreatType = "ddos"
	ThreatMITM       ThreatType = "mitm"
	ThreatFirmware   ThreatType = "firmware"
	ThreatCredential ThreatType = "credential"
	ThreatAnomaly    ThreatType = "anomaly"
)

// Severity represents the criticality of a security event. The order
// low < medium < high < critical is total; Rank makes it explicit.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank maps a severity onto its position in the total order. Unknown
// severities rank below low so they sort last in any descending view.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func isValidSeverity(s Severity) bool {
	return s.Rank() > 0
}

func isValidThreatType(t ThreatType) bool {
	switch t {
	case ThreatDDoS, ThreatMITM, ThreatFirmware, ThreatCredential, ThreatAnomaly:
		return true
	}
	return false
}

// SeverityForConfidence derives the severity tier for a confidence score
// using the configured thresholds: the highest tier whose threshold is
// less than or equal to the score wins.
func SeverityForConfidence(confidence float64, tiers TierThresholds) Severity {
	switch {
	case confidence >= tiers.Critical && tiers.Critical > 0:
		return SeverityCritical
	case confidence >= tiers.High:
		return SeverityHigh
	case confidence >= tiers.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Verdict is the outcome of evaluating one rule against one sample.
type Verdict struct {
	Detected   bool           `json:"detected"`
	Confidence float64        `json:"confidence"` // 0..100
	Details    map[string]any `json:"details,omitempty"`
}

// ThreatEvent is a confirmed detection published by the Detector. It is
// immutable after creation except for the Handled flag, which the store
// flips idempotently.
type ThreatEvent struct {
	ID         string         `json:"id"`
	RowID      int64          `json:"row_id,omitempty"` // store-assigned, zero until persisted
	Type       ThreatType     `json:"type"`
	Confidence float64        `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Source     string         `json:"source,omitempty"`
	Target     string         `json:"target,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Handled    bool           `json:"handled"`
}

// DestinationIP returns the destination endpoint when the detecting
// rule recorded one in the details, empty otherwise.
func (e *ThreatEvent) DestinationIP() string {
	if v, ok := e.Details["destination_ip"].(string); ok {
		return v
	}
	return ""
}

// NewThreatEvent creates a ThreatEvent while enforcing the confidence and
// severity domain invariants.
func NewThreatEvent(t ThreatType, confidence float64, severity Severity, source, target string, details map[string]any, ts time.Time) (*ThreatEvent, error) {
	if !isValidThreatType(t) {
		return nil, ErrInvalidThreatType
	}
	if confidence < 0 || confidence > 100 {
		return nil, ErrInvalidConfidence
	}
	if !isValidSeverity(severity) {
		return nil, ErrInvalidSeverity
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &ThreatEvent{
		ID:         uuid.NewString(),
		Type:       t,
		Confidence: confidence,
		Severity:   severity,
		Source:     source,
		Target:     target,
		Details:    details,
		Timestamp:  ts,
	}, nil
}
