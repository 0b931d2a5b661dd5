package detection

import (
	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const defaultAnomalyConfidence = 40.0

// AnomalyRule is the catch-all heuristic: it remembers the last behavior
// pattern tag reported by each device and flags any change. The first
// report from a device only establishes the baseline.
type AnomalyRule struct {
	confidence float64
	baseline   map[string]string
}

var _ ports.Rule = (*AnomalyRule)(nil)

func NewAnomalyRule(confidence float64) *AnomalyRule {
	if confidence <= 0 || confidence > 100 {
		confidence = defaultAnomalyConfidence
	}
	return &AnomalyRule{
		confidence: confidence,
		baseline:   make(map[string]string),
	}
}

func (r *AnomalyRule) Name() string            { return "anomaly" }
func (r *AnomalyRule) Type() domain.ThreatType { return domain.ThreatAnomaly }

func (r *AnomalyRule) Evaluate(sample domain.Sample) (domain.Verdict, error) {
	activity, ok := sample.(domain.ActivitySample)
	if !ok || activity.Action != domain.ActionBehaviorReport {
		return domain.Verdict{}, nil
	}

	pattern := activity.PayloadString("pattern")
	if pattern == "" {
		return domain.Verdict{}, nil
	}

	known, seen := r.baseline[activity.DeviceID]
	r.baseline[activity.DeviceID] = pattern

	if !seen || known == pattern {
		return domain.Verdict{}, nil
	}

	return domain.Verdict{
		Detected:   true,
		Confidence: r.confidence,
		Details: map[string]any{
			"device_id":        activity.DeviceID,
			"expected_pattern": known,
			"observed_pattern": pattern,
		},
	}, nil
}
