package detection

import (
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const (
	defaultMaxLoginAttempts  = 5
	defaultCredentialWindow  = 300 * time.Second
	credentialBaseConfidence = 50.0
	credentialConfidenceStep = 10.0
)

// CredentialRule tracks consecutive failed logins per device inside a
// sliding window. Exactly maxAttempts failures is still tolerated;
// one more trips the rule. A successful login clears the streak.
type CredentialRule struct {
	maxAttempts int
	window      time.Duration

	failures map[string][]time.Time
}

var _ ports.Rule = (*CredentialRule)(nil)

func NewCredentialRule(maxAttempts int, window time.Duration) *CredentialRule {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxLoginAttempts
	}
	if window <= 0 {
		window = defaultCredentialWindow
	}
	return &CredentialRule{
		maxAttempts: maxAttempts,
		window:      window,
		failures:    make(map[string][]time.Time),
	}
}

func (r *CredentialRule) Name() string            { return "credential" }
func (r *CredentialRule) Type() domain.ThreatType { return domain.ThreatCredential }

func (r *CredentialRule) Evaluate(sample domain.Sample) (domain.Verdict, error) {
	activity, ok := sample.(domain.ActivitySample)
	if !ok {
		return domain.Verdict{}, nil
	}

	switch activity.Action {
	case domain.ActionLoginSuccess:
		delete(r.failures, activity.DeviceID)
		return domain.Verdict{}, nil
	case domain.ActionLoginFailed:
	default:
		return domain.Verdict{}, nil
	}

	cutoff := activity.Timestamp.Add(-r.window)
	attempts := append(r.failures[activity.DeviceID], activity.Timestamp)
	pruned := attempts[:0]
	for _, at := range attempts {
		if at.Before(cutoff) {
			continue
		}
		pruned = append(pruned, at)
	}
	r.failures[activity.DeviceID] = pruned

	count := len(pruned)
	if count <= r.maxAttempts {
		return domain.Verdict{}, nil
	}

	excess := float64(count - r.maxAttempts)
	confidence := credentialBaseConfidence + credentialConfidenceStep*excess
	if confidence > 100 {
		confidence = 100
	}

	return domain.Verdict{
		Detected:   true,
		Confidence: confidence,
		Details: map[string]any{
			"device_id":       activity.DeviceID,
			"failed_attempts": count,
			"window_sec":      int(r.window.Seconds()),
		},
	}, nil
}
