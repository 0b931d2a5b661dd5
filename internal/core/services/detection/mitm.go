package detection

import (
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const (
	defaultARPCacheExpiry = 5 * time.Minute
	defaultMITMBase       = 75.0
	defaultMITMReplyBonus = 15.0
)

type arpBinding struct {
	mac    string
	seenAt time.Time
}

// MITMRule watches ip-to-mac bindings announced over ARP. A second mac
// claiming an ip whose previous binding has not yet expired is the
// classic spoofing signature. An unsolicited reply scores higher than an
// announcement, since nobody asked for it.
type MITMRule struct {
	expiry     time.Duration
	base       float64
	replyBonus float64

	cache map[string]arpBinding
}

var _ ports.Rule = (*MITMRule)(nil)

func NewMITMRule(expiry time.Duration) *MITMRule {
	if expiry <= 0 {
		expiry = defaultARPCacheExpiry
	}
	return &MITMRule{
		expiry:     expiry,
		base:       defaultMITMBase,
		replyBonus: defaultMITMReplyBonus,
		cache:      make(map[string]arpBinding),
	}
}

func (r *MITMRule) Name() string            { return "mitm" }
func (r *MITMRule) Type() domain.ThreatType { return domain.ThreatMITM }

func (r *MITMRule) Evaluate(sample domain.Sample) (domain.Verdict, error) {
	activity, ok := sample.(domain.ActivitySample)
	if !ok {
		return domain.Verdict{}, nil
	}
	if activity.Action != domain.ActionARPAnnounce && activity.Action != domain.ActionARPReply {
		return domain.Verdict{}, nil
	}

	ip := activity.PayloadString("ip")
	mac := activity.PayloadString("mac")
	if ip == "" || mac == "" {
		return domain.Verdict{}, nil
	}

	previous, seen := r.cache[ip]
	r.cache[ip] = arpBinding{mac: mac, seenAt: activity.Timestamp}

	if !seen || previous.mac == mac {
		return domain.Verdict{}, nil
	}
	if activity.Timestamp.Sub(previous.seenAt) > r.expiry {
		// The old binding had already aged out; treat as a legitimate
		// reassignment (DHCP churn).
		return domain.Verdict{}, nil
	}

	confidence := r.base
	if activity.Action == domain.ActionARPReply {
		confidence += r.replyBonus
	}
	if confidence > 100 {
		confidence = 100
	}

	return domain.Verdict{
		Detected:   true,
		Confidence: confidence,
		Details: map[string]any{
			"ip":           ip,
			"previous_mac": previous.mac,
			"claimed_mac":  mac,
			"operation":    activity.Action,
		},
	}, nil
}
