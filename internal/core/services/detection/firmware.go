package detection

import (
	"net/url"
	"strings"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const (
	firmwareSingleConfidence = 60.0
	firmwareBothConfidence   = 95.0
)

// FirmwareRule inspects firmware update activity for two independent
// signals: a download host on the suspicious-domain list, and a reported
// checksum that differs from the expected one. Either signal detects;
// both together score near certainty.
type FirmwareRule struct {
	suspiciousDomains map[string]struct{}
}

var _ ports.Rule = (*FirmwareRule)(nil)

func NewFirmwareRule(suspiciousDomains []string) *FirmwareRule {
	set := make(map[string]struct{}, len(suspiciousDomains))
	for _, d := range suspiciousDomains {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &FirmwareRule{suspiciousDomains: set}
}

func (r *FirmwareRule) Name() string            { return "firmware" }
func (r *FirmwareRule) Type() domain.ThreatType { return domain.ThreatFirmware }

func (r *FirmwareRule) Evaluate(sample domain.Sample) (domain.Verdict, error) {
	activity, ok := sample.(domain.ActivitySample)
	if !ok || activity.Action != domain.ActionFirmwareUpdate {
		return domain.Verdict{}, nil
	}

	suspiciousHost := false
	host := ""
	if raw := activity.PayloadString("url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return domain.Verdict{}, domain.WrapEvaluation(r.Name(), err)
		}
		host = strings.ToLower(u.Hostname())
		_, suspiciousHost = r.suspiciousDomains[host]
	}

	checksum := activity.PayloadString("checksum")
	expected := activity.PayloadString("expected_checksum")
	checksumMismatch := checksum != "" && expected != "" && checksum != expected

	if !suspiciousHost && !checksumMismatch {
		return domain.Verdict{}, nil
	}

	confidence := firmwareSingleConfidence
	if suspiciousHost && checksumMismatch {
		confidence = firmwareBothConfidence
	}

	return domain.Verdict{
		Detected:   true,
		Confidence: confidence,
		Details: map[string]any{
			"device_id":         activity.DeviceID,
			"host":              host,
			"suspicious_host":   suspiciousHost,
			"checksum_mismatch": checksumMismatch,
		},
	}, nil
}
