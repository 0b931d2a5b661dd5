package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func trafficAt(t *testing.T, src string, packets int, bytes int64, ts time.Time) domain.TrafficSample {
	t.Helper()
	sample, err := domain.NewTrafficSample(src, "192.168.1.1", "tcp", 80, packets, bytes, ts)
	require.NoError(t, err)
	return sample
}

func activityAt(t *testing.T, device, action string, payload map[string]any, ts time.Time) domain.ActivitySample {
	t.Helper()
	sample, err := domain.NewActivitySample(device, "camera", action, payload, ts)
	require.NoError(t, err)
	return sample
}

func TestDDoSRule_ExclusiveThreshold(t *testing.T) {
	rule := NewDDoSRule(10, 1<<30, time.Minute)

	verdict, err := rule.Evaluate(trafficAt(t, "203.0.113.66", 5, 100, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)

	// Exactly at the threshold is still normal load.
	verdict, err = rule.Evaluate(trafficAt(t, "203.0.113.66", 5, 100, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)

	// One packet over trips it.
	verdict, err = rule.Evaluate(trafficAt(t, "203.0.113.66", 1, 100, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, verdict.Detected)
	assert.InDelta(t, 5.0, verdict.Confidence, 0.001)
	assert.Equal(t, 11, verdict.Details["packet_count"])
}

func TestDDoSRule_ConfidenceScaling(t *testing.T) {
	rule := NewDDoSRule(10, 1<<30, time.Minute)

	// Twice the threshold lands mid-scale.
	verdict, err := rule.Evaluate(trafficAt(t, "a", 20, 0, t0))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 50.0, verdict.Confidence, 0.001)

	// Three times the threshold and beyond clamps at 100.
	rule = NewDDoSRule(10, 1<<30, time.Minute)
	verdict, err = rule.Evaluate(trafficAt(t, "a", 500, 0, t0))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, verdict.Confidence, 0.001)
}

func TestDDoSRule_WindowSlides(t *testing.T) {
	rule := NewDDoSRule(10, 1<<30, time.Minute)

	verdict, err := rule.Evaluate(trafficAt(t, "a", 11, 0, t0))
	require.NoError(t, err)
	require.True(t, verdict.Detected)

	// 61 seconds later the burst has aged out.
	verdict, err = rule.Evaluate(trafficAt(t, "a", 5, 0, t0.Add(61*time.Second)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestDDoSRule_ByteThreshold(t *testing.T) {
	rule := NewDDoSRule(1000, 1024, time.Minute)

	verdict, err := rule.Evaluate(trafficAt(t, "a", 1, 2048, t0))
	require.NoError(t, err)
	assert.True(t, verdict.Detected)
	assert.InDelta(t, 50.0, verdict.Confidence, 0.001)
}

func TestDDoSRule_TracksSourcesIndependently(t *testing.T) {
	rule := NewDDoSRule(10, 1<<30, time.Minute)

	_, err := rule.Evaluate(trafficAt(t, "a", 9, 0, t0))
	require.NoError(t, err)

	verdict, err := rule.Evaluate(trafficAt(t, "b", 9, 0, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected, "counters must not leak between sources")
}

func TestDDoSRule_IgnoresActivitySamples(t *testing.T) {
	rule := NewDDoSRule(1, 1, time.Minute)
	verdict, err := rule.Evaluate(activityAt(t, "d", domain.ActionLoginFailed, nil, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestCredentialRule_ThresholdIsExclusive(t *testing.T) {
	rule := NewCredentialRule(3, 5*time.Minute)

	for i := 0; i < 3; i++ {
		verdict, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.False(t, verdict.Detected, "attempt %d should still be tolerated", i+1)
	}

	verdict, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0.Add(3*time.Second)))
	require.NoError(t, err)
	assert.True(t, verdict.Detected)
	assert.InDelta(t, 60.0, verdict.Confidence, 0.001)
	assert.Equal(t, 4, verdict.Details["failed_attempts"])
}

func TestCredentialRule_SuccessClearsStreak(t *testing.T) {
	rule := NewCredentialRule(3, 5*time.Minute)

	for i := 0; i < 3; i++ {
		_, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0))
		require.NoError(t, err)
	}
	_, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginSuccess, nil, t0.Add(time.Second)))
	require.NoError(t, err)

	verdict, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestCredentialRule_WindowExpiresOldFailures(t *testing.T) {
	rule := NewCredentialRule(3, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0))
		require.NoError(t, err)
	}

	// A fourth failure outside the window only sees itself.
	verdict, err := rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestCredentialRule_ConfidenceClamp(t *testing.T) {
	rule := NewCredentialRule(1, 5*time.Minute)

	var verdict domain.Verdict
	var err error
	for i := 0; i < 10; i++ {
		verdict, err = rule.Evaluate(activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	assert.True(t, verdict.Detected)
	assert.InDelta(t, 100.0, verdict.Confidence, 0.001)
}

func TestMITMRule_DetectsRebinding(t *testing.T) {
	rule := NewMITMRule(5 * time.Minute)

	payload1 := map[string]any{"ip": "192.168.1.1", "mac": "aa:aa:aa:aa:aa:aa"}
	_, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce, payload1, t0))
	require.NoError(t, err)

	// Same binding again is quiet.
	verdict, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce, payload1, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)

	// A different mac claiming the same ip is the spoofing signature.
	payload2 := map[string]any{"ip": "192.168.1.1", "mac": "bb:bb:bb:bb:bb:bb"}
	verdict, err = rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce, payload2, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, verdict.Detected)
	assert.InDelta(t, 75.0, verdict.Confidence, 0.001)
	assert.Equal(t, "aa:aa:aa:aa:aa:aa", verdict.Details["previous_mac"])
}

func TestMITMRule_UnsolicitedReplyScoresHigher(t *testing.T) {
	rule := NewMITMRule(5 * time.Minute)

	_, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce,
		map[string]any{"ip": "192.168.1.1", "mac": "aa:aa:aa:aa:aa:aa"}, t0))
	require.NoError(t, err)

	verdict, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPReply,
		map[string]any{"ip": "192.168.1.1", "mac": "bb:bb:bb:bb:bb:bb"}, t0.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 90.0, verdict.Confidence, 0.001)
}

func TestMITMRule_ExpiredBindingIsReassignment(t *testing.T) {
	rule := NewMITMRule(time.Minute)

	_, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce,
		map[string]any{"ip": "192.168.1.1", "mac": "aa:aa:aa:aa:aa:aa"}, t0))
	require.NoError(t, err)

	// DHCP churn: the old binding aged out before the new claim.
	verdict, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce,
		map[string]any{"ip": "192.168.1.1", "mac": "bb:bb:bb:bb:bb:bb"}, t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestMITMRule_IgnoresIncompletePayloads(t *testing.T) {
	rule := NewMITMRule(time.Minute)

	verdict, err := rule.Evaluate(activityAt(t, "gateway-001", domain.ActionARPAnnounce,
		map[string]any{"ip": "192.168.1.1"}, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestFirmwareRule_SuspiciousHost(t *testing.T) {
	rule := NewFirmwareRule([]string{"fw-mirror.example.net"})

	verdict, err := rule.Evaluate(activityAt(t, "camera-001", domain.ActionFirmwareUpdate,
		map[string]any{"url": "https://fw-mirror.example.net/v2/image.bin"}, t0))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 60.0, verdict.Confidence, 0.001)
	assert.Equal(t, true, verdict.Details["suspicious_host"])
	assert.Equal(t, false, verdict.Details["checksum_mismatch"])
}

func TestFirmwareRule_ChecksumMismatch(t *testing.T) {
	rule := NewFirmwareRule(nil)

	verdict, err := rule.Evaluate(activityAt(t, "camera-001", domain.ActionFirmwareUpdate,
		map[string]any{"url": "https://updates.vendor.com/image.bin", "checksum": "deadbeef", "expected_checksum": "cafebabe"}, t0))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 60.0, verdict.Confidence, 0.001)
}

func TestFirmwareRule_BothSignals(t *testing.T) {
	rule := NewFirmwareRule([]string{"fw-mirror.example.net"})

	verdict, err := rule.Evaluate(activityAt(t, "camera-001", domain.ActionFirmwareUpdate,
		map[string]any{"url": "http://fw-mirror.example.net/image.bin", "checksum": "deadbeef", "expected_checksum": "cafebabe"}, t0))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 95.0, verdict.Confidence, 0.001)
}

func TestFirmwareRule_CleanUpdate(t *testing.T) {
	rule := NewFirmwareRule([]string{"fw-mirror.example.net"})

	verdict, err := rule.Evaluate(activityAt(t, "camera-001", domain.ActionFirmwareUpdate,
		map[string]any{"url": "https://updates.vendor.com/image.bin", "checksum": "cafebabe", "expected_checksum": "cafebabe"}, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestFirmwareRule_MalformedURL(t *testing.T) {
	rule := NewFirmwareRule(nil)

	_, err := rule.Evaluate(activityAt(t, "camera-001", domain.ActionFirmwareUpdate,
		map[string]any{"url": "http://bad\x7f.example/"}, t0))
	assert.ErrorIs(t, err, domain.ErrEvaluation)
}

func TestAnomalyRule_FlagsPatternChange(t *testing.T) {
	rule := NewAnomalyRule(0)

	// First report only establishes the baseline.
	verdict, err := rule.Evaluate(activityAt(t, "sensor-001", domain.ActionBehaviorReport,
		map[string]any{"pattern": "steady_telemetry"}, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)

	verdict, err = rule.Evaluate(activityAt(t, "sensor-001", domain.ActionBehaviorReport,
		map[string]any{"pattern": "bulk_upload"}, t0.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, verdict.Detected)
	assert.InDelta(t, 40.0, verdict.Confidence, 0.001)
	assert.Equal(t, "steady_telemetry", verdict.Details["expected_pattern"])

	// The observed pattern becomes the new baseline.
	verdict, err = rule.Evaluate(activityAt(t, "sensor-001", domain.ActionBehaviorReport,
		map[string]any{"pattern": "bulk_upload"}, t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}

func TestAnomalyRule_IgnoresEmptyPattern(t *testing.T) {
	rule := NewAnomalyRule(0)

	verdict, err := rule.Evaluate(activityAt(t, "sensor-001", domain.ActionBehaviorReport, nil, t0))
	require.NoError(t, err)
	assert.False(t, verdict.Detected)
}
