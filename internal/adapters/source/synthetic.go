// Package source provides sample producers for the detector: a seeded
// synthetic generator for demos and tests, and a pcap replay reader.
package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

// Realistic edge-device inventory for generated activity.
var syntheticDevices = []struct {
	id    string
	dtype string
}{
	{"gateway-001", "gateway"},
	{"camera-001", "camera"},
	{"camera-002", "camera"},
	{"speaker-001", "speaker"},
	{"sensor-001", "env_sensor"},
	{"lock-001", "smart_lock"},
}

var syntheticSubnets = []string{"192.168.1", "10.0.8"}

// SyntheticSource generates plausible benign background samples and lets
// callers script attack bursts on top. Seeded, so runs are repeatable.
type SyntheticSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	pending []domain.Sample
	now     func() time.Time
	closed  bool
}

var _ ports.SampleSource = (*SyntheticSource)(nil)

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// Next returns a scripted sample if one is queued, otherwise a benign
// background observation. It never blocks.
func (s *SyntheticSource) Next(ctx context.Context) (domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}
	if len(s.pending) > 0 {
		sample := s.pending[0]
		s.pending = s.pending[1:]
		return sample, nil
	}
	return s.background(), nil
}

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}

func (s *SyntheticSource) background() domain.Sample {
	ts := s.now().UTC()
	if s.rng.Intn(2) == 0 {
		subnet := syntheticSubnets[s.rng.Intn(len(syntheticSubnets))]
		sample, _ := domain.NewTrafficSample(
			fmt.Sprintf("%s.%d", subnet, 2+s.rng.Intn(200)),
			fmt.Sprintf("%s.1", subnet),
			"tcp",
			443,
			1+s.rng.Intn(5),
			int64(64+s.rng.Intn(1400)),
			ts,
		)
		return sample
	}

	dev := syntheticDevices[s.rng.Intn(len(syntheticDevices))]
	sample, _ := domain.NewActivitySample(dev.id, dev.dtype, domain.ActionBehaviorReport,
		map[string]any{"pattern": "steady"}, ts)
	return sample
}

// InjectAttack queues a scripted sample burst that the stock rules will
// recognize as the named attack. Unknown types are ignored.
func (s *SyntheticSource) InjectAttack(t domain.ThreatType) {
	ts := s.now().UTC()
	var burst []domain.Sample

	switch t {
	case domain.ThreatDDoS:
		for i := 0; i < 40; i++ {
			sample, _ := domain.NewTrafficSample(
				"203.0.113.66", "192.168.1.1", "udp", 53, 10, 4096, ts)
			burst = append(burst, sample)
		}
	case domain.ThreatMITM:
		first, _ := domain.NewActivitySample("gateway-001", "gateway", domain.ActionARPAnnounce,
			map[string]any{"ip": "192.168.1.1", "mac": "aa:bb:cc:00:11:22"}, ts)
		spoof, _ := domain.NewActivitySample("gateway-001", "gateway", domain.ActionARPReply,
			map[string]any{"ip": "192.168.1.1", "mac": "de:ad:be:ef:00:01"}, ts.Add(time.Second))
		burst = append(burst, first, spoof)
	case domain.ThreatFirmware:
		sample, _ := domain.NewActivitySample("camera-001", "camera", domain.ActionFirmwareUpdate,
			map[string]any{
				"url":               "http://fw-mirror.example.net/camera.bin",
				"checksum":          "deadbeef",
				"expected_checksum": "cafebabe",
			}, ts)
		burst = append(burst, sample)
	case domain.ThreatCredential:
		for i := 0; i < 6; i++ {
			sample, _ := domain.NewActivitySample("lock-001", "smart_lock", domain.ActionLoginFailed,
				map[string]any{"ip": "198.51.100.7", "user": "admin"}, ts.Add(time.Duration(i)*time.Second))
			burst = append(burst, sample)
		}
	case domain.ThreatAnomaly:
		baseline, _ := domain.NewActivitySample("sensor-001", "env_sensor", domain.ActionBehaviorReport,
			map[string]any{"pattern": "steady"}, ts)
		drift, _ := domain.NewActivitySample("sensor-001", "env_sensor", domain.ActionBehaviorReport,
			map[string]any{"pattern": "bulk_upload"}, ts.Add(time.Second))
		burst = append(burst, baseline, drift)
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.pending = append(s.pending, burst...)
	}
}
