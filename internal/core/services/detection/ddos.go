package detection

import (
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

const (
	defaultDDoSPacketThreshold = 100
	defaultDDoSByteThreshold   = 1 << 20 // 1 MiB per window
	defaultDDoSWindow          = 60 * time.Second
)

type trafficEntry struct {
	at      time.Time
	packets int
	bytes   int64
}

// DDoSRule keeps rolling per-source packet and byte counters over a
// sliding window. Detection fires when either counter strictly exceeds
// its threshold; the bound is exclusive, a window sitting exactly at the
// threshold is still considered normal load.
type DDoSRule struct {
	packetThreshold int
	byteThreshold   int64
	window          time.Duration

	history map[string][]trafficEntry
}

var _ ports.Rule = (*DDoSRule)(nil)

func NewDDoSRule(packetThreshold int, byteThreshold int64, window time.Duration) *DDoSRule {
	if packetThreshold <= 0 {
		packetThreshold = defaultDDoSPacketThreshold
	}
	if byteThreshold <= 0 {
		byteThreshold = defaultDDoSByteThreshold
	}
	if window <= 0 {
		window = defaultDDoSWindow
	}
	return &DDoSRule{
		packetThreshold: packetThreshold,
		byteThreshold:   byteThreshold,
		window:          window,
		history:         make(map[string][]trafficEntry),
	}
}

func (r *DDoSRule) Name() string            { return "ddos" }
func (r *DDoSRule) Type() domain.ThreatType { return domain.ThreatDDoS }

func (r *DDoSRule) Evaluate(sample domain.Sample) (domain.Verdict, error) {
	traffic, ok := sample.(domain.TrafficSample)
	if !ok {
		return domain.Verdict{}, nil
	}

	entries := append(r.history[traffic.SourceIP], trafficEntry{
		at:      traffic.Timestamp,
		packets: traffic.PacketCount,
		bytes:   traffic.ByteCount,
	})

	// Window math is relative to the sample's own timestamp, which keeps
	// evaluation deterministic under replay.
	cutoff := traffic.Timestamp.Add(-r.window)
	pruned := entries[:0]
	var packets int
	var bytes int64
	for _, e := range entries {
		if e.at.Before(cutoff) {
			continue
		}
		pruned = append(pruned, e)
		packets += e.packets
		bytes += e.bytes
	}
	r.history[traffic.SourceIP] = pruned

	packetConf := overageConfidence(float64(packets), float64(r.packetThreshold))
	byteConf := overageConfidence(float64(bytes), float64(r.byteThreshold))
	confidence := packetConf
	if byteConf > confidence {
		confidence = byteConf
	}

	if confidence <= 0 {
		return domain.Verdict{}, nil
	}

	return domain.Verdict{
		Detected:   true,
		Confidence: confidence,
		Details: map[string]any{
			"source_ip":    traffic.SourceIP,
			"packet_count": packets,
			"byte_count":   bytes,
			"window_sec":   int(r.window.Seconds()),
		},
	}, nil
}

// overageConfidence scales linearly from 0 at the threshold to 100 at
// three times the threshold. Values at or below the threshold score 0.
func overageConfidence(value, threshold float64) float64 {
	if threshold <= 0 || value <= threshold {
		return 0
	}
	conf := (value - threshold) / (2 * threshold) * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}
