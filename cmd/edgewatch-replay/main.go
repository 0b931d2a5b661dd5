// edgewatch-replay runs the detection rules over a capture file offline
// and prints every detection as a JSON line. Useful for tuning
// thresholds against recorded traffic without touching a live node.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/adapters/source"
	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/detection"
)

type detectionLine struct {
	Rule       string            `json:"rule"`
	Type       domain.ThreatType `json:"type"`
	Confidence float64           `json:"confidence"`
	Severity   domain.Severity   `json:"severity"`
	Source     string            `json:"source,omitempty"`
	Details    map[string]any    `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func main() {
	pcapPath := flag.String("pcap", "", "Capture file to replay (required)")
	threshold := flag.Int("detection-threshold", 0, "DDoS packet threshold per window (0 = default)")
	domains := flag.String("suspicious-domains", "", "Comma separated firmware domains to flag")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *pcapPath == "" {
		slog.Error("missing required -pcap flag")
		os.Exit(2)
	}

	src, err := source.OpenPcap(*pcapPath)
	if err != nil {
		slog.Error("Failed to open capture", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	rules := []ports.Rule{
		detection.NewDDoSRule(*threshold, 0, 0),
		detection.NewMITMRule(0),
		detection.NewFirmwareRule(splitList(*domains)),
		detection.NewCredentialRule(0, 0),
		detection.NewAnomalyRule(0),
	}
	registry, err := detection.NewRegistry(logger, rules...)
	if err != nil {
		slog.Error("Failed to build registry", "error", err)
		os.Exit(1)
	}

	tiers := domain.DefaultTiers()
	enc := json.NewEncoder(os.Stdout)
	samples, detections := 0, 0

	ctx := context.Background()
	for {
		sample, err := src.Next(ctx)
		if err != nil {
			slog.Error("Replay aborted", "error", err)
			os.Exit(1)
		}
		if sample == nil {
			break
		}
		samples++

		hits, failures := registry.EvaluateAll(sample)
		for _, rec := range failures {
			slog.Warn("rule failed", "component", rec.Component, "error", rec.Description)
		}
		for _, hit := range hits {
			detections++
			line := detectionLine{
				Rule:       hit.Rule,
				Type:       hit.Type,
				Confidence: hit.Verdict.Confidence,
				Severity:   domain.SeverityForConfidence(hit.Verdict.Confidence, tiers),
				Details:    hit.Verdict.Details,
				Timestamp:  sample.ObservedAt(),
			}
			if ts, ok := sample.(domain.TrafficSample); ok {
				line.Source = ts.SourceIP
			}
			if err := enc.Encode(line); err != nil {
				slog.Error("Failed to write detection", "error", err)
				os.Exit(1)
			}
		}
	}

	slog.Info("Replay finished", "samples", samples, "detections", detections)
}

func splitList(s string) []string {
	var items []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
