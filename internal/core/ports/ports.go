package ports

import (
	"context"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

// Rule is a stateful evaluator for one attack category. Implementations
// own their rolling state; it is only ever touched by the detector's
// worker goroutine, so no internal locking is required.
type Rule interface {
	// Name returns the registry key of the rule.
	Name() string
	// Type tags the threat category this rule detects.
	Type() domain.ThreatType
	// Evaluate consumes one sample and returns a verdict. An error is a
	// rule-internal failure; the caller logs it and treats the sample as
	// not detected rather than aborting the tick.
	Evaluate(sample domain.Sample) (domain.Verdict, error)
}

// SampleSource supplies observations to the detector. Any producer
// (live capture, pcap replay, synthetic generator) satisfies it.
type SampleSource interface {
	// Next returns the next available sample, or (nil, nil) when nothing
	// is ready. It must not block past the context.
	Next(ctx context.Context) (domain.Sample, error)
	Close() error
}

// ThreatQueue is the bounded hand-off between detector and protection
// engine. Single consumer; producers may race.
type ThreatQueue interface {
	Push(event *domain.ThreatEvent) error
	// Pop blocks until an event arrives or the context ends, so the
	// consumer can observe its stop flag. Returns (nil, false) on
	// cancellation or close.
	Pop(ctx context.Context) (*domain.ThreatEvent, bool)
	Len() int
	Close()
}

// ActionExecutor carries out protection actions. How "block" is enacted
// physically is outside the core; the default implementation keeps an
// in-process blocklist.
type ActionExecutor interface {
	Execute(ctx context.Context, action string, event *domain.ThreatEvent) error
}

// Lifecycle is the start/stop contract shared by detector, protection
// engine and the node itself. Both calls are idempotent.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// ThreatObserver receives each confirmed detection, best-effort.
type ThreatObserver func(event *domain.ThreatEvent)

// ProtectionObserver receives the outcome of each handled threat.
type ProtectionObserver func(outcome *domain.ProtectionOutcome)
