package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

// State is the detector lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

const (
	defaultTickInterval   = time.Second
	defaultAttackDuration = 60 * time.Second
	defaultJoinTimeout    = 5 * time.Second
	defaultTickBackoff    = 500 * time.Millisecond

	// maxSamplesPerTick bounds how much of the ingest backlog one tick
	// may consume so a flood cannot starve the stop flag.
	maxSamplesPerTick = 64
)

var ErrAlreadyStopped = errors.New("detector already stopped")

// Options tune the detector. Zero values select the defaults.
type Options struct {
	TickInterval   time.Duration
	AttackDuration time.Duration
	JoinTimeout    time.Duration
	Tiers          domain.TierThresholds
	Now            func() time.Time
}

// Detector runs the periodic evaluation loop: it pulls samples from the
// ingest source, feeds them through the rule registry, collapses bursty
// re-detections of one ongoing incident, and publishes ThreatEvents to
// the protection queue and the event store.
type Detector struct {
	registry *Registry
	source   ports.SampleSource
	queue    ports.ThreatQueue
	store    ports.EventStore
	logger   *slog.Logger

	interval       time.Duration
	attackDuration time.Duration
	joinTimeout    time.Duration
	tiers          domain.TierThresholds
	now            func() time.Time

	obsMu     sync.Mutex
	observers []ports.ThreatObserver

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	// active incident windows, keyed by type and target. Detections
	// landing inside a window are suppressed, which collapses a burst
	// into one logical incident.
	active map[string]time.Time
}

var _ ports.Lifecycle = (*Detector)(nil)

func NewDetector(registry *Registry, source ports.SampleSource, queue ports.ThreatQueue, store ports.EventStore, logger *slog.Logger, opts Options) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.AttackDuration <= 0 {
		opts.AttackDuration = defaultAttackDuration
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.Tiers == (domain.TierThresholds{}) {
		opts.Tiers = domain.DefaultTiers()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		registry:       registry,
		source:         source,
		queue:          queue,
		store:          store,
		logger:         logger,
		interval:       opts.TickInterval,
		attackDuration: opts.AttackDuration,
		joinTimeout:    opts.JoinTimeout,
		tiers:          opts.Tiers,
		now:            opts.Now,
		state:          StateIdle,
		active:         make(map[string]time.Time),
	}
}

// RegisterObserver adds a best-effort listener for published threats.
func (d *Detector) RegisterObserver(obs ports.ThreatObserver) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, obs)
}

// CurrentState reports the lifecycle position.
func (d *Detector) CurrentState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start spawns the evaluation worker. Calling Start on a running
// detector is a no-op.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateRunning, StateStopping:
		return nil
	case StateStopped:
		return fmt.Errorf("%w: %v", domain.ErrLifecycle, ErrAlreadyStopped)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.state = StateRunning

	go d.run(runCtx)
	d.logger.Info("detector started", "interval", d.interval, "rules", d.registry.Names())
	return nil
}

// Stop signals the worker and joins it with a bounded timeout. A join
// timeout is logged and reported, never escalated to a kill.
func (d *Detector) Stop() error {
	d.mu.Lock()
	switch d.state {
	case StateIdle:
		d.state = StateStopped
		d.mu.Unlock()
		return nil
	case StateStopped:
		d.mu.Unlock()
		return nil
	case StateStopping:
		done := d.done
		d.mu.Unlock()
		return d.join(done)
	}

	d.state = StateStopping
	d.cancel()
	done := d.done
	d.mu.Unlock()

	return d.join(done)
}

func (d *Detector) join(done chan struct{}) error {
	select {
	case <-done:
		d.mu.Lock()
		d.state = StateStopped
		d.mu.Unlock()
		d.logger.Info("detector stopped")
		return nil
	case <-time.After(d.joinTimeout):
		d.logger.Warn("detector worker did not exit before timeout", "timeout", d.joinTimeout)
		return fmt.Errorf("%w: detector join timed out after %v", domain.ErrLifecycle, d.joinTimeout)
	}
}

func (d *Detector) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				d.logger.Error("evaluation tick failed", "error", err)
				d.store.AppendError(domain.NewErrorRecord(
					"detector", domain.ErrEvaluation, domain.SeverityMedium, err,
				))
				// Short backoff so a persistently failing source does not
				// spin the loop hot.
				select {
				case <-ctx.Done():
					return
				case <-time.After(defaultTickBackoff):
				}
			}
		}
	}
}

func (d *Detector) tick(ctx context.Context) error {
	for i := 0; i < maxSamplesPerTick; i++ {
		sample, err := d.source.Next(ctx)
		if err != nil {
			return err
		}
		if sample == nil {
			return nil
		}

		detections, failures := d.registry.EvaluateAll(sample)
		for _, rec := range failures {
			d.store.AppendError(rec)
		}
		for _, det := range detections {
			d.publish(sample, det)
		}
	}
	return nil
}

func (d *Detector) publish(sample domain.Sample, det Detection) {
	source, target := endpoints(sample)
	key := string(det.Type) + "|" + target

	now := d.now()
	d.pruneExpired(now)
	if _, ok := d.active[key]; ok {
		telemetry.ThreatsSuppressed.WithLabelValues(string(det.Type)).Inc()
		return
	}
	d.active[key] = now.Add(d.attackDuration)

	severity := domain.SeverityForConfidence(det.Verdict.Confidence, d.tiers)
	event, err := domain.NewThreatEvent(det.Type, det.Verdict.Confidence, severity, source, target, det.Verdict.Details, now)
	if err != nil {
		d.logger.Error("discarding invalid detection", "rule", det.Rule, "error", err)
		d.store.AppendError(domain.NewErrorRecord(
			"detector", domain.ErrValidation, domain.SeverityLow, err,
		))
		return
	}

	telemetry.ThreatsDetected.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
	d.logger.Warn("threat detected",
		"type", event.Type,
		"severity", event.Severity,
		"confidence", event.Confidence,
		"source", event.Source,
		"target", event.Target,
	)

	if id := d.store.Append(event); id == ports.SentinelID {
		d.logger.Error("threat event not persisted", "id", event.ID)
	}
	if err := d.queue.Push(event); err != nil {
		d.logger.Error("threat event not queued", "id", event.ID, "error", err)
		d.store.AppendError(domain.NewErrorRecord(
			"detector", domain.ErrPersistence, domain.SeverityMedium, err,
		))
	}
	d.notify(event)
}

// pruneExpired drops closed incident windows so the dedup map stays
// bounded by the number of concurrently active incidents. Only the run
// goroutine touches the map.
func (d *Detector) pruneExpired(now time.Time) {
	for key, until := range d.active {
		if !now.Before(until) {
			delete(d.active, key)
		}
	}
}

func (d *Detector) notify(event *domain.ThreatEvent) {
	d.obsMu.Lock()
	observers := make([]ports.ThreatObserver, len(d.observers))
	copy(observers, d.observers)
	d.obsMu.Unlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("threat observer panicked", "panic", r)
				}
			}()
			obs(event)
		}()
	}
}

// endpoints derives the (source, target) pair a threat event reports
// from the shape of the triggering sample.
func endpoints(sample domain.Sample) (string, string) {
	switch s := sample.(type) {
	case domain.TrafficSample:
		return s.SourceIP, s.DestinationIP
	case domain.ActivitySample:
		return s.PayloadString("ip"), s.DeviceID
	}
	return "", ""
}
