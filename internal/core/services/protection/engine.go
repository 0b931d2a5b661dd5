// Package protection consumes confirmed threats from the bounded queue
// and dispatches the severity tier's action set.
package protection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

const (
	defaultJoinTimeout = 5 * time.Second
	sweepInterval      = 30 * time.Second
)

// State mirrors the detector lifecycle machine.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Engine is the single consumer of the threat queue. Per event it
// resolves the severity tier from the confidence score and executes the
// tier's cumulative action list in order; block actions respect the
// device whitelist. A failing action never blocks the remaining ones.
type Engine struct {
	queue     ports.ThreatQueue
	executor  ports.ActionExecutor
	store     ports.EventStore
	whitelist *domain.Whitelist
	tiers     domain.TierThresholds
	logger    *slog.Logger

	joinTimeout time.Duration

	obsMu     sync.Mutex
	observers []ports.ProtectionObserver

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.Lifecycle = (*Engine)(nil)

func NewEngine(queue ports.ThreatQueue, executor ports.ActionExecutor, store ports.EventStore, whitelist *domain.Whitelist, tiers domain.TierThresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if whitelist == nil {
		whitelist = domain.NewWhitelist()
	}
	if tiers == (domain.TierThresholds{}) {
		tiers = domain.DefaultTiers()
	}
	return &Engine{
		queue:       queue,
		executor:    executor,
		store:       store,
		whitelist:   whitelist,
		tiers:       tiers,
		logger:      logger,
		joinTimeout: defaultJoinTimeout,
		state:       StateIdle,
	}
}

// RegisterObserver adds a best-effort listener for protection outcomes.
func (e *Engine) RegisterObserver(obs ports.ProtectionObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, obs)
}

// Whitelist exposes the live whitelist for runtime edits.
func (e *Engine) Whitelist() *domain.Whitelist { return e.whitelist }

// CurrentState reports the lifecycle position.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start spawns the consumer worker. Idempotent while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning, StateStopping:
		return nil
	case StateStopped:
		return fmt.Errorf("%w: protection engine already stopped", domain.ErrLifecycle)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning

	go e.run(runCtx)
	e.logger.Info("protection engine started")
	return nil
}

// Stop signals the consumer and joins it with a bounded timeout.
func (e *Engine) Stop() error {
	e.mu.Lock()
	switch e.state {
	case StateIdle:
		e.state = StateStopped
		e.mu.Unlock()
		return nil
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateStopping:
		done := e.done
		e.mu.Unlock()
		return e.join(done)
	}

	e.state = StateStopping
	e.cancel()
	done := e.done
	e.mu.Unlock()

	return e.join(done)
}

func (e *Engine) join(done chan struct{}) error {
	select {
	case <-done:
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		e.logger.Info("protection engine stopped")
		return nil
	case <-time.After(e.joinTimeout):
		e.logger.Warn("protection worker did not exit before timeout", "timeout", e.joinTimeout)
		return fmt.Errorf("%w: protection join timed out after %v", domain.ErrLifecycle, e.joinTimeout)
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	sweeper, canSweep := e.executor.(interface{ Sweep() int })
	lastSweep := time.Now()

	for {
		event, ok := e.queue.Pop(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			// queue closed and drained
			return
		}

		outcome := e.HandleThreat(ctx, event)
		e.notify(outcome)

		if canSweep && time.Since(lastSweep) >= sweepInterval {
			sweeper.Sweep()
			lastSweep = time.Now()
		}
	}
}

// HandleThreat executes the resolved tier's actions for one event and
// returns the outcome. Exported so callers can drive the engine
// synchronously (tests, replay tooling) without the queue.
func (e *Engine) HandleThreat(ctx context.Context, event *domain.ThreatEvent) *domain.ProtectionOutcome {
	severity := domain.SeverityForConfidence(event.Confidence, e.tiers)
	actions := domain.ActionsForSeverity(severity)

	outcome := &domain.ProtectionOutcome{
		ThreatID:   event.ID,
		ExecutedAt: time.Now().UTC(),
		Success:    true,
	}

	for _, action := range actions {
		if action == domain.ProtectionBlock && e.whitelist.Contains(event.Target) {
			e.logger.Info("block skipped for whitelisted device",
				"threat", event.ID, "target", event.Target)
			telemetry.ActionsExecuted.WithLabelValues(action, "skipped").Inc()
			continue
		}

		if err := e.executor.Execute(ctx, action, event); err != nil {
			// Isolated failure: log, record, carry on with the tier.
			e.logger.Error("protection action failed",
				"threat", event.ID, "action", action, "error", err)
			telemetry.ActionsExecuted.WithLabelValues(action, "error").Inc()
			e.store.AppendError(domain.NewErrorRecord(
				"protection", domain.ErrAction, domain.SeverityMedium, err,
			))
			outcome.Success = false
			continue
		}

		telemetry.ActionsExecuted.WithLabelValues(action, "ok").Inc()
		outcome.ActionsTaken = append(outcome.ActionsTaken, action)
	}

	return outcome
}

func (e *Engine) notify(outcome *domain.ProtectionOutcome) {
	e.obsMu.Lock()
	observers := make([]ports.ProtectionObserver, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("protection observer panicked", "panic", r)
				}
			}()
			obs(outcome)
		}()
	}
}
