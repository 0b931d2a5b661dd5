package protection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/queue"
)

// recordingExecutor captures the actions it is asked to run and can be
// scripted to fail specific ones.
type recordingExecutor struct {
	executed []string
	failOn   string
}

func (r *recordingExecutor) Execute(ctx context.Context, action string, event *domain.ThreatEvent) error {
	if action == r.failOn {
		return errors.New("executor down")
	}
	r.executed = append(r.executed, action)
	return nil
}

// errorSink is the minimal EventStore the engine needs.
type errorSink struct {
	records []domain.ErrorRecord
}

func (s *errorSink) Append(event *domain.ThreatEvent) int64 { return 1 }
func (s *errorSink) AppendError(record domain.ErrorRecord) int64 {
	s.records = append(s.records, record)
	return int64(len(s.records))
}
func (s *errorSink) Query(filter *domain.EventFilter) ([]domain.ThreatEvent, error) { return nil, nil }
func (s *errorSink) GetByID(id int64) (*domain.ThreatEvent, error)                  { return nil, nil }
func (s *errorSink) Aggregate(groupBy domain.GroupBy, start, end time.Time) (*domain.AggregateResult, error) {
	return nil, nil
}
func (s *errorSink) MarkHandled(id int64, handled bool) (bool, error) { return false, nil }
func (s *errorSink) Purge(retentionDays int) (int64, int64, error)    { return 0, 0, nil }
func (s *errorSink) Close() error                                     { return nil }

func threatWithConfidence(t *testing.T, confidence float64, target string) *domain.ThreatEvent {
	t.Helper()
	severity := domain.SeverityForConfidence(confidence, domain.DefaultTiers())
	event, err := domain.NewThreatEvent(domain.ThreatDDoS, confidence, severity, "203.0.113.66", target, nil, time.Now())
	require.NoError(t, err)
	return event
}

func newTestEngine(executor ports.ActionExecutor, whitelist *domain.Whitelist, store ports.EventStore) (*Engine, *queue.ThreatQueue) {
	q, _ := queue.New(8)
	if store == nil {
		store = &errorSink{}
	}
	return NewEngine(q, executor, store, whitelist, domain.DefaultTiers(), nil), q
}

func TestHandleThreat_TierActionSets(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       []string
	}{
		{"low only logs", 59, []string{domain.ProtectionLog}},
		{"medium alerts", 70, []string{domain.ProtectionLog, domain.ProtectionAlert}},
		{"high blocks", 85, []string{domain.ProtectionLog, domain.ProtectionAlert, domain.ProtectionBlock}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			executor := &recordingExecutor{}
			engine, _ := newTestEngine(executor, nil, nil)

			outcome := engine.HandleThreat(context.Background(), threatWithConfidence(t, tc.confidence, "camera-001"))

			assert.Equal(t, tc.want, executor.executed)
			assert.Equal(t, tc.want, outcome.ActionsTaken)
			assert.True(t, outcome.Success)
		})
	}
}

func TestHandleThreat_WhitelistSkipsBlockOnly(t *testing.T) {
	executor := &recordingExecutor{}
	whitelist := domain.NewWhitelist("camera-001")
	engine, _ := newTestEngine(executor, whitelist, nil)

	outcome := engine.HandleThreat(context.Background(), threatWithConfidence(t, 95, "camera-001"))

	assert.Equal(t, []string{domain.ProtectionLog, domain.ProtectionAlert}, executor.executed)
	assert.Equal(t, []string{domain.ProtectionLog, domain.ProtectionAlert}, outcome.ActionsTaken)
	assert.True(t, outcome.Success, "a whitelist skip is not a failure")
}

func TestHandleThreat_FailingActionIsIsolated(t *testing.T) {
	executor := &recordingExecutor{failOn: domain.ProtectionAlert}
	sink := &errorSink{}
	engine, _ := newTestEngine(executor, nil, sink)

	outcome := engine.HandleThreat(context.Background(), threatWithConfidence(t, 85, "camera-001"))

	// Alert failed but log ran before it and block after it.
	assert.Equal(t, []string{domain.ProtectionLog, domain.ProtectionBlock}, outcome.ActionsTaken)
	assert.False(t, outcome.Success)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "protection", sink.records[0].Component)
}

func TestEngine_ConsumesQueue(t *testing.T) {
	executor := &recordingExecutor{}
	engine, q := newTestEngine(executor, nil, nil)

	var outcomes []*domain.ProtectionOutcome
	done := make(chan struct{})
	engine.RegisterObserver(func(o *domain.ProtectionOutcome) {
		outcomes = append(outcomes, o)
		close(done)
	})

	require.NoError(t, engine.Start(context.Background()))
	event := threatWithConfidence(t, 70, "camera-001")
	require.NoError(t, q.Push(event))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the engine to consume the event")
	}

	require.NoError(t, engine.Stop())
	require.Len(t, outcomes, 1)
	assert.Equal(t, event.ID, outcomes[0].ThreatID)
}

func TestEngine_Lifecycle(t *testing.T) {
	engine, _ := newTestEngine(&recordingExecutor{}, nil, nil)

	assert.Equal(t, StateIdle, engine.CurrentState())
	require.NoError(t, engine.Start(context.Background()))
	assert.Equal(t, StateRunning, engine.CurrentState())

	// Idempotent while running.
	require.NoError(t, engine.Start(context.Background()))

	require.NoError(t, engine.Stop())
	assert.Equal(t, StateStopped, engine.CurrentState())
	require.NoError(t, engine.Stop())

	err := engine.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrLifecycle)
}

func TestEngine_StopFromIdle(t *testing.T) {
	engine, _ := newTestEngine(&recordingExecutor{}, nil, nil)
	require.NoError(t, engine.Stop())
	assert.Equal(t, StateStopped, engine.CurrentState())
}

func TestEngine_ObserverPanicIsolated(t *testing.T) {
	executor := &recordingExecutor{}
	engine, _ := newTestEngine(executor, nil, nil)

	var got *domain.ProtectionOutcome
	engine.RegisterObserver(func(o *domain.ProtectionOutcome) { panic("observer bug") })
	engine.RegisterObserver(func(o *domain.ProtectionOutcome) { got = o })

	outcome := engine.HandleThreat(context.Background(), threatWithConfidence(t, 70, "camera-001"))
	engine.notify(outcome)

	assert.Same(t, outcome, got)
}
