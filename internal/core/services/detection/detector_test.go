package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/queue"
)

// stubSource replays a fixed sample slice, then reports an idle source.
type stubSource struct {
	samples []domain.Sample
	err     error
}

func (s *stubSource) Next(ctx context.Context) (domain.Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.samples) == 0 {
		return nil, nil
	}
	next := s.samples[0]
	s.samples = s.samples[1:]
	return next, nil
}

func (s *stubSource) Close() error { return nil }

// memStore is an in-memory EventStore for detector tests.
type memStore struct {
	events     []*domain.ThreatEvent
	errorLog   []domain.ErrorRecord
	failAppend bool
}

func (m *memStore) Append(event *domain.ThreatEvent) int64 {
	if m.failAppend {
		return ports.SentinelID
	}
	m.events = append(m.events, event)
	event.RowID = int64(len(m.events))
	return event.RowID
}

func (m *memStore) AppendError(record domain.ErrorRecord) int64 {
	m.errorLog = append(m.errorLog, record)
	return int64(len(m.errorLog))
}

func (m *memStore) Query(filter *domain.EventFilter) ([]domain.ThreatEvent, error) {
	var out []domain.ThreatEvent
	for _, e := range m.events {
		if filter == nil || filter.Matches(e) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(id int64) (*domain.ThreatEvent, error) {
	for _, e := range m.events {
		if e.RowID == id {
			return e, nil
		}
	}
	return nil, domain.ErrPersistence
}

func (m *memStore) Aggregate(groupBy domain.GroupBy, start, end time.Time) (*domain.AggregateResult, error) {
	return &domain.AggregateResult{GroupBy: groupBy}, nil
}

func (m *memStore) MarkHandled(id int64, handled bool) (bool, error) { return false, nil }
func (m *memStore) Purge(retentionDays int) (int64, int64, error)    { return 0, 0, nil }
func (m *memStore) Close() error                                     { return nil }

func newTestDetector(t *testing.T, samples []domain.Sample, rule ports.Rule, now *time.Time) (*Detector, *memStore, *queue.ThreatQueue) {
	t.Helper()
	registry, err := NewRegistry(nil, rule)
	require.NoError(t, err)

	q, err := queue.New(8)
	require.NoError(t, err)

	store := &memStore{}
	d := NewDetector(registry, &stubSource{samples: samples}, q, store, nil, Options{
		AttackDuration: time.Minute,
		Now:            func() time.Time { return *now },
	})
	return d, store, q
}

func TestDetector_PublishPersistsThenQueues(t *testing.T) {
	now := t0
	sample := activityAt(t, "camera-001", domain.ActionBehaviorReport, map[string]any{"ip": "10.0.0.9"}, t0)
	rule := &stubRule{name: "always", threatType: domain.ThreatAnomaly, verdict: domain.Verdict{Detected: true, Confidence: 85}}

	d, store, q := newTestDetector(t, []domain.Sample{sample}, rule, &now)
	require.NoError(t, d.tick(context.Background()))

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.Equal(t, int64(1), event.RowID)
	assert.Equal(t, domain.ThreatAnomaly, event.Type)
	assert.Equal(t, domain.SeverityHigh, event.Severity)
	assert.Equal(t, "10.0.0.9", event.Source)
	assert.Equal(t, "camera-001", event.Target)

	queued, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Same(t, event, queued, "the queued event is the persisted one")
}

func TestDetector_CollapsesActiveIncident(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatDDoS, verdict: domain.Verdict{Detected: true, Confidence: 70}}
	samples := []domain.Sample{
		trafficAt(t, "203.0.113.66", 10, 0, t0),
		trafficAt(t, "203.0.113.66", 10, 0, t0.Add(time.Second)),
		trafficAt(t, "203.0.113.66", 10, 0, t0.Add(2*time.Second)),
	}

	d, store, _ := newTestDetector(t, samples, rule, &now)
	require.NoError(t, d.tick(context.Background()))

	assert.Len(t, store.events, 1, "one burst is one incident")
}

func TestDetector_NewEventAfterWindowExpiry(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatDDoS, verdict: domain.Verdict{Detected: true, Confidence: 70}}

	d, store, _ := newTestDetector(t, []domain.Sample{trafficAt(t, "203.0.113.66", 10, 0, t0)}, rule, &now)
	require.NoError(t, d.tick(context.Background()))
	require.Len(t, store.events, 1)

	// Past the incident window the same signature becomes a new event.
	now = t0.Add(2 * time.Minute)
	d.source = &stubSource{samples: []domain.Sample{trafficAt(t, "203.0.113.66", 10, 0, now)}}
	require.NoError(t, d.tick(context.Background()))
	assert.Len(t, store.events, 2)
}

func TestDetector_ExpiredIncidentsArePruned(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatCredential, verdict: domain.Verdict{Detected: true, Confidence: 60}}
	samples := []domain.Sample{
		activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0),
		activityAt(t, "lock-002", domain.ActionLoginFailed, nil, t0),
	}

	d, _, _ := newTestDetector(t, samples, rule, &now)
	require.NoError(t, d.tick(context.Background()))
	require.Len(t, d.active, 2)

	// Once their windows close, old incidents leave the dedup map
	// instead of accumulating one stale key per signature seen.
	now = t0.Add(2 * time.Minute)
	d.source = &stubSource{samples: []domain.Sample{activityAt(t, "lock-003", domain.ActionLoginFailed, nil, now)}}
	require.NoError(t, d.tick(context.Background()))

	assert.Len(t, d.active, 1)
	_, ok := d.active[string(domain.ThreatCredential)+"|lock-003"]
	assert.True(t, ok)
}

func TestDetector_DedupIsPerTarget(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatCredential, verdict: domain.Verdict{Detected: true, Confidence: 60}}
	samples := []domain.Sample{
		activityAt(t, "lock-001", domain.ActionLoginFailed, nil, t0),
		activityAt(t, "lock-002", domain.ActionLoginFailed, nil, t0),
	}

	d, store, _ := newTestDetector(t, samples, rule, &now)
	require.NoError(t, d.tick(context.Background()))

	assert.Len(t, store.events, 2, "distinct targets are distinct incidents")
}

func TestDetector_ObserverPanicIsolated(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatAnomaly, verdict: domain.Verdict{Detected: true, Confidence: 40}}
	d, _, _ := newTestDetector(t, []domain.Sample{activityAt(t, "sensor-001", domain.ActionBehaviorReport, nil, t0)}, rule, &now)

	var seen []*domain.ThreatEvent
	d.RegisterObserver(func(e *domain.ThreatEvent) { panic("observer bug") })
	d.RegisterObserver(func(e *domain.ThreatEvent) { seen = append(seen, e) })

	require.NoError(t, d.tick(context.Background()))
	assert.Len(t, seen, 1, "later observers still run after a panic")
}

func TestDetector_InvalidVerdictBecomesErrorRecord(t *testing.T) {
	now := t0
	// Confidence out of range makes event construction fail.
	rule := &stubRule{name: "broken", threatType: domain.ThreatAnomaly, verdict: domain.Verdict{Detected: true, Confidence: 150}}
	d, store, q := newTestDetector(t, []domain.Sample{activityAt(t, "sensor-001", domain.ActionBehaviorReport, nil, t0)}, rule, &now)

	require.NoError(t, d.tick(context.Background()))
	assert.Empty(t, store.events)
	assert.Equal(t, 0, q.Len())
	require.Len(t, store.errorLog, 1)
	assert.Equal(t, "detector", store.errorLog[0].Component)
}

func TestDetector_Lifecycle(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatAnomaly}
	d, _, _ := newTestDetector(t, nil, rule, &now)

	assert.Equal(t, StateIdle, d.CurrentState())

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, StateRunning, d.CurrentState())

	// Start while running is a no-op.
	require.NoError(t, d.Start(context.Background()))

	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.CurrentState())

	// Stop twice is fine, restart is not.
	require.NoError(t, d.Stop())
	err := d.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrLifecycle)
}

func TestDetector_StopFromIdle(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatAnomaly}
	d, _, _ := newTestDetector(t, nil, rule, &now)

	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.CurrentState())
}

func TestDetector_TickSourceError(t *testing.T) {
	now := t0
	rule := &stubRule{name: "always", threatType: domain.ThreatAnomaly}
	d, _, _ := newTestDetector(t, nil, rule, &now)
	d.source = &stubSource{err: assert.AnError}

	err := d.tick(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
