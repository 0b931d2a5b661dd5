package domain

import (
	"errors"
	"time"
)

// Domain Errors for filtering
var (
	ErrInvalidTimeRange = errors.New("StartTime cannot be later than EndTime")
	ErrInvalidGroupBy   = errors.New("invalid aggregation grouping")
)

// EventFilter defines criteria for querying persisted threat events.
// It follows the Specification Pattern by providing a Matches method so
// in-memory filtering (live feed) stays consistent with DB queries.
type EventFilter struct {
	DeviceID      string     `json:"device_id"`      // exact match, "" = any
	AttackType    ThreatType `json:"attack_type"`    // "" = any
	Severity      Severity   `json:"severity"`       // "" = any
	SourceIP      string     `json:"source_ip"`      // exact match
	DestinationIP string     `json:"destination_ip"` // exact match
	Handled       *bool      `json:"handled"`        // nil = any
	StartTime     time.Time  `json:"start_time"`     // zero = unbounded
	EndTime       time.Time  `json:"end_time"`       // zero = unbounded
	Limit         int        `json:"limit"`          // 0 = default page size
	Offset        int        `json:"offset"`
}

// NewEventFilter initializes a filter with the default page size.
func NewEventFilter() *EventFilter {
	return &EventFilter{Limit: DefaultQueryLimit}
}

// DefaultQueryLimit bounds unpaginated queries.
const DefaultQueryLimit = 50

// --- Builder Pattern Methods ---

func (f *EventFilter) WithDevice(id string) *EventFilter {
	f.DeviceID = id
	return f
}

func (f *EventFilter) WithType(t ThreatType) *EventFilter {
	f.AttackType = t
	return f
}

func (f *EventFilter) WithHandled(handled bool) *EventFilter {
	f.Handled = &handled
	return f
}

func (f *EventFilter) WithRange(start, end time.Time) *EventFilter {
	f.StartTime = start
	f.EndTime = end
	return f
}

// Validate ensures the filter criteria are logically consistent.
func (f *EventFilter) Validate() error {
	if !f.StartTime.IsZero() && !f.EndTime.IsZero() && f.StartTime.After(f.EndTime) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches implements the Specification Pattern over a single event.
// Limit/Offset are pagination concerns and are ignored here.
func (f *EventFilter) Matches(e *ThreatEvent) bool {
	if e == nil {
		return false
	}
	if f.DeviceID != "" && e.Target != f.DeviceID {
		return false
	}
	if f.AttackType != "" && e.Type != f.AttackType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.SourceIP != "" && e.Source != f.SourceIP {
		return false
	}
	if f.DestinationIP != "" && e.DestinationIP() != f.DestinationIP {
		return false
	}
	if f.Handled != nil && e.Handled != *f.Handled {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// GroupBy selects the bucketing dimension for event aggregation.
type GroupBy string

const (
	GroupByDay      GroupBy = "day"
	GroupByHour     GroupBy = "hour"
	GroupByType     GroupBy = "type"
	GroupByDevice   GroupBy = "device"
	GroupBySeverity GroupBy = "severity"
)

func (g GroupBy) Valid() bool {
	switch g {
	case GroupByDay, GroupByHour, GroupByType, GroupByDevice, GroupBySeverity:
		return true
	}
	return false
}

// Bucket is one aggregation row.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AggregateResult is the outcome of one grouped statistics query.
// For severity grouping the buckets come back in severity order
// (critical, high, medium, low, other), not alphabetically.
type AggregateResult struct {
	Total     int64     `json:"total"`
	GroupBy   GroupBy   `json:"group_by"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Buckets   []Bucket  `json:"buckets"`
}
