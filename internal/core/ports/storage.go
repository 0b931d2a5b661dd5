package ports

import (
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

// SentinelID is returned by append operations on failure so callers can
// check without an error branch crossing component boundaries.
const SentinelID int64 = -1

// EventStore defines the durable, append-only persistence behavior for
// threat events and error records.
type EventStore interface {
	// Append persists a threat event and returns its row id, or
	// SentinelID on validation or I/O failure (logged, never panics).
	Append(event *domain.ThreatEvent) int64

	// AppendError persists a component failure to the error log with the
	// same sentinel contract.
	AppendError(record domain.ErrorRecord) int64

	// Query retrieves events newest-first according to the filter.
	Query(filter *domain.EventFilter) ([]domain.ThreatEvent, error)

	// GetByID fetches a single event row.
	GetByID(id int64) (*domain.ThreatEvent, error)

	// Aggregate computes grouped statistics. A zero time range defaults
	// to the trailing seven days.
	Aggregate(groupBy domain.GroupBy, start, end time.Time) (*domain.AggregateResult, error)

	// MarkHandled flips the handled flag, idempotently. Returns true when
	// the row exists.
	MarkHandled(id int64, handled bool) (bool, error)

	// Purge deletes rows older than now minus the retention window from
	// both tables and compacts the backing store. Returns deleted counts
	// for attack events and error logs.
	Purge(retentionDays int) (int64, int64, error)

	// Close closes the storage connection.
	Close() error
}
