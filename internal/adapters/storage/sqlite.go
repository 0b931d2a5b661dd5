// Package storage persists threat events and error records in SQLite
// through GORM. The log is append-only: rows are never updated after
// insertion except for the handled flag.
package storage

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

const defaultAggregateWindow = 7 * 24 * time.Hour

// SQLiteAdapter implements ports.EventStore using GORM and SQLite.
type SQLiteAdapter struct {
	db       *gorm.DB
	logger   *slog.Logger
	now      func() time.Time
	scrubRaw bool
}

// Ensure interface compliance
var _ ports.EventStore = (*SQLiteAdapter)(nil)

// NewSQLiteAdapter initializes the database and migrates the schema.
func NewSQLiteAdapter(path string, log *slog.Logger) (*SQLiteAdapter, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrPersistence, path, err)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("%w: tracing plugin: %v", domain.ErrPersistence, err)
	}

	// Auto Migrate
	if err := db.AutoMigrate(&AttackEventModel{}, &ErrorLogModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrPersistence, err)
	}

	// Create Indices for Performance
	db.Exec("CREATE INDEX IF NOT EXISTS idx_attack_timestamp ON attack_events(timestamp)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_attack_device ON attack_events(device_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_attack_type ON attack_events(attack_type)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_error_timestamp ON error_logs(timestamp)")

	return &SQLiteAdapter{db: db, logger: log, now: time.Now}, nil
}

// SetScrubRaw drops raw detail payloads before persisting. Structured
// columns are kept either way.
func (a *SQLiteAdapter) SetScrubRaw(on bool) {
	a.scrubRaw = on
}

// Append persists a threat event. On any failure it logs and returns
// the sentinel id so callers check explicitly instead of unwinding.
func (a *SQLiteAdapter) Append(event *domain.ThreatEvent) int64 {
	if event == nil || event.Type == "" || event.Severity == "" {
		a.logger.Error("rejecting event with missing required fields")
		telemetry.StoreErrors.WithLabelValues("append").Inc()
		return ports.SentinelID
	}

	model := toModel(event)
	if a.scrubRaw {
		model.RawData = ""
	}
	if err := a.db.Create(&model).Error; err != nil {
		a.logger.Error("failed to persist threat event", "id", event.ID, "error", err)
		telemetry.StoreErrors.WithLabelValues("append").Inc()
		return ports.SentinelID
	}

	event.RowID = model.ID
	return model.ID
}

// AppendError persists a component failure with the same sentinel
// contract as Append.
func (a *SQLiteAdapter) AppendError(record domain.ErrorRecord) int64 {
	if record.Component == "" {
		a.logger.Error("rejecting error record without component")
		telemetry.StoreErrors.WithLabelValues("append_error").Inc()
		return ports.SentinelID
	}

	model := toErrorModel(record)
	if err := a.db.Create(&model).Error; err != nil {
		a.logger.Error("failed to persist error record", "component", record.Component, "error", err)
		telemetry.StoreErrors.WithLabelValues("append_error").Inc()
		return ports.SentinelID
	}
	return model.ID
}

// Query retrieves events newest-first according to the filter criteria.
func (a *SQLiteAdapter) Query(filter *domain.EventFilter) ([]domain.ThreatEvent, error) {
	if filter == nil {
		filter = domain.NewEventFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	query := a.db.Model(&AttackEventModel{})

	// Apply filters dynamically
	if filter.DeviceID != "" {
		query = query.Where("device_id = ?", filter.DeviceID)
	}
	if filter.AttackType != "" {
		query = query.Where("attack_type = ?", string(filter.AttackType))
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", string(filter.Severity))
	}
	if filter.SourceIP != "" {
		query = query.Where("source_ip = ?", filter.SourceIP)
	}
	if filter.DestinationIP != "" {
		query = query.Where("destination_ip = ?", filter.DestinationIP)
	}
	if filter.Handled != nil {
		query = query.Where("handled = ?", *filter.Handled)
	}
	if !filter.StartTime.IsZero() {
		query = query.Where("timestamp >= ?", filter.StartTime.UTC().Unix())
	}
	if !filter.EndTime.IsZero() {
		query = query.Where("timestamp <= ?", filter.EndTime.UTC().Unix())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultQueryLimit
	}

	var models []AttackEventModel
	err := query.Order("timestamp DESC").Limit(limit).Offset(filter.Offset).Find(&models).Error
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("%w: query: %v", domain.ErrPersistence, err)
	}

	events := make([]domain.ThreatEvent, len(models))
	for i, m := range models {
		events[i] = toDomain(m)
	}
	return events, nil
}

// GetByID fetches a single event row.
func (a *SQLiteAdapter) GetByID(id int64) (*domain.ThreatEvent, error) {
	var model AttackEventModel
	if err := a.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		telemetry.StoreErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: get %d: %v", domain.ErrPersistence, id, err)
	}
	event := toDomain(model)
	return &event, nil
}

// Aggregate computes grouped statistics over the selected time range.
// An unset range defaults to the trailing seven days.
func (a *SQLiteAdapter) Aggregate(groupBy domain.GroupBy, start, end time.Time) (*domain.AggregateResult, error) {
	if !groupBy.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidGroupBy, groupBy)
	}
	if end.IsZero() {
		end = a.now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-defaultAggregateWindow)
	}

	var keyExpr, orderExpr string
	switch groupBy {
	case domain.GroupByDay:
		keyExpr = "strftime('%Y-%m-%d', timestamp, 'unixepoch')"
		orderExpr = "key ASC"
	case domain.GroupByHour:
		keyExpr = "strftime('%Y-%m-%d %H:00', timestamp, 'unixepoch')"
		orderExpr = "key ASC"
	case domain.GroupByType:
		keyExpr = "attack_type"
		orderExpr = "count DESC"
	case domain.GroupByDevice:
		keyExpr = "device_id"
		orderExpr = "count DESC"
	case domain.GroupBySeverity:
		keyExpr = "severity"
		// Severity buckets come back in criticality order, not count order.
		orderExpr = "CASE severity WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 WHEN 'low' THEN 4 ELSE 5 END"
	}

	rows := []struct {
		Key   string
		Count int64
	}{}
	err := a.db.Model(&AttackEventModel{}).
		Select(keyExpr+" AS key, COUNT(*) AS count").
		Where("timestamp >= ? AND timestamp <= ?", start.UTC().Unix(), end.UTC().Unix()).
		Group(keyExpr).
		Order(orderExpr).
		Scan(&rows).Error
	if err != nil {
		telemetry.StoreErrors.WithLabelValues("aggregate").Inc()
		return nil, fmt.Errorf("%w: aggregate: %v", domain.ErrPersistence, err)
	}

	result := &domain.AggregateResult{
		GroupBy:   groupBy,
		StartTime: start,
		EndTime:   end,
		Buckets:   make([]domain.Bucket, len(rows)),
	}
	for i, r := range rows {
		result.Buckets[i] = domain.Bucket{Key: r.Key, Count: r.Count}
		result.Total += r.Count
	}
	return result, nil
}

// MarkHandled flips the handled flag. Repeated calls with the same value
// are no-ops that still report success while the row exists.
func (a *SQLiteAdapter) MarkHandled(id int64, handled bool) (bool, error) {
	res := a.db.Model(&AttackEventModel{}).Where("id = ?", id).Update("handled", handled)
	if res.Error != nil {
		telemetry.StoreErrors.WithLabelValues("mark_handled").Inc()
		return false, fmt.Errorf("%w: mark handled %d: %v", domain.ErrPersistence, id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Purge deletes rows older than the retention window from both tables
// and compacts the database file afterwards.
func (a *SQLiteAdapter) Purge(retentionDays int) (int64, int64, error) {
	if retentionDays <= 0 {
		return 0, 0, fmt.Errorf("%w: retention days must be positive", domain.ErrValidation)
	}
	cutoff := a.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()

	attacks := a.db.Where("timestamp < ?", cutoff).Delete(&AttackEventModel{})
	if attacks.Error != nil {
		telemetry.StoreErrors.WithLabelValues("purge").Inc()
		return 0, 0, fmt.Errorf("%w: purge attack_events: %v", domain.ErrPersistence, attacks.Error)
	}

	errs := a.db.Where("timestamp < ?", cutoff).Delete(&ErrorLogModel{})
	if errs.Error != nil {
		telemetry.StoreErrors.WithLabelValues("purge").Inc()
		return attacks.RowsAffected, 0, fmt.Errorf("%w: purge error_logs: %v", domain.ErrPersistence, errs.Error)
	}

	// Reclaim file space once the rows are gone.
	if err := a.db.Exec("VACUUM").Error; err != nil {
		a.logger.Warn("vacuum after purge failed", "error", err)
	}

	a.logger.Info("retention purge completed",
		"retention_days", retentionDays,
		"attack_events_deleted", attacks.RowsAffected,
		"error_logs_deleted", errs.RowsAffected,
	)
	return attacks.RowsAffected, errs.RowsAffected, nil
}

// Close closes the storage connection.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
