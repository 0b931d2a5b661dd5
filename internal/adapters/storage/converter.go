package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

// toModel converts a domain entity to a database model.
func toModel(e *domain.ThreatEvent) AttackEventModel {
	raw := ""
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			raw = string(b)
		}
	}

	return AttackEventModel{
		EventUID:      e.ID,
		Timestamp:     e.Timestamp.UTC().Unix(),
		DeviceID:      e.Target,
		AttackType:    string(e.Type),
		Severity:      string(e.Severity),
		Confidence:    e.Confidence,
		SourceIP:      e.Source,
		DestinationIP: e.DestinationIP(),
		Description:   describe(e),
		RawData:       raw,
		Handled:       e.Handled,
	}
}

// toDomain converts a database model back to a domain entity.
func toDomain(m AttackEventModel) domain.ThreatEvent {
	var details map[string]any
	if m.RawData != "" {
		_ = json.Unmarshal([]byte(m.RawData), &details)
	}

	return domain.ThreatEvent{
		ID:         m.EventUID,
		RowID:      m.ID,
		Type:       domain.ThreatType(m.AttackType),
		Confidence: m.Confidence,
		Severity:   domain.Severity(m.Severity),
		Source:     m.SourceIP,
		Target:     m.DeviceID,
		Details:    details,
		Timestamp:  time.Unix(m.Timestamp, 0).UTC(),
		Handled:    m.Handled,
	}
}

func toErrorModel(r domain.ErrorRecord) ErrorLogModel {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ErrorLogModel{
		Timestamp:   ts.UTC().Unix(),
		Component:   r.Component,
		ErrorType:   r.ErrorType,
		Severity:    string(r.Severity),
		Description: r.Description,
		StackTrace:  r.StackContext,
	}
}

func describe(e *domain.ThreatEvent) string {
	subject := e.Target
	if subject == "" {
		subject = e.Source
	}
	return fmt.Sprintf("%s attack detected against %s (confidence %.0f)", e.Type, subject, e.Confidence)
}
