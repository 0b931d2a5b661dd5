package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// headers are gone at this point, just log
		slog.Error("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleEvents serves GET /api/events with the full filter surface.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.NewEventFilter()
	filter.DeviceID = q.Get("device_id")
	filter.AttackType = domain.ThreatType(q.Get("type"))
	filter.Severity = domain.Severity(q.Get("severity"))
	filter.SourceIP = q.Get("source_ip")
	filter.DestinationIP = q.Get("destination_ip")

	if v := q.Get("handled"); v != "" {
		handled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "handled must be a boolean")
			return
		}
		filter.Handled = &handled
	}
	var err error
	if filter.StartTime, err = parseTime(q.Get("start")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	if filter.EndTime, err = parseTime(q.Get("end")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time")
		return
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	events, err := s.store.Query(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// handleStats serves GET /api/stats?group_by=severity&start=&end=.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupBy := domain.GroupBy(q.Get("group_by"))
	if groupBy == "" {
		groupBy = domain.GroupByType
	}

	start, err := parseTime(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time")
		return
	}

	result, err := s.store.Aggregate(groupBy, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if groupBy != "" && !groupBy.Valid() {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMarkHandled serves POST /api/events/{id}/handled.
func (s *Server) handleMarkHandled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	body := struct {
		Handled *bool `json:"handled"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	handled := true
	if body.Handled != nil {
		handled = *body.Handled
	}

	ok, err := s.store.MarkHandled(id, handled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "handled": handled})
}

// handleEvent serves GET /api/events/{id}.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := s.store.GetByID(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// handleStatus serves GET /api/status with a node snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Status())
}

// handlePurge serves POST /api/retention/purge. Retention is enforced on
// demand or by the app-level scheduler, never by the store itself.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	days := s.retentionDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	attacks, errLogs, err := s.store.Purge(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"retention_days":        days,
		"attack_events_deleted": attacks,
		"error_logs_deleted":    errLogs,
	})
}

// handleReport serves GET /api/report?date=2006-01-02 as PDF.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	summary, err := s.buildSummary(day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pdf, err := s.exporter.ExportDailySummary(summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=edgewatch-%s.pdf", day.Format("2006-01-02")))
	w.Write(pdf)
}

func (s *Server) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.node.Whitelist().Add(id)
	writeJSON(w, http.StatusOK, map[string]string{"whitelisted": id})
}

func (s *Server) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.node.Whitelist().Remove(id)
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

// handleSimulate serves POST /api/simulate/{type} in mock mode.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.synthetic == nil {
		writeError(w, http.StatusConflict, "simulation requires mock mode")
		return
	}
	t := domain.ThreatType(mux.Vars(r)["type"])
	switch t {
	case domain.ThreatDDoS, domain.ThreatMITM, domain.ThreatFirmware, domain.ThreatCredential, domain.ThreatAnomaly:
	default:
		writeError(w, http.StatusBadRequest, "unknown attack type")
		return
	}
	s.synthetic.InjectAttack(t)
	writeJSON(w, http.StatusAccepted, map[string]string{"injected": string(t)})
}

// parseTime accepts RFC3339 or unix seconds; empty means zero time.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}
