package handler

import (
	"net/http"
	"time"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/securelog"
)

// AnalyticsHandler exposes the secure request log to the dashboard: raw
// records filtered by key, service, entity and time range, plus the
// aggregate statistics view.
type AnalyticsHandler struct {
	logs *securelog.Store
}

func NewAnalyticsHandler(logs *securelog.Store) *AnalyticsHandler {
	return &AnalyticsHandler{logs: logs}
}

// ListLogs returns request records, newest first.
// GET /api/v1/system/logs
func (h *AnalyticsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, qerr := h.logs.Query(r.Context(), filter)
	if qerr != nil {
		writeError(w, r, apperr.Internal("failed to query request log"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": records})
}

// GetStats returns aggregate traffic statistics over the filtered range.
// GET /api/v1/system/logs/stats
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, serr := h.logs.Stats(r.Context(), filter)
	if serr != nil {
		writeError(w, r, apperr.Internal("failed to aggregate request log"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseLogFilter(r *http.Request) (securelog.Filter, error) {
	filter := securelog.Filter{
		APIKeyID:          queryString(r, "api_key_id"),
		InstanceServiceID: queryString(r, "instance_service_id"),
		Entity:            queryString(r, "entity"),
		Operation:         queryString(r, "operation"),
		ErrorCategory:     queryString(r, "error_category"),
		Limit:             queryInt(r, "limit", 100),
		Offset:            queryInt(r, "offset", 0),
	}
	switch queryString(r, "success") {
	case "true":
		t := true
		filter.Success = &t
	case "false":
		f := false
		filter.Success = &f
	}
	for _, bound := range []struct {
		param string
		dst   *time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		if v := queryString(r, bound.param); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, apperr.Validation("INVALID_TIME",
					bound.param+" must be an RFC 3339 timestamp.")
			}
			*bound.dst = ts
		}
	}
	return filter, nil
}
