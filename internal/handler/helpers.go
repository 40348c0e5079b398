package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/model"
	"github.com/michal-majer/s4kit/internal/server/middleware"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope and records the failure on the request's audit carrier.
// Unclassified errors collapse to a 500 with a generic message so internal
// details never reach the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("internal server error")
	}
	if audit := middleware.GetAudit(r.Context()); audit != nil {
		audit.Err = ae
	}
	if ae.Status == http.StatusTooManyRequests {
		if retry, ok := ae.Context["retry_after"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}
	writeJSON(w, ae.Status, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    ae.Code,
			Message: ae.Message,
			Context: ae.Context,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}
