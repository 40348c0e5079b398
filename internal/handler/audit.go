package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/michal-majer/s4kit/internal/securelog"
	"github.com/michal-majer/s4kit/internal/server/middleware"
)

// Auditor returns the middleware that writes exactly one secure-log record
// per proxied request, successful or not. It runs outside authentication in
// the chain so rejected requests are recorded too. Bodies never reach the
// record: only sizes, timings, counts, and error metadata.
func Auditor(logs *securelog.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, audit := middleware.WithAudit(r.Context())
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sr, r.WithContext(ctx))

			rec := &securelog.Record{
				RequestID:    middleware.GetRequestID(ctx),
				Entity:       audit.Entity,
				Operation:    audit.Operation,
				Method:       r.Method,
				StatusCode:   sr.status,
				Success:      sr.status < 400,
				TotalMs:      time.Since(start).Milliseconds(),
				SapMs:        audit.SapMs,
				RequestBytes: audit.RequestBytes,
				ClientIPHash: securelog.HashClientIP(clientIP(r)),
				UserAgent:    r.UserAgent(),
			}
			if audit.APIKey != nil {
				rec.APIKeyID = audit.APIKey.ShortID
			}
			if audit.InstanceServiceID != 0 {
				rec.InstanceServiceID = strconv.FormatInt(audit.InstanceServiceID, 10)
			}
			rec.ResponseBytes = audit.ResponseBytes
			if rec.ResponseBytes == 0 {
				rec.ResponseBytes = sr.bytes
			}
			rec.RecordCount = audit.RecordCount
			if audit.Err != nil {
				code, category, message := audit.Err.Code, string(audit.Err.Category), audit.Err.Message
				rec.ErrorCode = &code
				rec.ErrorCategory = &category
				rec.ErrorMessage = &message
			}

			// The response is already flushed; the insert only delays
			// connection reuse, never the caller's answer.
			if err := logs.Insert(context.WithoutCancel(ctx), rec); err != nil {
				logger.Error("secure log insert failed", "error", err,
					"request_id", rec.RequestID)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
