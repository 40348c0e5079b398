package middleware

import (
	"context"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/model"
)

// AuditContextKey is the context key for the per-request audit carrier.
const AuditContextKey contextKey = "audit"

// Audit accumulates the metadata for the single secure-log record every
// proxied request produces. The pipeline stages fill in what they know:
// the auth middleware sets APIKey or Err, the proxy handler the rest.
// A request is handled by one goroutine, so no locking is needed.
type Audit struct {
	APIKey            *model.APIKey
	InstanceServiceID int64
	Entity            string
	Operation         string
	SapMs             int64
	RequestBytes      int
	ResponseBytes     int
	RecordCount       *int
	Err               *apperr.Error
}

// WithAudit attaches a fresh audit carrier to the context.
func WithAudit(ctx context.Context) (context.Context, *Audit) {
	audit := &Audit{}
	return context.WithValue(ctx, AuditContextKey, audit), audit
}

// GetAudit returns the request's audit carrier, or nil outside an audited
// route.
func GetAudit(ctx context.Context) *Audit {
	if a, ok := ctx.Value(AuditContextKey).(*Audit); ok {
		return a
	}
	return nil
}
