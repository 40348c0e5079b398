// Package securelog records one entry per proxied request without ever
// touching request or response bodies. Payloads may contain business data;
// only sizes, timings, counts, and error metadata are persisted.
package securelog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is one proxied request. Exactly one record exists per request,
// successful or not. ClientIPHash is a SHA-256 of the client address; the
// raw address is never stored.
type Record struct {
	ID                int64     `db:"id" json:"id"`
	RequestID         string    `db:"request_id" json:"request_id"`
	APIKeyID          string    `db:"api_key_id" json:"api_key_id"`
	InstanceServiceID string    `db:"instance_service_id" json:"instance_service_id"`
	Entity            string    `db:"entity" json:"entity"`
	Operation         string    `db:"operation" json:"operation"`
	Method            string    `db:"method" json:"method"`
	StatusCode        int       `db:"status_code" json:"status_code"`
	Success           bool      `db:"success" json:"success"`
	TotalMs           int64     `db:"total_ms" json:"total_ms"`
	SapMs             int64     `db:"sap_ms" json:"sap_ms"`
	RequestBytes      int       `db:"request_bytes" json:"request_bytes"`
	ResponseBytes     int       `db:"response_bytes" json:"response_bytes"`
	RecordCount       *int      `db:"record_count" json:"record_count,omitempty"`
	ErrorCode         *string   `db:"error_code" json:"error_code,omitempty"`
	ErrorCategory     *string   `db:"error_category" json:"error_category,omitempty"`
	ErrorMessage      *string   `db:"error_message" json:"error_message,omitempty"`
	ClientIPHash      string    `db:"client_ip_hash" json:"client_ip_hash"`
	UserAgent         string    `db:"user_agent" json:"user_agent"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// HashClientIP produces the stored form of a client address.
func HashClientIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// Filter narrows a log query. Zero values mean "no constraint".
type Filter struct {
	APIKeyID          string
	InstanceServiceID string
	Entity            string
	Operation         string
	ErrorCategory     string
	Success           *bool
	Since             time.Time
	Until             time.Time
	Limit             int
	Offset            int
}

// Stats summarizes traffic over a filter's range.
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	SuccessRate   float64          `json:"success_rate"`
	AvgTotalMs    float64          `json:"avg_total_ms"`
	AvgSapMs      float64          `json:"avg_sap_ms"`
	P95TotalMs    int64            `json:"p95_total_ms"`
	TopEntities   []EntityCount    `json:"top_entities"`
	ByCategory    map[string]int64 `json:"errors_by_category"`
}

// EntityCount pairs an entity with its request count.
type EntityCount struct {
	Entity string `db:"entity" json:"entity"`
	Count  int64 `db:"count" json:"count"`
}
