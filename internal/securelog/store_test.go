package securelog

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(mod func(*Record)) *Record {
	rec := &Record{
		RequestID:         "req-1",
		APIKeyID:          "key-1",
		InstanceServiceID: "svc-1",
		Entity:            "Products",
		Operation:         "read",
		Method:            "GET",
		StatusCode:        200,
		Success:           true,
		TotalMs:           42,
		SapMs:             30,
		ResponseBytes:     1024,
		ClientIPHash:      HashClientIP("203.0.113.9"),
		UserAgent:         "curl/8.0",
	}
	if mod != nil {
		mod(rec)
	}
	return rec
}

func TestInsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleRecord(nil)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	code := "RATE_LIMIT_EXCEEDED"
	category := "rate_limit"
	msg := "rate limit exceeded"
	if err := s.Insert(ctx, sampleRecord(func(r *Record) {
		r.RequestID = "req-2"
		r.StatusCode = 429
		r.Success = false
		r.ErrorCode = &code
		r.ErrorCategory = &category
		r.ErrorMessage = &msg
	})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, err := s.Query(ctx, Filter{APIKeyID: "key-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}

	failed := false
	records, err = s.Query(ctx, Filter{Success: &failed})
	if err != nil {
		t.Fatalf("query failed-only: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "req-2" {
		t.Fatalf("failed-only filter: got %+v", records)
	}
	if records[0].ErrorCategory == nil || *records[0].ErrorCategory != "rate_limit" {
		t.Errorf("error category not persisted: %+v", records[0])
	}
}

func TestQueryByErrorCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleRecord(nil)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i, category := range []string{"auth", "permission", "auth"} {
		cat := category
		code := "DENIED"
		if err := s.Insert(ctx, sampleRecord(func(r *Record) {
			r.RequestID = "req-" + string(rune('a'+i))
			r.StatusCode = 403
			r.Success = false
			r.ErrorCode = &code
			r.ErrorCategory = &cat
		})); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	records, err := s.Query(ctx, Filter{ErrorCategory: "auth"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("auth-only filter: got %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ErrorCategory == nil || *rec.ErrorCategory != "auth" {
			t.Errorf("unexpected record in category filter: %+v", rec)
		}
	}

	records, err = s.Query(ctx, Filter{ErrorCategory: "timeout"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("timeout filter: got %d records, want 0", len(records))
	}
}

func TestQueryTimeRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := sampleRecord(func(r *Record) {
			r.RequestID = "req-" + string(rune('a'+i))
			r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		})
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	records, err := s.Query(ctx, Filter{Since: base.Add(30 * time.Minute), Until: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "req-b" {
		t.Fatalf("time range filter: got %+v", records)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latencies := []int64{10, 20, 30, 40, 1000}
	for i, ms := range latencies {
		success := i < 4
		rec := sampleRecord(func(r *Record) {
			r.TotalMs = ms
			r.SapMs = ms / 2
			r.Success = success
			if !success {
				r.StatusCode = 504
				code := "SAP_TIMEOUT"
				category := "timeout"
				r.ErrorCode = &code
				r.ErrorCategory = &category
			}
			if i%2 == 1 {
				r.Entity = "SalesOrders"
			}
		})
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	stats, err := s.Stats(ctx, Filter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRequests != 5 {
		t.Errorf("total: got %d", stats.TotalRequests)
	}
	if stats.SuccessRate != 0.8 {
		t.Errorf("success rate: got %v", stats.SuccessRate)
	}
	if stats.AvgTotalMs != 220 {
		t.Errorf("avg total ms: got %v", stats.AvgTotalMs)
	}
	if stats.P95TotalMs != 1000 {
		t.Errorf("p95: got %d", stats.P95TotalMs)
	}
	if len(stats.TopEntities) != 2 || stats.TopEntities[0].Entity != "Products" {
		t.Errorf("top entities: got %+v", stats.TopEntities)
	}
	if stats.ByCategory["timeout"] != 1 {
		t.Errorf("errors by category: got %+v", stats.ByCategory)
	}
}

func TestHashClientIP(t *testing.T) {
	h := HashClientIP("198.51.100.7")
	if len(h) != 64 {
		t.Errorf("hash length: got %d", len(h))
	}
	if strings.Contains(h, "198.51.100.7") {
		t.Error("raw address leaked into the hash")
	}
	if h != HashClientIP("198.51.100.7") {
		t.Error("hash must be deterministic")
	}
}
