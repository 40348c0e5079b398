package securelog

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists request records. SQLite is the default, embedded
// backend; Postgres via pgx is available for multi-replica deployments
// where every node must write to the same log.
type Store struct {
	db *sqlx.DB
}

// Open connects to the configured backend. driver is "sqlite" or
// "postgres"; dsn is the file path (sqlite) or connection string
// (postgres). An empty dsn under sqlite opens an in-memory log.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		}
		db, err = sqlx.Open("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sqlx.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unknown secure log driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open secure log: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(driver); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(driver string) error {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		idType = "BIGSERIAL PRIMARY KEY"
	}
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS request_log (
	id %s,
	request_id TEXT NOT NULL,
	api_key_id TEXT NOT NULL,
	instance_service_id TEXT NOT NULL,
	entity TEXT NOT NULL,
	operation TEXT NOT NULL,
	method TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	success BOOLEAN NOT NULL,
	total_ms INTEGER NOT NULL,
	sap_ms INTEGER NOT NULL,
	request_bytes INTEGER NOT NULL DEFAULT 0,
	response_bytes INTEGER NOT NULL DEFAULT 0,
	record_count INTEGER,
	error_code TEXT,
	error_category TEXT,
	error_message TEXT,
	client_ip_hash TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_log_key_time ON request_log(api_key_id, created_at);
CREATE INDEX IF NOT EXISTS idx_request_log_service_time ON request_log(instance_service_id, created_at);
CREATE INDEX IF NOT EXISTS idx_request_log_created ON request_log(created_at);
`, idType)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate secure log: %w", err)
	}
	return nil
}

// Insert appends one record. The caller never writes a second record for
// the same request.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO request_log (
	request_id, api_key_id, instance_service_id, entity, operation, method,
	status_code, success, total_ms, sap_ms, request_bytes, response_bytes,
	record_count, error_code, error_category, error_message,
	client_ip_hash, user_agent, created_at
) VALUES (
	:request_id, :api_key_id, :instance_service_id, :entity, :operation, :method,
	:status_code, :success, :total_ms, :sap_ms, :request_bytes, :response_bytes,
	:record_count, :error_code, :error_category, :error_message,
	:client_ip_hash, :user_agent, :created_at
)`
	if _, err := s.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args := buildWhere(f)
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := fmt.Sprintf(`SELECT * FROM request_log %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		where, limit, max(f.Offset, 0))

	var records []Record
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("query request log: %w", err)
	}
	return records, nil
}

// Stats aggregates the filtered range: volume, success rate, latency
// averages, a P95 on total latency, and the busiest entities.
func (s *Store) Stats(ctx context.Context, f Filter) (*Stats, error) {
	where, args := buildWhere(f)

	var agg struct {
		Total      int64    `db:"total"`
		Successes  int64    `db:"successes"`
		AvgTotalMs *float64 `db:"avg_total_ms"`
		AvgSapMs   *float64 `db:"avg_sap_ms"`
	}
	q := fmt.Sprintf(`
SELECT COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successes,
       AVG(total_ms) AS avg_total_ms,
       AVG(sap_ms) AS avg_sap_ms
FROM request_log %s`, where)
	if err := s.db.GetContext(ctx, &agg, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("aggregate request log: %w", err)
	}

	stats := &Stats{
		TotalRequests: agg.Total,
		ByCategory:    map[string]int64{},
	}
	if agg.Total > 0 {
		stats.SuccessRate = float64(agg.Successes) / float64(agg.Total)
	}
	if agg.AvgTotalMs != nil {
		stats.AvgTotalMs = *agg.AvgTotalMs
	}
	if agg.AvgSapMs != nil {
		stats.AvgSapMs = *agg.AvgSapMs
	}

	if agg.Total > 0 {
		// P95 by nearest rank: the ceil(0.95*n)-th smallest value.
		offset := (agg.Total*95+99)/100 - 1
		if offset < 0 {
			offset = 0
		}
		pq := fmt.Sprintf(`SELECT total_ms FROM request_log %s ORDER BY total_ms LIMIT 1 OFFSET %d`, where, offset)
		if err := s.db.GetContext(ctx, &stats.P95TotalMs, s.db.Rebind(pq), args...); err != nil {
			return nil, fmt.Errorf("latency percentile: %w", err)
		}
	}

	eq := fmt.Sprintf(`
SELECT entity, COUNT(*) AS count FROM request_log %s
GROUP BY entity ORDER BY count DESC LIMIT 10`, where)
	if err := s.db.SelectContext(ctx, &stats.TopEntities, s.db.Rebind(eq), args...); err != nil {
		return nil, fmt.Errorf("top entities: %w", err)
	}

	type categoryCount struct {
		Category string `db:"error_category"`
		Count    int64  `db:"count"`
	}
	cq := fmt.Sprintf(`
SELECT error_category, COUNT(*) AS count FROM request_log %s
GROUP BY error_category`, andWhere(where, "error_category IS NOT NULL"))
	var categories []categoryCount
	if err := s.db.SelectContext(ctx, &categories, s.db.Rebind(cq), args...); err != nil {
		return nil, fmt.Errorf("errors by category: %w", err)
	}
	for _, c := range categories {
		stats.ByCategory[c.Category] = c.Count
	}

	return stats, nil
}

func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, arg interface{}) {
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	if f.APIKeyID != "" {
		add("api_key_id = ?", f.APIKeyID)
	}
	if f.InstanceServiceID != "" {
		add("instance_service_id = ?", f.InstanceServiceID)
	}
	if f.Entity != "" {
		add("entity = ?", f.Entity)
	}
	if f.Operation != "" {
		add("operation = ?", f.Operation)
	}
	if f.ErrorCategory != "" {
		add("error_category = ?", f.ErrorCategory)
	}
	if f.Success != nil {
		add("success = ?", *f.Success)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("created_at < ?", f.Until.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func andWhere(where, extra string) string {
	if where == "" {
		return "WHERE " + extra
	}
	return where + " AND " + extra
}
