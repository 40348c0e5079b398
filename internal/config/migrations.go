package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS systems (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS instances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			system_id INTEGER NOT NULL REFERENCES systems(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			environment TEXT NOT NULL DEFAULT 'sandbox',
			base_url TEXT NOT NULL,
			auth_type TEXT,
			auth_config TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS system_services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			system_id INTEGER NOT NULL REFERENCES systems(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			service_path TEXT NOT NULL,
			odata_version TEXT NOT NULL DEFAULT 'v2',
			entities_json TEXT NOT NULL DEFAULT '[]',
			auth_type TEXT,
			auth_config TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS instance_services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_id INTEGER NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			system_service_id INTEGER NOT NULL REFERENCES system_services(id) ON DELETE CASCADE,
			slug TEXT UNIQUE NOT NULL,
			service_path TEXT,
			entities_json TEXT,
			auth_type TEXT,
			auth_config TEXT,
			hide_response_data INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT UNIQUE NOT NULL,
			key_masked TEXT NOT NULL,
			short_id TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			environment TEXT NOT NULL DEFAULT 'test',
			rate_limit_per_minute INTEGER NOT NULL DEFAULT 60,
			rate_limit_per_day INTEGER NOT NULL DEFAULT 10000,
			is_revoked INTEGER NOT NULL DEFAULT 0,
			expires_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS access_grants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_key_id INTEGER NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
			instance_service_id INTEGER NOT NULL REFERENCES instance_services(id) ON DELETE CASCADE,
			permissions_json TEXT NOT NULL DEFAULT '{}',
			UNIQUE(api_key_id, instance_service_id)
		)`,

		`CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_login_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_instances_system ON instances(system_id)`,
		`CREATE INDEX IF NOT EXISTS idx_system_services_system ON system_services(system_id)`,
		`CREATE INDEX IF NOT EXISTS idx_instance_services_instance ON instance_services(instance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_access_grants_key ON access_grants(api_key_id)`,
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			name := strings.Fields(strings.TrimSpace(m))
			return fmt.Errorf("migration %d (%s...): %w", i, strings.Join(name[:min(4, len(name))], " "), err)
		}
	}
	return nil
}
