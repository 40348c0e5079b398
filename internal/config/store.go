package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/michal-majer/s4kit/internal/model"
)

// Store manages S4Kit's configuration state backed by SQLite: systems,
// instances, OData service definitions, API keys, access grants, and admin
// accounts. The proxy core only reads from it; writes come from the admin
// surface and the CLI.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "s4kit.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Systems
// ---------------------------------------------------------------------------

// CreateSystem inserts a new system. ID and timestamps are populated on
// success.
func (s *Store) CreateSystem(ctx context.Context, sys *model.System) error {
	now := time.Now().UTC()
	sys.CreatedAt = now
	sys.UpdatedAt = now

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO systems
		(name, description, created_at, updated_at)
		VALUES (:name, :description, :created_at, :updated_at)`, sys)
	if err != nil {
		return fmt.Errorf("insert system: %w", err)
	}
	sys.ID, _ = res.LastInsertId()
	return nil
}

// GetSystem fetches a system by ID.
func (s *Store) GetSystem(ctx context.Context, id int64) (*model.System, error) {
	var sys model.System
	err := s.db.GetContext(ctx, &sys, `SELECT * FROM systems WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system: %w", err)
	}
	return &sys, nil
}

// ListSystems returns all systems ordered by name.
func (s *Store) ListSystems(ctx context.Context) ([]model.System, error) {
	var systems []model.System
	if err := s.db.SelectContext(ctx, &systems, `SELECT * FROM systems ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return systems, nil
}

// UpdateSystem updates a system's mutable fields.
func (s *Store) UpdateSystem(ctx context.Context, sys *model.System) error {
	sys.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `UPDATE systems SET
		name = :name, description = :description, updated_at = :updated_at
		WHERE id = :id`, sys)
	if err != nil {
		return fmt.Errorf("update system: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSystem removes a system and, via foreign keys, its instances and
// services.
func (s *Store) DeleteSystem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM systems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete system: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

// CreateInstance inserts a deployed environment of a system.
func (s *Store) CreateInstance(ctx context.Context, inst *model.Instance) error {
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO instances
		(system_id, name, environment, base_url, auth_type, auth_config, is_active, created_at, updated_at)
		VALUES (:system_id, :name, :environment, :base_url, :auth_type, :auth_config, :is_active, :created_at, :updated_at)`, inst)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	inst.ID, _ = res.LastInsertId()
	return nil
}

// GetInstance fetches an instance by ID.
func (s *Store) GetInstance(ctx context.Context, id int64) (*model.Instance, error) {
	var inst model.Instance
	err := s.db.GetContext(ctx, &inst, `SELECT * FROM instances WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &inst, nil
}

// ListInstances returns all instances of a system. Pass 0 to list all.
func (s *Store) ListInstances(ctx context.Context, systemID int64) ([]model.Instance, error) {
	var instances []model.Instance
	var err error
	if systemID == 0 {
		err = s.db.SelectContext(ctx, &instances, `SELECT * FROM instances ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &instances, `SELECT * FROM instances WHERE system_id = ? ORDER BY id`, systemID)
	}
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// UpdateInstance updates an instance's mutable fields.
func (s *Store) UpdateInstance(ctx context.Context, inst *model.Instance) error {
	inst.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `UPDATE instances SET
		name = :name, environment = :environment, base_url = :base_url,
		auth_type = :auth_type, auth_config = :auth_config, is_active = :is_active,
		updated_at = :updated_at
		WHERE id = :id`, inst)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstance removes an instance.
func (s *Store) DeleteInstance(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// System services
// ---------------------------------------------------------------------------

// systemServiceRow maps 1:1 to the system_services table. Entities are
// stored as a JSON array.
type systemServiceRow struct {
	ID           int64     `db:"id"`
	SystemID     int64     `db:"system_id"`
	Name         string    `db:"name"`
	ServicePath  string    `db:"service_path"`
	ODataVersion string    `db:"odata_version"`
	EntitiesJSON string    `db:"entities_json"`
	AuthType     *string   `db:"auth_type"`
	AuthConfig   *string   `db:"auth_config"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func systemServiceRowFromModel(svc *model.SystemService) (systemServiceRow, error) {
	entities, err := json.Marshal(svc.Entities)
	if err != nil {
		return systemServiceRow{}, fmt.Errorf("marshal entities: %w", err)
	}
	return systemServiceRow{
		ID:           svc.ID,
		SystemID:     svc.SystemID,
		Name:         svc.Name,
		ServicePath:  svc.ServicePath,
		ODataVersion: svc.ODataVersion,
		EntitiesJSON: string(entities),
		AuthType:     svc.AuthType,
		AuthConfig:   svc.AuthConfig,
		CreatedAt:    svc.CreatedAt,
		UpdatedAt:    svc.UpdatedAt,
	}, nil
}

func (r systemServiceRow) toModel() (model.SystemService, error) {
	var entities []string
	if r.EntitiesJSON != "" {
		if err := json.Unmarshal([]byte(r.EntitiesJSON), &entities); err != nil {
			return model.SystemService{}, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return model.SystemService{
		ID:           r.ID,
		SystemID:     r.SystemID,
		Name:         r.Name,
		ServicePath:  r.ServicePath,
		ODataVersion: r.ODataVersion,
		Entities:     entities,
		AuthType:     r.AuthType,
		AuthConfig:   r.AuthConfig,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// CreateSystemService inserts an OData service definition for a system.
func (s *Store) CreateSystemService(ctx context.Context, svc *model.SystemService) error {
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	row, err := systemServiceRowFromModel(svc)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO system_services
		(system_id, name, service_path, odata_version, entities_json, auth_type, auth_config, created_at, updated_at)
		VALUES (:system_id, :name, :service_path, :odata_version, :entities_json, :auth_type, :auth_config, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert system service: %w", err)
	}
	svc.ID, _ = res.LastInsertId()
	return nil
}

// GetSystemService fetches a service definition by ID.
func (s *Store) GetSystemService(ctx context.Context, id int64) (*model.SystemService, error) {
	var row systemServiceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM system_services WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system service: %w", err)
	}
	svc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListSystemServices returns service definitions of a system. Pass 0 for all.
func (s *Store) ListSystemServices(ctx context.Context, systemID int64) ([]model.SystemService, error) {
	var rows []systemServiceRow
	var err error
	if systemID == 0 {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM system_services ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM system_services WHERE system_id = ? ORDER BY id`, systemID)
	}
	if err != nil {
		return nil, fmt.Errorf("list system services: %w", err)
	}
	services := make([]model.SystemService, 0, len(rows))
	for _, row := range rows {
		svc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// UpdateSystemService updates a service definition.
func (s *Store) UpdateSystemService(ctx context.Context, svc *model.SystemService) error {
	svc.UpdatedAt = time.Now().UTC()
	row, err := systemServiceRowFromModel(svc)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE system_services SET
		name = :name, service_path = :service_path, odata_version = :odata_version,
		entities_json = :entities_json, auth_type = :auth_type, auth_config = :auth_config,
		updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update system service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSystemService removes a service definition.
func (s *Store) DeleteSystemService(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM system_services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete system service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instance services
// ---------------------------------------------------------------------------

type instanceServiceRow struct {
	ID               int64     `db:"id"`
	InstanceID       int64     `db:"instance_id"`
	SystemServiceID  int64     `db:"system_service_id"`
	Slug             string    `db:"slug"`
	ServicePath      *string   `db:"service_path"`
	EntitiesJSON     *string   `db:"entities_json"`
	AuthType         *string   `db:"auth_type"`
	AuthConfig       *string   `db:"auth_config"`
	HideResponseData bool      `db:"hide_response_data"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func instanceServiceRowFromModel(svc *model.InstanceService) (instanceServiceRow, error) {
	row := instanceServiceRow{
		ID:               svc.ID,
		InstanceID:       svc.InstanceID,
		SystemServiceID:  svc.SystemServiceID,
		Slug:             svc.Slug,
		ServicePath:      svc.ServicePath,
		AuthType:         svc.AuthType,
		AuthConfig:       svc.AuthConfig,
		HideResponseData: svc.HideResponseData,
		IsActive:         svc.IsActive,
		CreatedAt:        svc.CreatedAt,
		UpdatedAt:        svc.UpdatedAt,
	}
	// A nil entity list means "inherit from the system service"; distinguish
	// it from an explicit empty override.
	if svc.Entities != nil {
		entities, err := json.Marshal(svc.Entities)
		if err != nil {
			return instanceServiceRow{}, fmt.Errorf("marshal entities: %w", err)
		}
		s := string(entities)
		row.EntitiesJSON = &s
	}
	return row, nil
}

func (r instanceServiceRow) toModel() (model.InstanceService, error) {
	svc := model.InstanceService{
		ID:               r.ID,
		InstanceID:       r.InstanceID,
		SystemServiceID:  r.SystemServiceID,
		Slug:             r.Slug,
		ServicePath:      r.ServicePath,
		AuthType:         r.AuthType,
		AuthConfig:       r.AuthConfig,
		HideResponseData: r.HideResponseData,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.EntitiesJSON != nil {
		if err := json.Unmarshal([]byte(*r.EntitiesJSON), &svc.Entities); err != nil {
			return model.InstanceService{}, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return svc, nil
}

// CreateInstanceService binds a system service to an instance.
func (s *Store) CreateInstanceService(ctx context.Context, svc *model.InstanceService) error {
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	row, err := instanceServiceRowFromModel(svc)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO instance_services
		(instance_id, system_service_id, slug, service_path, entities_json, auth_type, auth_config, hide_response_data, is_active, created_at, updated_at)
		VALUES (:instance_id, :system_service_id, :slug, :service_path, :entities_json, :auth_type, :auth_config, :hide_response_data, :is_active, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert instance service: %w", err)
	}
	svc.ID, _ = res.LastInsertId()
	return nil
}

// GetInstanceService fetches a binding by ID.
func (s *Store) GetInstanceService(ctx context.Context, id int64) (*model.InstanceService, error) {
	var row instanceServiceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM instance_services WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance service: %w", err)
	}
	svc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// GetInstanceServiceBySlug fetches a binding by its routing slug.
func (s *Store) GetInstanceServiceBySlug(ctx context.Context, slug string) (*model.InstanceService, error) {
	var row instanceServiceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM instance_services WHERE slug = ?`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance service by slug: %w", err)
	}
	svc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListInstanceServices returns bindings of an instance. Pass 0 for all.
func (s *Store) ListInstanceServices(ctx context.Context, instanceID int64) ([]model.InstanceService, error) {
	var rows []instanceServiceRow
	var err error
	if instanceID == 0 {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM instance_services ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM instance_services WHERE instance_id = ? ORDER BY id`, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("list instance services: %w", err)
	}
	services := make([]model.InstanceService, 0, len(rows))
	for _, row := range rows {
		svc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// UpdateInstanceService updates a binding.
func (s *Store) UpdateInstanceService(ctx context.Context, svc *model.InstanceService) error {
	svc.UpdatedAt = time.Now().UTC()
	row, err := instanceServiceRowFromModel(svc)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE instance_services SET
		slug = :slug, service_path = :service_path, entities_json = :entities_json,
		auth_type = :auth_type, auth_config = :auth_config,
		hide_response_data = :hide_response_data, is_active = :is_active,
		updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update instance service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstanceService removes a binding.
func (s *Store) DeleteInstanceService(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instance_services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO api_keys
		(key_hash, key_masked, short_id, label, environment, rate_limit_per_minute, rate_limit_per_day, is_revoked, expires_at, created_at)
		VALUES (:key_hash, :key_masked, :short_id, :label, :environment, :rate_limit_per_minute, :rate_limit_per_day, :is_revoked, :expires_at, :created_at)`, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID, _ = res.LastInsertId()
	return nil
}

// GetAPIKeyByHash looks up an API key by the hash of its secret. This is the
// sole lookup path for inbound authentication.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.GetContext(ctx, &key, `SELECT * FROM api_keys WHERE key_hash = ?`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks a key as revoked. Revocation is permanent.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET is_revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed stamps the key's last-used time. Called off the
// request path; failures are not fatal.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// ---------------------------------------------------------------------------
// Access grants
// ---------------------------------------------------------------------------

type grantRow struct {
	ID                int64  `db:"id"`
	APIKeyID          int64  `db:"api_key_id"`
	InstanceServiceID int64  `db:"instance_service_id"`
	PermissionsJSON   string `db:"permissions_json"`
}

func (r grantRow) toModel() (model.AccessGrant, error) {
	grant := model.AccessGrant{
		ID:                r.ID,
		APIKeyID:          r.APIKeyID,
		InstanceServiceID: r.InstanceServiceID,
	}
	if err := json.Unmarshal([]byte(r.PermissionsJSON), &grant.Permissions); err != nil {
		return model.AccessGrant{}, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return grant, nil
}

// SetAccessGrant creates or replaces the grant of an API key for one
// instance service.
func (s *Store) SetAccessGrant(ctx context.Context, grant *model.AccessGrant) error {
	permissions, err := json.Marshal(grant.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO access_grants
		(api_key_id, instance_service_id, permissions_json)
		VALUES (?, ?, ?)
		ON CONFLICT(api_key_id, instance_service_id)
		DO UPDATE SET permissions_json = excluded.permissions_json`,
		grant.APIKeyID, grant.InstanceServiceID, string(permissions))
	if err != nil {
		return fmt.Errorf("set access grant: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		grant.ID = id
	}
	return nil
}

// GetAccessGrants returns all grants held by an API key.
func (s *Store) GetAccessGrants(ctx context.Context, apiKeyID int64) ([]model.AccessGrant, error) {
	var rows []grantRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM access_grants WHERE api_key_id = ?`, apiKeyID); err != nil {
		return nil, fmt.Errorf("get access grants: %w", err)
	}
	grants := make([]model.AccessGrant, 0, len(rows))
	for _, row := range rows {
		grant, err := row.toModel()
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

// DeleteAccessGrant removes one grant.
func (s *Store) DeleteAccessGrant(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_grants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete access grant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO admins
		(email, password_hash, name, is_active, created_at, updated_at)
		VALUES (:email, :password_hash, :name, :is_active, :created_at, :updated_at)`, admin)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	admin.ID, _ = res.LastInsertId()
	return nil
}

// GetAdminByEmail fetches an admin account by email.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	err := s.db.GetContext(ctx, &admin, `SELECT * FROM admins WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.SelectContext(ctx, &admins, `SELECT * FROM admins ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists, for
// first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admins`); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UpdateAdminLastLogin stamps the admin's last-login time.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE admins SET last_login_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value of a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting creates or replaces a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
