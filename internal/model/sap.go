package model

import "time"

// Auth type constants for the stored authentication descriptors.
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "api_key"
	AuthTypeOAuth2 = "oauth2"
	AuthTypeCustom = "custom"
)

// Instance environment constants.
const (
	EnvSandbox    = "sandbox"
	EnvDev        = "dev"
	EnvQuality    = "quality"
	EnvPreprod    = "preprod"
	EnvProduction = "production"
)

// System is a logical SAP system, e.g. an S/4HANA landscape. It groups the
// deployed instances and the OData service definitions shared across them.
type System struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Instance is one deployed environment of a system. It carries the base URL
// and the base (widest-scope) authentication descriptor. AuthType and
// AuthConfig are nil when the instance defines no authentication of its own.
type Instance struct {
	ID          int64     `json:"id" db:"id"`
	SystemID    int64     `json:"system_id" db:"system_id"`
	Name        string    `json:"name" db:"name"`
	Environment string    `json:"environment" db:"environment"`
	BaseURL     string    `json:"base_url" db:"base_url"`
	AuthType    *string   `json:"auth_type,omitempty" db:"auth_type"`
	AuthConfig  *string   `json:"-" db:"auth_config"` // encrypted envelope, never expose
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SystemService is a named OData service definition attached to a system and
// shared by its instances. Entities lists the entity sets the service
// exposes. AuthType/AuthConfig optionally override the instance-level
// authentication.
type SystemService struct {
	ID           int64     `json:"id" db:"id"`
	SystemID     int64     `json:"system_id" db:"system_id"`
	Name         string    `json:"name" db:"name"`
	ServicePath  string    `json:"service_path" db:"service_path"`
	ODataVersion string    `json:"odata_version" db:"odata_version"` // "v2" or "v4"
	Entities     []string  `json:"entities"`
	AuthType     *string   `json:"auth_type,omitempty" db:"auth_type"`
	AuthConfig   *string   `json:"-" db:"auth_config"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// InstanceService binds a SystemService to a specific Instance. It is the
// narrowest override layer: any non-nil field here wins over the system
// service and the instance. Slug is the routing key callers address the
// service by (/odata/{slug}/...).
type InstanceService struct {
	ID               int64     `json:"id" db:"id"`
	InstanceID       int64     `json:"instance_id" db:"instance_id"`
	SystemServiceID  int64     `json:"system_service_id" db:"system_service_id"`
	Slug             string    `json:"slug" db:"slug"`
	ServicePath      *string   `json:"service_path,omitempty" db:"service_path"`
	Entities         []string  `json:"entities,omitempty"`
	AuthType         *string   `json:"auth_type,omitempty" db:"auth_type"`
	AuthConfig       *string   `json:"-" db:"auth_config"`
	HideResponseData bool      `json:"hide_response_data" db:"hide_response_data"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveServicePath returns the instance-service override when set,
// otherwise the system service path.
func (is *InstanceService) EffectiveServicePath(ss *SystemService) string {
	if is.ServicePath != nil && *is.ServicePath != "" {
		return *is.ServicePath
	}
	return ss.ServicePath
}

// EffectiveEntities returns the instance-service entity list when set,
// otherwise the system service list.
func (is *InstanceService) EffectiveEntities(ss *SystemService) []string {
	if len(is.Entities) > 0 {
		return is.Entities
	}
	return ss.Entities
}
