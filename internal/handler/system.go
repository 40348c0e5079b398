package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/keys"
	"github.com/michal-majer/s4kit/internal/model"
	"github.com/michal-majer/s4kit/internal/service"
)

// SystemHandler manages S4Kit's own configuration: systems, instances,
// services, API keys, access grants, and admin sessions. Every stored
// credential is encrypted before it reaches the config store; the decrypted
// form only ever exists inside the proxy pipeline.
type SystemHandler struct {
	store   *config.Store
	authSvc *service.AuthService
	enc     *crypto.Encryptor
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store *config.Store, authSvc *service.AuthService, enc *crypto.Encryptor) *SystemHandler {
	return &SystemHandler{store: store, authSvc: authSvc, enc: enc}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	AdminID   int64  `json:"admin_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates an admin and returns a JWT session token.
// POST /api/v1/system/admin/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, apperr.Validation("MISSING_CREDENTIALS", "Email and password are required."))
		return
	}

	admin, err := h.store.GetAdminByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, r, apperr.Authentication("INVALID_CREDENTIALS", "Invalid credentials."))
			return
		}
		writeError(w, r, apperr.Internal("authentication error"))
		return
	}
	if !admin.IsActive {
		writeError(w, r, apperr.Authentication("ACCOUNT_DISABLED", "Account is disabled."))
		return
	}
	if service.HashPassword(req.Password) != admin.PasswordHash {
		writeError(w, r, apperr.Authentication("INVALID_CREDENTIALS", "Invalid credentials."))
		return
	}

	ttl := 24 * time.Hour
	token, err := h.authSvc.IssueJWT(r.Context(), admin.ID, admin.Email, ttl)
	if err != nil {
		writeError(w, r, apperr.Internal("failed to issue token"))
		return
	}
	_ = h.store.UpdateAdminLastLogin(r.Context(), admin.ID)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(ttl.Seconds()),
		AdminID:   admin.ID,
		Email:     admin.Email,
		Name:      admin.Name,
	})
}

// Logout invalidates the current session. JWTs are stateless, so this is a
// no-op on the server side; clients should discard their token.
// DELETE /api/v1/system/admin/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

// ---------------------------------------------------------------------------
// Systems
// ---------------------------------------------------------------------------

// ListSystems returns all configured SAP systems.
// GET /api/v1/system/systems
func (h *SystemHandler) ListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.store.ListSystems(r.Context())
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list systems"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"systems": systems})
}

// CreateSystem registers a new SAP system.
// POST /api/v1/system/systems
func (h *SystemHandler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	var sys model.System
	if err := readJSON(r, &sys); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	if sys.Name == "" {
		writeError(w, r, apperr.Validation("MISSING_NAME", "System name is required."))
		return
	}
	if err := h.store.CreateSystem(r.Context(), &sys); err != nil {
		writeError(w, r, apperr.Internal("failed to create system"))
		return
	}
	writeJSON(w, http.StatusCreated, sys)
}

// GetSystem returns a single system by ID.
// GET /api/v1/system/systems/{id}
func (h *SystemHandler) GetSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sys, err := h.store.GetSystem(r.Context(), id)
	if err != nil {
		writeError(w, r, lookupError(err, "system"))
		return
	}
	writeJSON(w, http.StatusOK, sys)
}

// UpdateSystem modifies a system's name or description.
// PUT /api/v1/system/systems/{id}
func (h *SystemHandler) UpdateSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sys, err := h.store.GetSystem(r.Context(), id)
	if err != nil {
		writeError(w, r, lookupError(err, "system"))
		return
	}
	if err := readJSON(r, sys); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	sys.ID = id
	if err := h.store.UpdateSystem(r.Context(), sys); err != nil {
		writeError(w, r, apperr.Internal("failed to update system"))
		return
	}
	writeJSON(w, http.StatusOK, sys)
}

// DeleteSystem removes a system and, through foreign keys, its instances
// and services.
// DELETE /api/v1/system/systems/{id}
func (h *SystemHandler) DeleteSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteSystem(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "system"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

// instancePayload is the write shape for instances: auth_config arrives as
// plaintext JSON and is encrypted before storage.
type instancePayload struct {
	model.Instance
	AuthConfigPlain json.RawMessage `json:"auth_config,omitempty"`
}

// ListInstances returns the instances of a system.
// GET /api/v1/system/systems/{id}/instances
func (h *SystemHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	instances, err := h.store.ListInstances(r.Context(), systemID)
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list instances"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instances": instances})
}

// CreateInstance registers a deployed environment of a system.
// POST /api/v1/system/systems/{id}/instances
func (h *SystemHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload instancePayload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	inst := payload.Instance
	inst.SystemID = systemID
	if inst.BaseURL == "" {
		writeError(w, r, apperr.Validation("MISSING_BASE_URL", "Instance base_url is required."))
		return
	}
	if !validEnvironment(inst.Environment) {
		writeError(w, r, apperr.Validation("INVALID_ENVIRONMENT",
			"environment must be one of sandbox, dev, quality, preprod, production"))
		return
	}
	if appErr := h.sealAuthConfig(payload.AuthConfigPlain, inst.AuthType, &inst.AuthConfig); appErr != nil {
		writeError(w, r, appErr)
		return
	}
	if err := h.store.CreateInstance(r.Context(), &inst); err != nil {
		writeError(w, r, apperr.Internal("failed to create instance"))
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// UpdateInstance modifies an instance, re-encrypting credentials when the
// payload carries new ones.
// PUT /api/v1/system/instances/{id}
func (h *SystemHandler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.store.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, r, lookupError(err, "instance"))
		return
	}
	payload := instancePayload{Instance: *existing}
	if err := readJSON(r, &payload); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	inst := payload.Instance
	inst.ID = id
	inst.SystemID = existing.SystemID
	if !validEnvironment(inst.Environment) {
		writeError(w, r, apperr.Validation("INVALID_ENVIRONMENT",
			"environment must be one of sandbox, dev, quality, preprod, production"))
		return
	}
	if len(payload.AuthConfigPlain) > 0 {
		inst.AuthConfig = nil
		if appErr := h.sealAuthConfig(payload.AuthConfigPlain, inst.AuthType, &inst.AuthConfig); appErr != nil {
			writeError(w, r, appErr)
			return
		}
	} else {
		inst.AuthConfig = existing.AuthConfig
	}
	if err := h.store.UpdateInstance(r.Context(), &inst); err != nil {
		writeError(w, r, apperr.Internal("failed to update instance"))
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// DeleteInstance removes an instance.
// DELETE /api/v1/system/instances/{id}
func (h *SystemHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteInstance(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "instance"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// System services
// ---------------------------------------------------------------------------

type systemServicePayload struct {
	model.SystemService
	AuthConfigPlain json.RawMessage `json:"auth_config,omitempty"`
}

// ListSystemServices returns the OData service definitions of a system.
// GET /api/v1/system/systems/{id}/services
func (h *SystemHandler) ListSystemServices(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	services, err := h.store.ListSystemServices(r.Context(), systemID)
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list services"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": services})
}

// CreateSystemService attaches an OData service definition to a system.
// POST /api/v1/system/systems/{id}/services
func (h *SystemHandler) CreateSystemService(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload systemServicePayload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	svc := payload.SystemService
	svc.SystemID = systemID
	if svc.ServicePath == "" {
		writeError(w, r, apperr.Validation("MISSING_SERVICE_PATH", "service_path is required."))
		return
	}
	if svc.ODataVersion != "v2" && svc.ODataVersion != "v4" {
		writeError(w, r, apperr.Validation("INVALID_ODATA_VERSION", "odata_version must be v2 or v4."))
		return
	}
	if appErr := h.sealAuthConfig(payload.AuthConfigPlain, svc.AuthType, &svc.AuthConfig); appErr != nil {
		writeError(w, r, appErr)
		return
	}
	if err := h.store.CreateSystemService(r.Context(), &svc); err != nil {
		writeError(w, r, apperr.Internal("failed to create service"))
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// DeleteSystemService removes an OData service definition.
// DELETE /api/v1/system/services/{id}
func (h *SystemHandler) DeleteSystemService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteSystemService(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "service"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// Instance services
// ---------------------------------------------------------------------------

type instanceServicePayload struct {
	model.InstanceService
	AuthConfigPlain json.RawMessage `json:"auth_config,omitempty"`
}

// ListInstanceServices returns the routable bindings of an instance.
// GET /api/v1/system/instances/{id}/services
func (h *SystemHandler) ListInstanceServices(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	services, err := h.store.ListInstanceServices(r.Context(), instanceID)
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list instance services"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": services})
}

// CreateInstanceService binds a system service to an instance under a slug.
// POST /api/v1/system/instances/{id}/services
func (h *SystemHandler) CreateInstanceService(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload instanceServicePayload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	svc := payload.InstanceService
	svc.InstanceID = instanceID
	if svc.Slug == "" || svc.SystemServiceID == 0 {
		writeError(w, r, apperr.Validation("MISSING_FIELDS", "slug and system_service_id are required."))
		return
	}
	if appErr := h.sealAuthConfig(payload.AuthConfigPlain, svc.AuthType, &svc.AuthConfig); appErr != nil {
		writeError(w, r, appErr)
		return
	}
	if err := h.store.CreateInstanceService(r.Context(), &svc); err != nil {
		writeError(w, r, apperr.Internal("failed to create instance service"))
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// UpdateInstanceService modifies a binding: overrides, slug, active and
// hide-response-data flags.
// PUT /api/v1/system/instance-services/{id}
func (h *SystemHandler) UpdateInstanceService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := h.store.GetInstanceService(r.Context(), id)
	if err != nil {
		writeError(w, r, lookupError(err, "instance service"))
		return
	}
	payload := instanceServicePayload{InstanceService: *existing}
	if err := readJSON(r, &payload); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	svc := payload.InstanceService
	svc.ID = id
	svc.InstanceID = existing.InstanceID
	svc.SystemServiceID = existing.SystemServiceID
	if len(payload.AuthConfigPlain) > 0 {
		svc.AuthConfig = nil
		if appErr := h.sealAuthConfig(payload.AuthConfigPlain, svc.AuthType, &svc.AuthConfig); appErr != nil {
			writeError(w, r, appErr)
			return
		}
	} else {
		svc.AuthConfig = existing.AuthConfig
	}
	if err := h.store.UpdateInstanceService(r.Context(), &svc); err != nil {
		writeError(w, r, apperr.Internal("failed to update instance service"))
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// DeleteInstanceService removes a binding.
// DELETE /api/v1/system/instance-services/{id}
func (h *SystemHandler) DeleteInstanceService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteInstanceService(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "instance service"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

type createKeyRequest struct {
	Label              string     `json:"label"`
	Environment        string     `json:"environment"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	RateLimitPerDay    int        `json:"rate_limit_per_day"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

type createKeyResponse struct {
	// Key is the full secret; it is shown exactly once.
	Key    string        `json:"key"`
	Record *model.APIKey `json:"record"`
}

// ListAPIKeys returns all issued keys, masked.
// GET /api/v1/system/keys
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list api keys"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": list})
}

// CreateAPIKey issues a new key. The response carries the raw secret once;
// only its hash and masked form are stored.
// POST /api/v1/system/keys
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	if req.Environment != keys.EnvLive && req.Environment != keys.EnvTest {
		writeError(w, r, apperr.Validation("INVALID_ENVIRONMENT", "environment must be live or test."))
		return
	}

	raw, parsed, hash, err := keys.Generate(req.Environment)
	if err != nil {
		writeError(w, r, apperr.Internal("key generation failed"))
		return
	}
	rec := &model.APIKey{
		KeyHash:            hash,
		KeyMasked:          keys.Mask(raw),
		ShortID:            parsed.ShortID,
		Label:              req.Label,
		Environment:        parsed.Environment,
		RateLimitPerMinute: req.RateLimitPerMinute,
		RateLimitPerDay:    req.RateLimitPerDay,
		ExpiresAt:          req.ExpiresAt,
	}
	if err := h.store.CreateAPIKey(r.Context(), rec); err != nil {
		writeError(w, r, apperr.Internal("failed to store api key"))
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: raw, Record: rec})
}

// RevokeAPIKey irreversibly disables a key.
// DELETE /api/v1/system/keys/{id}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "api key"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// Access grants
// ---------------------------------------------------------------------------

// ListGrants returns a key's access grants.
// GET /api/v1/system/keys/{id}/grants
func (h *SystemHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	keyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grants, err := h.store.GetAccessGrants(r.Context(), keyID)
	if err != nil {
		writeError(w, r, apperr.Internal("failed to list grants"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

// SetGrant creates or replaces the grant binding a key to an instance
// service, with its per-entity operation sets.
// PUT /api/v1/system/keys/{id}/grants
func (h *SystemHandler) SetGrant(w http.ResponseWriter, r *http.Request) {
	keyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var grant model.AccessGrant
	if err := readJSON(r, &grant); err != nil {
		writeError(w, r, apperr.Validation("INVALID_BODY", "Invalid request body: "+err.Error()))
		return
	}
	grant.APIKeyID = keyID
	if grant.InstanceServiceID == 0 {
		writeError(w, r, apperr.Validation("MISSING_FIELDS", "instance_service_id is required."))
		return
	}
	if err := h.store.SetAccessGrant(r.Context(), &grant); err != nil {
		writeError(w, r, apperr.Internal("failed to store grant"))
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// DeleteGrant removes a grant.
// DELETE /api/v1/system/grants/{id}
func (h *SystemHandler) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteAccessGrant(r.Context(), id); err != nil {
		writeError(w, r, lookupError(err, "grant"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sealAuthConfig encrypts a plaintext credential payload in place. A config
// without a type, or a type without a config, is rejected so a half-set
// override can never resolve.
func (h *SystemHandler) sealAuthConfig(plain json.RawMessage, authType *string, dst **string) *apperr.Error {
	if len(plain) == 0 {
		if authType != nil && *authType != model.AuthTypeNone && *dst == nil {
			return apperr.Validation("MISSING_AUTH_CONFIG", "auth_type set without auth_config.")
		}
		return nil
	}
	if authType == nil || *authType == model.AuthTypeNone {
		return apperr.Validation("MISSING_AUTH_TYPE", "auth_config set without auth_type.")
	}
	envelope, err := h.enc.Encrypt(string(plain))
	if err != nil {
		return apperr.Internal("credential encryption failed")
	}
	*dst = &envelope
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, apperr.Validation("INVALID_ID", "Path parameter "+name+" must be an integer.")
	}
	return id, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, config.ErrNotFound) {
		return &apperr.Error{
			Status:   http.StatusNotFound,
			Code:     "NOT_FOUND",
			Category: apperr.CategoryValidation,
			Message:  "No such " + what + ".",
		}
	}
	return apperr.Internal("failed to access " + what)
}

func validEnvironment(env string) bool {
	switch env {
	case model.EnvSandbox, model.EnvDev, model.EnvQuality, model.EnvPreprod, model.EnvProduction:
		return true
	}
	return false
}
