package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/model"
	"github.com/michal-majer/s4kit/internal/odata"
	"github.com/michal-majer/s4kit/internal/ratelimit"
	"github.com/michal-majer/s4kit/internal/sap"
	"github.com/michal-majer/s4kit/internal/server/middleware"
	"github.com/michal-majer/s4kit/internal/service"
)

// maxRequestBytes bounds inbound write payloads.
const maxRequestBytes = 8 << 20

// Proxy mediates between API-key callers and SAP OData backends. Each
// request runs the pipeline in order: permission, rate limit, auth
// resolution, query merge, forward, response translation. Authentication
// happens in middleware before the handler; the audit middleware outside
// that guarantees one log record either way.
type Proxy struct {
	store    *config.Store
	perms    *service.PermissionService
	limiter  ratelimit.Limiter
	resolver *sap.Resolver
	forward  *sap.Forwarder
	logger   *slog.Logger
}

func NewProxy(store *config.Store, perms *service.PermissionService, limiter ratelimit.Limiter,
	resolver *sap.Resolver, forward *sap.Forwarder, logger *slog.Logger) *Proxy {
	return &Proxy{
		store:    store,
		perms:    perms,
		limiter:  limiter,
		resolver: resolver,
		forward:  forward,
		logger:   logger,
	}
}

// Handle serves /odata/{service}/* for all methods.
func (h *Proxy) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	audit := middleware.GetAudit(ctx)
	key := middleware.GetAPIKey(ctx)

	slug := chi.URLParam(r, "service")
	entityPath := strings.Trim(chi.URLParam(r, "*"), "/")
	entity := entityName(entityPath)
	if entity == "" {
		writeError(w, r, apperr.Validation("MISSING_ENTITY", "No entity specified in the request path."))
		return
	}

	op, ok := service.OperationForMethod(r.Method)
	if !ok {
		writeError(w, r, apperr.Validation("METHOD_NOT_ALLOWED", "HTTP method "+r.Method+" is not supported."))
		return
	}
	if audit != nil {
		audit.Entity = entity
		audit.Operation = string(op)
	}

	is, err := h.store.GetInstanceServiceBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, r, serviceNotFound(slug))
			return
		}
		h.logger.Error("instance service lookup failed", "slug", slug, "error", err)
		writeError(w, r, apperr.Internal("configuration lookup failed"))
		return
	}
	if !is.IsActive {
		writeError(w, r, serviceNotFound(slug))
		return
	}
	if audit != nil {
		audit.InstanceServiceID = is.ID
	}

	// Permission before rate limit: a denied caller never consumes quota,
	// and neither stage decrypts credentials.
	if err := h.perms.Check(ctx, key.ID, is.ID, entity, op); err != nil {
		writeError(w, r, err)
		return
	}

	decision, err := h.limiter.Allow(ctx, key.ShortID, key.RateLimitPerMinute, key.RateLimitPerDay)
	if err != nil {
		h.logger.Error("rate limit check failed", "error", err)
		writeError(w, r, apperr.Internal("rate limit check failed"))
		return
	}
	if !decision.Allowed {
		writeError(w, r, apperr.RateLimited("Rate limit exceeded.", int(decision.RetryAfter.Seconds())))
		return
	}

	inst, err := h.store.GetInstance(ctx, is.InstanceID)
	if err != nil {
		h.logger.Error("instance lookup failed", "instance_id", is.InstanceID, "error", err)
		writeError(w, r, apperr.Internal("configuration lookup failed"))
		return
	}
	ss, err := h.store.GetSystemService(ctx, is.SystemServiceID)
	if err != nil {
		h.logger.Error("system service lookup failed", "system_service_id", is.SystemServiceID, "error", err)
		writeError(w, r, apperr.Internal("configuration lookup failed"))
		return
	}
	if !inst.IsActive {
		writeError(w, r, serviceNotFound(slug))
		return
	}

	if entities := is.EffectiveEntities(ss); len(entities) > 0 && !slices.Contains(entities, entity) {
		writeError(w, r, &apperr.Error{
			Status:   http.StatusNotFound,
			Code:     "ENTITY_NOT_FOUND",
			Category: apperr.CategoryValidation,
			Message:  "Entity " + entity + " is not exposed by this service.",
		})
		return
	}

	query, err := validateQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, r, apperr.Validation("UNREADABLE_BODY", "Request body could not be read."))
			return
		}
	}
	if audit != nil {
		audit.RequestBytes = len(body)
	}

	// Credentials are decrypted here, after every local check has passed.
	auth, err := h.resolver.Resolve(inst, ss, is)
	if err != nil {
		h.logger.Error("auth resolution failed", "slug", slug, "error", err)
		writeError(w, r, err)
		return
	}

	result, err := h.forward.Do(ctx, &sap.Request{
		Method:      r.Method,
		BaseURL:     inst.BaseURL,
		ServicePath: is.EffectiveServicePath(ss),
		EntityPath:  entityPath,
		Query:       query,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Auth:        auth,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if audit != nil {
		audit.SapMs = result.Duration.Milliseconds()
		audit.ResponseBytes = result.ResponseBytes
	}

	if result.StatusCode >= 400 {
		info := odata.ParseError(result.Body)
		upstream := apperr.Upstream(result.StatusCode, info.Code, info.Message)
		if info.Details != nil {
			upstream.Context = map[string]interface{}{"details": info.Details}
		}
		writeError(w, r, upstream)
		return
	}

	parsed := odata.ParseResponse(result.Body)
	count := parsed.RecordCount()
	if audit != nil {
		audit.RecordCount = &count
	}

	if result.StatusCode == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	meta := &model.ProxyMeta{
		RequestID:   middleware.GetRequestID(ctx),
		RecordCount: count,
		TookMs:      float64(time.Since(start).Microseconds()) / 1000.0,
		SapTookMs:   float64(result.Duration.Microseconds()) / 1000.0,
	}
	resp := model.ProxyResponse{
		Count:    parsed.Count,
		NextLink: parsed.NextLink,
		Meta:     meta,
	}
	if is.HideResponseData {
		meta.DataHidden = true
	} else {
		resp.Data = stripPayload(parsed.Data)
	}
	writeJSON(w, result.StatusCode, resp)
}

// entityName extracts the entity set from the request path: the first
// segment, without any (key) suffix.
func entityName(entityPath string) string {
	seg, _, _ := strings.Cut(entityPath, "/")
	seg, _, _ = strings.Cut(seg, "(")
	return seg
}

// validateQuery rejects structurally invalid OData parameters before any
// downstream work. Unknown $-parameters are dropped; custom parameters like
// sap-client pass through.
func validateQuery(r *http.Request) (url.Values, error) {
	raw := r.URL.Query()
	for _, param := range []string{"$top", "$skip"} {
		if v := raw.Get(param); v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				return nil, apperr.Validation("INVALID_QUERY",
					param+" must be an integer, got "+strconv.Quote(v))
			}
		}
	}
	return odata.MergeQuery(raw, odata.QueryOptions{}), nil
}

// stripPayload removes protocol metadata from every returned entity.
func stripPayload(data interface{}) interface{} {
	switch d := data.(type) {
	case map[string]interface{}:
		return odata.StripMetadata(d)
	case []interface{}:
		for i, item := range d {
			if m, ok := item.(map[string]interface{}); ok {
				d[i] = odata.StripMetadata(m)
			}
		}
		return d
	default:
		return data
	}
}

func serviceNotFound(slug string) *apperr.Error {
	return &apperr.Error{
		Status:   http.StatusNotFound,
		Code:     "SERVICE_NOT_FOUND",
		Category: apperr.CategoryValidation,
		Message:  "No active service is configured under " + strconv.Quote(slug) + ".",
	}
}
