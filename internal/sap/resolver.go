// Package sap implements the backend-facing half of the proxy: resolving the
// effective authentication for a request, acquiring OAuth2 bearer tokens,
// and forwarding HTTP calls to the SAP system.
package sap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/model"
)

// DefaultAPIKeyHeader is used when an api_key descriptor does not name a header.
const DefaultAPIKeyHeader = "X-API-Key"

// ResolvedAuth is the effective authentication for one outbound request,
// computed fresh per request and never persisted. It is a closed union:
// exactly one of the concrete types in this package implements it.
type ResolvedAuth interface {
	// AuthType returns the descriptor type tag (model.AuthType* constants).
	AuthType() string
}

// NoneAuth adds no authentication header.
type NoneAuth struct{}

// BasicAuth carries decrypted HTTP Basic credentials.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// APIKeyAuth injects a decrypted static key under a configurable header.
type APIKeyAuth struct {
	Header string `json:"header"`
	Key    string `json:"key"`
}

// OAuth2Auth carries the decrypted client-credentials configuration; the
// bearer token itself comes from the TokenCache.
type OAuth2Auth struct {
	TokenURL     string `json:"token_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// CustomAuth injects a decrypted header name/value pair verbatim.
type CustomAuth struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

func (NoneAuth) AuthType() string   { return model.AuthTypeNone }
func (BasicAuth) AuthType() string  { return model.AuthTypeBasic }
func (APIKeyAuth) AuthType() string { return model.AuthTypeAPIKey }
func (OAuth2Auth) AuthType() string { return model.AuthTypeOAuth2 }
func (CustomAuth) AuthType() string { return model.AuthTypeCustom }

// Resolver computes the effective authentication descriptor for a request
// by walking the override hierarchy and decrypting the chosen credential
// envelope at the point of use.
type Resolver struct {
	enc *crypto.Encryptor
}

// NewResolver creates a Resolver around the credential encryptor.
func NewResolver(enc *crypto.Encryptor) *Resolver {
	return &Resolver{enc: enc}
}

// Resolve walks instanceService > systemService > instance per field: the
// narrowest layer with a non-nil auth type wins the type, and independently
// the narrowest layer with a non-nil config wins the credentials. Exactly
// one ResolvedAuth is produced per request.
func (r *Resolver) Resolve(inst *model.Instance, ss *model.SystemService, is *model.InstanceService) (ResolvedAuth, error) {
	authType := firstSet(is.AuthType, ss.AuthType, inst.AuthType)
	if authType == "" || authType == model.AuthTypeNone {
		return NoneAuth{}, nil
	}

	envelope := firstSet(is.AuthConfig, ss.AuthConfig, inst.AuthConfig)
	if envelope == "" {
		return nil, apperr.Internal(fmt.Sprintf("auth type %q configured without credentials", authType))
	}

	plaintext, err := r.enc.Decrypt(envelope)
	if err != nil {
		if errors.Is(err, crypto.ErrLegacyEnvelope) {
			return nil, apperr.Internal("stored credentials use a retired envelope format: re-encryption required")
		}
		return nil, apperr.Internal("credential decryption failed")
	}

	switch authType {
	case model.AuthTypeBasic:
		var auth BasicAuth
		if err := json.Unmarshal([]byte(plaintext), &auth); err != nil {
			return nil, apperr.Internal("malformed basic auth credentials")
		}
		return auth, nil

	case model.AuthTypeAPIKey:
		var auth APIKeyAuth
		if err := json.Unmarshal([]byte(plaintext), &auth); err != nil {
			return nil, apperr.Internal("malformed api key credentials")
		}
		if auth.Header == "" {
			auth.Header = DefaultAPIKeyHeader
		}
		return auth, nil

	case model.AuthTypeOAuth2:
		var auth OAuth2Auth
		if err := json.Unmarshal([]byte(plaintext), &auth); err != nil {
			return nil, apperr.Internal("malformed oauth2 configuration")
		}
		if auth.TokenURL == "" || auth.ClientID == "" {
			return nil, apperr.Internal("incomplete oauth2 configuration")
		}
		return auth, nil

	case model.AuthTypeCustom:
		var auth CustomAuth
		if err := json.Unmarshal([]byte(plaintext), &auth); err != nil || auth.Header == "" {
			return nil, apperr.Internal("malformed custom auth header")
		}
		return auth, nil

	default:
		return nil, apperr.Internal(fmt.Sprintf("unknown auth type %q", authType))
	}
}

// firstSet returns the first non-nil, non-empty value in override order.
// Only nil means "unset"; an empty string stored deliberately still wins.
func firstSet(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}
