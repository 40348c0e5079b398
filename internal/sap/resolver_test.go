package sap

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/model"
)

func newTestResolver(t *testing.T) (*Resolver, *crypto.Encryptor) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	return NewResolver(enc), enc
}

func encryptJSON(t *testing.T, enc *crypto.Encryptor, v interface{}) *string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	envelope, err := enc.Encrypt(string(raw))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return &envelope
}

func strptr(s string) *string { return &s }

func TestResolveInstanceLevelBasic(t *testing.T) {
	r, enc := newTestResolver(t)

	inst := &model.Instance{
		AuthType:   strptr(model.AuthTypeBasic),
		AuthConfig: encryptJSON(t, enc, BasicAuth{Username: "prod-user", Password: "pw"}),
	}
	auth, err := r.Resolve(inst, &model.SystemService{}, &model.InstanceService{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	basic, ok := auth.(BasicAuth)
	if !ok {
		t.Fatalf("resolved type: got %T", auth)
	}
	if basic.Username != "prod-user" {
		t.Errorf("username: got %q", basic.Username)
	}
}

func TestResolveOverridePrecedence(t *testing.T) {
	r, enc := newTestResolver(t)

	inst := &model.Instance{
		AuthType:   strptr(model.AuthTypeBasic),
		AuthConfig: encryptJSON(t, enc, BasicAuth{Username: "instance", Password: "pw"}),
	}
	ss := &model.SystemService{
		AuthType:   strptr(model.AuthTypeBasic),
		AuthConfig: encryptJSON(t, enc, BasicAuth{Username: "system-service", Password: "pw"}),
	}
	is := &model.InstanceService{
		AuthType:   strptr(model.AuthTypeBasic),
		AuthConfig: encryptJSON(t, enc, BasicAuth{Username: "instance-service", Password: "pw"}),
	}

	// Narrowest layer wins.
	auth, err := r.Resolve(inst, ss, is)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if auth.(BasicAuth).Username != "instance-service" {
		t.Errorf("instance-service override should win, got %q", auth.(BasicAuth).Username)
	}

	// Without the instance-service override, the system-service one wins.
	auth, err = r.Resolve(inst, ss, &model.InstanceService{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if auth.(BasicAuth).Username != "system-service" {
		t.Errorf("system-service override should win, got %q", auth.(BasicAuth).Username)
	}
}

func TestResolveTypeAndConfigResolvedIndependently(t *testing.T) {
	r, enc := newTestResolver(t)

	// Type set only at the instance, credentials overridden at the
	// instance-service: the narrower credentials are decoded as the
	// instance's auth type.
	inst := &model.Instance{
		AuthType:   strptr(model.AuthTypeAPIKey),
		AuthConfig: encryptJSON(t, enc, APIKeyAuth{Header: "X-Old", Key: "old"}),
	}
	is := &model.InstanceService{
		AuthConfig: encryptJSON(t, enc, APIKeyAuth{Header: "X-New", Key: "new"}),
	}
	auth, err := r.Resolve(inst, &model.SystemService{}, is)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	ak := auth.(APIKeyAuth)
	if ak.Header != "X-New" || ak.Key != "new" {
		t.Errorf("got %+v, want the overridden credentials", ak)
	}
}

func TestResolveNoneWhenUnconfigured(t *testing.T) {
	r, _ := newTestResolver(t)
	auth, err := r.Resolve(&model.Instance{}, &model.SystemService{}, &model.InstanceService{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := auth.(NoneAuth); !ok {
		t.Errorf("resolved type: got %T, want NoneAuth", auth)
	}
}

func TestResolveAPIKeyDefaultHeader(t *testing.T) {
	r, enc := newTestResolver(t)
	inst := &model.Instance{
		AuthType:   strptr(model.AuthTypeAPIKey),
		AuthConfig: encryptJSON(t, enc, map[string]string{"key": "k-1"}),
	}
	auth, err := r.Resolve(inst, &model.SystemService{}, &model.InstanceService{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := auth.(APIKeyAuth).Header; got != DefaultAPIKeyHeader {
		t.Errorf("header: got %q, want %q", got, DefaultAPIKeyHeader)
	}
}

func TestResolveTypeWithoutCredentials(t *testing.T) {
	r, _ := newTestResolver(t)
	inst := &model.Instance{AuthType: strptr(model.AuthTypeOAuth2)}
	_, err := r.Resolve(inst, &model.SystemService{}, &model.InstanceService{})
	if err == nil {
		t.Fatal("expected an error for a type with no stored credentials")
	}
}

func TestResolveLegacyEnvelopeRejected(t *testing.T) {
	r, _ := newTestResolver(t)
	legacy := `{"nonce":"00112233445566778899aabb","ciphertext":"deadbeef"}`
	inst := &model.Instance{
		AuthType:   strptr(model.AuthTypeBasic),
		AuthConfig: &legacy,
	}
	_, err := r.Resolve(inst, &model.SystemService{}, &model.InstanceService{})
	if err == nil {
		t.Fatal("expected an error for a legacy envelope")
	}
	if !strings.Contains(err.Error(), "re-encryption") {
		t.Errorf("error should explain re-encryption is required, got %v", err)
	}
}
