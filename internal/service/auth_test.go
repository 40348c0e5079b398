package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/keys"
	"github.com/michal-majer/s4kit/internal/model"
)

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertKey(t *testing.T, store *config.Store, mutate func(*model.APIKey)) (string, *model.APIKey) {
	t.Helper()
	raw, parsed, hash, err := keys.Generate(keys.EnvTest)
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	rec := &model.APIKey{
		KeyHash:            hash,
		KeyMasked:          keys.Mask(raw),
		ShortID:            parsed.ShortID,
		Label:              "unit",
		Environment:        parsed.Environment,
		RateLimitPerMinute: 60,
	}
	if mutate != nil {
		mutate(rec)
	}
	if err := store.CreateAPIKey(context.Background(), rec); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return raw, rec
}

func TestValidateAPIKey(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")
	ctx := context.Background()

	raw, rec := insertKey(t, store, nil)

	key, err := svc.ValidateAPIKey(ctx, raw)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if key.ID != rec.ID || key.ShortID != rec.ShortID {
		t.Errorf("got key %d/%s, want %d/%s", key.ID, key.ShortID, rec.ID, rec.ShortID)
	}
}

func TestValidateAPIKeyMalformed(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")

	inputs := []string{
		"",
		"not-a-key",
		"s4k_live_short",
		"s4k_staging_" + "A1b2C3d4" + "e5F6g7H8i9J0k1L2m3N4o5P6q7R8s9T0u1V2w3X4",
	}
	for _, in := range inputs {
		if _, err := svc.ValidateAPIKey(context.Background(), in); !errors.Is(err, keys.ErrMalformed) {
			t.Errorf("ValidateAPIKey(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestValidateAPIKeyUnknown(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")

	raw, _, _, err := keys.Generate(keys.EnvLive)
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	if _, err := svc.ValidateAPIKey(context.Background(), raw); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateAPIKeyRevoked(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")
	ctx := context.Background()

	raw, rec := insertKey(t, store, nil)
	if err := store.RevokeAPIKey(ctx, rec.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := svc.ValidateAPIKey(ctx, raw); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("err = %v, want ErrKeyRevoked", err)
	}
}

func TestValidateAPIKeyExpired(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")

	past := time.Now().Add(-time.Hour)
	raw, _ := insertKey(t, store, func(k *model.APIKey) {
		k.ExpiresAt = &past
	})
	if _, err := svc.ValidateAPIKey(context.Background(), raw); !errors.Is(err, ErrKeyExpired) {
		t.Errorf("err = %v, want ErrKeyExpired", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")
	ctx := context.Background()

	token, err := svc.IssueJWT(ctx, 7, "ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	principal, err := svc.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.AdminID != 7 || principal.Email != "ops@example.com" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestJWTRejected(t *testing.T) {
	store := newTestStore(t)
	svc := NewAuthService(store, "unit-secret")
	other := NewAuthService(store, "different-secret")
	ctx := context.Background()

	wrongSecret, err := other.IssueJWT(ctx, 1, "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	expired, err := svc.IssueJWT(ctx, 1, "a@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	for name, token := range map[string]string{
		"wrong secret": wrongSecret,
		"expired":      expired,
		"garbage":      "not.a.token",
	} {
		if _, err := svc.ValidateJWT(ctx, token); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: err = %v, want ErrInvalidCredentials", name, err)
		}
	}
}

func TestOperationForMethod(t *testing.T) {
	tests := []struct {
		method string
		want   model.Operation
		ok     bool
	}{
		{"GET", model.OpRead, true},
		{"HEAD", model.OpRead, true},
		{"POST", model.OpCreate, true},
		{"PUT", model.OpUpdate, true},
		{"PATCH", model.OpUpdate, true},
		{"DELETE", model.OpDelete, true},
		{"OPTIONS", "", false},
		{"TRACE", "", false},
	}
	for _, tt := range tests {
		got, ok := OperationForMethod(tt.method)
		if got != tt.want || ok != tt.ok {
			t.Errorf("OperationForMethod(%s) = (%q, %v), want (%q, %v)", tt.method, got, ok, tt.want, tt.ok)
		}
	}
}

// insertInstanceService seeds the system/instance/service chain a grant
// needs to reference and returns the instance service id.
func insertInstanceService(t *testing.T, store *config.Store) int64 {
	t.Helper()
	ctx := context.Background()

	sys := &model.System{Name: "Unit System"}
	if err := store.CreateSystem(ctx, sys); err != nil {
		t.Fatalf("CreateSystem: %v", err)
	}
	inst := &model.Instance{
		SystemID:    sys.ID,
		Name:        "dev",
		Environment: "dev",
		BaseURL:     "https://sap.example.com",
		IsActive:    true,
	}
	if err := store.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	ss := &model.SystemService{
		SystemID:     sys.ID,
		Name:         "Product Service",
		ServicePath:  "/sap/opu/odata/sap/ZPRODUCT_SRV",
		ODataVersion: "v2",
		Entities:     []string{"Products"},
	}
	if err := store.CreateSystemService(ctx, ss); err != nil {
		t.Fatalf("CreateSystemService: %v", err)
	}
	is := &model.InstanceService{
		InstanceID:      inst.ID,
		SystemServiceID: ss.ID,
		Slug:            "products",
		IsActive:        true,
	}
	if err := store.CreateInstanceService(ctx, is); err != nil {
		t.Fatalf("CreateInstanceService: %v", err)
	}
	return is.ID
}

func TestPermissionCheck(t *testing.T) {
	store := newTestStore(t)
	perms := NewPermissionService(store)
	ctx := context.Background()

	serviceID := insertInstanceService(t, store)
	_, rec := insertKey(t, store, nil)
	grant := &model.AccessGrant{
		APIKeyID:          rec.ID,
		InstanceServiceID: serviceID,
		Permissions: map[string][]model.Operation{
			"Products": {model.OpRead, model.OpCreate},
		},
	}
	if err := store.SetAccessGrant(ctx, grant); err != nil {
		t.Fatalf("SetAccessGrant: %v", err)
	}

	tests := []struct {
		name      string
		serviceID int64
		entity    string
		op        model.Operation
		allowed   bool
	}{
		{"granted read", serviceID, "Products", model.OpRead, true},
		{"granted create", serviceID, "Products", model.OpCreate, true},
		{"operation not granted", serviceID, "Products", model.OpDelete, false},
		{"entity not granted", serviceID, "Suppliers", model.OpRead, false},
		{"no grant for service", serviceID + 1, "Products", model.OpRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := perms.Check(ctx, rec.ID, tt.serviceID, tt.entity, tt.op)
			if tt.allowed {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Code != "PERMISSION_DENIED" {
				t.Fatalf("err = %v, want PERMISSION_DENIED", err)
			}
		})
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := HashPassword("hunter22")
	b := HashPassword("hunter22")
	if a != b {
		t.Error("same input hashed to different values")
	}
	if a == HashPassword("hunter23") {
		t.Error("different inputs hashed to same value")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
