package telemetry

import (
	"context"
	"fmt"
	"testing"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func TestResolveInstanceID_GeneratesAndPersists(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	id := resolveInstanceID(ctx, store)
	if id == "" {
		t.Fatal("expected non-empty instance ID")
	}

	// Should be persisted
	stored, err := store.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("expected instance_id in store: %v", err)
	}
	if stored != id {
		t.Errorf("stored ID %q != returned ID %q", stored, id)
	}

	// Second call should return same ID
	id2 := resolveInstanceID(ctx, store)
	if id2 != id {
		t.Errorf("expected same ID on second call, got %q vs %q", id2, id)
	}
}

func TestResolveInstanceID_NilStore(t *testing.T) {
	id := resolveInstanceID(context.Background(), nil)
	if id == "" {
		t.Fatal("expected non-empty instance ID even with nil store")
	}
}

func TestNew_DisabledViaEnv(t *testing.T) {
	t.Setenv("S4KIT_TELEMETRY", "0")
	tracker := New(context.Background(), newMockStore(), func() Properties { return Properties{} })
	if tracker != nil {
		t.Fatal("expected nil tracker when disabled via env")
	}
}

func TestNew_DisabledViaSettings(t *testing.T) {
	store := newMockStore()
	store.data["telemetry.enabled"] = "false"
	tracker := New(context.Background(), store, func() Properties { return Properties{} })
	if tracker != nil {
		t.Fatal("expected nil tracker when disabled via settings")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	tracker.Start()
	tracker.Shutdown()
}
