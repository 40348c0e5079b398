package handler

import (
	"net/http/httptest"
	"testing"
)

func TestEntityName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Products", "Products"},
		{"Products('100')", "Products"},
		{"Products(ProductID='1',Plant='0001')", "Products"},
		{"Products('100')/ToSupplier", "Products"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := entityName(tt.path); got != tt.want {
				t.Errorf("entityName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{"valid top and skip", "/x?$top=10&$skip=5", false},
		{"non-numeric top", "/x?$top=abc", true},
		{"non-numeric skip", "/x?$skip=1.5", true},
		{"no params", "/x", false},
		{"filter passes through", "/x?$filter=Name%20eq%20'A'", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.rawURL, nil)
			_, err := validateQuery(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateQuery(%q) error = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
			}
		})
	}
}

func TestValidateQueryParamHandling(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?$top=10&$bogus=1&sap-client=100", nil)
	q, err := validateQuery(r)
	if err != nil {
		t.Fatalf("validateQuery: %v", err)
	}
	if q.Get("$top") != "10" {
		t.Errorf("$top = %q, want 10", q.Get("$top"))
	}
	// Unknown $-parameters are dropped; custom parameters like sap-client
	// pass through.
	if q.Has("$bogus") {
		t.Error("unknown $-parameter should have been dropped")
	}
	if q.Get("sap-client") != "100" {
		t.Errorf("sap-client = %q, want 100", q.Get("sap-client"))
	}
}

func TestStripPayload(t *testing.T) {
	items := []interface{}{
		map[string]interface{}{"__metadata": map[string]interface{}{"uri": "x"}, "Name": "A"},
		map[string]interface{}{"Name": "B"},
	}
	got, ok := stripPayload(items).([]interface{})
	if !ok {
		t.Fatalf("stripPayload returned %T, want []interface{}", got)
	}
	first := got[0].(map[string]interface{})
	if _, found := first["__metadata"]; found {
		t.Error("__metadata not stripped from array items")
	}
	if first["Name"] != "A" {
		t.Errorf("Name = %v, want A", first["Name"])
	}
}
