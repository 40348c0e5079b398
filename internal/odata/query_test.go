package odata

import (
	"net/url"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(QueryOptions{
		Select:  "Name,City",
		Filter:  "City eq 'Berlin'",
		OrderBy: "Name desc",
		Expand:  "to_Address",
		Search:  "acme",
		Top:     intPtr(5),
		Skip:    intPtr(10),
		Count:   true,
	})

	want := map[string]string{
		"$select":  "Name,City",
		"$filter":  "City eq 'Berlin'",
		"$orderby": "Name desc",
		"$expand":  "to_Address",
		"$search":  "acme",
		"$top":     "5",
		"$skip":    "10",
		"$count":   "true",
	}
	for key, val := range want {
		if got := q.Get(key); got != val {
			t.Errorf("%s: got %q, want %q", key, got, val)
		}
	}
}

func TestBuildQueryOmitsUnsetOptions(t *testing.T) {
	q := BuildQuery(QueryOptions{Top: intPtr(0)})

	if len(q) != 1 {
		t.Errorf("expected exactly one parameter, got %v", q)
	}
	if got := q.Get("$top"); got != "0" {
		t.Errorf("$top: got %q, want 0 (explicit zero is not an omission)", got)
	}
}

func TestMergeQuery(t *testing.T) {
	raw := url.Values{
		"$top":     {"100"},
		"$filter":  {"Status eq 'open'"},
		"sap-client": {"100"},
		"$bogus":   {"x"},
	}
	merged := MergeQuery(raw, QueryOptions{Top: intPtr(5)})

	if got := merged.Get("$top"); got != "5" {
		t.Errorf("$top: structured option should win, got %q", got)
	}
	if got := merged.Get("$filter"); got != "Status eq 'open'" {
		t.Errorf("$filter: caller value should pass through, got %q", got)
	}
	if got := merged.Get("sap-client"); got != "100" {
		t.Errorf("custom parameter should pass through, got %q", got)
	}
	if merged.Has("$bogus") {
		t.Error("unknown $-parameter should be dropped")
	}
}

func TestFormatKey(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{1000001, "1000001"},
		{int64(42), "42"},
		{float64(1000001), "1000001"},
		{"1000001", "'1000001'"},
		{"3fa85f64-5717-4562-b3fc-2c963f66afa6", "guid'3fa85f64-5717-4562-b3fc-2c963f66afa6'"},
		{"a=1,b=2", "a=1,b=2"},
		{"ABC", "'ABC'"},
		{"O'Brien", "'O''Brien'"},
	}

	for _, tc := range cases {
		if got := FormatKey(tc.in); got != tc.want {
			t.Errorf("FormatKey(%v): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildPath(t *testing.T) {
	if got := BuildPath("A_BusinessPartner", nil); got != "A_BusinessPartner" {
		t.Errorf("no key: got %q", got)
	}
	if got := BuildPath("A_BusinessPartner", "1000001"); got != "A_BusinessPartner(1000001)" {
		t.Errorf("numeric key: got %q", got)
	}
	if got := BuildPath("/A_Product/", "HT-100"); got != "A_Product('HT-100')" {
		t.Errorf("string key: got %q", got)
	}
}

func TestJoinURL(t *testing.T) {
	got := JoinURL("https://sap.example.com/", "/sap/opu/odata/sap/API_BUSINESS_PARTNER/", "A_BusinessPartner('1')")
	want := "https://sap.example.com/sap/opu/odata/sap/API_BUSINESS_PARTNER/A_BusinessPartner('1')"
	if got != want {
		t.Errorf("JoinURL: got %q, want %q", got, want)
	}

	got = JoinURL("https://sap.example.com", "sap/opu/odata/sap/API_PRODUCT", "")
	want = "https://sap.example.com/sap/opu/odata/sap/API_PRODUCT"
	if got != want {
		t.Errorf("JoinURL empty entity: got %q, want %q", got, want)
	}
}
