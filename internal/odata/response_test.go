package odata

import (
	"reflect"
	"testing"
)

func TestParseResponseV4Collection(t *testing.T) {
	body := []byte(`{"value":[{"ID":1},{"ID":2}],"@odata.count":2,"@odata.nextLink":"A?$skip=2"}`)
	res := ParseResponse(body)

	data, ok := res.Data.([]interface{})
	if !ok || len(data) != 2 {
		t.Fatalf("data: got %#v, want 2-element slice", res.Data)
	}
	if res.Count != float64(2) {
		t.Errorf("count: got %v, want 2", res.Count)
	}
	if res.NextLink != "A?$skip=2" {
		t.Errorf("next link: got %q", res.NextLink)
	}
	if res.RecordCount() != 2 {
		t.Errorf("record count: got %d, want 2", res.RecordCount())
	}
}

func TestParseResponseV2Collection(t *testing.T) {
	body := []byte(`{"d":{"results":[{"ID":1},{"ID":2}],"__count":"2","__next":"A?$skiptoken=2"}}`)
	res := ParseResponse(body)

	data, ok := res.Data.([]interface{})
	if !ok || len(data) != 2 {
		t.Fatalf("data: got %#v, want 2-element slice", res.Data)
	}
	if res.Count != "2" {
		t.Errorf("count: got %v, want \"2\" (v2 reports counts as strings)", res.Count)
	}
	if res.NextLink != "A?$skiptoken=2" {
		t.Errorf("next link: got %q", res.NextLink)
	}
}

func TestParseResponseV2SingleEntity(t *testing.T) {
	body := []byte(`{"d":{"Name":"x"}}`)
	res := ParseResponse(body)

	data, ok := res.Data.(map[string]interface{})
	if !ok || data["Name"] != "x" {
		t.Fatalf("data: got %#v, want single entity", res.Data)
	}
	if res.RecordCount() != 1 {
		t.Errorf("record count: got %d, want 1", res.RecordCount())
	}
}

func TestParseResponsePassthrough(t *testing.T) {
	res := ParseResponse([]byte(`{"status":"ok"}`))
	data, ok := res.Data.(map[string]interface{})
	if !ok || data["status"] != "ok" {
		t.Fatalf("unrecognized shape should pass through, got %#v", res.Data)
	}

	if res := ParseResponse(nil); res.Data != nil || res.RecordCount() != 0 {
		t.Errorf("empty body: got %#v", res)
	}

	// Non-JSON bodies pass through as strings.
	if res := ParseResponse([]byte("204 no content")); res.Data != "204 no content" {
		t.Errorf("non-JSON body: got %#v", res.Data)
	}
}

func TestParseError(t *testing.T) {
	cases := []struct {
		name string
		body string
		want ErrorInfo
	}{
		{
			"v4 shape",
			`{"error":{"code":"C1","message":"m"}}`,
			ErrorInfo{Code: "C1", Message: "m"},
		},
		{
			"v2 shape",
			`{"error":{"code":"SY/530","message":{"value":"No entity found"}}}`,
			ErrorInfo{Code: "SY/530", Message: "No entity found"},
		},
		{
			"bare sap shape",
			`{"message":{"value":"Service unavailable"}}`,
			ErrorInfo{Code: "UNKNOWN", Message: "Service unavailable"},
		},
		{
			"plain string",
			`boom`,
			ErrorInfo{Code: "UNKNOWN", Message: "boom"},
		},
		{
			"empty",
			``,
			ErrorInfo{Code: "UNKNOWN", Message: "upstream error"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseError([]byte(tc.body))
			if got.Code != tc.want.Code || got.Message != tc.want.Message {
				t.Errorf("got {%q %q}, want {%q %q}", got.Code, got.Message, tc.want.Code, tc.want.Message)
			}
		})
	}
}

func TestStripMetadata(t *testing.T) {
	entity := map[string]interface{}{
		"__metadata":    map[string]interface{}{"uri": "..."},
		"@odata.etag":   "W/\"x\"",
		"odata.context": "...",
		"Name":          "ACME",
		"to_Address": map[string]interface{}{
			"__metadata": map[string]interface{}{"uri": "..."},
			"City":       "Berlin",
		},
		"to_Partner": map[string]interface{}{
			"__deferred": map[string]interface{}{"uri": "..."},
		},
		"to_Items": map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{"__metadata": map[string]interface{}{}, "ID": float64(1)},
			},
		},
	}

	got := StripMetadata(entity)

	want := map[string]interface{}{
		"Name": "ACME",
		"to_Address": map[string]interface{}{
			"City": "Berlin",
		},
		"to_Partner": map[string]interface{}{},
		"to_Items": []interface{}{
			map[string]interface{}{"ID": float64(1)},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StripMetadata:\n got  %#v\n want %#v", got, want)
	}
}
