package odata

import (
	"encoding/json"
	"strings"
)

// Result is the version-neutral form of a backend response. Data is either
// an entity slice or a single entity; Count and NextLink are present only
// when the backend reported them.
type Result struct {
	Data     interface{} `json:"data"`
	Count    interface{} `json:"count,omitempty"`
	NextLink string      `json:"next_link,omitempty"`
}

// RecordCount reports how many records the result carries: the array length
// for collections, 1 for a single entity, 0 for an empty payload.
func (r *Result) RecordCount() int {
	switch d := r.Data.(type) {
	case nil:
		return 0
	case []interface{}:
		return len(d)
	default:
		return 1
	}
}

// ParseResponse unwraps a raw backend response body into a Result:
//
//   - OData v4: {"value": [...], "@odata.count": n, "@odata.nextLink": url}
//   - OData v2 collection: {"d": {"results": [...], "__count": "n", "__next": url}}
//   - OData v2 single entity: {"d": {...}}
//   - anything else passes through unchanged as Data.
func ParseResponse(body []byte) *Result {
	if len(body) == 0 {
		return &Result{}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		// Non-object payload (string, array, number): pass through.
		var any interface{}
		if err := json.Unmarshal(body, &any); err != nil {
			return &Result{Data: string(body)}
		}
		return &Result{Data: any}
	}

	if value, ok := raw["value"]; ok {
		res := &Result{Data: value, Count: raw["@odata.count"]}
		if next, ok := raw["@odata.nextLink"].(string); ok {
			res.NextLink = next
		}
		return res
	}

	if d, ok := raw["d"].(map[string]interface{}); ok {
		if results, ok := d["results"]; ok {
			res := &Result{Data: results, Count: d["__count"]}
			if next, ok := d["__next"].(string); ok {
				res.NextLink = next
			}
			return res
		}
		return &Result{Data: d}
	}

	return &Result{Data: raw}
}

// ErrorInfo is the normalized form of the four error body shapes SAP
// backends produce.
type ErrorInfo struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	InnerError interface{} `json:"innererror,omitempty"`
}

// ParseError normalizes an upstream error body:
//
//   - v4: {"error": {"code": c, "message": m}}
//   - v2: {"error": {"code": c, "message": {"value": m}}}
//   - bare SAP: {"message": {"value": m}}
//   - plain string bodies become {code: UNKNOWN, message: body}
func ParseError(body []byte) ErrorInfo {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ErrorInfo{Code: "UNKNOWN", Message: "upstream error"}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ErrorInfo{Code: "UNKNOWN", Message: trimmed}
	}

	if errObj, ok := raw["error"].(map[string]interface{}); ok {
		info := ErrorInfo{
			Code:       stringField(errObj, "code"),
			Message:    messageText(errObj["message"]),
			Details:    errObj["details"],
			InnerError: errObj["innererror"],
		}
		if info.Code == "" {
			info.Code = "UNKNOWN"
		}
		return info
	}

	if msg := messageText(raw["message"]); msg != "" {
		code := stringField(raw, "code")
		if code == "" {
			code = "UNKNOWN"
		}
		return ErrorInfo{Code: code, Message: msg}
	}

	return ErrorInfo{Code: "UNKNOWN", Message: trimmed}
}

// messageText extracts a message from either a plain string or the v2
// {"value": "..."} wrapper.
func messageText(v interface{}) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]interface{}:
		if s, ok := m["value"].(string); ok {
			return s
		}
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// StripMetadata removes OData bookkeeping from an entity: v2 __metadata and
// __deferred keys and any @odata./odata. prefixed key. It recurses into
// nested objects and arrays so expanded navigation properties come out clean
// as well.
func StripMetadata(entity map[string]interface{}) map[string]interface{} {
	if entity == nil {
		return nil
	}
	out := make(map[string]interface{}, len(entity))
	for key, val := range entity {
		if key == "__metadata" || key == "__deferred" ||
			strings.HasPrefix(key, "@odata.") || strings.HasPrefix(key, "odata.") {
			continue
		}
		out[key] = stripValue(val)
	}
	return out
}

func stripValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		// v2 wraps expanded collections in {"results": [...]}.
		if results, ok := val["results"].([]interface{}); ok && len(val) == 1 {
			return stripValue(results)
		}
		return StripMetadata(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = stripValue(item)
		}
		return out
	default:
		return v
	}
}
