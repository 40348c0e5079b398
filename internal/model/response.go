package model

// ProxyResponse is the envelope returned to proxy callers on success. Data
// holds the unwrapped OData payload (an entity array or a single entity).
type ProxyResponse struct {
	Data     interface{} `json:"data,omitempty"`
	Count    interface{} `json:"count,omitempty"`
	NextLink string      `json:"next_link,omitempty"`
	Meta     *ProxyMeta  `json:"meta,omitempty"`
}

// ProxyMeta carries per-request metadata alongside the payload.
type ProxyMeta struct {
	RequestID   string  `json:"request_id,omitempty"`
	RecordCount int     `json:"record_count"`
	TookMs      float64 `json:"took_ms"`
	SapTookMs   float64 `json:"sap_took_ms"`
	DataHidden  bool    `json:"data_hidden,omitempty"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
