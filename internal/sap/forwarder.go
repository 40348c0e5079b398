package sap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/odata"
)

// networkRetryBackoff is the pause before the single retry of a transient
// network failure.
const networkRetryBackoff = 200 * time.Millisecond

// maxResponseBytes bounds what the proxy will buffer from a backend.
const maxResponseBytes = 32 << 20

// Request describes one outbound call to a SAP backend.
type Request struct {
	Method      string
	BaseURL     string
	ServicePath string
	EntityPath  string
	Query       url.Values
	Body        []byte
	ContentType string
	Auth        ResolvedAuth
}

// Result is the raw outcome of a forwarded call, returned regardless of the
// backend's status code; translating error bodies is the caller's concern.
type Result struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	Duration      time.Duration // isolated SAP response time
	RequestBytes  int
	ResponseBytes int
}

// Forwarder issues authenticated HTTP calls to SAP backends with a bounded
// timeout, one backoff retry for transient network failures on reads, and
// one token-refresh retry for oauth2 401 responses.
type Forwarder struct {
	client *http.Client
	tokens *TokenCache
	logger *slog.Logger
}

// NewForwarder creates a Forwarder. timeout bounds each individual attempt.
func NewForwarder(timeout time.Duration, tokens *TokenCache, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
		logger: logger,
	}
}

// Do forwards the request. The inbound context is propagated so a caller
// disconnect abandons the downstream call and any pending token fetch.
func (f *Forwarder) Do(ctx context.Context, req *Request) (*Result, error) {
	target := odata.JoinURL(req.BaseURL, req.ServicePath, req.EntityPath)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	result, err := f.attempt(ctx, req, target)

	// Transient network failure: retry once with backoff, reads only.
	var ae *apperr.Error
	if err != nil && errors.As(err, &ae) && ae.Category == apperr.CategoryNetwork && req.Method == http.MethodGet {
		f.logger.Warn("retrying after network error", "url", target)
		select {
		case <-time.After(networkRetryBackoff):
		case <-ctx.Done():
			return nil, classifyTransport(ctx.Err())
		}
		result, err = f.attempt(ctx, req, target)
	}
	if err != nil {
		return nil, err
	}

	// A 401 under oauth2 means the cached token may be stale: invalidate it
	// and retry exactly once with a freshly fetched token.
	if result.StatusCode == http.StatusUnauthorized {
		if oauth, ok := req.Auth.(OAuth2Auth); ok {
			f.tokens.Invalidate(Fingerprint(oauth))
			f.logger.Info("retrying with refreshed token", "url", target)
			retried, retryErr := f.attempt(ctx, req, target)
			if retryErr != nil {
				return nil, retryErr
			}
			retried.Duration += result.Duration
			return retried, nil
		}
	}

	return result, nil
}

// attempt performs a single outbound HTTP call.
func (f *Forwarder) attempt(ctx context.Context, req *Request, target string) (*Result, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, apperr.Validation("INVALID_REQUEST", fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}

	if err := f.applyAuth(ctx, httpReq, req.Auth); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	duration := time.Since(start)
	if err != nil {
		return nil, classifyTransport(err)
	}

	return &Result{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          respBody,
		Duration:      duration,
		RequestBytes:  len(req.Body),
		ResponseBytes: len(respBody),
	}, nil
}

// applyAuth sets the header(s) implied by the resolved authentication.
func (f *Forwarder) applyAuth(ctx context.Context, httpReq *http.Request, auth ResolvedAuth) error {
	switch a := auth.(type) {
	case nil, NoneAuth:
		return nil
	case BasicAuth:
		httpReq.SetBasicAuth(a.Username, a.Password)
		return nil
	case APIKeyAuth:
		httpReq.Header.Set(a.Header, a.Key)
		return nil
	case OAuth2Auth:
		token, err := f.tokens.GetToken(ctx, a)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		return nil
	case CustomAuth:
		httpReq.Header.Set(a.Header, a.Value)
		return nil
	default:
		return apperr.Internal(fmt.Sprintf("unsupported auth type %q", auth.AuthType()))
	}
}

// classifyTransport maps a transport-level failure to the error taxonomy:
// deadline overruns become timeouts, everything else a network error.
func classifyTransport(err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("backend did not respond within the deadline")
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return apperr.Timeout("backend did not respond within the deadline")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Network("request canceled")
	}
	return apperr.Network(fmt.Sprintf("backend unreachable: %v", err))
}
