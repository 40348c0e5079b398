package sap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michal-majer/s4kit/internal/apperr"
)

func testForwarder(t *testing.T) *Forwarder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewForwarder(5*time.Second, NewTokenCache(5*time.Second), logger)
}

func TestForwardBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "SAPUSER" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.URL.Path; got != "/sap/opu/odata/sap/API_PRODUCT/Products" {
			t.Errorf("path: got %q", got)
		}
		if got := r.URL.Query().Get("$top"); got != "5" {
			t.Errorf("$top: got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"value": []interface{}{}})
	}))
	t.Cleanup(srv.Close)

	f := testForwarder(t)
	query := url.Values{}
	query.Set("$top", "5")
	result, err := f.Do(context.Background(), &Request{
		Method:      http.MethodGet,
		BaseURL:     srv.URL,
		ServicePath: "/sap/opu/odata/sap/API_PRODUCT",
		EntityPath:  "Products",
		Query:       query,
		Auth:        BasicAuth{Username: "SAPUSER", Password: "secret"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", result.StatusCode)
	}
	if result.Duration <= 0 {
		t.Error("duration not measured")
	}
}

func TestForwardRetriesOnceAfterNetworkError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Hijack and drop the connection so the client sees a
			// transport error rather than an HTTP status.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		w.Write([]byte(`{"value":[]}`))
	}))
	t.Cleanup(srv.Close)

	f := testForwarder(t)
	result, err := f.Do(context.Background(), &Request{
		Method:  http.MethodGet,
		BaseURL: srv.URL,
		Auth:    NoneAuth{},
	})
	if err != nil {
		t.Fatalf("Do after retry: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", result.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("attempts: got %d, want 2", n)
	}
}

func TestForwardDoesNotRetryWrites(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	f := testForwarder(t)
	_, err := f.Do(context.Background(), &Request{
		Method:  http.MethodPost,
		BaseURL: srv.URL,
		Body:    []byte(`{"Name":"Widget"}`),
		Auth:    NoneAuth{},
	})
	if err == nil {
		t.Fatal("expected a network error")
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Category != apperr.CategoryNetwork {
		t.Errorf("error category: got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("a failed write must not be replayed, got %d attempts", n)
	}
}

func TestForwardRefreshesStaleOAuthToken(t *testing.T) {
	var tokenCalls atomic.Int64
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := tokenCalls.Add(1)
		token := "stale"
		if n > 1 {
			token = "fresh"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": token, "expires_in": 3600})
	}))
	t.Cleanup(tokenSrv.Close)

	var apiCalls atomic.Int64
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"value":[{"ID":1}]}`))
	}))
	t.Cleanup(apiSrv.Close)

	f := testForwarder(t)
	result, err := f.Do(context.Background(), &Request{
		Method:  http.MethodGet,
		BaseURL: apiSrv.URL,
		Auth:    OAuth2Auth{TokenURL: tokenSrv.URL, ClientID: "c", ClientSecret: "s"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status after token refresh: got %d", result.StatusCode)
	}
	if n := apiCalls.Load(); n != 2 {
		t.Errorf("api attempts: got %d, want 2", n)
	}
	if n := tokenCalls.Load(); n != 2 {
		t.Errorf("token fetches: got %d, want 2", n)
	}
}

func TestForwardTimeoutCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewForwarder(50*time.Millisecond, NewTokenCache(time.Second), logger)
	_, err := f.Do(context.Background(), &Request{
		Method:  http.MethodPost, // no network retry on writes
		BaseURL: srv.URL,
		Auth:    NoneAuth{},
	})
	if err == nil {
		t.Fatal("expected a timeout")
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Category != apperr.CategoryTimeout {
		t.Errorf("category: got %v, want timeout", err)
	}
	if ae.Status != http.StatusGatewayTimeout {
		t.Errorf("status: got %d, want 504", ae.Status)
	}
}

func TestForwardAPIKeyAndCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Gateway-Key"); got != "k-123" {
			t.Errorf("X-Gateway-Key: got %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	f := testForwarder(t)
	_, err := f.Do(context.Background(), &Request{
		Method:  http.MethodGet,
		BaseURL: srv.URL,
		Auth:    APIKeyAuth{Header: "X-Gateway-Key", Key: "k-123"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}
