package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPIssuerRenew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh-token" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req refreshWireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.RenewalSecret != "secret-0" || req.SessionID != "sess-1" {
			t.Errorf("wire request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(refreshWireResponse{Session: sessionWireResponse{
			SessionID:        "sess-1",
			AccessToken:      "access-1",
			AccessExpiresAt:  time.Now().Add(15 * time.Minute).UTC(),
			RenewalSecret:    "secret-1",
			RenewalExpiresAt: time.Now().Add(7 * 24 * time.Hour).UTC(),
		}})
	}))
	defer srv.Close()

	issuer := NewHTTPIssuer(srv.URL, srv.Client())
	creds, err := issuer.Renew(context.Background(), "secret-0", "sess-1")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if creds.AccessToken != "access-1" || creds.RenewalSecret != "secret-1" || creds.SessionID != "sess-1" {
		t.Fatalf("credentials %+v", creds)
	}
}

func TestHTTPIssuerRenewStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusGone, ErrSessionExpired},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		issuer := NewHTTPIssuer(srv.URL, srv.Client())
		_, err := issuer.Renew(context.Background(), "secret-0", "sess-1")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestHTTPIssuerRenewServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	issuer := NewHTTPIssuer(srv.URL, srv.Client())
	_, err := issuer.Renew(context.Background(), "secret-0", "sess-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSessionExpired) {
		t.Fatalf("5xx must stay retryable, got %v", err)
	}
}

func TestHTTPIssuerLogout(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/logout" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	issuer := NewHTTPIssuer(srv.URL, srv.Client())
	if err := issuer.Logout(context.Background(), "access-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if gotAuth != "Bearer access-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}
