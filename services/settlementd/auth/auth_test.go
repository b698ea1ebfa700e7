package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func callerEcho(t *testing.T, want [20]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := CallerFromContext(r.Context())
		if err != nil {
			t.Fatalf("caller missing: %v", err)
		}
		if got != want {
			t.Fatalf("caller mismatch: got %x want %x", got, want)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareAcceptsSignedSubject(t *testing.T) {
	authn := NewAuthenticator(Config{Enabled: true, HMACSecret: "0123456789abcdef", Issuer: "invokeledger"}, nil)
	caller := [20]byte{0xaa, 0x01}
	token, err := authn.Issue(caller, time.Minute, ScopeAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/bank/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authn.Middleware(ScopeAdmin)(callerEcho(t, caller)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestMiddlewareRejectsMissingScope(t *testing.T) {
	authn := NewAuthenticator(Config{Enabled: true, HMACSecret: "0123456789abcdef"}, nil)
	token, err := authn.Issue([20]byte{1}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/oracle/occurrences", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authn.Middleware(ScopeOracle)(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	authn := NewAuthenticator(Config{Enabled: true, HMACSecret: "0123456789abcdef", Audience: "settlement"}, nil)
	other := NewAuthenticator(Config{Enabled: true, HMACSecret: "fedcba9876543210", Audience: "settlement"}, nil)
	forged, _ := other.Issue([20]byte{1}, time.Minute)

	expiredIssuer := NewAuthenticator(Config{Enabled: true, HMACSecret: "0123456789abcdef", Audience: "settlement"}, nil)
	expiredIssuer.nowFn = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredIssuer.Issue([20]byte{1}, time.Minute)

	wrongAudience := NewAuthenticator(Config{Enabled: true, HMACSecret: "0123456789abcdef", Audience: "other"}, nil)
	misdirected, _ := wrongAudience.Issue([20]byte{1}, time.Minute)

	cases := map[string]string{
		"missing":  "",
		"forged":   "Bearer " + forged,
		"expired":  "Bearer " + expired,
		"audience": "Bearer " + misdirected,
		"scheme":   "Basic abc",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			authn.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestDisabledAuthReadsCallerHeader(t *testing.T) {
	authn := NewAuthenticator(Config{}, nil)
	caller := [20]byte{19: 0x42}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, "0x0000000000000000000000000000000000000042")
	rec := httptest.NewRecorder()
	authn.Middleware(ScopeAdmin)(callerEcho(t, caller)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, "nope")
	rec = httptest.NewRecorder()
	authn.Middleware()(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
