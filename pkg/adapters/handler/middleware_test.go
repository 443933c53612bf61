package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
)

func newTestMiddleware(f *routerFixture) *Middleware {
	authn := services.NewAuthenticityValidator([]byte("body-key"), 30*time.Second, 5*time.Second, services.SystemClock{})
	return NewMiddleware(f.cfg, f.reputation, authn, f.traps, services.NopMetrics{}, logging.NewNop())
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{
		JWTSecret: "testservlet",
	}
	f := newRouterFixture(t, "standard")
	f.cfg = cfg
	mw := newTestMiddleware(f)

	tests := []struct {
		name           string
		path           string
		cookieName     string
		cookieValue    string
		expectedStatus int
	}{
		{
			name:           "No Cookie - API",
			path:           "/api/v1/links",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "No Cookie - Browser",
			path:           "/dashboard",
			expectedStatus: http.StatusTemporaryRedirect,
		},
		{
			name:           "Invalid Cookie - API",
			path:           "/api/v1/links",
			cookieName:     authCookie,
			cookieValue:    "invalid",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Foreign Key - API",
			path:           "/api/v1/links",
			cookieName:     authCookie,
			cookieValue:    signToken(t, "other-secret", "test@example.com", RoleOwner),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Cookie - API",
			path:           "/api/v1/links",
			cookieName:     authCookie,
			cookieValue:    signToken(t, cfg.JWTSecret, "test@example.com", RoleOwner),
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookieName != "" {
				req.AddCookie(&http.Cookie{Name: tt.cookieName, Value: tt.cookieValue})
			}

			rr := httptest.NewRecorder()
			handler := mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if u := userFromContext(r.Context()); u == nil || u.Email != "test@example.com" {
					t.Errorf("user not attached: %+v", u)
				}
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}
		})
	}
}

func TestOptionalAuth_AdminRole(t *testing.T) {
	f := newRouterFixture(t, "standard")
	mw := newTestMiddleware(f)

	var got *User
	handler := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = userFromContext(r.Context())
	}))

	req := httptest.NewRequest("POST", "/api/redirect", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != nil {
		t.Fatalf("anonymous request got user %+v", got)
	}

	req = httptest.NewRequest("POST", "/api/redirect", nil)
	req.AddCookie(&http.Cookie{Name: authCookie, Value: signToken(t, testJWTSecret, "ops@example.com", RoleAdmin)})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !got.IsAdmin() {
		t.Fatalf("expected admin, got %+v", got)
	}
}

func TestRequestID(t *testing.T) {
	f := newRouterFixture(t, "standard")
	mw := newTestMiddleware(f)
	handler := mw.RequestID(okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if _, err := uuid.Parse(rr.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID is not a uuid: %q", rr.Header().Get("X-Request-ID"))
	}

	incoming := uuid.NewString()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", incoming)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != incoming {
		t.Errorf("incoming request id not kept")
	}

	req = httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") == "<script>" {
		t.Errorf("malformed request id echoed back")
	}
}

func TestBlockGuard(t *testing.T) {
	f := newRouterFixture(t, "standard")
	f.reputation.blocked = true
	mw := newTestMiddleware(f)

	rr := httptest.NewRecorder()
	mw.BlockGuard(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/challenge", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != domain.CodeBlocked {
		t.Errorf("code = %s", body.Code)
	}
}

func TestTrapGuard(t *testing.T) {
	f := newRouterFixture(t, "strict")
	valid, err := f.traps.IssueProof()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cookies []*http.Cookie
		status  int
		code    string
	}{
		{"no trap cookie", nil, http.StatusForbidden, domain.CodeResourceTrap},
		{"malformed proof", []*http.Cookie{{Name: trapCookie, Value: "abc"}}, http.StatusForbidden, domain.CodeInvalidProofFmt},
		{"forged proof", []*http.Cookie{{Name: trapCookie, Value: "aa." + strconv.FormatInt(time.Now().UnixMilli(), 10) + ".bb"}}, http.StatusForbidden, domain.CodeInvalidSig},
		{"honeypot flag", []*http.Cookie{{Name: trapCookie, Value: valid}, {Name: botCookie, Value: "1"}}, http.StatusForbidden, domain.CodeHoneypot},
		{"valid proof", []*http.Cookie{{Name: trapCookie, Value: valid}}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.reputation.flags = nil
			mw := newTestMiddleware(f)
			req := httptest.NewRequest("POST", "/api/redirect", nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rr := httptest.NewRecorder()
			mw.TrapGuard(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.code == "" {
				if len(f.reputation.reasons()) != 0 {
					t.Errorf("valid request flagged: %v", f.reputation.reasons())
				}
				return
			}
			if body := decodeError(t, rr); body.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Code, tt.code)
			}
			if len(f.reputation.reasons()) != 1 {
				t.Errorf("expected one suspicious entry, got %v", f.reputation.reasons())
			}
		})
	}
}

func TestTrapGuard_StandardProfilePassesThrough(t *testing.T) {
	f := newRouterFixture(t, "standard")
	mw := newTestMiddleware(f)

	req := httptest.NewRequest("POST", "/api/redirect", nil)
	req.AddCookie(&http.Cookie{Name: botCookie, Value: "1"})
	rr := httptest.NewRecorder()
	mw.TrapGuard(okHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestSignatureGuard(t *testing.T) {
	f := newRouterFixture(t, "standard")
	mw := newTestMiddleware(f)
	body := []byte(`{"slug":"promo","counter":7}`)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := services.SignBody([]byte("body-key"), ts, body)
	if err != nil {
		t.Fatal(err)
	}

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	})

	tests := []struct {
		name   string
		body   []byte
		ts     string
		sig    string
		status int
	}{
		{"unsigned", body, "", "", http.StatusOK},
		{"signed", body, ts, sig, http.StatusOK},
		{"body altered", []byte(`{"slug":"promo","counter":8}`), ts, sig, http.StatusForbidden},
		{"stale timestamp", body, strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10), sig, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/redirect", bytes.NewReader(tt.body))
			if tt.ts != "" {
				req.Header.Set("X-Request-Timestamp", tt.ts)
				req.Header.Set("X-Request-Signature", tt.sig)
			}
			rr := httptest.NewRecorder()
			mw.SignatureGuard(echo).ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status == http.StatusOK && !bytes.Equal(rr.Body.Bytes(), tt.body) {
				t.Errorf("body not preserved: %s", rr.Body.String())
			}
			if tt.status == http.StatusForbidden {
				if b := decodeError(t, rr); b.Code != domain.CodeTampered {
					t.Errorf("code = %s", b.Code)
				}
			}
		})
	}
}

func TestSignatureGuard_BodyTooLarge(t *testing.T) {
	f := newRouterFixture(t, "standard")
	mw := newTestMiddleware(f)

	req := httptest.NewRequest("POST", "/api/redirect", bytes.NewReader(make([]byte, maxBodyBytes+1)))
	rr := httptest.NewRecorder()
	mw.SignatureGuard(okHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rr.Code)
	}
}
