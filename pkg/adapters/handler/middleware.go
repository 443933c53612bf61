package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const maxBodyBytes = 16 << 10

type ctxKey int

const (
	userKey ctxKey = iota
)

// User is the authenticated owner attached to a request.
type User struct {
	Email string
	Role  string
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

func userFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

type Middleware struct {
	jwtSecret  []byte
	strict     bool
	reputation ports.ReputationService
	authn      ports.AuthenticityValidator
	traps      ports.TrapService
	metrics    ports.Metrics
	log        logging.Logger
}

func NewMiddleware(cfg *config.Config, reputation ports.ReputationService, authn ports.AuthenticityValidator, traps ports.TrapService, metrics ports.Metrics, log logging.Logger) *Middleware {
	return &Middleware{
		jwtSecret:  []byte(cfg.JWTSecret),
		strict:     cfg.StrictProfile(),
		reputation: reputation,
		authn:      authn,
		traps:      traps,
		metrics:    metrics,
		log:        log,
	}
}

// RequestID tags every response with X-Request-ID and scopes the logger to it.
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithContext(r.Context(), m.log.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware verifies the JWT token from the cookie
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticate(r)
		if err != nil {
			if isAPIRequest(r) {
				reject(w, http.StatusUnauthorized, domain.CodeUnauthorized, domain.ErrUnauthenticated.Error())
			} else {
				http.Redirect(w, r, "/auth/google/login", http.StatusTemporaryRedirect)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// OptionalAuth attaches the user when a valid token is present and carries
// on anonymously otherwise.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := m.authenticate(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticate(r *http.Request) (*User, error) {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthenticated
	}
	if claims.Subject == "" {
		return nil, domain.ErrUnauthenticated
	}
	return &User{Email: claims.Subject, Role: claims.Role}, nil
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// Protect chains the transport guards for the redirect endpoint:
// block, origin, trap and honeypot (strict profile), body signature.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return m.BlockGuard(m.OriginGuard(m.TrapGuard(m.SignatureGuard(next))))
}

// BlockGuard rejects addresses with too many suspicious entries.
func (m *Middleware) BlockGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blocked, err := m.reputation.IsBlocked(r.Context(), clientIP(r))
		if err != nil {
			m.fail(w, r, err)
			return
		}
		if blocked {
			m.fail(w, r, domain.Reject(domain.CodeBlocked, "suspicious activity threshold reached", domain.ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) OriginGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := m.authn.CheckOrigin(r.Host, r.Header.Get("Origin"), r.Referer(), r.Header.Get("Sec-Fetch-Site"))
		if err != nil {
			m.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TrapGuard enforces the honeypot and resource-trap cookies. It is a
// pass-through outside the strict profile.
func (m *Middleware) TrapGuard(next http.Handler) http.Handler {
	if !m.strict {
		return next
	}
	return m.HoneypotGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var proof string
		if c, err := r.Cookie(trapCookie); err == nil {
			proof = c.Value
		}
		if err := m.traps.ValidateProof(proof); err != nil {
			m.flagged(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// HoneypotGuard rejects clients that followed the hidden bot link. Strict
// profile only.
func (m *Middleware) HoneypotGuard(next http.Handler) http.Handler {
	if !m.strict {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(botCookie); err == nil {
			m.flagged(w, r, domain.Reject(domain.CodeHoneypot, "honeypot cookie present", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignatureGuard checks the optional body HMAC and leaves the body readable
// for the next handler.
func (m *Middleware) SignatureGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				reject(w, http.StatusRequestEntityTooLarge, domain.CodeBadRequest, "request body too large")
				return
			}
			m.fail(w, r, domain.ErrInvalidInput)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		err = m.authn.VerifyBody(body, r.Header.Get("X-Request-Timestamp"), r.Header.Get("X-Request-Signature"))
		if err != nil {
			logging.FromContext(r.Context(), m.log).Warn(r.Context(), "request tampering detected", "ip", clientIP(r), "error", err)
			m.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *domain.SecurityError
	if errors.As(err, &se) {
		m.metrics.GateRejected(se.Code)
	}
	writeError(w, r, m.log, err)
}

// flagged rejects and records the client as suspicious.
func (m *Middleware) flagged(w http.ResponseWriter, r *http.Request, err error) {
	reason := "trap"
	var se *domain.SecurityError
	if errors.As(err, &se) {
		reason = strings.ToLower(se.Code)
	}
	m.reputation.Flag(r.Context(), clientIP(r), reason)
	m.fail(w, r, err)
}
