package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// MetricsExporter is a ports.Metrics that can also serve and time requests.
type MetricsExporter interface {
	ports.Metrics
	Handler() http.Handler
	Instrument(route string, next http.Handler) http.Handler
}

// Deps are the services the router dispatches to.
type Deps struct {
	Challenges   ports.ChallengeService
	Gate         ports.GateService
	Sessions     ports.SessionService
	Links        ports.LinkService
	Traps        ports.TrapService
	Authenticity ports.AuthenticityValidator
	Reputation   ports.ReputationService
	Altcha       AltchaIssuer    // nil unless the self-hosted CAPTCHA is enabled
	Metrics      MetricsExporter // optional
	Log          logging.Logger
}

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	var events ports.Metrics = services.NopMetrics{}
	if d.Metrics != nil {
		events = d.Metrics
	}
	instrument := func(route string, h http.Handler) http.Handler {
		if d.Metrics == nil {
			return h
		}
		return d.Metrics.Instrument(route, h)
	}

	// Initialize Handlers
	h := NewHTTPHandler(d.Links, d.Log)
	gh := NewGateHandler(d.Challenges, d.Gate, d.Sessions, d.Altcha, cfg.FrontendURL, cfg.IsProduction(), d.Log)
	th := NewTrapHandler(d.Traps, cfg.IsProduction(), d.Log)
	authHandler := NewAuthHandler(cfg, d.Log)

	// Initialize Middleware
	mw := NewMiddleware(cfg, d.Reputation, d.Authenticity, d.Traps, events, d.Log)

	// Setup Router
	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	if d.Metrics != nil && cfg.MetricsEnabled {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Verification pipeline
	mux.Handle("GET /challenge", instrument("challenge", mw.BlockGuard(mw.HoneypotGuard(http.HandlerFunc(gh.Challenge)))))
	mux.Handle("GET /captcha/altcha", instrument("altcha", mw.BlockGuard(mw.HoneypotGuard(http.HandlerFunc(gh.AltchaChallenge)))))
	mux.Handle("POST /api/redirect", instrument("redirect", mw.Protect(mw.OptionalAuth(http.HandlerFunc(gh.Redirect)))))
	mux.HandleFunc("GET /trap/image", th.Image)
	mux.HandleFunc("GET /trap/bot", th.Bot)
	mux.Handle("GET /s/{token}", instrument("session", mw.BlockGuard(mw.HoneypotGuard(http.HandlerFunc(gh.Resume)))))
	mux.Handle("GET /go/{slug}", instrument("go", mw.BlockGuard(mw.HoneypotGuard(http.HandlerFunc(gh.Go)))))

	// Protected Routes (owner API)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/v1/links", h.Create)
	protectedMux.HandleFunc("GET /api/v1/links", h.List)
	protectedMux.HandleFunc("GET /api/v1/links/{id}/stats", h.Stats)
	protectedMux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	protectedMux.HandleFunc("PUT /api/v1/credentials/{provider}", h.SetCredential)

	// protectedMux holds full paths, so the /api/v1/ prefix dispatches straight through.
	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mw.RequestID(mux)
}
