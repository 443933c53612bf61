// Package app wires configuration, storage, the verification pipeline and
// the HTTP router into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/captcha"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/memstore"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/shortener"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

var Version = "dev"

// Options override process defaults. Zero values are replaced.
type Options struct {
	Logger     logging.Logger
	Clock      ports.Clock
	HTTPClient *http.Client
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	repo    *sqlite.SQLiteRepository
	handler http.Handler
	reaper  *services.Reaper
}

func NewApp(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.AppEnv, cfg.LogLevel)
	}
	clock := opts.Clock
	if clock == nil {
		clock = services.SystemClock{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	ctx := context.Background()
	keys := deriveKeys(ctx, cfg.ServerSecret, logger)

	limiter := memstore.NewRateLimiter(cfg.ChallengeRateLimit, cfg.ChallengeRateWindow)
	usedTokens := memstore.NewReplayStore(cfg.ReplayWindow)
	seenRequests := memstore.NewReplayStore(cfg.DedupWindow)

	m := metrics.NewPrometheus(Version)
	providers := shortener.NewRegistry(cfg.Providers, httpClient)
	if len(providers.Names()) == 0 {
		logger.Warn(ctx, "no shortening providers configured; new sessions will fail")
	}

	altcha := captcha.NewAltcha(cfg.AltchaHMACKey, cfg.ChallengeTTL, clock)
	verifiers := map[string]ports.CaptchaVerifier{
		services.CaptchaGeneric:    captcha.NewRecaptcha(cfg.RecaptchaSecret, cfg.RecaptchaMinScore, httpClient),
		services.CaptchaTurnstile:  captcha.NewTurnstile(cfg.TurnstileSecret, httpClient),
		services.CaptchaSelfHosted: altcha,
	}
	if _, ok := verifiers[cfg.CaptchaMode]; !ok {
		logger.Error(ctx, "unknown CAPTCHA_MODE; every captcha check will fail", "mode", cfg.CaptchaMode)
	}

	challenges := services.NewChallengeService(repo.Challenges(), limiter, keys[services.PurposeChallenge], services.ChallengePolicy{
		Difficulty:   cfg.ChallengeDifficulty,
		TTL:          cfg.ChallengeTTL,
		MinSolveTime: cfg.MinSolveTime,
		ClockSkew:    cfg.ClockSkew,
	}, clock, m, logger)

	traps := services.NewTrapService(keys[services.PurposeTrap], clock)
	authn := services.NewAuthenticityValidator([]byte(cfg.RequestSigningKey), cfg.BodyMaxAge, cfg.BodyFutureSkew, clock)
	guard := services.NewReplayGuard(usedTokens, seenRequests, repo.Suspicious(), cfg.SuspiciousThreshold, clock, logger)

	policy := services.DefaultSessionPolicy()
	policy.TTL = cfg.SessionTTL
	policy.MaxUses = cfg.SessionMaxUses
	policy.CallbackMinDelay = cfg.CallbackMinDelay
	policy.QuickCallbackMinDelay = cfg.QuickCallbackMinDelay
	policy.EnforcePinning = cfg.IsProduction()
	sessions := services.NewSessionManager(repo, repo.Sessions(), providers, guard, cfg.BaseURL, keys[services.PurposeSessionCookie], policy, clock, m, logger)

	allowBypass := cfg.CaptchaTestMode && !cfg.IsProduction()
	if allowBypass {
		logger.Warn(ctx, "captcha test mode enabled: admin tokens skip captcha verification")
	}
	delegate := services.NewCaptchaDelegate(cfg.CaptchaMode, verifiers, allowBypass, logger)
	gate := services.NewGateService(challenges, delegate, guard, sessions, m, logger)
	links := services.NewLinkService(repo, providers, clock)

	reaper := services.NewReaper(repo.Challenges(), repo.Sessions(), repo.Suspicious(),
		[]services.Pruner{limiter, usedTokens, seenRequests}, cfg.ReaperInterval, clock, logger)

	deps := handler.Deps{
		Challenges:   challenges,
		Gate:         gate,
		Sessions:     sessions,
		Links:        links,
		Traps:        traps,
		Authenticity: authn,
		Reputation:   guard,
		Metrics:      m,
		Log:          logger,
	}
	if cfg.CaptchaMode == services.CaptchaSelfHosted {
		deps.Altcha = altcha
	}

	return &App{
		config:  cfg,
		logger:  logger,
		repo:    repo,
		handler: handler.NewRouter(cfg, deps),
		reaper:  reaper,
	}, nil
}

// deriveKeys returns one subkey per purpose. A missing secret leaves every
// key nil, which the services treat as fail closed.
func deriveKeys(ctx context.Context, secret string, logger logging.Logger) map[string][]byte {
	keys := make(map[string][]byte, 3)
	for _, purpose := range []string{services.PurposeChallenge, services.PurposeTrap, services.PurposeSessionCookie} {
		k, err := services.DeriveKey(secret, purpose)
		if err != nil {
			logger.Error(ctx, "SERVER_SECRET missing or unusable; verification will fail closed", "purpose", purpose, "error", err)
			return map[string][]byte{}
		}
		keys[purpose] = k
	}
	return keys
}

func (app *App) Handler() http.Handler { return app.handler }

func (app *App) Reaper() *services.Reaper { return app.reaper }

func (app *App) Repository() *sqlite.SQLiteRepository { return app.repo }

func (app *App) Close() error { return app.repo.Close() }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP and runs the reaper until a signal arrives or the server
// fails, then shuts both down.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	server := &http.Server{
		Addr:         ":" + app.config.Port,
		Handler:      app.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * app.config.HTTPTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.reaper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "server starting", "port", app.config.Port, "env", app.config.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "graceful shutdown failed", "error", err)
	}
	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "closing database", "error", err)
	}
	app.logger.Info(shutdownCtx, "server stopped")
	return runErr
}
