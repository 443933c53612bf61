package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
)

type fakeChallenges struct {
	err error
}

func (f *fakeChallenges) Issue(_ context.Context, ip, _ string) (*domain.Challenge, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Challenge{ID: "c-1", Nonce: "n", Difficulty: 3, Signature: "sig", ExpiresAt: 1, IP: ip}, nil
}

func (f *fakeChallenges) Verify(context.Context, domain.ProofSubmission) domain.VerifyResult {
	return domain.VerifyResult{Valid: true}
}

type fakeGate struct {
	mu    sync.Mutex
	calls []domain.GateRequest
	res   *domain.Resolution
	err   error
}

func (f *fakeGate) Resolve(_ context.Context, req domain.GateRequest) (*domain.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.res, f.err
}

func (f *fakeGate) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSessions signs cookies as "signed-<token>".
type fakeSessions struct {
	res        *domain.Resolution
	err        error
	lastToken  string
	lastCookie string
}

func (f *fakeSessions) Resume(_ context.Context, token, cookieToken string, _ domain.Visitor) (*domain.Resolution, error) {
	f.lastToken, f.lastCookie = token, cookieToken
	return f.res, f.err
}

func (f *fakeSessions) Visit(_ context.Context, _, token string, _ domain.Visitor) (*domain.Resolution, error) {
	f.lastCookie = token
	return f.res, f.err
}

func (f *fakeSessions) SessionCookie(s *domain.Session) (string, time.Time, error) {
	return "signed-" + s.Token, s.CreatedAt.Add(6 * time.Minute), nil
}

func (f *fakeSessions) ParseSessionCookie(value string) (string, error) {
	token, ok := strings.CutPrefix(value, "signed-")
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	return token, nil
}

type fakeReputation struct {
	mu      sync.Mutex
	blocked bool
	flags   []string
}

func (f *fakeReputation) IsBlocked(context.Context, string) (bool, error) { return f.blocked, nil }

func (f *fakeReputation) Flag(_ context.Context, _ string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, reason)
}

func (f *fakeReputation) reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.flags...)
}

type fakeLinks struct {
	owner string
	err   error
}

func (f *fakeLinks) CreateLink(_ context.Context, ownerID, slug, targetURL, title, flow string) (*domain.ProtectedLink, error) {
	f.owner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ProtectedLink{ID: 1, Slug: slug, OwnerID: ownerID, TargetURL: targetURL, Title: title, Flow: flow}, nil
}

func (f *fakeLinks) ListLinks(_ context.Context, ownerID string, _, _ int) ([]domain.ProtectedLink, int64, error) {
	f.owner = ownerID
	return []domain.ProtectedLink{{ID: 1, Slug: "promo", OwnerID: ownerID}}, 1, f.err
}

func (f *fakeLinks) GetLinkStats(_ context.Context, ownerID string, id int64) (*domain.LinkStats, error) {
	f.owner = ownerID
	if id != 1 {
		return nil, domain.ErrNotFound
	}
	return &domain.LinkStats{TotalClicks: 4}, nil
}

func (f *fakeLinks) SetCredential(_ context.Context, ownerID, provider, _ string) error {
	f.owner = ownerID
	if provider != "gplinks" {
		return domain.ErrInvalidInput
	}
	return nil
}

func (f *fakeLinks) ListCredentials(_ context.Context, ownerID string) ([]domain.ProviderCredential, error) {
	f.owner = ownerID
	return []domain.ProviderCredential{{OwnerID: ownerID, Provider: "gplinks", APIKey: "****abcd"}}, nil
}

const testJWTSecret = "test-jwt-secret"

type routerFixture struct {
	cfg        *config.Config
	challenges *fakeChallenges
	gate       *fakeGate
	sessions   *fakeSessions
	reputation *fakeReputation
	links      *fakeLinks
	traps      *services.TrapService
	metrics    *metrics.Prometheus
}

func newRouterFixture(t *testing.T, profile string) *routerFixture {
	t.Helper()
	key, err := services.DeriveKey("handler-test-secret", services.PurposeTrap)
	if err != nil {
		t.Fatal(err)
	}
	return &routerFixture{
		cfg: &config.Config{
			AppEnv:          "test",
			JWTSecret:       testJWTSecret,
			FrontendURL:     "https://app.example",
			SecurityProfile: profile,
			MetricsEnabled:  true,
			HTTPTimeout:     time.Second,
		},
		challenges: &fakeChallenges{},
		gate: &fakeGate{res: &domain.Resolution{
			Action: domain.ActionShorten, URL: "https://gpl.example/x",
		}},
		sessions:   &fakeSessions{},
		reputation: &fakeReputation{},
		links:      &fakeLinks{},
		traps:      services.NewTrapService(key, services.SystemClock{}),
		metrics:    metrics.NewPrometheus("test"),
	}
}

func (f *routerFixture) router() http.Handler {
	return NewRouter(f.cfg, Deps{
		Challenges:   f.challenges,
		Gate:         f.gate,
		Sessions:     f.sessions,
		Links:        f.links,
		Traps:        f.traps,
		Authenticity: services.NewAuthenticityValidator([]byte("body-key"), 30*time.Second, 5*time.Second, services.SystemClock{}),
		Reputation:   f.reputation,
		Metrics:      f.metrics,
		Log:          logging.NewNop(),
	})
}

func signToken(t *testing.T, secret, email, role string) string {
	t.Helper()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}
