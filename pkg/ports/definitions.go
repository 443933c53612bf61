package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

// LinkRepository defines storage operations for protected links, their
// owners' provider credentials and the visit log
type LinkRepository interface {
	Create(ctx context.Context, link *domain.ProtectedLink) error
	GetBySlug(ctx context.Context, slug string) (*domain.ProtectedLink, error)
	GetByID(ctx context.Context, id int64) (*domain.ProtectedLink, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.ProtectedLink, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	Dump(ctx context.Context) ([]domain.ProtectedLink, error) // For migration

	// Stats
	RecordVisit(ctx context.Context, visit *domain.Visit) error
	GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error)

	// Credentials
	UpsertCredential(ctx context.Context, cred *domain.ProviderCredential) error
	ListCredentials(ctx context.Context, ownerID string) ([]domain.ProviderCredential, error)
}

// ChallengeRepository persists issued challenges until they are consumed or reaped
type ChallengeRepository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	Get(ctx context.Context, id string) (*domain.Challenge, error)
	// Delete reports whether this call removed the record.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, nowMillis int64) (int64, error)
}

// SessionRepository persists redirect sessions. Mutations are conditional
// updates so concurrent requests with the same token cannot both win.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	FindPending(ctx context.Context, ip string, linkID int64, since time.Time) (*domain.Session, error)
	CountSince(ctx context.Context, ip string, linkID int64, since time.Time) (int, error)
	SetShortLink(ctx context.Context, token, shortLink, provider string) error
	Activate(ctx context.Context, token string, at time.Time) (bool, error)
	IncrementUsage(ctx context.Context, token string, expected int) (bool, error)
	Delete(ctx context.Context, token string) error
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// SuspiciousRepository is the append-only reputation log
type SuspiciousRepository interface {
	Add(ctx context.Context, entry *domain.SuspiciousIP) error
	CountSince(ctx context.Context, ip string, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// Clock is injected wherever time drives a decision.
type Clock interface {
	Now() time.Time
}

// RateLimiter is a per-key sliding window limiter.
type RateLimiter interface {
	Allow(key string, now time.Time) bool
	Prune(now time.Time) int
}

// ReplayStore remembers keys for a fixed window.
type ReplayStore interface {
	// Claim records key and reports true if it was not already present.
	Claim(key string, now time.Time) bool
	Contains(key string, now time.Time) bool
	Prune(now time.Time) int
}

// CaptchaVerifier checks a client-supplied CAPTCHA token with one backend.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Shortener is one upstream URL-shortening provider.
type Shortener interface {
	Shorten(ctx context.Context, apiKey, longURL string) (string, error)
}

// ProviderSet lists the configured shortening providers in priority order.
type ProviderSet interface {
	Names() []string
	Get(name string) (Shortener, bool)
}

// Metrics receives pipeline events.
type Metrics interface {
	ChallengeIssued()
	ProofVerified(reason string)
	GateRejected(code string)
	SessionEvent(event string)
	ProviderCall(provider string, ok bool)
}

// ChallengeService issues and verifies proof-of-work challenges
type ChallengeService interface {
	Issue(ctx context.Context, ip, userAgent string) (*domain.Challenge, error)
	Verify(ctx context.Context, sub domain.ProofSubmission) domain.VerifyResult
}

// TrapService signs and validates the resource-trap cookie
type TrapService interface {
	IssueProof() (string, error)
	ValidateProof(value string) error
}

// AuthenticityValidator runs the stateless same-origin and body-integrity checks
type AuthenticityValidator interface {
	CheckOrigin(host, origin, referer, secFetchSite string) error
	VerifyBody(body []byte, timestamp, signature string) error
}

// ReputationService records abuse and answers whether an IP is blocked
type ReputationService interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Flag(ctx context.Context, ip, reason string)
}

// GateService runs the full verification pipeline for a redirect request
type GateService interface {
	Resolve(ctx context.Context, req domain.GateRequest) (*domain.Resolution, error)
}

// SessionService drives redirect sessions outside the gate
type SessionService interface {
	Resume(ctx context.Context, token, cookieToken string, v domain.Visitor) (*domain.Resolution, error)
	Visit(ctx context.Context, slug, token string, v domain.Visitor) (*domain.Resolution, error)
	SessionCookie(s *domain.Session) (string, time.Time, error)
	ParseSessionCookie(value string) (string, error)
}

// LinkService defines the owner-facing business operations
type LinkService interface {
	CreateLink(ctx context.Context, ownerID, slug, targetURL, title, flow string) (*domain.ProtectedLink, error)
	ListLinks(ctx context.Context, ownerID string, page, limit int) ([]domain.ProtectedLink, int64, error)
	GetLinkStats(ctx context.Context, ownerID string, id int64) (*domain.LinkStats, error)
	SetCredential(ctx context.Context, ownerID, provider, apiKey string) error
	ListCredentials(ctx context.Context, ownerID string) ([]domain.ProviderCredential, error)
}
