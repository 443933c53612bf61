package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// SessionPolicy holds the redirect session limits.
type SessionPolicy struct {
	TTL                   time.Duration
	MaxUses               int
	CallbackMinDelay      time.Duration
	QuickCallbackMinDelay time.Duration
	RotationLookback      time.Duration
	// EnforcePinning turns IP and cookie mismatches into rejections.
	EnforcePinning bool
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		TTL:                   6 * time.Minute,
		MaxUses:               3,
		CallbackMinDelay:      75 * time.Second,
		QuickCallbackMinDelay: 5 * time.Second,
		RotationLookback:      24 * time.Hour,
	}
}

// SessionManager is the redirect session state machine:
// pending -> active -> (expired | limit reached) -> new pending.
type SessionManager struct {
	links      ports.LinkRepository
	sessions   ports.SessionRepository
	providers  ports.ProviderSet
	reputation ports.ReputationService
	rotation   *providerRotation
	baseURL    string
	cookieKey  []byte
	policy     SessionPolicy
	clock      ports.Clock
	metrics    ports.Metrics
	log        logging.Logger
}

func NewSessionManager(
	links ports.LinkRepository,
	sessions ports.SessionRepository,
	providers ports.ProviderSet,
	reputation ports.ReputationService,
	baseURL string,
	cookieKey []byte,
	policy SessionPolicy,
	clock ports.Clock,
	metrics ports.Metrics,
	log logging.Logger,
) *SessionManager {
	return &SessionManager{
		links:      links,
		sessions:   sessions,
		providers:  providers,
		reputation: reputation,
		rotation:   newProviderRotation(providers.Names()),
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieKey:  cookieKey,
		policy:     policy,
		clock:      clock,
		metrics:    metricsOrNop(metrics),
		log:        log,
	}
}

// Create starts (or idempotently returns) a pending session for slug and
// hands back the provider link the visitor must pass through.
func (m *SessionManager) Create(ctx context.Context, slug string, v domain.Visitor) (*domain.Resolution, error) {
	link, err := m.linkBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return m.create(ctx, link, v)
}

func (m *SessionManager) create(ctx context.Context, link *domain.ProtectedLink, v domain.Visitor) (*domain.Resolution, error) {
	now := m.clock.Now()

	existing, err := m.sessions.FindPending(ctx, v.IP, link.ID, now.Add(-m.policy.TTL))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ShortLink != "" {
		m.metrics.SessionEvent("reused")
		return &domain.Resolution{Action: domain.ActionShorten, URL: existing.ShortLink, Session: existing}, nil
	}

	creds, err := m.links.ListCredentials(ctx, link.OwnerID)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(creds))
	for _, c := range creds {
		keys[c.Provider] = c.APIKey
	}

	prior, err := m.sessions.CountSince(ctx, v.IP, link.ID, now.Add(-m.policy.RotationLookback))
	if err != nil {
		return nil, err
	}
	candidates := m.rotation.pick(prior+1, 2, func(name string) bool {
		_, ok := m.providers.Get(name)
		return ok && keys[name] != ""
	})
	if len(candidates) == 0 {
		m.log.Error(ctx, "no usable shortening provider", "slug", link.Slug, "owner", link.OwnerID)
		return nil, fmt.Errorf("link %s has no usable provider: %w", link.Slug, domain.ErrUpstream)
	}

	token, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{
		Token:     token,
		LinkID:    link.ID,
		OwnerID:   link.OwnerID,
		TargetURL: link.TargetURL,
		IPAddress: v.IP,
		Status:    domain.SessionPending,
		MaxUses:   m.policy.MaxUses,
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	callback := m.baseURL + "/s/" + token
	for _, name := range candidates {
		provider, _ := m.providers.Get(name)
		short, err := provider.Shorten(ctx, keys[name], callback)
		m.metrics.ProviderCall(name, err == nil)
		if err != nil {
			m.log.Warn(ctx, "provider shorten failed", "provider", name, "slug", link.Slug, "error", err)
			continue
		}
		if err := m.sessions.SetShortLink(ctx, token, short, name); err != nil {
			return nil, err
		}
		sess.ShortLink, sess.Provider = short, name
		m.metrics.SessionEvent("created")
		return &domain.Resolution{Action: domain.ActionShorten, URL: short, Session: sess}, nil
	}

	if err := m.sessions.Delete(ctx, token); err != nil {
		m.log.Warn(ctx, "failed to drop session after provider failure", "error", err)
	}
	return nil, fmt.Errorf("shorten %s: %w", link.Slug, domain.ErrUpstream)
}

// Callback completes the provider round trip for a pending session.
func (m *SessionManager) Callback(ctx context.Context, token string, v domain.Visitor) (*domain.Resolution, error) {
	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrNotFound
	}
	if sess.Status != domain.SessionPending {
		return nil, domain.ErrSessionGone
	}
	link, err := m.linkByID(ctx, sess.LinkID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if now.Sub(sess.CreatedAt) >= m.policy.TTL {
		if err := m.sessions.Delete(ctx, token); err != nil {
			m.log.Warn(ctx, "failed to delete stale session", "error", err)
		}
		m.metrics.SessionEvent("expired")
		return nil, domain.ErrSessionGone
	}
	if elapsed := now.Sub(sess.CreatedAt); elapsed < m.minCallbackDelay(link.Flow) {
		if err := m.sessions.Delete(ctx, token); err != nil {
			m.log.Error(ctx, "failed to delete bot session", "error", err)
		}
		m.reputation.Flag(ctx, v.IP, "callback_too_fast")
		m.metrics.SessionEvent("bot_detected")
		return nil, domain.Reject(domain.CodeBotDetected, "provider round trip took "+elapsed.Round(time.Millisecond).String(), nil)
	}

	if err := m.checkPinned(ctx, domain.CodeIPMismatch, "ip", sess.IPAddress, v.IP); err != nil {
		return nil, err
	}

	ok, err := m.sessions.Activate(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionGone
	}
	ok, err = m.sessions.IncrementUsage(ctx, token, sess.UsageCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionGone
	}

	sess.Status = domain.SessionActive
	sess.ActivatedAt = &now
	sess.UsageCount++
	sess.Used = sess.UsageCount >= sess.MaxUses
	m.recordVisit(ctx, link.ID, v)
	m.metrics.SessionEvent("activated")
	return &domain.Resolution{Action: domain.ActionRedirect, URL: sess.TargetURL, Session: sess}, nil
}

// Visit serves the target for an active, unexhausted session of slug, or
// falls through to a new pending session.
func (m *SessionManager) Visit(ctx context.Context, slug, token string, v domain.Visitor) (*domain.Resolution, error) {
	link, err := m.linkBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if token != "" {
		res, err := m.consume(ctx, link, token, v)
		if err != nil || res != nil {
			return res, err
		}
	}
	return m.create(ctx, link, v)
}

// Resume handles a hit on the session URL: a pending session is a provider
// callback, an active one is a visit pinned to the session cookie.
func (m *SessionManager) Resume(ctx context.Context, token, cookieToken string, v domain.Visitor) (*domain.Resolution, error) {
	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrNotFound
	}
	if sess.Status == domain.SessionPending {
		return m.Callback(ctx, token, v)
	}

	if err := m.checkPinned(ctx, domain.CodeCookieMismatch, "cookie", token, cookieToken); err != nil {
		return nil, err
	}
	link, err := m.linkByID(ctx, sess.LinkID)
	if err != nil {
		return nil, err
	}
	res, err := m.consume(ctx, link, token, v)
	if err != nil || res != nil {
		return res, err
	}
	return m.create(ctx, link, v)
}

// consume spends one use of an active session. A nil result without error
// means the session cannot serve the target any more.
func (m *SessionManager) consume(ctx context.Context, link *domain.ProtectedLink, token string, v domain.Visitor) (*domain.Resolution, error) {
	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.LinkID != link.ID || sess.Status != domain.SessionActive {
		return nil, nil
	}
	if sess.Exhausted(m.clock.Now(), m.policy.TTL) {
		m.metrics.SessionEvent("exhausted")
		return nil, nil
	}

	ok, err := m.sessions.IncrementUsage(ctx, token, sess.UsageCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.metrics.SessionEvent("exhausted")
		return nil, nil
	}
	sess.UsageCount++
	sess.Used = sess.UsageCount >= sess.MaxUses
	m.recordVisit(ctx, link.ID, v)
	m.metrics.SessionEvent("visited")
	return &domain.Resolution{Action: domain.ActionRedirect, URL: sess.TargetURL, Session: sess}, nil
}

func (m *SessionManager) minCallbackDelay(flow string) time.Duration {
	if flow == domain.FlowQuick {
		return m.policy.QuickCallbackMinDelay
	}
	return m.policy.CallbackMinDelay
}

func (m *SessionManager) checkPinned(ctx context.Context, code, what, expected, got string) error {
	if expected == got {
		return nil
	}
	if m.policy.EnforcePinning {
		return domain.Reject(code, what+" does not match session", nil)
	}
	m.log.Warn(ctx, "session pinning mismatch ignored", "check", what)
	return nil
}

func (m *SessionManager) recordVisit(ctx context.Context, linkID int64, v domain.Visitor) {
	visit := &domain.Visit{
		LinkID:    linkID,
		Referer:   v.Referer,
		UserAgent: v.UserAgent,
		IPHash:    sha256Hex(v.IP),
		CreatedAt: m.clock.Now(),
	}
	if err := m.links.RecordVisit(ctx, visit); err != nil {
		m.log.Warn(ctx, "failed to record visit", "link_id", linkID, "error", err)
	}
}

func (m *SessionManager) linkBySlug(ctx context.Context, slug string) (*domain.ProtectedLink, error) {
	link, err := m.links.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}
	return link, nil
}

func (m *SessionManager) linkByID(ctx context.Context, id int64) (*domain.ProtectedLink, error) {
	link, err := m.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}
	return link, nil
}

// SessionCookie signs the browser-locking cookie value for s.
func (m *SessionManager) SessionCookie(s *domain.Session) (string, time.Time, error) {
	if len(m.cookieKey) == 0 {
		return "", time.Time{}, domain.ErrMisconfigured
	}
	expires := s.CreatedAt.Add(m.policy.TTL)
	claims := &jwt.RegisteredClaims{
		Subject:   s.Token,
		IssuedAt:  jwt.NewNumericDate(m.clock.Now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cookieKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseSessionCookie returns the session token carried by a valid cookie.
func (m *SessionManager) ParseSessionCookie(value string) (string, error) {
	if len(m.cookieKey) == 0 {
		return "", domain.ErrMisconfigured
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cookieKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.clock.Now))
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthenticated
	}
	return claims.Subject, nil
}
