package services

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const (
	tokenPrefixLen   = 16
	reputationWindow = time.Hour
)

// ReplayGuard deduplicates CAPTCHA tokens and whole requests, and keeps the
// suspicious-IP log that escalates to a temporary block.
type ReplayGuard struct {
	tokens     ports.ReplayStore
	requests   ports.ReplayStore
	suspicious ports.SuspiciousRepository
	threshold  int
	clock      ports.Clock
	log        logging.Logger
}

func NewReplayGuard(tokens, requests ports.ReplayStore, suspicious ports.SuspiciousRepository, threshold int, clock ports.Clock, log logging.Logger) *ReplayGuard {
	return &ReplayGuard{
		tokens:     tokens,
		requests:   requests,
		suspicious: suspicious,
		threshold:  threshold,
		clock:      clock,
		log:        log,
	}
}

// IsUsed reports whether token was seen inside the replay window.
func (g *ReplayGuard) IsUsed(ctx context.Context, token string) bool {
	return g.tokens.Contains(sha256Hex(token), g.clock.Now())
}

// MarkUsed claims token. Losing the claim to a concurrent request counts as reuse.
func (g *ReplayGuard) MarkUsed(ctx context.Context, token, ip string) error {
	if g.tokens.Claim(sha256Hex(token), g.clock.Now()) {
		return nil
	}
	g.Flag(ctx, ip, "token_reused")
	return domain.Reject(domain.CodeTokenReused, "captcha token claimed concurrently", nil)
}

// SeenRequest claims the (slug, challenge, token prefix) fingerprint and
// reports true when it was already claimed.
func (g *ReplayGuard) SeenRequest(ctx context.Context, slug, challengeID, token string) bool {
	if len(token) > tokenPrefixLen {
		token = token[:tokenPrefixLen]
	}
	key := sha256Hex(slug + "|" + challengeID + "|" + token)
	return !g.requests.Claim(key, g.clock.Now())
}

// Flag appends a suspicious-IP entry. Storage errors are logged, not returned.
func (g *ReplayGuard) Flag(ctx context.Context, ip, reason string) {
	entry := &domain.SuspiciousIP{IP: ip, Reason: reason, CreatedAt: g.clock.Now()}
	if err := g.suspicious.Add(ctx, entry); err != nil {
		g.log.Error(ctx, "failed to record suspicious ip", "ip", ip, "reason", reason, "error", err)
		return
	}
	g.log.Warn(ctx, "suspicious activity", "ip", ip, "reason", reason)
}

// IsBlocked reports whether ip reached the suspicious-entry threshold in the last hour.
func (g *ReplayGuard) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := g.suspicious.CountSince(ctx, ip, g.clock.Now().Add(-reputationWindow))
	if err != nil {
		return false, err
	}
	return n >= g.threshold, nil
}
