package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const minEntropyLen = 10

// ChallengePolicy holds the issuer and verifier constants.
type ChallengePolicy struct {
	Difficulty   int
	TTL          time.Duration
	MinSolveTime time.Duration
	ClockSkew    time.Duration
}

func DefaultChallengePolicy() ChallengePolicy {
	return ChallengePolicy{
		Difficulty:   3,
		TTL:          5 * time.Minute,
		MinSolveTime: 300 * time.Millisecond,
		ClockSkew:    time.Minute,
	}
}

// ChallengeService mints signed proof-of-work challenges and verifies solutions.
// A nil key makes every call fail closed.
type ChallengeService struct {
	repo    ports.ChallengeRepository
	limiter ports.RateLimiter
	key     []byte
	policy  ChallengePolicy
	clock   ports.Clock
	metrics ports.Metrics
	log     logging.Logger
}

func NewChallengeService(repo ports.ChallengeRepository, limiter ports.RateLimiter, key []byte, policy ChallengePolicy, clock ports.Clock, metrics ports.Metrics, log logging.Logger) *ChallengeService {
	return &ChallengeService{
		repo:    repo,
		limiter: limiter,
		key:     key,
		policy:  policy,
		clock:   clock,
		metrics: metricsOrNop(metrics),
		log:     log,
	}
}

// Issue returns a fresh challenge for ip, or domain.ErrRateLimited when the
// ip has asked for too many.
func (s *ChallengeService) Issue(ctx context.Context, ip, userAgent string) (*domain.Challenge, error) {
	if len(s.key) == 0 {
		s.log.Error(ctx, "challenge issuer has no server secret")
		return nil, domain.ErrMisconfigured
	}

	now := s.clock.Now()
	if !s.limiter.Allow("challenge:"+ip, now) {
		return nil, domain.ErrRateLimited
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	nonce, err := randomHex(16)
	if err != nil {
		return nil, err
	}

	c := &domain.Challenge{
		ID:         id.String(),
		Nonce:      nonce,
		Difficulty: s.policy.Difficulty,
		ExpiresAt:  now.Add(s.policy.TTL).UnixMilli(),
		IP:         ip,
		CreatedAt:  now.UnixMilli(),
	}
	c.Signature = s.sign(c)
	if userAgent != "" {
		c.UAHash = sha256Hex(userAgent)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.metrics.ChallengeIssued()
	return c, nil
}

func (s *ChallengeService) sign(c *domain.Challenge) string {
	return hmacHex(s.key, strings.Join([]string{
		c.ID,
		c.Nonce,
		strconv.FormatInt(c.ExpiresAt, 10),
		strconv.Itoa(c.Difficulty),
		c.IP,
	}, "|"))
}

// Verify checks sub against its challenge and consumes the challenge on success.
func (s *ChallengeService) Verify(ctx context.Context, sub domain.ProofSubmission) domain.VerifyResult {
	res := s.verify(ctx, sub)
	if res.Valid {
		s.metrics.ProofVerified("ok")
		return res
	}
	s.metrics.ProofVerified(res.Reason)
	if res.Reason == domain.ReasonMisconfigured {
		s.log.Error(ctx, "proof verifier has no server secret")
	} else {
		s.log.Warn(ctx, "proof rejected", "reason", res.Reason, "challenge_id", sub.ChallengeID, "ip", sub.IP)
	}
	return res
}

func (s *ChallengeService) verify(ctx context.Context, sub domain.ProofSubmission) domain.VerifyResult {
	if len(s.key) == 0 {
		return reject(domain.ReasonMisconfigured)
	}

	c, err := s.repo.Get(ctx, sub.ChallengeID)
	if err != nil {
		s.log.Error(ctx, "challenge lookup failed", "error", err)
		return reject(domain.ReasonInternal)
	}
	if c == nil {
		return reject(domain.ReasonNotFound)
	}

	now := s.clock.Now().UnixMilli()
	if now > c.ExpiresAt {
		if _, err := s.repo.Delete(ctx, c.ID); err != nil {
			s.log.Warn(ctx, "failed to delete expired challenge", "error", err)
		}
		return reject(domain.ReasonExpired)
	}

	if !equalHex(s.sign(c), c.Signature) {
		return reject(domain.ReasonInvalidSignature)
	}

	if c.UAHash != "" && !equalHex(sha256Hex(sub.UserAgent), c.UAHash) {
		return reject(domain.ReasonUAMismatch)
	}

	if abs64(now-sub.Timing) > s.policy.ClockSkew.Milliseconds() {
		return reject(domain.ReasonClockSkew)
	}

	if now-c.CreatedAt < s.policy.MinSolveTime.Milliseconds() {
		return reject(domain.ReasonTooFast)
	}

	if len(sub.Entropy) < minEntropyLen {
		return reject(domain.ReasonInvalidEntropy)
	}
	if sub.Counter < 0 || sub.Counter > MaxCounter {
		return reject(domain.ReasonInvalidCounter)
	}

	expected := ProofHash(c.ID, c.Nonce, sub.Timing, sub.Entropy, sub.Counter)
	if !MeetsDifficulty(expected, c.Difficulty) {
		return reject(domain.ReasonInsufficientWork)
	}
	if !equalHex(expected, strings.ToLower(sub.Proof)) {
		return reject(domain.ReasonProofMismatch)
	}

	// Mobile networks rotate addresses mid-solve; the binding is advisory here.
	if c.IP != sub.IP {
		s.log.Info(ctx, "challenge solved from a different ip", "challenge_id", c.ID, "issued_to", c.IP, "ip", sub.IP)
	}

	deleted, err := s.repo.Delete(ctx, c.ID)
	if err != nil {
		s.log.Error(ctx, "challenge consume failed", "error", err)
		return reject(domain.ReasonInternal)
	}
	if !deleted {
		return reject(domain.ReasonNotFound)
	}
	return domain.VerifyResult{Valid: true}
}

func reject(reason string) domain.VerifyResult {
	return domain.VerifyResult{Reason: reason}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
