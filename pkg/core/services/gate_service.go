package services

import (
	"context"
	"errors"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

type captchaChecker interface {
	Verify(ctx context.Context, token, clientIP string, bypass bool) bool
}

type sessionVisitor interface {
	Visit(ctx context.Context, slug, token string, v domain.Visitor) (*domain.Resolution, error)
}

// GateService runs the stateful checks of a redirect request, cheapest
// first, and hands survivors to the session manager.
type GateService struct {
	challenges ports.ChallengeService
	captcha    captchaChecker
	replay     *ReplayGuard
	sessions   sessionVisitor
	metrics    ports.Metrics
	log        logging.Logger
}

func NewGateService(challenges ports.ChallengeService, captcha captchaChecker, replay *ReplayGuard, sessions sessionVisitor, metrics ports.Metrics, log logging.Logger) *GateService {
	return &GateService{
		challenges: challenges,
		captcha:    captcha,
		replay:     replay,
		sessions:   sessions,
		metrics:    metricsOrNop(metrics),
		log:        log,
	}
}

func (g *GateService) Resolve(ctx context.Context, req domain.GateRequest) (*domain.Resolution, error) {
	res, err := g.resolve(ctx, req)
	if err != nil {
		g.metrics.GateRejected(ErrorCode(err))
	}
	return res, err
}

func (g *GateService) resolve(ctx context.Context, req domain.GateRequest) (*domain.Resolution, error) {
	ip := req.Visitor.IP

	blocked, err := g.replay.IsBlocked(ctx, ip)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, domain.Reject(domain.CodeBlocked, "suspicious activity threshold reached", domain.ErrRateLimited)
	}

	if req.Slug == "" || req.Proof.ChallengeID == "" || (req.CaptchaToken == "" && !req.BypassCaptcha) {
		return nil, domain.Reject(domain.CodeBadRequest, "missing required fields", domain.ErrInvalidInput)
	}

	if g.replay.SeenRequest(ctx, req.Slug, req.Proof.ChallengeID, req.CaptchaToken) {
		g.replay.Flag(ctx, ip, "duplicate_request")
		return nil, domain.Reject(domain.CodeDuplicate, "request fingerprint already seen", domain.ErrDuplicateRequest)
	}

	if req.CaptchaToken != "" {
		if g.replay.IsUsed(ctx, req.CaptchaToken) {
			g.replay.Flag(ctx, ip, "captcha_token_reused")
			return nil, domain.Reject(domain.CodeTokenReused, "captcha token replayed", nil)
		}
		if err := g.replay.MarkUsed(ctx, req.CaptchaToken, ip); err != nil {
			return nil, err
		}
	}

	proof := req.Proof
	proof.IP = ip
	proof.UserAgent = req.Visitor.UserAgent
	if vr := g.challenges.Verify(ctx, proof); !vr.Valid {
		if vr.Reason == domain.ReasonMisconfigured {
			return nil, domain.Reject(domain.CodeChallengeFailed, vr.Reason, domain.ErrMisconfigured)
		}
		return nil, domain.Reject(domain.CodeChallengeFailed, vr.Reason, nil)
	}

	if !g.captcha.Verify(ctx, req.CaptchaToken, ip, req.BypassCaptcha) {
		return nil, domain.Reject(domain.CodeCaptchaFailed, "captcha rejected", nil)
	}

	return g.sessions.Visit(ctx, req.Slug, req.CookieToken, req.Visitor)
}

// ErrorCode returns the public code carried by err, or a code derived from
// its sentinel.
func ErrorCode(err error) string {
	var se *domain.SecurityError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.CodeBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return domain.CodeUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return domain.CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return domain.CodeConflict
	case errors.Is(err, domain.ErrDuplicateRequest):
		return domain.CodeDuplicate
	case errors.Is(err, domain.ErrSessionGone):
		return domain.CodeSessionGone
	case errors.Is(err, domain.ErrRateLimited):
		return domain.CodeRateLimited
	case errors.Is(err, domain.ErrUpstream):
		return domain.CodeUpstream
	case errors.Is(err, domain.ErrCredentialsRequired):
		return domain.CodeCredentialsRequired
	case errors.Is(err, domain.ErrTokenReused):
		return domain.CodeTokenReused
	case errors.Is(err, domain.ErrDirectAccess):
		return domain.CodeOrigin
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrMisconfigured):
		return domain.CodeForbidden
	default:
		return domain.CodeInternal
	}
}
