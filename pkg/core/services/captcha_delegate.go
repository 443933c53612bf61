package services

import (
	"context"
	"errors"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// CAPTCHA modes
const (
	CaptchaGeneric    = "generic"
	CaptchaTurnstile  = "turnstile"
	CaptchaSelfHosted = "selfhosted"
)

// CaptchaDelegate dispatches to the verifier selected by mode.
type CaptchaDelegate struct {
	mode        string
	verifiers   map[string]ports.CaptchaVerifier
	allowBypass bool
	log         logging.Logger
}

// NewCaptchaDelegate builds a delegate. allowBypass must only be true outside
// production with the test mode switched on.
func NewCaptchaDelegate(mode string, verifiers map[string]ports.CaptchaVerifier, allowBypass bool, log logging.Logger) *CaptchaDelegate {
	return &CaptchaDelegate{mode: mode, verifiers: verifiers, allowBypass: allowBypass, log: log}
}

// Verify checks token with the configured mode. bypass is the caller's
// admin claim and only counts when the delegate allows bypassing.
func (d *CaptchaDelegate) Verify(ctx context.Context, token, clientIP string, bypass bool) bool {
	if bypass && d.allowBypass {
		d.log.Warn(ctx, "captcha bypassed in test mode", "ip", clientIP)
		return true
	}
	return d.VerifyMode(ctx, d.mode, token, clientIP)
}

func (d *CaptchaDelegate) VerifyMode(ctx context.Context, mode, token, clientIP string) bool {
	v, ok := d.verifiers[mode]
	if !ok {
		d.log.Error(ctx, "unknown captcha mode", "mode", mode)
		return false
	}
	if token == "" {
		return false
	}

	ok, err := v.Verify(ctx, token, clientIP)
	switch {
	case errors.Is(err, domain.ErrMisconfigured):
		d.log.Error(ctx, "captcha verifier has no secret", "mode", mode)
		return false
	case err != nil:
		d.log.Warn(ctx, "captcha verification failed", "mode", mode, "error", err)
		return false
	}
	return ok
}
