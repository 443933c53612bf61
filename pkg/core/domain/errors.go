package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("security check failed")
	ErrDirectAccess        = errors.New("direct access forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrDuplicateRequest    = errors.New("request already processed")
	ErrSessionGone         = errors.New("session expired or already completed")
	ErrRateLimited         = errors.New("too many requests")
	ErrUpstream            = errors.New("upstream provider failure")
	ErrMisconfigured       = errors.New("verification unavailable")
	ErrTokenReused         = errors.New("token already used")
	ErrCredentialsRequired = errors.New("provider credentials required")
)

// Public rejection codes returned alongside the error category.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeDuplicate           = "DUPLICATE"
	CodeSessionGone         = "SESSION_GONE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeBlocked             = "BLOCKED"
	CodeUpstream            = "UPSTREAM"
	CodeInternal            = "INTERNAL"
	CodeForbidden           = "FORBIDDEN"
	CodeOrigin              = "ORIGIN"
	CodeTampered            = "TAMPERED"
	CodeChallengeFailed     = "CHALLENGE_FAILED"
	CodeCaptchaFailed       = "CAPTCHA_FAILED"
	CodeTokenReused         = "TOKEN_REUSED"
	CodeBotDetected         = "BOT_DETECTED"
	CodeHoneypot            = "HONEYPOT"
	CodeResourceTrap        = "RESOURCE_TRAP"
	CodeInvalidProofFmt     = "INVALID_PROOF_FMT"
	CodeExpiredProof        = "EXPIRED_PROOF"
	CodeInvalidSig          = "INVALID_SIG"
	CodeIPMismatch          = "IP_MISMATCH"
	CodeCookieMismatch      = "COOKIE_MISMATCH"
	CodeCredentialsRequired = "CREDENTIALS_REQUIRED"
)

// SecurityError is a rejection with a public code and a private reason.
// Only Code and the wrapped category are shown to clients.
type SecurityError struct {
	Code   string
	Reason string
	Err    error
}

func (e *SecurityError) Error() string {
	if e.Reason != "" {
		return e.Err.Error() + ": " + e.Reason
	}
	return e.Err.Error()
}

func (e *SecurityError) Unwrap() error { return e.Err }

// Reject builds a SecurityError. A nil err defaults to ErrForbidden.
func Reject(code, reason string, err error) *SecurityError {
	if err == nil {
		err = ErrForbidden
	}
	return &SecurityError{Code: code, Reason: reason, Err: err}
}
