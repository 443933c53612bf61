package domain

// GateRequest is the decoded redirect request after transport checks.
type GateRequest struct {
	Visitor       Visitor
	Slug          string
	CaptchaToken  string
	Proof         ProofSubmission
	CookieToken   string
	BypassCaptcha bool
}

// Visitor identifies the client behind a request.
type Visitor struct {
	IP        string
	UserAgent string
	Referer   string
}
