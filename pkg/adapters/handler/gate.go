package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	altcha "github.com/altcha-org/altcha-lib-go"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const sessionCookie = "__lg_session"

// AltchaIssuer hands out challenges for the self-hosted CAPTCHA widget.
type AltchaIssuer interface {
	Challenge() (altcha.Challenge, error)
}

type GateHandler struct {
	challenges   ports.ChallengeService
	gate         ports.GateService
	sessions     ports.SessionService
	altcha       AltchaIssuer
	frontendURL  string
	isProduction bool
	log          logging.Logger
}

func NewGateHandler(challenges ports.ChallengeService, gate ports.GateService, sessions ports.SessionService, altcha AltchaIssuer, frontendURL string, isProduction bool, log logging.Logger) *GateHandler {
	return &GateHandler{
		challenges:   challenges,
		gate:         gate,
		sessions:     sessions,
		altcha:       altcha,
		frontendURL:  frontendURL,
		isProduction: isProduction,
		log:          log,
	}
}

// flexInt accepts a JSON number or a numeric string. Anything else decodes
// to -1 so the verifier rejects it with a precise reason.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		*f = -1
		return nil
	}
	*f = flexInt(v)
	return nil
}

// RedirectRequest is the body of POST /api/redirect.
type RedirectRequest struct {
	Slug         string  `json:"slug"`
	CaptchaToken string  `json:"captchaToken"`
	ChallengeID  string  `json:"challenge_id"`
	Timing       flexInt `json:"timing"`
	Entropy      string  `json:"entropy"`
	Counter      flexInt `json:"counter"`
}

type RedirectResponse struct {
	URL    string `json:"url"`
	Action string `json:"action"`
}

// Challenge issues a proof-of-work challenge to the caller.
func (h *GateHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.challenges.Issue(r.Context(), clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, c)
}

func (h *GateHandler) AltchaChallenge(w http.ResponseWriter, r *http.Request) {
	if h.altcha == nil {
		writeError(w, r, h.log, domain.ErrNotFound)
		return
	}
	c, err := h.altcha.Challenge()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, c)
}

// Redirect runs the verification pipeline and returns the next hop.
func (h *GateHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	var req RedirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, domain.Reject(domain.CodeBadRequest, "malformed body", domain.ErrInvalidInput))
		return
	}

	res, err := h.gate.Resolve(r.Context(), domain.GateRequest{
		Visitor:      visitorFrom(r),
		Slug:         req.Slug,
		CaptchaToken: req.CaptchaToken,
		Proof: domain.ProofSubmission{
			ChallengeID: req.ChallengeID,
			Proof:       r.Header.Get("X-Client-Proof"),
			Timing:      int64(req.Timing),
			Entropy:     req.Entropy,
			Counter:     int64(req.Counter),
		},
		CookieToken:   h.sessionToken(r),
		BypassCaptcha: userFromContext(r.Context()).IsAdmin(),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if res.Action == domain.ActionRedirect {
		h.setSessionCookie(w, r, res.Session)
	}
	writeJSON(w, http.StatusOK, RedirectResponse{URL: res.URL, Action: res.Action})
}

// Resume serves /s/{token}: the provider callback or a repeat visit.
func (h *GateHandler) Resume(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		writeError(w, r, h.log, domain.ErrInvalidInput)
		return
	}
	res, err := h.sessions.Resume(r.Context(), token, h.sessionToken(r), visitorFrom(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.follow(w, r, res)
}

// Go serves /go/{slug} for visitors holding a session cookie. Everyone else
// goes through the verification page.
func (h *GateHandler) Go(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	token := h.sessionToken(r)
	if token == "" {
		http.Redirect(w, r, h.frontendURL+"/l/"+url.PathEscape(slug), http.StatusFound)
		return
	}
	res, err := h.sessions.Visit(r.Context(), slug, token, visitorFrom(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.follow(w, r, res)
}

func (h *GateHandler) follow(w http.ResponseWriter, r *http.Request, res *domain.Resolution) {
	if res.Action == domain.ActionRedirect {
		h.setSessionCookie(w, r, res.Session)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.URL, http.StatusFound)
}

func (h *GateHandler) sessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	token, err := h.sessions.ParseSessionCookie(c.Value)
	if err != nil {
		return ""
	}
	return token
}

func (h *GateHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, s *domain.Session) {
	if s == nil {
		return
	}
	value, expires, err := h.sessions.SessionCookie(s)
	if err != nil {
		logging.FromContext(r.Context(), h.log).Error(r.Context(), "cannot sign session cookie", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteStrictMode,
	})
}
