package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

const (
	TurnstileEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	RecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"
)

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"` // reCAPTCHA v3 only
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// SiteVerifier checks tokens against a siteverify-style endpoint
// (Cloudflare Turnstile, Google reCAPTCHA v2/v3).
type SiteVerifier struct {
	endpoint string
	secret   string
	minScore float64
	client   *http.Client
}

func NewSiteVerifier(endpoint, secret string, minScore float64, client *http.Client) *SiteVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &SiteVerifier{endpoint: endpoint, secret: secret, minScore: minScore, client: client}
}

func NewTurnstile(secret string, client *http.Client) *SiteVerifier {
	return NewSiteVerifier(TurnstileEndpoint, secret, 0, client)
}

// NewRecaptcha rejects v3 responses scoring below minScore.
func NewRecaptcha(secret string, minScore float64, client *http.Client) *SiteVerifier {
	return NewSiteVerifier(RecaptchaEndpoint, secret, minScore, client)
}

func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secret == "" {
		return false, domain.ErrMisconfigured
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Add("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var result siteVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return false, fmt.Errorf("siteverify response: %w", err)
	}

	if !result.Success {
		return false, nil
	}
	if result.Score != nil && *result.Score < v.minScore {
		return false, nil
	}
	return true, nil
}
