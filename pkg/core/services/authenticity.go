package services

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// AuthenticityValidator runs the cheap per-request checks that come before
// any stateful verification.
type AuthenticityValidator struct {
	signingKey []byte
	maxAge     time.Duration
	futureSkew time.Duration
	clock      ports.Clock
}

func NewAuthenticityValidator(signingKey []byte, maxAge, futureSkew time.Duration, clock ports.Clock) *AuthenticityValidator {
	return &AuthenticityValidator{
		signingKey: signingKey,
		maxAge:     maxAge,
		futureSkew: futureSkew,
		clock:      clock,
	}
}

// CheckOrigin requires Origin or Referer to carry exactly the request host and
// Sec-Fetch-Site, when sent, to be same-origin.
func (v *AuthenticityValidator) CheckOrigin(host, origin, referer, secFetchSite string) error {
	if host == "" {
		return domain.Reject(domain.CodeOrigin, "request has no host", domain.ErrDirectAccess)
	}
	if !sameHost(origin, host) && !sameHost(referer, host) {
		return domain.Reject(domain.CodeOrigin, "origin and referer do not match host", domain.ErrDirectAccess)
	}
	if secFetchSite != "" && secFetchSite != "same-origin" {
		return domain.Reject(domain.CodeOrigin, "sec-fetch-site "+secFetchSite, domain.ErrDirectAccess)
	}
	return nil
}

func sameHost(raw, host string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, host)
}

// VerifyBody checks the optional HMAC over timestamp + "." + canonical JSON.
// Without either header it is a no-op; any present-but-invalid signature fails.
func (v *AuthenticityValidator) VerifyBody(body []byte, timestamp, signature string) error {
	if timestamp == "" && signature == "" {
		return nil
	}
	if timestamp == "" || signature == "" {
		return domain.Reject(domain.CodeTampered, "incomplete signature headers", nil)
	}
	if len(v.signingKey) == 0 {
		return domain.Reject(domain.CodeTampered, "signed request but no signing key configured", domain.ErrMisconfigured)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.Reject(domain.CodeTampered, "timestamp malformed", nil)
	}
	age := v.clock.Now().UnixMilli() - ts
	if age > v.maxAge.Milliseconds() {
		return domain.Reject(domain.CodeTampered, "signed request too old", nil)
	}
	if -age > v.futureSkew.Milliseconds() {
		return domain.Reject(domain.CodeTampered, "signed request from the future", nil)
	}

	canon, err := CanonicalJSON(body)
	if err != nil {
		return domain.Reject(domain.CodeTampered, "body is not json", nil)
	}
	if !equalHex(hmacHex(v.signingKey, timestamp, ".", canon), strings.ToLower(signature)) {
		return domain.Reject(domain.CodeTampered, "body signature mismatch", nil)
	}
	return nil
}

// CanonicalJSON re-encodes body with sorted object keys and no HTML escaping.
// An empty body canonicalises to "".
func CanonicalJSON(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// SignBody produces the signature VerifyBody expects. Used by clients and tests.
func SignBody(key []byte, timestamp string, body []byte) (string, error) {
	canon, err := CanonicalJSON(body)
	if err != nil {
		return "", err
	}
	return hmacHex(key, timestamp, ".", canon), nil
}
