package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	altcha "github.com/altcha-org/altcha-lib-go"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// Altcha is the self-hosted proof-of-work CAPTCHA. It issues challenges and
// verifies the widget's base64 payload locally.
type Altcha struct {
	hmacKey string
	expires time.Duration
	clock   ports.Clock
}

func NewAltcha(hmacKey string, expires time.Duration, clock ports.Clock) *Altcha {
	return &Altcha{hmacKey: hmacKey, expires: expires, clock: clock}
}

// Challenge returns a new signed challenge for the widget.
func (a *Altcha) Challenge() (altcha.Challenge, error) {
	if a.hmacKey == "" {
		return altcha.Challenge{}, domain.ErrMisconfigured
	}
	exp := a.clock.Now().Add(a.expires)
	return altcha.CreateChallenge(altcha.ChallengeOptions{
		HMACKey: a.hmacKey,
		Expires: &exp,
	})
}

func (a *Altcha) Verify(_ context.Context, token, _ string) (bool, error) {
	if a.hmacKey == "" {
		return false, domain.ErrMisconfigured
	}
	payload, ok := decodePayload(token)
	if !ok {
		return false, nil
	}
	return altcha.VerifySolution(payload, a.hmacKey, true)
}

// decodePayload accepts the widget's base64 JSON or raw JSON.
func decodePayload(token string) (map[string]any, bool) {
	var data []byte
	switch {
	case token == "":
		return nil, false
	case token[0] == '{':
		data = []byte(token)
	default:
		b, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			if b, err = base64.RawStdEncoding.DecodeString(token); err != nil {
				return nil, false
			}
		}
		data = b
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return nil, false
	}
	return payload, true
}
