package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"golang.org/x/crypto/hkdf"
)

// Key purposes derived from SERVER_SECRET.
const (
	PurposeChallenge     = "challenge"
	PurposeTrap          = "trap"
	PurposeSessionCookie = "session-cookie"
)

// DeriveKey expands the server secret into an independent 32-byte subkey per purpose.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, domain.ErrMisconfigured
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("link-guard/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func hmacHex(key []byte, parts ...string) string {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		_, _ = mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares two hex strings in constant time.
func equalHex(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
