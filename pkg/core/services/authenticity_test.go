package services

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

func TestCheckOrigin(t *testing.T) {
	v := NewAuthenticityValidator(nil, 30*time.Second, 5*time.Second, newFakeClock())

	tests := []struct {
		name                         string
		host, origin, referer, fetch string
		wantErr                      bool
	}{
		{"origin matches", "guard.example", "https://guard.example", "", "", false},
		{"referer matches", "guard.example", "", "https://guard.example/go/abc", "same-origin", false},
		{"neither header", "guard.example", "", "", "", true},
		{"foreign origin", "guard.example", "https://evil.example", "", "", true},
		{"origin embeds host as suffix", "guard.example", "https://evil-guard.example", "", "", true},
		{"referer embeds host in path", "guard.example", "", "https://evil.example/guard.example", "", true},
		{"origin host differs in case", "guard.example", "https://Guard.Example", "", "", false},
		{"port must match", "guard.example:8443", "https://guard.example", "", "", true},
		{"cross-site fetch", "guard.example", "https://guard.example", "", "cross-site", true},
		{"no host", "", "https://guard.example", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckOrigin(tt.host, tt.origin, tt.referer, tt.fetch)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrDirectAccess)
			assert.Equal(t, domain.CodeOrigin, ErrorCode(err))
		})
	}
}

func TestVerifyBody(t *testing.T) {
	clock := newFakeClock()
	key := []byte("body-signing-key")
	v := NewAuthenticityValidator(key, 30*time.Second, 5*time.Second, clock)

	body := []byte(`{"slug":"abc","challenge_id":"c1","nested":{"b":2,"a":1},"url":"https://x.example/?a=1&b=<2>"}`)
	at := func(d time.Duration) string {
		return strconv.FormatInt(clock.Now().Add(d).UnixMilli(), 10)
	}
	sign := func(ts string, b []byte) string {
		sig, err := SignBody(key, ts, b)
		require.NoError(t, err)
		return sig
	}

	t.Run("unsigned passes", func(t *testing.T) {
		assert.NoError(t, v.VerifyBody(body, "", ""))
	})

	t.Run("valid signature", func(t *testing.T) {
		ts := at(-2 * time.Second)
		assert.NoError(t, v.VerifyBody(body, ts, sign(ts, body)))
	})

	t.Run("key order does not matter", func(t *testing.T) {
		ts := at(0)
		reordered := []byte(`{"url":"https://x.example/?a=1&b=<2>","nested":{"a":1,"b":2},"challenge_id":"c1","slug":"abc"}`)
		assert.NoError(t, v.VerifyBody(reordered, ts, sign(ts, body)))
	})

	rejects := []struct {
		name string
		ts   string
		sig  func(ts string) string
		body []byte
	}{
		{"too old", at(-31 * time.Second), func(ts string) string { return sign(ts, body) }, body},
		{"from the future", at(6 * time.Second), func(ts string) string { return sign(ts, body) }, body},
		{"body changed", at(0), func(ts string) string { return sign(ts, body) }, []byte(`{"slug":"other"}`)},
		{"timestamp swapped", at(0), func(string) string { return sign(at(-time.Second), body) }, body},
		{"signature only", "", func(string) string { return "abc" }, body},
		{"not json", at(0), func(ts string) string { return "00" }, []byte("slug=abc")},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyBody(tt.body, tt.ts, tt.sig(tt.ts))
			assert.ErrorIs(t, err, domain.ErrForbidden)
			assert.Equal(t, domain.CodeTampered, ErrorCode(err))
		})
	}
}

func TestVerifyBody_NoKeyFailsClosed(t *testing.T) {
	v := NewAuthenticityValidator(nil, 30*time.Second, 5*time.Second, newFakeClock())

	err := v.VerifyBody([]byte(`{}`), "1", "abc")
	assert.ErrorIs(t, err, domain.ErrMisconfigured)
}

func TestCanonicalJSON(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{"b":1.50,"a":"<x>","c":[3,1]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":1.50,"c":[3,1]}`, got)

	got, err = CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
