package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_SECRET", "")
	t.Setenv("SHORTENER_PROVIDERS", "")

	cfg := Load()

	if cfg.ChallengeDifficulty != 3 {
		t.Errorf("difficulty = %d, want 3", cfg.ChallengeDifficulty)
	}
	if cfg.SessionMaxUses != 3 {
		t.Errorf("max uses = %d, want 3", cfg.SessionMaxUses)
	}
	if cfg.SessionTTL != 6*time.Minute {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
	if cfg.CallbackMinDelay != 75*time.Second || cfg.QuickCallbackMinDelay != 5*time.Second {
		t.Errorf("callback delays = %v / %v", cfg.CallbackMinDelay, cfg.QuickCallbackMinDelay)
	}
	if cfg.MinSolveTime != 300*time.Millisecond {
		t.Errorf("min solve time = %v", cfg.MinSolveTime)
	}
	if cfg.HTTPTimeout != 8*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.StrictProfile() {
		t.Error("default profile should be standard")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECURITY_PROFILE", "strict")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("CHALLENGE_DIFFICULTY", "4")
	t.Setenv("CAPTCHA_TEST_MODE", "true")
	t.Setenv("RECAPTCHA_MIN_SCORE", "0.7")
	t.Setenv("ADMIN_EMAILS", "a@example.com, b@example.com")
	t.Setenv("SESSION_MAX_USES", "not-a-number")

	cfg := Load()

	if !cfg.IsProduction() || !cfg.StrictProfile() {
		t.Error("expected production + strict")
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
	if cfg.ChallengeDifficulty != 4 {
		t.Errorf("difficulty = %d", cfg.ChallengeDifficulty)
	}
	if !cfg.CaptchaTestMode || cfg.RecaptchaMinScore != 0.7 {
		t.Errorf("captcha settings = %v / %v", cfg.CaptchaTestMode, cfg.RecaptchaMinScore)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@example.com" {
		t.Errorf("admin emails = %v", cfg.AdminEmails)
	}
	if cfg.SessionMaxUses != 3 {
		t.Errorf("invalid int should fall back, got %d", cfg.SessionMaxUses)
	}
}

func TestParseProviders(t *testing.T) {
	got := parseProviders("gplinks=https://api.gplinks.com/api, broken ,shrinkme=https://shrinkme.io/api,=x")
	if len(got) != 2 {
		t.Fatalf("got %d providers: %+v", len(got), got)
	}
	if got[0].Name != "gplinks" || got[1].APIURL != "https://shrinkme.io/api" {
		t.Errorf("unexpected providers: %+v", got)
	}
}
