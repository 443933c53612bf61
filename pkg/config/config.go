package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider is one upstream shortening API, in priority order.
type Provider struct {
	Name   string
	APIURL string
}

type Config struct {
	Port               string
	DatabaseURL        string
	AppEnv             string
	BaseURL            string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	JWTSecret          string
	FrontendURL        string
	AllowedEmails      []string
	AdminEmails        []string
	LogLevel           string
	MetricsEnabled     bool

	// Verification pipeline
	ServerSecret      string
	SecurityProfile   string
	CaptchaMode       string
	CaptchaTestMode   bool
	RecaptchaSecret   string
	RecaptchaMinScore float64
	TurnstileSecret   string
	AltchaHMACKey     string
	RequestSigningKey string
	Providers         []Provider

	// Policy
	ChallengeDifficulty   int
	ChallengeTTL          time.Duration
	ChallengeRateLimit    int
	ChallengeRateWindow   time.Duration
	MinSolveTime          time.Duration
	ClockSkew             time.Duration
	SessionTTL            time.Duration
	SessionMaxUses        int
	CallbackMinDelay      time.Duration
	QuickCallbackMinDelay time.Duration
	ReplayWindow          time.Duration
	DedupWindow           time.Duration
	BodyMaxAge            time.Duration
	BodyFutureSkew        time.Duration
	SuspiciousThreshold   int
	HTTPTimeout           time.Duration
	ReaperInterval        time.Duration
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "file:db.sqlite"),
		AppEnv:             getEnv("APP_ENV", "local"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:8080"),
		AllowedEmails:      getEnvList("ALLOWED_EMAILS"),
		AdminEmails:        getEnvList("ADMIN_EMAILS"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),

		ServerSecret:      getEnv("SERVER_SECRET", ""),
		SecurityProfile:   getEnv("SECURITY_PROFILE", "standard"),
		CaptchaMode:       getEnv("CAPTCHA_MODE", "turnstile"),
		CaptchaTestMode:   getEnvBool("CAPTCHA_TEST_MODE", false),
		RecaptchaSecret:   getEnv("RECAPTCHA_SECRET", ""),
		RecaptchaMinScore: getEnvFloat("RECAPTCHA_MIN_SCORE", 0.5),
		TurnstileSecret:   getEnv("TURNSTILE_SECRET", ""),
		AltchaHMACKey:     getEnv("ALTCHA_HMAC_KEY", ""),
		RequestSigningKey: getEnv("REQUEST_SIGNING_KEY", ""),
		Providers:         parseProviders(getEnv("SHORTENER_PROVIDERS", "")),

		ChallengeDifficulty:   getEnvInt("CHALLENGE_DIFFICULTY", 3),
		ChallengeTTL:          getEnvDuration("CHALLENGE_TTL", 5*time.Minute),
		ChallengeRateLimit:    getEnvInt("CHALLENGE_RATE_LIMIT", 10),
		ChallengeRateWindow:   getEnvDuration("CHALLENGE_RATE_WINDOW", time.Minute),
		MinSolveTime:          getEnvDuration("MIN_SOLVE_TIME", 300*time.Millisecond),
		ClockSkew:             getEnvDuration("CLOCK_SKEW", time.Minute),
		SessionTTL:            getEnvDuration("SESSION_TTL", 6*time.Minute),
		SessionMaxUses:        getEnvInt("SESSION_MAX_USES", 3),
		CallbackMinDelay:      getEnvDuration("CALLBACK_MIN_DELAY", 75*time.Second),
		QuickCallbackMinDelay: getEnvDuration("QUICK_CALLBACK_MIN_DELAY", 5*time.Second),
		ReplayWindow:          getEnvDuration("REPLAY_WINDOW", 5*time.Minute),
		DedupWindow:           getEnvDuration("DEDUP_WINDOW", 2*time.Minute),
		BodyMaxAge:            getEnvDuration("BODY_MAX_AGE", 30*time.Second),
		BodyFutureSkew:        getEnvDuration("BODY_FUTURE_SKEW", 5*time.Second),
		SuspiciousThreshold:   getEnvInt("SUSPICIOUS_THRESHOLD", 5),
		HTTPTimeout:           getEnvDuration("HTTP_TIMEOUT", 8*time.Second),
		ReaperInterval:        getEnvDuration("REAPER_INTERVAL", time.Minute),
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StrictProfile enables the resource trap and honeypot checks.
func (c *Config) StrictProfile() bool {
	return c.SecurityProfile == "strict"
}

func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name)
	}
	return names
}

// parseProviders reads "name=url,name=url". Malformed entries are skipped.
func parseProviders(raw string) []Provider {
	var out []Provider
	for _, part := range strings.Split(raw, ",") {
		name, apiURL, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || apiURL == "" {
			continue
		}
		out = append(out, Provider{Name: strings.TrimSpace(name), APIURL: strings.TrimSpace(apiURL)})
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
