package domain

import "time"

type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
)

// Session is one visitor's pass through a protected link
type Session struct {
	Token       string        `json:"token"`
	LinkID      int64         `json:"link_id"`
	OwnerID     string        `json:"owner_id"`
	TargetURL   string        `json:"target_url"`
	IPAddress   string        `json:"ip_address"`
	Status      SessionStatus `json:"status"`
	ShortLink   string        `json:"short_link,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	MaxUses     int           `json:"max_uses"`
	UsageCount  int           `json:"usage_count"`
	Used        bool          `json:"used"`
	CreatedAt   time.Time     `json:"created_at"`
	ActivatedAt *time.Time    `json:"activated_at,omitempty"`
}

// Exhausted reports whether the session may no longer yield the target.
func (s *Session) Exhausted(now time.Time, ttl time.Duration) bool {
	return s.Used || s.UsageCount >= s.MaxUses || now.Sub(s.CreatedAt) >= ttl
}

// Resolution actions
const (
	ActionRedirect = "redirect" // URL is the final target
	ActionShorten  = "shorten"  // URL is an intermediate provider link
)

// Resolution tells the caller where to send the visitor next.
type Resolution struct {
	Action  string   `json:"action"`
	URL     string   `json:"url"`
	Session *Session `json:"-"`
}
