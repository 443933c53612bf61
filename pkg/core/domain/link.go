package domain

import "time"

// Link flows select how long a visitor must spend on the provider hop
// before the callback is accepted.
const (
	FlowStandard = "standard"
	FlowQuick    = "quick"
)

// ProtectedLink is the owner-created mapping a visitor ultimately wants to reach
type ProtectedLink struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	TargetURL string    `json:"target_url"`
	Title     string    `json:"title"`
	Flow      string    `json:"flow"`
	Clicks    int64     `json:"clicks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderCredential is an owner's API key for one upstream shortening provider
type ProviderCredential struct {
	OwnerID   string    `json:"owner_id"`
	Provider  string    `json:"provider"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Masked returns a copy safe to hand back to the owner.
func (c ProviderCredential) Masked() ProviderCredential {
	if len(c.APIKey) > 4 {
		c.APIKey = "****" + c.APIKey[len(c.APIKey)-4:]
	} else {
		c.APIKey = "****"
	}
	return c
}
