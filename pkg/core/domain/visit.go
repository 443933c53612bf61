package domain

import "time"

// Visit is one resolution of a protected link to its target
type Visit struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"link_id"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
	IPHash    string    `json:"ip_hash"` // sha256 of the visitor IP
	CreatedAt time.Time `json:"created_at"`
}

// LinkStats represents aggregated statistics for a link
type LinkStats struct {
	TotalClicks int64            `json:"total_clicks"`
	Referrers   map[string]int64 `json:"referrers"`
	DailyClicks []DailyClick     `json:"daily_clicks"`
}

type DailyClick struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}
