package domain

import "time"

// SuspiciousIP is an append-only reputation entry
type SuspiciousIP struct {
	ID        int64     `json:"id"`
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
