package models

import "time"

// BrowserProfile is a persisted browser user-data directory for one CRM account
type BrowserProfile struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	DataPath  string    `json:"-"` // Path to the archive (internal only)
}
