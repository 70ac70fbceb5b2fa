package domain

import "time"

// CatalogWord is one entry in the read-only word catalog cache. The catalog is
// pull-only: rows are keyed by their server ID, refreshed incrementally by the
// server's update timestamp, and removed when the server reports deletions.
// It never goes through business-key reconciliation or push.
type CatalogWord struct {
	ServerID        string    `json:"server_id"`
	ParentID        string    `json:"parent_id,omitempty"` // empty for global words
	Grade           int       `json:"grade"`
	WordText        string    `json:"word_text"`
	Definition      string    `json:"definition,omitempty"`
	Example         string    `json:"example,omitempty"`
	Custom          bool      `json:"custom"`
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}

// Validate checks the record's invariants.
func (cw *CatalogWord) Validate() error {
	if cw.ServerID == "" {
		return ErrEmptyClientID
	}
	if cw.WordText == "" {
		return ErrEmptyWordText
	}
	return nil
}
