package model

import "time"

// Analysis is the derived annotation record for one email. At most one
// exists per email; re-analysis overwrites it in place.
type Analysis struct {
	ID            int       `json:"id"`
	EmailID       int       `json:"email_id"`
	Category      string    `json:"category"`
	PriorityScore float64   `json:"priority_score"`
	Summary       string    `json:"summary"`
	ProcessedAt   time.Time `json:"processed_at"`
}
