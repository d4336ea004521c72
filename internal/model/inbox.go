package model

import "time"

// Inbox is a monitored remote mailbox configuration. The password is the
// encrypted fernet token, never the plaintext, and is excluded from JSON.
type Inbox struct {
	ID           int        `json:"id"`
	EmailAddress string     `json:"email_address"`
	IMAPServer   string     `json:"imap_server"`
	Password     string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}
