package model

import "time"

// EmailStatus is the lifecycle status of an email record. Transitions are
// driven by the analysis pipeline; the reset operation may force Processing
// from any state.
type EmailStatus string

const (
	StatusPending    EmailStatus = "pending"
	StatusProcessing EmailStatus = "processing"
	StatusCompleted  EmailStatus = "completed"
	StatusFailed     EmailStatus = "failed"
)

// CanTransition reports whether the pipeline may move an email from one
// status to another. Terminal states only leave via an explicit reset,
// which is modeled as a forced transition to Processing.
func CanTransition(from, to EmailStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusProcessing
	}
	return false
}

// IsTerminal reports whether a status is terminal for the pipeline.
func (s EmailStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Email struct {
	ID         int         `json:"id"`
	InboxID    *int        `json:"inbox_id"`
	Sender     string      `json:"sender"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	MessageID  *string     `json:"message_id"`
	Status     EmailStatus `json:"status"`
	ReceivedAt time.Time   `json:"received_at"`
	Analysis   *Analysis   `json:"analysis,omitempty"`
}
