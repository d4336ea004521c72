package mq

// Routing keys for the jobs exchange. One queue per job type; every job
// carries a single record identity so redeliveries stay cheap to reprocess.
const (
	RouteAnalyzeEmail = "email.analyze"
	RouteSyncInbox    = "inbox.sync"
	RouteSetupInbox   = "inbox.setup"
)

// AnalyzeEmailPayload requests analysis of a persisted email.
type AnalyzeEmailPayload struct {
	EmailID int `json:"email_id"`
}

// SyncInboxPayload requests an unseen-mail sync for an inbox.
type SyncInboxPayload struct {
	InboxID int `json:"inbox_id"`
}

// SetupInboxPayload requests a historical sync over a lookback window.
type SetupInboxPayload struct {
	InboxID  int `json:"inbox_id"`
	SyncDays int `json:"sync_days"`
}
