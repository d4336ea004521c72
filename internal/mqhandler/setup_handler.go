package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/service"
	"intellinbox/pkg/util"
)

// SetupInboxHandler consumes inbox.setup jobs, running the historical
// sync for a newly registered or reset inbox.
type SetupInboxHandler struct {
	svc          *service.SyncService
	deduper      DedupGate
	retryCounter *util.RetryCounter
	dlq          DeadLetterSink
	logger       *zap.Logger
}

func NewSetupInboxHandler(
	svc *service.SyncService,
	deduper DedupGate,
	retryCounter *util.RetryCounter,
	dlq DeadLetterSink,
	logger *zap.Logger,
) *SetupInboxHandler {
	return &SetupInboxHandler{
		svc:          svc,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

func (h *SetupInboxHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.SetupInboxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Malformed setup payload, dropping",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		deadLetterSync(h.dlq, mqcontracts.RouteSetupInbox, raw, err, h.logger)
		return nil
	}

	return runSync(ctx, "setup", mqcontracts.RouteSetupInbox, raw, p.InboxID,
		h.deduper, h.retryCounter, h.dlq, h.logger,
		func(ctx context.Context) (int, error) {
			return h.svc.SyncHistory(ctx, p.InboxID, p.SyncDays)
		})
}
