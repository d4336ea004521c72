package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/service"
	"intellinbox/pkg/util"
)

// DedupGate collapses concurrent deliveries of the same job. The slot
// is held only for the duration of one run; it must not block later,
// separately requested jobs for the same record.
type DedupGate interface {
	AcquireOnce(ctx context.Context, handler string, id int) bool
	Release(ctx context.Context, handler string, id int)
}

// SyncInboxHandler consumes inbox.sync jobs, fetching unseen mail.
type SyncInboxHandler struct {
	svc          *service.SyncService
	deduper      DedupGate
	retryCounter *util.RetryCounter
	dlq          DeadLetterSink
	logger       *zap.Logger
}

func NewSyncInboxHandler(
	svc *service.SyncService,
	deduper DedupGate,
	retryCounter *util.RetryCounter,
	dlq DeadLetterSink,
	logger *zap.Logger,
) *SyncInboxHandler {
	return &SyncInboxHandler{
		svc:          svc,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

func (h *SyncInboxHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.SyncInboxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Malformed sync payload, dropping",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		deadLetterSync(h.dlq, mqcontracts.RouteSyncInbox, raw, err, h.logger)
		return nil
	}

	return runSync(ctx, "sync", mqcontracts.RouteSyncInbox, raw, p.InboxID,
		h.deduper, h.retryCounter, h.dlq, h.logger,
		func(ctx context.Context) (int, error) {
			return h.svc.SyncUnseen(ctx, p.InboxID)
		})
}

func deadLetterSync(dlq DeadLetterSink, routingKey string, raw json.RawMessage, cause error, logger *zap.Logger) {
	if err := dlq.PublishToDLQ(routingKey, raw, cause.Error()); err != nil {
		logger.Warn("Failed to dead-letter sync payload",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// runSync wraps one sync execution with dedup and retry bookkeeping,
// shared by the unseen and historical sync handlers. The dedup slot
// collapses duplicate deliveries of the same job; the message_id unique
// constraint stays the correctness backstop either way.
func runSync(
	ctx context.Context,
	handlerName string,
	routingKey string,
	raw json.RawMessage,
	inboxID int,
	deduper DedupGate,
	retryCounter *util.RetryCounter,
	dlq DeadLetterSink,
	logger *zap.Logger,
	run func(ctx context.Context) (int, error),
) error {
	if !deduper.AcquireOnce(ctx, handlerName, inboxID) {
		return nil
	}

	inserted, err := run(ctx)

	// The slot exists to collapse deliveries that race with this run.
	// A sync requested after this one finishes must fetch again, so the
	// slot is released on every outcome.
	deduper.Release(ctx, handlerName, inboxID)

	retryKey := util.FormatRetryKey(handlerName, inboxID)
	if err == nil {
		if resetErr := retryCounter.Reset(ctx, retryKey); resetErr != nil {
			logger.Warn("Failed to reset retry counter",
				zap.Int("inbox_id", inboxID),
				zap.Error(resetErr),
			)
		}
		logger.Info("Sync job finished",
			zap.String("handler", handlerName),
			zap.Int("inbox_id", inboxID),
			zap.Int("inserted", inserted),
		)
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	if !retryable {
		logger.Error("Sync failed terminally, dropping job",
			zap.String("handler", handlerName),
			zap.Int("inbox_id", inboxID),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		deadLetterSync(dlq, routingKey, raw, err, logger)
		return nil
	}

	count, cntErr := retryCounter.IncrementAndGet(ctx, retryKey)
	if cntErr != nil {
		count = 1
	}
	if count > maxRetries {
		logger.Error("Sync retries exhausted, dropping job",
			zap.String("handler", handlerName),
			zap.Int("inbox_id", inboxID),
			zap.Int64("retry_count", count),
			zap.Error(err),
		)
		_ = retryCounter.Reset(ctx, retryKey)
		deadLetterSync(dlq, routingKey, raw, err, logger)
		return nil
	}

	logger.Warn("Sync failed, will retry",
		zap.String("handler", handlerName),
		zap.Int("inbox_id", inboxID),
		zap.String("error_type", errType),
		zap.Int64("retry_count", count),
		zap.Error(err),
	)
	return err
}
