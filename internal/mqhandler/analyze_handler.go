package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/model"
	"intellinbox/internal/service"
	"intellinbox/pkg/metrics"
	"intellinbox/pkg/util"
)

// maxRetries bounds queue redeliveries for one job before giving up.
const maxRetries = 5

// DeadLetterSink receives job payloads that can never succeed, keeping
// them inspectable after the delivery is acked away.
type DeadLetterSink interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// AnalyzeEmailHandler consumes email.analyze jobs. Delivery is
// at-least-once; the pipeline's upsert write and the status checks make
// reprocessing safe.
type AnalyzeEmailHandler struct {
	svc          *service.AnalyzeService
	emails       service.EmailStore
	retryCounter *util.RetryCounter
	dlq          DeadLetterSink
	logger       *zap.Logger
}

func NewAnalyzeEmailHandler(
	svc *service.AnalyzeService,
	emails service.EmailStore,
	retryCounter *util.RetryCounter,
	dlq DeadLetterSink,
	logger *zap.Logger,
) *AnalyzeEmailHandler {
	return &AnalyzeEmailHandler{
		svc:          svc,
		emails:       emails,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

// Handle runs the analysis pipeline for one email. It returns an error
// only for retryable failures within the retry budget; terminal failures
// mark the email failed and ack the delivery so the worker keeps going.
func (h *AnalyzeEmailHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.AnalyzeEmailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Malformed analyze payload, dropping",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(raw, err)
		return nil
	}

	h.logger.Info("Processing analysis job", zap.Int("email_id", p.EmailID))

	err := h.svc.Analyze(ctx, p.EmailID)
	if err == nil {
		h.resetRetries(ctx, p.EmailID)
		metrics.IncrementAnalyzed("completed")
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	if errors.Is(err, service.ErrEmptyBody) {
		retryable, errType = false, "empty_body"
	}

	if retryable {
		retryKey := util.FormatRetryKey("analyze", p.EmailID)
		count, cntErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
		if cntErr != nil {
			h.logger.Warn("Failed to read retry count, assuming first attempt",
				zap.Int("email_id", p.EmailID),
				zap.Error(cntErr),
			)
			count = 1
		}
		if count <= maxRetries {
			h.logger.Warn("Analysis failed, will retry",
				zap.Int("email_id", p.EmailID),
				zap.String("error_type", errType),
				zap.Int64("retry_count", count),
				zap.Error(err),
			)
			return err
		}
		h.logger.Warn("Max retries exceeded, marking email failed",
			zap.Int("email_id", p.EmailID),
			zap.Int64("retry_count", count),
		)
	} else {
		h.logger.Error("Analysis failed terminally",
			zap.Int("email_id", p.EmailID),
			zap.String("error_type", errType),
			zap.Error(err),
		)
	}

	// Terminal failure: force the email to failed in its own write, ack
	// the delivery and report the outcome only through persisted state.
	// A racing delivery may already have settled the email, and a
	// terminal status is never overwritten here.
	if email, findErr := h.emails.FindByID(ctx, p.EmailID); findErr == nil && email.Status.IsTerminal() {
		h.logger.Info("Email already settled, keeping its status",
			zap.Int("email_id", p.EmailID),
			zap.String("status", string(email.Status)),
		)
	} else if updErr := h.emails.UpdateStatus(ctx, p.EmailID, model.StatusFailed); updErr != nil {
		h.logger.Error("Failed to mark email failed",
			zap.Int("email_id", p.EmailID),
			zap.Error(updErr),
		)
	}
	h.resetRetries(ctx, p.EmailID)
	h.deadLetter(raw, err)
	metrics.IncrementAnalyzed("failed")
	return nil
}

func (h *AnalyzeEmailHandler) deadLetter(raw json.RawMessage, cause error) {
	if err := h.dlq.PublishToDLQ(mqcontracts.RouteAnalyzeEmail, raw, cause.Error()); err != nil {
		h.logger.Warn("Failed to dead-letter analyze payload", zap.Error(err))
	}
}

func (h *AnalyzeEmailHandler) resetRetries(ctx context.Context, emailID int) {
	key := util.FormatRetryKey("analyze", emailID)
	if err := h.retryCounter.Reset(ctx, key); err != nil {
		h.logger.Warn("Failed to reset retry counter",
			zap.Int("email_id", emailID),
			zap.Error(err),
		)
	}
}
