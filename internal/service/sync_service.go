package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/fetcher"
	"intellinbox/internal/model"
)

// InboxStore is the slice of the inbox repository the sync path needs.
type InboxStore interface {
	FindByID(ctx context.Context, id int) (*model.Inbox, error)
	TouchLastSynced(ctx context.Context, id int) error
}

// EmailGate inserts fetched candidates if their dedup key is unseen.
type EmailGate interface {
	InsertIfNew(ctx context.Context, e *model.Email) (int, bool, error)
}

// JobPublisher dispatches asynchronous jobs.
type JobPublisher interface {
	Publish(routingKey string, payload any) error
}

// MailFetcher retrieves candidate messages from a remote mailbox.
type MailFetcher interface {
	FetchMessages(ctx context.Context, conn fetcher.ConnectionParams, cond fetcher.Condition) ([]fetcher.Candidate, error)
}

// Decrypter recovers a plaintext credential from its stored token.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// SyncService fetches mail for an inbox and pushes unseen messages
// through the dedup gate, enqueueing one analysis job per new email.
type SyncService struct {
	inboxes   InboxStore
	emails    EmailGate
	fetcher   MailFetcher
	publisher JobPublisher
	cipher    Decrypter
	logger    *zap.Logger
}

func NewSyncService(
	inboxes InboxStore,
	emails EmailGate,
	mailFetcher MailFetcher,
	publisher JobPublisher,
	cipher Decrypter,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		inboxes:   inboxes,
		emails:    emails,
		fetcher:   mailFetcher,
		publisher: publisher,
		cipher:    cipher,
		logger:    logger,
	}
}

// SyncUnseen fetches messages the server has not flagged as seen.
func (s *SyncService) SyncUnseen(ctx context.Context, inboxID int) (int, error) {
	return s.sync(ctx, inboxID, fetcher.Condition{Unseen: true})
}

// SyncHistory fetches messages over a lookback window of days, used for
// the initial sync of a newly registered inbox and for resets.
func (s *SyncService) SyncHistory(ctx context.Context, inboxID, days int) (int, error) {
	if days <= 0 {
		days = 30
	}
	return s.sync(ctx, inboxID, fetcher.Condition{
		Since: time.Now().AddDate(0, 0, -days),
	})
}

// sync runs one fetch-dedup-enqueue pass. Re-running with an overlapping
// candidate set inserts zero duplicates: the message_id unique constraint
// makes the gate idempotent.
func (s *SyncService) sync(ctx context.Context, inboxID int, cond fetcher.Condition) (int, error) {
	inbox, err := s.inboxes.FindByID(ctx, inboxID)
	if err != nil {
		return 0, fmt.Errorf("loading inbox %d: %w", inboxID, err)
	}

	password, err := s.cipher.Decrypt(inbox.Password)
	if err != nil {
		return 0, fmt.Errorf("decrypting credential for inbox %d: %w", inboxID, err)
	}

	candidates, err := s.fetcher.FetchMessages(ctx, fetcher.ConnectionParams{
		Server:   inbox.IMAPServer,
		Address:  inbox.EmailAddress,
		Password: password,
	}, cond)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, cand := range candidates {
		id, isNew, err := s.insertCandidate(ctx, inbox.ID, cand)
		if err != nil {
			s.logger.Error("Failed to persist candidate",
				zap.Int("inbox_id", inbox.ID),
				zap.String("message_id", cand.MessageID),
				zap.Error(err),
			)
			continue
		}
		if !isNew {
			continue
		}
		inserted++

		if err := s.publisher.Publish(mqcontracts.RouteAnalyzeEmail, mqcontracts.AnalyzeEmailPayload{
			EmailID: id,
		}); err != nil {
			// Row stays pending; a later sync or manual re-enqueue
			// picks it up.
			s.logger.Error("Failed to enqueue analysis job",
				zap.Int("email_id", id),
				zap.Error(err),
			)
		}
	}

	if err := s.inboxes.TouchLastSynced(ctx, inbox.ID); err != nil {
		s.logger.Warn("Failed to stamp last_synced_at",
			zap.Int("inbox_id", inbox.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Inbox synced",
		zap.Int("inbox_id", inbox.ID),
		zap.Int("fetched", len(candidates)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

func (s *SyncService) insertCandidate(ctx context.Context, inboxID int, cand fetcher.Candidate) (int, bool, error) {
	receivedAt := cand.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	email := &model.Email{
		InboxID:    &inboxID,
		Sender:     cand.Sender,
		Subject:    cand.Subject,
		Body:       cand.Body,
		Status:     model.StatusPending,
		ReceivedAt: receivedAt,
	}
	if cand.MessageID != "" {
		email.MessageID = &cand.MessageID
	}

	return s.emails.InsertIfNew(ctx, email)
}
