package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intellinbox/internal/model"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// Create inserts a manually created email with status pending.
func (r *EmailRepository) Create(ctx context.Context, e *model.Email) (int, error) {
	query := `
        INSERT INTO emails (inbox_id, sender, subject, body, message_id, status, received_at)
        VALUES ($1, $2, $3, $4, $5, 'pending', COALESCE($6, NOW()))
        RETURNING id
    `
	var receivedAt *time.Time
	if !e.ReceivedAt.IsZero() {
		receivedAt = &e.ReceivedAt
	}
	var id int
	err := r.db.QueryRow(ctx, query,
		e.InboxID, e.Sender, e.Subject, e.Body, e.MessageID, receivedAt,
	).Scan(&id)
	return id, err
}

// InsertIfNew inserts a fetched email keyed by message_id. The unique
// constraint on message_id is the race backstop: a concurrent sync that
// already inserted the same message makes this a no-op.
// Returns (id, inserted).
func (r *EmailRepository) InsertIfNew(ctx context.Context, e *model.Email) (int, bool, error) {
	query := `
        INSERT INTO emails (inbox_id, sender, subject, body, message_id, status, received_at)
        VALUES ($1, $2, $3, $4, $5, 'pending', $6)
        ON CONFLICT (message_id) DO NOTHING
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		e.InboxID, e.Sender, e.Subject, e.Body, e.MessageID, e.ReceivedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// FindByMessageID looks an email up by its dedup key.
func (r *EmailRepository) FindByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	query := `
        SELECT id, inbox_id, sender, subject, body, message_id, status, received_at
        FROM emails
        WHERE message_id = $1
    `
	var e model.Email
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&e.ID, &e.InboxID, &e.Sender, &e.Subject, &e.Body, &e.MessageID, &e.Status, &e.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const emailWithAnalysisColumns = `
    e.id, e.inbox_id, e.sender, e.subject, e.body, e.message_id, e.status, e.received_at,
    a.id, a.category, a.priority_score, a.summary, a.processed_at
`

func scanEmailWithAnalysis(row pgx.Row) (*model.Email, error) {
	var e model.Email
	var aID *int
	var category, summary *string
	var score *float64
	var processedAt *time.Time
	err := row.Scan(
		&e.ID, &e.InboxID, &e.Sender, &e.Subject, &e.Body, &e.MessageID, &e.Status, &e.ReceivedAt,
		&aID, &category, &score, &summary, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	if aID != nil {
		a := &model.Analysis{
			ID:      *aID,
			EmailID: e.ID,
		}
		if category != nil {
			a.Category = *category
		}
		if score != nil {
			a.PriorityScore = *score
		}
		if summary != nil {
			a.Summary = *summary
		}
		if processedAt != nil {
			a.ProcessedAt = *processedAt
		}
		e.Analysis = a
	}
	return &e, nil
}

// FindByID returns the email with its analysis embedded, if present.
func (r *EmailRepository) FindByID(ctx context.Context, id int) (*model.Email, error) {
	query := `
        SELECT ` + emailWithAnalysisColumns + `
        FROM emails e
        LEFT JOIN analyses a ON a.email_id = e.id
        WHERE e.id = $1
    `
	return scanEmailWithAnalysis(r.db.QueryRow(ctx, query, id))
}

// List returns emails newest-first with analyses embedded, paginated by
// offset and limit.
func (r *EmailRepository) List(ctx context.Context, skip, limit int) ([]model.Email, error) {
	query := `
        SELECT ` + emailWithAnalysisColumns + `
        FROM emails e
        LEFT JOIN analyses a ON a.email_id = e.id
        ORDER BY e.received_at DESC
        OFFSET $1 LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		e, err := scanEmailWithAnalysis(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// UpdateStatus sets the lifecycle status.
func (r *EmailRepository) UpdateStatus(ctx context.Context, id int, status model.EmailStatus) error {
	query := `
        UPDATE emails
        SET status = $1
        WHERE id = $2
    `
	tag, err := r.db.Exec(ctx, query, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EmailRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByInbox removes all emails owned by an inbox; analyses cascade.
// Used by the inbox reset operation.
func (r *EmailRepository) DeleteByInbox(ctx context.Context, inboxID int) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE inbox_id = $1`, inboxID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
