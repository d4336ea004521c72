package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"intellinbox/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = pgx.ErrNoRows

// IsUniqueViolation reports whether an error is a unique constraint
// violation, e.g. re-registering an already monitored address.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type InboxRepository struct {
	db *pgxpool.Pool
}

func NewInboxRepository(db *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{db: db}
}

// Create inserts a new monitored inbox. The password must already be
// encrypted by the caller.
func (r *InboxRepository) Create(ctx context.Context, in *model.Inbox) (int, error) {
	query := `
        INSERT INTO inboxes (email_address, imap_server, password_encrypted, is_active)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query, in.EmailAddress, in.IMAPServer, in.Password, in.IsActive).Scan(&id)
	return id, err
}

func (r *InboxRepository) FindByID(ctx context.Context, id int) (*model.Inbox, error) {
	query := `
        SELECT id, email_address, imap_server, password_encrypted, is_active, last_synced_at
        FROM inboxes
        WHERE id = $1
    `
	var in model.Inbox
	err := r.db.QueryRow(ctx, query, id).Scan(
		&in.ID,
		&in.EmailAddress,
		&in.IMAPServer,
		&in.Password,
		&in.IsActive,
		&in.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *InboxRepository) ListAll(ctx context.Context) ([]model.Inbox, error) {
	return r.list(ctx, false)
}

// ListActive returns only inboxes with the active flag set, used by the
// bulk sync trigger.
func (r *InboxRepository) ListActive(ctx context.Context) ([]model.Inbox, error) {
	return r.list(ctx, true)
}

func (r *InboxRepository) list(ctx context.Context, activeOnly bool) ([]model.Inbox, error) {
	query := `
        SELECT id, email_address, imap_server, password_encrypted, is_active, last_synced_at
        FROM inboxes
    `
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inboxes []model.Inbox
	for rows.Next() {
		var in model.Inbox
		if err := rows.Scan(
			&in.ID,
			&in.EmailAddress,
			&in.IMAPServer,
			&in.Password,
			&in.IsActive,
			&in.LastSyncedAt,
		); err != nil {
			return nil, err
		}
		inboxes = append(inboxes, in)
	}
	return inboxes, rows.Err()
}

// UpdateActive flips the soft-activation flag.
func (r *InboxRepository) UpdateActive(ctx context.Context, id int, isActive bool) error {
	query := `
        UPDATE inboxes
        SET is_active = $1
        WHERE id = $2
    `
	tag, err := r.db.Exec(ctx, query, isActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSynced stamps the inbox after a completed sync batch.
func (r *InboxRepository) TouchLastSynced(ctx context.Context, id int) error {
	query := `
        UPDATE inboxes
        SET last_synced_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// Delete removes the inbox; owned emails and analyses go with it via
// ON DELETE CASCADE.
func (r *InboxRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM inboxes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
