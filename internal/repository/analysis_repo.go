package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"intellinbox/internal/model"
)

type AnalysisRepository struct {
	db *pgxpool.Pool
}

func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Upsert writes the analysis for an email. Re-analysis overwrites the
// existing row via the unique constraint on email_id, so an email never
// accumulates more than one analysis.
func (r *AnalysisRepository) Upsert(ctx context.Context, a *model.Analysis) error {
	query := `
        INSERT INTO analyses (email_id, category, priority_score, summary, processed_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (email_id) DO UPDATE
        SET category = EXCLUDED.category,
            priority_score = EXCLUDED.priority_score,
            summary = EXCLUDED.summary,
            processed_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, a.EmailID, a.Category, a.PriorityScore, a.Summary)
	return err
}

// DeleteByEmailID discards the prior analysis, used by the re-analysis
// reset path. Deleting a missing row is not an error.
func (r *AnalysisRepository) DeleteByEmailID(ctx context.Context, emailID int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM analyses WHERE email_id = $1`, emailID)
	return err
}
