package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"intellinbox/internal/inference"
	"intellinbox/internal/model"
	"intellinbox/internal/normalize"
	"intellinbox/pkg/metrics"
)

// maxModelInputChars bounds the normalized content fed to inference.
const maxModelInputChars = 4000

// ErrEmptyBody marks an email whose body has no analyzable content.
// It is terminal: redelivery cannot fix it.
var ErrEmptyBody = errors.New("email body is empty")

// EmailStore is the slice of the email repository the pipeline needs.
type EmailStore interface {
	FindByID(ctx context.Context, id int) (*model.Email, error)
	UpdateStatus(ctx context.Context, id int, status model.EmailStatus) error
}

// AnalysisStore persists analysis records.
type AnalysisStore interface {
	Upsert(ctx context.Context, a *model.Analysis) error
}

// AnalyzeService runs the three-stage analysis pipeline over one email.
type AnalyzeService struct {
	emails   EmailStore
	analyses AnalysisStore
	engine   inference.Engine
	logger   *zap.Logger
}

func NewAnalyzeService(
	emails EmailStore,
	analyses AnalysisStore,
	engine inference.Engine,
	logger *zap.Logger,
) *AnalyzeService {
	return &AnalyzeService{
		emails:   emails,
		analyses: analyses,
		engine:   engine,
		logger:   logger,
	}
}

// Analyze loads the email, normalizes its body, runs the three inference
// stages sequentially and writes the combined analysis record. On success
// the email transitions to completed. On error the email is left in
// processing; the caller decides between retry and marking it failed.
func (s *AnalyzeService) Analyze(ctx context.Context, emailID int) error {
	email, err := s.emails.FindByID(ctx, emailID)
	if err != nil {
		return fmt.Errorf("loading email %d: %w", emailID, err)
	}

	// A redelivered job finds the email already in processing; re-entry
	// is safe, so only the first delivery performs the transition.
	if email.Status != model.StatusProcessing {
		if err := s.transition(ctx, email, model.StatusProcessing); err != nil {
			return err
		}
	}

	if strings.TrimSpace(email.Body) == "" {
		return ErrEmptyBody
	}

	content := normalize.StripHTML(email.Body)
	content = normalize.TruncateThread(content)
	content = normalize.Clip(content, maxModelInputChars)
	if strings.TrimSpace(content) == "" {
		return ErrEmptyBody
	}

	category, err := s.runStage(ctx, "sentiment", content, s.engine.Sentiment)
	if err != nil {
		return fmt.Errorf("sentiment stage for email %d: %w", emailID, err)
	}

	summary, err := s.runStage(ctx, "summary", content, s.engine.Summarize)
	if err != nil {
		return fmt.Errorf("summary stage for email %d: %w", emailID, err)
	}

	start := time.Now()
	labels, err := s.engine.PriorityLabels(ctx, content)
	if err != nil {
		metrics.RecordInferenceCall("priority", "error", time.Since(start))
		return fmt.Errorf("priority stage for email %d: %w", emailID, err)
	}
	metrics.RecordInferenceCall("priority", "ok", time.Since(start))
	if len(labels) == 0 {
		return fmt.Errorf("priority stage for email %d: no labels returned", emailID)
	}

	analysis := &model.Analysis{
		EmailID:       emailID,
		Category:      strings.ToLower(strings.TrimSpace(category)),
		Summary:       ShapeSummary(summary),
		PriorityScore: PriorityScore(labels[0]),
	}

	if err := s.analyses.Upsert(ctx, analysis); err != nil {
		return fmt.Errorf("writing analysis for email %d: %w", emailID, err)
	}

	if err := s.transition(ctx, email, model.StatusCompleted); err != nil {
		return err
	}

	s.logger.Info("Email analyzed",
		zap.Int("email_id", emailID),
		zap.String("category", analysis.Category),
		zap.Float64("priority_score", analysis.PriorityScore),
	)
	return nil
}

// transition moves the email through the lifecycle state machine,
// rejecting writes the machine does not allow.
func (s *AnalyzeService) transition(ctx context.Context, email *model.Email, to model.EmailStatus) error {
	if !model.CanTransition(email.Status, to) {
		return fmt.Errorf("email %d: illegal status transition %s -> %s", email.ID, email.Status, to)
	}
	if err := s.emails.UpdateStatus(ctx, email.ID, to); err != nil {
		return fmt.Errorf("marking email %d %s: %w", email.ID, to, err)
	}
	email.Status = to
	return nil
}

func (s *AnalyzeService) runStage(
	ctx context.Context,
	stage, content string,
	call func(ctx context.Context, text string) (string, error),
) (string, error) {
	start := time.Now()
	out, err := call(ctx, content)
	if err != nil {
		metrics.RecordInferenceCall(stage, "error", time.Since(start))
		return "", err
	}
	metrics.RecordInferenceCall(stage, "ok", time.Since(start))
	return out, nil
}

// priorityWeights map zero-shot labels to score multipliers.
var priorityWeights = map[string]float64{
	inference.PriorityUrgent:  1.0,
	inference.PriorityNeutral: 0.5,
	inference.PriorityLow:     0.2,
}

// PriorityScore maps the top zero-shot label to a score in [0, 1],
// rounded to two decimal places. Unknown labels weigh like neutral.
func PriorityScore(top inference.PriorityLabel) float64 {
	weight, ok := priorityWeights[top.Label]
	if !ok {
		weight = 0.5
	}
	score := top.Confidence * weight
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*100) / 100
}

// ShapeSummary trims the model output, upper-cases the first letter and
// forces sentence-terminating punctuation.
func ShapeSummary(summary string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ""
	}

	runes := []rune(summary)
	runes[0] = unicode.ToUpper(runes[0])
	summary = string(runes)

	last := runes[len(runes)-1]
	switch last {
	case '.', '!', '?', '…':
		return summary
	}
	return summary + "."
}
