// Package inference wraps the pretrained model calls behind a small
// interface. Implementations are expensive to construct and are created
// once per worker process, then shared across jobs.
package inference

import "context"

// Priority labels for zero-shot classification. The analysis pipeline
// maps the top label and its confidence to a priority score.
const (
	PriorityUrgent  = "urgent-action-required"
	PriorityNeutral = "neutral-informational"
	PriorityLow     = "low-priority-social"
)

// PriorityLabel is one ranked zero-shot result.
type PriorityLabel struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Engine is the black-box model contract the analysis pipeline runs on.
// All three calls are stateless and independent; they share only the
// normalized input text.
type Engine interface {
	// Sentiment returns a discrete sentiment label, e.g. positive,
	// neutral or negative.
	Sentiment(ctx context.Context, text string) (string, error)
	// Summarize returns a short abstractive summary of the text.
	Summarize(ctx context.Context, text string) (string, error)
	// PriorityLabels classifies the text against the fixed priority
	// label set and returns the labels ranked by confidence,
	// highest first.
	PriorityLabels(ctx context.Context, text string) ([]PriorityLabel, error)
}
