package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"intellinbox/internal/inference"
	"intellinbox/internal/model"
)

type fakeEmailStore struct {
	emails   map[int]*model.Email
	statuses map[int][]model.EmailStatus
	findErr  error
}

func newFakeEmailStore(emails ...*model.Email) *fakeEmailStore {
	s := &fakeEmailStore{
		emails:   make(map[int]*model.Email),
		statuses: make(map[int][]model.EmailStatus),
	}
	for _, e := range emails {
		s.emails[e.ID] = e
	}
	return s
}

func (s *fakeEmailStore) FindByID(_ context.Context, id int) (*model.Email, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	e, ok := s.emails[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	return e, nil
}

func (s *fakeEmailStore) UpdateStatus(_ context.Context, id int, status model.EmailStatus) error {
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

type fakeAnalysisStore struct {
	upserts []*model.Analysis
}

func (s *fakeAnalysisStore) Upsert(_ context.Context, a *model.Analysis) error {
	s.upserts = append(s.upserts, a)
	return nil
}

type fakeEngine struct {
	sentiment    string
	summary      string
	labels       []inference.PriorityLabel
	sentimentErr error
	summaryErr   error
	priorityErr  error
}

func (e *fakeEngine) Sentiment(_ context.Context, _ string) (string, error) {
	return e.sentiment, e.sentimentErr
}

func (e *fakeEngine) Summarize(_ context.Context, _ string) (string, error) {
	return e.summary, e.summaryErr
}

func (e *fakeEngine) PriorityLabels(_ context.Context, _ string) ([]inference.PriorityLabel, error) {
	return e.labels, e.priorityErr
}

func happyEngine() *fakeEngine {
	return &fakeEngine{
		sentiment: "Positive",
		summary:   "a meeting was scheduled for tuesday",
		labels: []inference.PriorityLabel{
			{Label: inference.PriorityUrgent, Confidence: 0.9},
			{Label: inference.PriorityNeutral, Confidence: 0.08},
			{Label: inference.PriorityLow, Confidence: 0.02},
		},
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	emails := newFakeEmailStore(&model.Email{
		ID:     1,
		Body:   "Hello, let's meet Tuesday.",
		Status: model.StatusPending,
	})
	analyses := &fakeAnalysisStore{}
	svc := NewAnalyzeService(emails, analyses, happyEngine(), zap.NewNop())

	if err := svc.Analyze(context.Background(), 1); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	wantStatuses := []model.EmailStatus{model.StatusProcessing, model.StatusCompleted}
	if got := emails.statuses[1]; len(got) != 2 || got[0] != wantStatuses[0] || got[1] != wantStatuses[1] {
		t.Errorf("status transitions = %v, want %v", got, wantStatuses)
	}

	if len(analyses.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(analyses.upserts))
	}
	a := analyses.upserts[0]
	if a.Category != "positive" {
		t.Errorf("category = %q, want %q (case-normalized)", a.Category, "positive")
	}
	if a.Summary != "A meeting was scheduled for tuesday." {
		t.Errorf("summary = %q, want capitalized and terminated", a.Summary)
	}
	if a.PriorityScore != 0.9 {
		t.Errorf("priority score = %v, want 0.9", a.PriorityScore)
	}
}

func TestAnalyzeEmptyBody(t *testing.T) {
	emails := newFakeEmailStore(&model.Email{ID: 2, Body: "   \n ", Status: model.StatusPending})
	analyses := &fakeAnalysisStore{}
	svc := NewAnalyzeService(emails, analyses, happyEngine(), zap.NewNop())

	err := svc.Analyze(context.Background(), 2)
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("Analyze = %v, want ErrEmptyBody", err)
	}

	// Processing was entered, but no analysis may be written for a
	// validation failure.
	if got := emails.statuses[2]; len(got) != 1 || got[0] != model.StatusProcessing {
		t.Errorf("status transitions = %v, want [processing]", got)
	}
	if len(analyses.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(analyses.upserts))
	}
}

func TestAnalyzeRedeliveredWhileProcessing(t *testing.T) {
	// A redelivered message finds the email already marked processing.
	// The run completes without writing processing a second time.
	emails := newFakeEmailStore(&model.Email{ID: 6, Body: "follow up on invoice", Status: model.StatusProcessing})
	analyses := &fakeAnalysisStore{}
	svc := NewAnalyzeService(emails, analyses, happyEngine(), zap.NewNop())

	if err := svc.Analyze(context.Background(), 6); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := emails.statuses[6]; len(got) != 1 || got[0] != model.StatusCompleted {
		t.Errorf("status transitions = %v, want [completed]", got)
	}
	if len(analyses.upserts) != 1 {
		t.Errorf("upserts = %d, want 1", len(analyses.upserts))
	}
}

func TestAnalyzeNoPriorityLabels(t *testing.T) {
	emails := newFakeEmailStore(&model.Email{ID: 5, Body: "real content", Status: model.StatusPending})
	analyses := &fakeAnalysisStore{}
	engine := happyEngine()
	engine.labels = nil
	svc := NewAnalyzeService(emails, analyses, engine, zap.NewNop())

	err := svc.Analyze(context.Background(), 5)
	if err == nil || !strings.Contains(err.Error(), "no labels") {
		t.Fatalf("Analyze = %v, want no-labels error", err)
	}
	if len(analyses.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(analyses.upserts))
	}
}

func TestAnalyzeInferenceFailure(t *testing.T) {
	emails := newFakeEmailStore(&model.Email{ID: 3, Body: "real content", Status: model.StatusPending})
	analyses := &fakeAnalysisStore{}
	engine := happyEngine()
	engine.summaryErr = errors.New("model exploded")
	svc := NewAnalyzeService(emails, analyses, engine, zap.NewNop())

	err := svc.Analyze(context.Background(), 3)
	if err == nil || !strings.Contains(err.Error(), "model exploded") {
		t.Fatalf("Analyze = %v, want wrapped inference error", err)
	}
	if len(analyses.upserts) != 0 {
		t.Errorf("upserts = %d, want 0 on failure", len(analyses.upserts))
	}
}

func TestPriorityScore(t *testing.T) {
	tests := []struct {
		name string
		top  inference.PriorityLabel
		want float64
	}{
		{"urgent full confidence", inference.PriorityLabel{Label: inference.PriorityUrgent, Confidence: 1.0}, 1.0},
		{"urgent partial", inference.PriorityLabel{Label: inference.PriorityUrgent, Confidence: 0.87}, 0.87},
		{"neutral halves", inference.PriorityLabel{Label: inference.PriorityNeutral, Confidence: 0.8}, 0.4},
		{"low priority", inference.PriorityLabel{Label: inference.PriorityLow, Confidence: 0.5}, 0.1},
		{"rounded to two decimals", inference.PriorityLabel{Label: inference.PriorityNeutral, Confidence: 0.333}, 0.17},
		{"unknown label weighs neutral", inference.PriorityLabel{Label: "mystery", Confidence: 0.6}, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityScore(tt.top)
			if got != tt.want {
				t.Errorf("PriorityScore(%+v) = %v, want %v", tt.top, got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("PriorityScore out of range: %v", got)
			}
		})
	}
}

func TestShapeSummary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"capitalize and terminate", "meeting moved to friday", "Meeting moved to friday."},
		{"already terminated", "All done.", "All done."},
		{"exclamation kept", "great news!", "Great news!"},
		{"question kept", "can you attend?", "Can you attend?"},
		{"ellipsis kept", "to be continued…", "To be continued…"},
		{"surrounding whitespace trimmed", "  trimmed  ", "Trimmed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShapeSummary(tt.in); got != tt.want {
				t.Errorf("ShapeSummary(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
