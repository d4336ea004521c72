package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intellinbox/internal/inference"
	"intellinbox/internal/model"
	"intellinbox/internal/service"
	"intellinbox/pkg/util"
)

type fakeEmailStore struct {
	email    *model.Email
	findErr  error
	statuses []model.EmailStatus
	// settled, when set, is the status every read after the first
	// observes, as if another worker settled the row in between.
	settled model.EmailStatus
	finds   int
}

func (f *fakeEmailStore) FindByID(ctx context.Context, id int) (*model.Email, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.finds++
	if f.settled != "" && f.finds > 1 {
		snapshot := *f.email
		snapshot.Status = f.settled
		return &snapshot, nil
	}
	return f.email, nil
}

func (f *fakeEmailStore) UpdateStatus(ctx context.Context, id int, status model.EmailStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeAnalysisStore struct {
	upserts []*model.Analysis
}

func (f *fakeAnalysisStore) Upsert(ctx context.Context, a *model.Analysis) error {
	f.upserts = append(f.upserts, a)
	return nil
}

type fakeEngine struct {
	err error
}

func (f *fakeEngine) Sentiment(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Positive", nil
}

func (f *fakeEngine) Summarize(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "a short recap", nil
}

func (f *fakeEngine) PriorityLabels(ctx context.Context, text string) ([]inference.PriorityLabel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []inference.PriorityLabel{
		{Label: inference.PriorityUrgent, Confidence: 0.8},
		{Label: inference.PriorityLow, Confidence: 0.2},
	}, nil
}

// offlineRedis returns a client pointing nowhere. The retry counter and
// deduper are written to degrade gracefully when Redis is unreachable, so
// handler tests can run against it without a live server.
func offlineRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

type fakeDeadLetterSink struct {
	routingKeys []string
	errors      []string
}

func (f *fakeDeadLetterSink) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	f.routingKeys = append(f.routingKeys, routingKey)
	f.errors = append(f.errors, originalError)
	return nil
}

func newAnalyzeHandler(t *testing.T, emails *fakeEmailStore, engine *fakeEngine) (*AnalyzeEmailHandler, *fakeAnalysisStore, *fakeDeadLetterSink) {
	t.Helper()
	analyses := &fakeAnalysisStore{}
	dlq := &fakeDeadLetterSink{}
	svc := service.NewAnalyzeService(emails, analyses, engine, zap.NewNop())
	counter := util.NewRetryCounter(offlineRedis(t), time.Hour)
	return NewAnalyzeEmailHandler(svc, emails, counter, dlq, zap.NewNop()), analyses, dlq
}

func analyzePayload(t *testing.T, emailID int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]int{"email_id": emailID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestAnalyzeHandlerMalformedPayloadIsDropped(t *testing.T) {
	emails := &fakeEmailStore{}
	h, analyses, dlq := newAnalyzeHandler(t, emails, &fakeEngine{})

	if err := h.Handle(context.Background(), json.RawMessage(`{"email_id":`)); err != nil {
		t.Fatalf("Handle() = %v, want nil for malformed payload", err)
	}
	if len(emails.statuses) != 0 {
		t.Errorf("statuses = %v, want none", emails.statuses)
	}
	if len(analyses.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(analyses.upserts))
	}
	if len(dlq.routingKeys) != 1 {
		t.Errorf("dead-lettered = %d, want 1", len(dlq.routingKeys))
	}
}

func TestAnalyzeHandlerSuccess(t *testing.T) {
	emails := &fakeEmailStore{
		email: &model.Email{ID: 7, Body: "Budget approved, ship it this week.", Status: model.StatusPending},
	}
	h, analyses, _ := newAnalyzeHandler(t, emails, &fakeEngine{})

	if err := h.Handle(context.Background(), analyzePayload(t, 7)); err != nil {
		t.Fatalf("Handle() = %v, want nil", err)
	}

	want := []model.EmailStatus{model.StatusProcessing, model.StatusCompleted}
	if len(emails.statuses) != 2 || emails.statuses[0] != want[0] || emails.statuses[1] != want[1] {
		t.Errorf("statuses = %v, want %v", emails.statuses, want)
	}
	if len(analyses.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(analyses.upserts))
	}
	a := analyses.upserts[0]
	if a.Category != "positive" {
		t.Errorf("category = %q, want %q", a.Category, "positive")
	}
	if a.PriorityScore != 0.8 {
		t.Errorf("priority score = %v, want 0.8", a.PriorityScore)
	}
}

func TestAnalyzeHandlerEmptyBodyIsTerminal(t *testing.T) {
	emails := &fakeEmailStore{
		email: &model.Email{ID: 8, Body: "   \n  ", Status: model.StatusPending},
	}
	h, analyses, dlq := newAnalyzeHandler(t, emails, &fakeEngine{})

	if err := h.Handle(context.Background(), analyzePayload(t, 8)); err != nil {
		t.Fatalf("Handle() = %v, want nil for terminal failure", err)
	}

	want := []model.EmailStatus{model.StatusProcessing, model.StatusFailed}
	if len(emails.statuses) != 2 || emails.statuses[0] != want[0] || emails.statuses[1] != want[1] {
		t.Errorf("statuses = %v, want %v", emails.statuses, want)
	}
	if len(analyses.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(analyses.upserts))
	}
	if len(dlq.routingKeys) != 1 {
		t.Errorf("dead-lettered = %d, want 1", len(dlq.routingKeys))
	}
}

func TestAnalyzeHandlerRetryableErrorIsRequeued(t *testing.T) {
	emails := &fakeEmailStore{
		email: &model.Email{ID: 9, Body: "please advise", Status: model.StatusPending},
	}
	engine := &fakeEngine{err: errors.New("status code: 503, upstream unavailable")}
	h, _, dlq := newAnalyzeHandler(t, emails, engine)

	// Redis is unreachable, so the counter falls back to treating this as
	// the first attempt, which is inside the retry budget.
	if err := h.Handle(context.Background(), analyzePayload(t, 9)); err == nil {
		t.Fatal("Handle() = nil, want error so the delivery is requeued")
	}

	// Retryable failure must not mark the email failed.
	want := []model.EmailStatus{model.StatusProcessing}
	if len(emails.statuses) != 1 || emails.statuses[0] != want[0] {
		t.Errorf("statuses = %v, want %v", emails.statuses, want)
	}
	if len(dlq.routingKeys) != 0 {
		t.Errorf("dead-lettered = %d, want 0 for retryable failure", len(dlq.routingKeys))
	}
}

func TestAnalyzeHandlerTerminalErrorMarksFailed(t *testing.T) {
	emails := &fakeEmailStore{
		email: &model.Email{ID: 10, Body: "hello there", Status: model.StatusPending},
	}
	engine := &fakeEngine{err: errors.New("model rejected the request")}
	h, _, dlq := newAnalyzeHandler(t, emails, engine)

	if err := h.Handle(context.Background(), analyzePayload(t, 10)); err != nil {
		t.Fatalf("Handle() = %v, want nil for terminal failure", err)
	}

	want := []model.EmailStatus{model.StatusProcessing, model.StatusFailed}
	if len(emails.statuses) != 2 || emails.statuses[0] != want[0] || emails.statuses[1] != want[1] {
		t.Errorf("statuses = %v, want %v", emails.statuses, want)
	}
	if len(dlq.routingKeys) != 1 {
		t.Fatalf("dead-lettered = %d, want 1", len(dlq.routingKeys))
	}
	if dlq.errors[0] == "" {
		t.Error("dead-letter original error is empty")
	}
}

func TestAnalyzeHandlerKeepsSettledStatus(t *testing.T) {
	emails := &fakeEmailStore{
		email:   &model.Email{ID: 11, Body: "hello there", Status: model.StatusPending},
		settled: model.StatusCompleted,
	}
	engine := &fakeEngine{err: errors.New("model rejected the request")}
	h, _, dlq := newAnalyzeHandler(t, emails, engine)

	if err := h.Handle(context.Background(), analyzePayload(t, 11)); err != nil {
		t.Fatalf("Handle() = %v, want nil for terminal failure", err)
	}

	// The racing writer's completed status wins; no failed write on top.
	if len(emails.statuses) != 1 || emails.statuses[0] != model.StatusProcessing {
		t.Errorf("statuses = %v, want [processing]", emails.statuses)
	}
	if len(dlq.routingKeys) != 1 {
		t.Errorf("dead-lettered = %d, want 1", len(dlq.routingKeys))
	}
}
