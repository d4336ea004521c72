package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"intellinbox/pkg/circuitbreaker"
)

type flakyEngine struct {
	err   error
	calls int
}

func (f *flakyEngine) Sentiment(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "neutral", nil
}

func (f *flakyEngine) Summarize(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "summary", nil
}

func (f *flakyEngine) PriorityLabels(_ context.Context, _ string) ([]PriorityLabel, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []PriorityLabel{{Label: PriorityNeutral, Confidence: 0.7}}, nil
}

func TestBreakerEnginePassesThrough(t *testing.T) {
	engine := &flakyEngine{}
	b := NewBreakerEngine(engine, circuitbreaker.New(circuitbreaker.DefaultConfig()))

	if got, err := b.Sentiment(context.Background(), "x"); err != nil || got != "neutral" {
		t.Errorf("Sentiment = (%q, %v), want (neutral, nil)", got, err)
	}
	if got, err := b.Summarize(context.Background(), "x"); err != nil || got != "summary" {
		t.Errorf("Summarize = (%q, %v), want (summary, nil)", got, err)
	}
	labels, err := b.PriorityLabels(context.Background(), "x")
	if err != nil || len(labels) != 1 {
		t.Errorf("PriorityLabels = (%v, %v), want one label", labels, err)
	}
}

func TestBreakerEngineFailsFastWhenOpen(t *testing.T) {
	engine := &flakyEngine{err: errors.New("upstream down")}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})
	b := NewBreakerEngine(engine, cb)

	for i := 0; i < 2; i++ {
		if _, err := b.Sentiment(context.Background(), "x"); err == nil {
			t.Fatal("Sentiment = nil error, want upstream failure")
		}
	}

	before := engine.calls
	_, err := b.Summarize(context.Background(), "x")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("Summarize = %v, want ErrOpen", err)
	}
	if engine.calls != before {
		t.Error("engine was called while the breaker was open")
	}
}
