package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"intellinbox/pkg/config"
)

const defaultModel = "gpt-4o-mini"

const sentimentPrompt = "Classify the sentiment of the following email. " +
	"Answer with exactly one word: positive, neutral or negative.\n\n"

const summaryPrompt = "Summarize the following email in one or two short " +
	"sentences. Respond with the summary only.\n\n"

const priorityPrompt = "Classify the following email against these labels: " +
	PriorityUrgent + ", " + PriorityNeutral + ", " + PriorityLow + ". " +
	"Respond with a JSON array of objects with fields \"label\" and " +
	"\"confidence\" (0.0-1.0) covering all three labels, nothing else.\n\n"

// OpenAIEngine implements Engine on the OpenAI chat completion API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine builds the process-scoped engine. The HTTP client
// timeout bounds every inference call.
func NewOpenAIEngine(cfg config.InferenceConfig) *OpenAIEngine {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

func (e *OpenAIEngine) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("inference returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) Sentiment(ctx context.Context, text string) (string, error) {
	out, err := e.complete(ctx, sentimentPrompt+text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *OpenAIEngine) Summarize(ctx context.Context, text string) (string, error) {
	out, err := e.complete(ctx, summaryPrompt+text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *OpenAIEngine) PriorityLabels(ctx context.Context, text string) ([]PriorityLabel, error) {
	out, err := e.complete(ctx, priorityPrompt+text)
	if err != nil {
		return nil, err
	}

	// Models occasionally wrap JSON in a code fence.
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")

	var labels []PriorityLabel
	if err := json.Unmarshal([]byte(out), &labels); err != nil {
		return nil, fmt.Errorf("parsing priority labels %q: %w", out, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("inference returned no priority labels")
	}

	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Confidence > labels[j].Confidence
	})
	return labels, nil
}
