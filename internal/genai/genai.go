// Package genai writes staff-facing intake summaries with the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for the summary model.
const (
	DefaultModel       = string(openai.ChatModelGPT4oMini)
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 400
)

var (
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrMissingAPIKey     = errors.New("OPENAI_API_KEY not set")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
}

// NewClient initializes a GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// GeneratePrompt returns the model's reply to a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI GeneratePrompt failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const summarySystemPrompt = `You are an intake coordinator at an addiction medicine clinic.
Summarize the patient's questionnaire for the clinician in at most five short bullet points.
Flag anything that suggests the patient may run out of medication soon or is at risk of withdrawal.
Do not invent facts that are not in the answers.`

// privateKeys are never sent to the model.
var privateKeys = map[string]bool{
	models.KeyFirstName: true,
	models.KeyLastName:  true,
	models.KeyPhone:     true,
	models.KeyEmail:     true,
	models.KeyOTP:       true,
}

// SummarizeIntake asks the model for a clinician-facing summary of answers.
// Identifying fields are left out of the prompt.
func (c *Client) SummarizeIntake(ctx context.Context, answers models.Answers) (string, error) {
	return c.GeneratePrompt(ctx, summarySystemPrompt, BuildIntakePrompt(answers))
}

// BuildIntakePrompt renders the answered, non-identifying fields in catalog order.
func BuildIntakePrompt(answers models.Answers) string {
	var b strings.Builder
	b.WriteString("Questionnaire answers:\n")
	for _, f := range models.Fields {
		if privateKeys[f.Key] {
			continue
		}
		if answers.String(f.Key) == "" && len(answers.List(f.Key)) == 0 {
			continue
		}
		b.WriteString("- ")
		b.WriteString(answers.Describe(f.Key))
		b.WriteByte('\n')
	}
	return b.String()
}
