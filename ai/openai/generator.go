package openai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/policyrag/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	model       string
	temperature float64
	maxTokens   int
	topP        float64
	limiter     *rate.Limiter
	timeout     time.Duration
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		model:       config.GenerationModel,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		topP:        config.TopP,
		limiter:     newLimiter(config.RequestsPerSecond),
		timeout:     config.Timeout,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new chat completion client using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Complete sends the messages and returns the text of the first choice.
func (g *Generator) Complete(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	o := ai.ApplyGenerateOptions(opts...)
	model := g.model
	if o.Model != "" {
		model = o.Model
	}
	maxTokens := g.maxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", classify("generate", err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	response, err := g.client.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(maxTokens),
		llms.WithTopP(g.topP),
	)
	if err != nil {
		err = classify("generate", err)
		g.logger.Error("failed to generate content", "model", model, "err", err)
		return "", err
	}

	if len(response.Choices) < 1 || strings.TrimSpace(response.Choices[0].Content) == "" {
		g.logger.Warn("no completion returned from model", "model", model)
		return "", ai.ErrEmptyCompletion
	}

	g.logger.Debug("generated completion", "model", model, "duration", time.Since(start))
	return response.Choices[0].Content, nil
}

func messageType(role ai.ChatRole) llms.ChatMessageType {
	switch role {
	case ai.ChatRoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.ChatRoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
