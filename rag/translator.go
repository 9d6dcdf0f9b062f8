package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/policyrag/ai"
)

// Translator translates generated text with a role-prompted completion.
type Translator struct {
	generator ai.Generator
	options   []ai.GenerateOption
	logger    *slog.Logger
}

// NewTranslator creates a translator backed by generator.
// Options are passed to every completion request.
func NewTranslator(generator ai.Generator, logger *slog.Logger, opts ...ai.GenerateOption) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		generator: generator,
		options:   opts,
		logger:    logger.With("component", "translator"),
	}
}

// Translate returns text translated into the language with the given code.
// On failure the untranslated text is returned together with the error, so
// callers that tolerate an untranslated result can ignore the error.
func (t *Translator) Translate(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	messages := []ai.ChatMessage{
		{Role: ai.ChatRoleSystem, Content: fmt.Sprintf(translatorPrompt, LanguageName(language))},
		{Role: ai.ChatRoleUser, Content: text},
	}
	translated, err := t.generator.Complete(ctx, messages, t.options...)
	if err != nil {
		t.logger.Warn("translation failed", "language", language, "err", err)
		return text, fmt.Errorf("translate to %s: %w", language, err)
	}
	return strings.TrimSpace(translated), nil
}
