// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/search"
	"github.com/poiesic/policyrag/storage"
)

// Orchestrator answers questions from the chunks of Ready documents.
type Orchestrator struct {
	documents    storage.DocumentRepository
	index        search.Index
	embedder     ai.Embedder
	generator    ai.Generator
	translator   *Translator
	topK         int
	baseLanguage string
	model        string
	monitor      Monitor
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithTopK sets how many chunks are retrieved per question.
// Default is search.DefaultK.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k < 1 {
			return fmt.Errorf("%w: top k must be positive, got %d", core.ErrValidation, k)
		}
		o.topK = k
		return nil
	}
}

// WithBaseLanguage sets the language answers are generated in before translation.
// Default is DefaultBaseLanguage.
func WithBaseLanguage(code string) Option {
	return func(o *Orchestrator) error {
		code = normalizeLanguage(code)
		if code == "" {
			return fmt.Errorf("%w: base language cannot be empty", core.ErrValidation)
		}
		o.baseLanguage = code
		return nil
	}
}

// WithModel overrides the generator's configured model for answers and translations.
func WithModel(model string) Option {
	return func(o *Orchestrator) error {
		o.model = model
		return nil
	}
}

// WithMonitor sets the observer of answered queries.
func WithMonitor(monitor Monitor) Option {
	return func(o *Orchestrator) error {
		if monitor != nil {
			o.monitor = monitor
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates a new retrieval orchestrator.
func NewOrchestrator(
	documents storage.DocumentRepository,
	index search.Index,
	provider ai.AIProvider,
	opts ...Option,
) (*Orchestrator, error) {
	if documents == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	o := &Orchestrator{
		documents:    documents,
		index:        index,
		embedder:     provider.Embedder(),
		generator:    provider.Generator(),
		topK:         search.DefaultK,
		baseLanguage: DefaultBaseLanguage,
		monitor:      noopMonitor{},
		logger:       slog.Default().With("component", "rag"),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	o.translator = NewTranslator(o.generator, o.logger, o.generateOptions()...)
	return o, nil
}

func (o *Orchestrator) generateOptions() []ai.GenerateOption {
	if o.model == "" {
		return nil
	}
	return []ai.GenerateOption{ai.WithModel(o.model)}
}

// Answer answers query in language, citing the retrieved chunks as sources.
// An empty language means the base language.
//
// Only a blank query is reported as an error. Any failure while retrieving,
// generating or translating yields ApologyMessage with no sources.
func (o *Orchestrator) Answer(ctx context.Context, query, language string) (*core.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyQuery)
	}
	language = normalizeLanguage(language)
	if language == "" {
		language = o.baseLanguage
	}

	start := time.Now()
	answer, outcome := o.answer(ctx, query, language)
	o.monitor.Answered(outcome, language, time.Since(start), len(answer.Sources))
	return answer, nil
}

func (o *Orchestrator) answer(ctx context.Context, query, language string) (*core.Answer, Outcome) {
	logger := o.logger.With("language", language)

	vector, err := o.embedder.EmbedText(ctx, query)
	if err != nil {
		logger.Error("error embedding query", "err", err)
		return o.apology(ctx, language), OutcomeDegraded
	}

	results, err := o.index.Search(ctx, vector, o.topK)
	if err != nil {
		logger.Error("error searching index", "err", err)
		return o.apology(ctx, language), OutcomeDegraded
	}
	if len(results) == 0 {
		logger.Debug("no chunks retrieved")
		return &core.Answer{
			Content: o.fixedMessage(ctx, NoDocumentsMessage, language),
			Sources: []core.Source{},
		}, OutcomeNoDocuments
	}

	messages := []ai.ChatMessage{
		{Role: ai.ChatRoleSystem, Content: buildSystemPrompt(language, o.baseLanguage)},
		{Role: ai.ChatRoleUser, Content: buildUserPrompt(query, buildContext(results))},
	}
	content, err := o.generator.Complete(ctx, messages, o.generateOptions()...)
	if err != nil {
		logger.Error("error generating answer", "err", err)
		return o.apology(ctx, language), OutcomeDegraded
	}

	if language != o.baseLanguage {
		content, err = o.translator.Translate(ctx, content, language)
		if err != nil {
			logger.Error("error translating answer", "err", err)
			return o.apology(ctx, language), OutcomeDegraded
		}
	}

	logger.Debug("answered query", "sources", len(results))
	return &core.Answer{Content: content, Sources: sourcesFrom(results)}, OutcomeAnswered
}

func (o *Orchestrator) apology(ctx context.Context, language string) *core.Answer {
	return &core.Answer{
		Content: o.fixedMessage(ctx, ApologyMessage, language),
		Sources: []core.Source{},
	}
}

// fixedMessage translates message when needed, falling back to the base-language text.
func (o *Orchestrator) fixedMessage(ctx context.Context, message, language string) string {
	if language == o.baseLanguage {
		return message
	}
	translated, _ := o.translator.Translate(ctx, message, language)
	return translated
}

func sourcesFrom(results []*core.SearchResult) []core.Source {
	sources := make([]core.Source, len(results))
	for i, result := range results {
		name := UnknownDocumentName
		if result.Document != nil && result.Document.OriginalName != "" {
			name = result.Document.OriginalName
		}
		sources[i] = core.Source{
			DocumentId:   result.Chunk.DocumentId,
			DocumentName: name,
			ChunkIndex:   result.Chunk.ChunkIndex,
			Similarity:   result.Score,
			Metadata:     result.Chunk.Metadata,
		}
	}
	return sources
}

// TestConnection sends a short prompt through the generator and returns the
// classified provider error if it fails.
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	messages := []ai.ChatMessage{{Role: ai.ChatRoleUser, Content: connectionTestPrompt}}
	opts := append(o.generateOptions(), ai.WithMaxTokens(16))
	if _, err := o.generator.Complete(ctx, messages, opts...); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Status summarizes the Ready documents that answers are drawn from.
func (o *Orchestrator) Status(ctx context.Context) (*core.IndexStatus, error) {
	docs, err := o.documents.ListReadyDocuments(ctx)
	if err != nil {
		return nil, err
	}

	status := &core.IndexStatus{
		DocumentCount: len(docs),
		State:         core.IndexStateEmpty,
	}
	for _, doc := range docs {
		status.EmbeddingCount += doc.ChunkCount
		if doc.ProcessedAt.After(status.LastUpdated) {
			status.LastUpdated = doc.ProcessedAt
		}
	}
	if len(docs) > 0 {
		status.State = core.IndexStateReady
	}
	return status, nil
}
