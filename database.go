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


package policyrag

import (
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/ai/hashembed"
	"github.com/poiesic/policyrag/ai/openai"
	"github.com/poiesic/policyrag/conversation"
	"github.com/poiesic/policyrag/ingestion"
	"github.com/poiesic/policyrag/rag"
	"github.com/poiesic/policyrag/reembed"
	"github.com/poiesic/policyrag/search"
	"github.com/poiesic/policyrag/storage"
	"github.com/poiesic/policyrag/storage/badger"
)

// Database owns the storage backend and the AI provider and builds the
// components that use them.
type Database struct {
	backend       *badger.Backend
	documents     *badger.DocumentRepository
	conversations *badger.ConversationRepository
	provider      ai.AIProvider
	logger        *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig     *ai.Config
	provider     ai.AIProvider
	hashEmbedder bool
	inMemory     bool
	logger       *slog.Logger
}

// WithAIConfig sets the provider configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithAIProvider uses provider instead of building one from the AI config.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithHashEmbedder embeds with the deterministic hash embedder instead of
// the configured embedding host.
func WithHashEmbedder() DatabaseOption {
	return func(o *databaseOptions) {
		o.hashEmbedder = true
	}
}

// WithInMemory keeps all data in memory; the file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	documents, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	conversations, err := badger.NewConversationRepository(backend)
	if err != nil {
		documents.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var providerOpts []openai.ProviderOption
		if options.hashEmbedder {
			providerOpts = append(providerOpts, openai.WithEmbedder(hashembed.New()))
		}
		provider, err = openai.NewProvider(options.aiConfig, providerOpts...)
		if err != nil {
			conversations.Close()
			documents.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:       backend,
		documents:     documents,
		conversations: conversations,
		provider:      provider,
		logger:        options.logger,
	}, nil
}

// Close releases the provider, the repositories and the backend.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	var errs []error
	if err := db.conversations.Close(); err != nil {
		db.logger.Error("error closing conversation repository", "err", err)
		errs = append(errs, err)
	}
	if err := db.documents.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		errs = append(errs, err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.documents
}

func (db *Database) ConversationRepository() storage.ConversationRepository {
	return db.conversations
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

func (db *Database) NewIndex(opts ...search.Option) (*search.Linear, error) {
	return search.NewLinear(db.documents, opts...)
}

func (db *Database) NewIngestionPipeline(index search.Index, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.documents, index, db.provider, opts...)
}

func (db *Database) NewOrchestrator(index search.Index, opts ...rag.Option) (*rag.Orchestrator, error) {
	return rag.NewOrchestrator(db.documents, index, db.provider, opts...)
}

func (db *Database) NewConversationService(answerer conversation.Answerer, opts ...conversation.Option) (*conversation.Service, error) {
	return conversation.NewService(db.conversations, answerer, opts...)
}

// NewReembedder reembeds Ready chunks with the provider's current embedder.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.documents, db.provider.Embedder(), config, progress)
}
