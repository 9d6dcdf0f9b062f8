package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when a document repository is not provided.
	ErrRepositoryRequired = errors.New("document repository required")

	// ErrIndexRequired is returned when a search index is not provided.
	ErrIndexRequired = errors.New("search index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrPipelineBusy is returned when every ingestion worker is occupied.
	// The document is marked failed so it never stays in processing.
	ErrPipelineBusy = errors.New("ingestion pipeline at capacity")

	// ErrNoText is returned when extraction yields no chunkable text.
	ErrNoText = errors.New("document contains no text")
)
