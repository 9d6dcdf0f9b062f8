// Package storage provides the storage abstraction layer for policyrag.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. The ingestion pipeline, the vector index and the
// conversation service depend only on these interfaces, never on a concrete
// backend.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - DocumentRepository: documents, their lifecycle and their chunks
//   - ConversationRepository: conversations and append-only messages
//
// Records are encoded with hand-written mus-go serializers (see codec.go).
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	docs, convs, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Identifiers
//
// Every identifier is allocated from an atomic backend sequence, so
// concurrent creation never produces duplicates.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
