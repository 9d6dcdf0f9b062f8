package storage

import (
	"context"

	"github.com/poiesic/policyrag/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	// The underlying backend is closed separately.
	Close() error
}

// ChunkVisitor is called for every chunk visited by ScanReadyChunks.
// If the chunk could not be decoded, chunk is nil and err is a
// *core.CorruptChunkError. Returning a non-nil error stops the scan and
// that error is returned from ScanReadyChunks.
type ChunkVisitor func(doc *core.Document, chunk *core.DocumentChunk, err error) error

// DocumentRepository provides operations for documents and their chunks.
type DocumentRepository interface {
	Repository

	// AddDocument stores a new document in StatusProcessing.
	// Generates the ID from a sequence and sets UploadedAt if not already set.
	// Returns the document with generated fields populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns all documents ordered by ID.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// ListReadyDocuments returns the documents in StatusReady ordered by ID.
	ListReadyDocuments(ctx context.Context) ([]*core.Document, error)

	// MarkReady moves a processing document to StatusReady.
	// chunkCount must equal the number of stored chunks.
	// Returns ErrNotFound if the document doesn't exist and
	// core.ErrInvalidTransition if it is not processing.
	MarkReady(ctx context.Context, id core.ID, chunkCount int) (*core.Document, error)

	// MarkFailed moves a processing document to StatusError with the given message.
	// Returns ErrNotFound if the document doesn't exist and
	// core.ErrInvalidTransition if it is not processing.
	MarkFailed(ctx context.Context, id core.ID, message string) (*core.Document, error)

	// DeleteDocument removes a document together with all of its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// AddChunks stores chunks for a processing document.
	// Generates chunk IDs from a sequence and sets InsertedAt.
	// Returns ErrNotFound if the document doesn't exist (for example because it
	// was deleted mid-ingestion) and core.ErrInvalidTransition if it is no
	// longer processing.
	AddChunks(ctx context.Context, documentID core.ID, chunks ...*core.DocumentChunk) ([]*core.DocumentChunk, error)

	// GetChunks returns the chunks of a document ordered by ChunkIndex.
	// Returns ErrNotFound if the document doesn't exist.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.DocumentChunk, error)

	// UpdateChunks replaces the stored content of existing chunks.
	// Returns ErrNotFound if any chunk or its document doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.DocumentChunk) error

	// ScanReadyChunks visits every chunk of every ready document from a single
	// consistent snapshot, ordered by document ID then chunk index.
	// Chunks of documents that are not ready are never visited.
	ScanReadyChunks(ctx context.Context, fn ChunkVisitor) error
}

// ConversationRepository provides operations for conversations and messages.
type ConversationRepository interface {
	Repository

	// GetOrCreateConversation returns the conversation for a session,
	// creating it with the given default language on first use.
	// Thread-safe: handles concurrent creation attempts.
	GetOrCreateConversation(ctx context.Context, sessionID, language string) (*core.Conversation, error)

	// GetConversation retrieves the conversation for a session.
	// Returns ErrNotFound if the session has no conversation.
	GetConversation(ctx context.Context, sessionID string) (*core.Conversation, error)

	// AddMessages appends messages to a conversation.
	// Generates IDs from a sequence and sets Timestamp if not already set.
	// Returns ErrNotFound if the conversation doesn't exist.
	AddMessages(ctx context.Context, conversationID core.ID, messages ...*core.Message) ([]*core.Message, error)

	// GetMessages returns the messages of a conversation in ascending timestamp order.
	// Returns ErrNotFound if the conversation doesn't exist.
	GetMessages(ctx context.Context, conversationID core.ID) ([]*core.Message, error)
}
