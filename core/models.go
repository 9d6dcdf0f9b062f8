package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// EmbeddingDimension is the vector length produced by the default embedder.
const EmbeddingDimension = 384

// ID is a unique identifier for domain entities.
// It is allocated from a database sequence.
type ID uint64

// Checksum returns the hex encoded BLAKE2b-256 digest of data.
// It identifies uploaded payloads independently of their file names.
func Checksum(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus int

const (
	// StatusProcessing marks a document whose ingestion has not finished.
	StatusProcessing DocumentStatus = iota + 1
	// StatusReady marks a document whose chunks are searchable.
	StatusReady
	// StatusError marks a document whose ingestion failed.
	StatusError
)

// String returns the lowercase name of the status.
func (s DocumentStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// Document is an uploaded file and its ingestion state.
type Document struct {
	Id           ID
	Filename     string // Stored file name, unique per upload
	OriginalName string // Name supplied by the uploader
	MIMEType     string
	Size         int64
	Checksum     string
	Status       DocumentStatus
	ChunkCount   int    // Set only when Status is StatusReady
	ErrorMessage string // Set only when Status is StatusError
	UploadedAt   time.Time
	ProcessedAt  time.Time // Set when the document reaches StatusReady
}

// DocumentChunk is a span of a document's text together with its embedding.
type DocumentChunk struct {
	Id         ID
	DocumentId ID
	ChunkIndex int
	Content    string
	Vector     []float32
	Metadata   map[string]string // Optional metadata (e.g., "page", "section")
	InsertedAt time.Time
}

// Conversation groups the messages exchanged within one external session.
type Conversation struct {
	Id        ID
	SessionId string
	Language  string // Default language for answers in this conversation
	CreatedAt time.Time
}

// Role identifies the author of a message.
type Role int

const (
	// RoleUser is a question asked by a person.
	RoleUser Role = iota + 1
	// RoleAssistant is an answer produced by the system.
	RoleAssistant
)

// String returns the lowercase name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Message is a single entry of a conversation.
type Message struct {
	Id               ID
	ConversationId   ID
	Role             Role
	Content          string
	OriginalLanguage string
	Sources          []Source // nil for user messages
	Timestamp        time.Time
}

// Source attributes part of an answer to a retrieved chunk.
type Source struct {
	DocumentId   ID
	DocumentName string
	ChunkIndex   int
	Similarity   float32
	Metadata     map[string]string
}

// Answer is the result of a retrieval-augmented query.
type Answer struct {
	Content string
	Sources []Source
}

// SearchResult represents a chunk match with its owning document and relevance score.
type SearchResult struct {
	Document *Document
	Chunk    *DocumentChunk
	Score    float32
}

// Index states reported by IndexStatus.
const (
	IndexStateReady = "ready"
	IndexStateEmpty = "empty"
)

// IndexStatus summarizes the searchable corpus.
type IndexStatus struct {
	DocumentCount  int
	EmbeddingCount int
	LastUpdated    time.Time // Zero when no document is ready
	State          string
}
