package core

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers classify with errors.Is.
var (
	// ErrValidation indicates malformed input rejected before any processing.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a reference to a nonexistent document or conversation.
	ErrNotFound = errors.New("not found")

	// ErrExtraction indicates text could not be extracted from an upload.
	ErrExtraction = errors.New("text extraction failed")

	// ErrInvalidTransition indicates a document status change that the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid document status transition")
)

// Domain validation errors
var (
	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidRole indicates an invalid Role value.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidStatus indicates an invalid DocumentStatus value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrEmptySessionID indicates a conversation without a session identifier.
	ErrEmptySessionID = errors.New("session id cannot be empty")

	// ErrEmptyFilename indicates a document without a stored or original name.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrEmptyMIMEType indicates a document without a MIME type.
	ErrEmptyMIMEType = errors.New("mime type cannot be empty")

	// ErrEmptyVector indicates a chunk without an embedding.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")

	// ErrStatusFields indicates chunkCount or errorMessage disagree with the status.
	ErrStatusFields = errors.New("status fields inconsistent with status")
)

// CorruptChunkError reports a stored chunk whose vector cannot be read.
// Searches skip such chunks instead of failing.
type CorruptChunkError struct {
	DocumentId ID
	ChunkIndex int
	Err        error
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("corrupt chunk %d of document %d: %v", e.ChunkIndex, e.DocumentId, e.Err)
}

func (e *CorruptChunkError) Unwrap() error {
	return e.Err
}
