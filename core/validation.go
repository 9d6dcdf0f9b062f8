package core

import (
	"fmt"
	"time"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Filename and OriginalName must not be empty
//   - MIMEType must not be empty
//   - Status must be valid
//   - ChunkCount is positive iff Status is StatusReady
//   - ErrorMessage is set iff Status is StatusError
//
// NOT validated:
//   - ID (0 is valid before the sequence assigns one)
//   - Checksum (computed by the uploader)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}

	if doc.Filename == "" || doc.OriginalName == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyFilename)
	}

	if doc.MIMEType == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyMIMEType)
	}

	if doc.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrValidation, doc.Size)
	}

	if err := ValidateStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ready := doc.Status == StatusReady
	if ready != (doc.ChunkCount > 0) {
		return fmt.Errorf("%w: %w: chunk count %d with status %s", ErrValidation, ErrStatusFields, doc.ChunkCount, doc.Status)
	}

	failed := doc.Status == StatusError
	if failed != (doc.ErrorMessage != "") {
		return fmt.Errorf("%w: %w: error message with status %s", ErrValidation, ErrStatusFields, doc.Status)
	}

	return nil
}

// ValidateChunk validates a DocumentChunk before it is persisted.
func ValidateChunk(chunk *DocumentChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrValidation)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}

	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrValidation, chunk.ChunkIndex)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyVector)
	}

	return nil
}

// ValidateMessage validates a Message according to domain rules.
// User messages never carry sources.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrValidation)
	}

	if msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}

	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if msg.Role == RoleUser && msg.Sources != nil {
		return fmt.Errorf("%w: user message cannot have sources", ErrValidation)
	}

	if !msg.Timestamp.IsZero() && !IsValidTimestamp(msg.Timestamp) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrValidation)
	}

	return nil
}

// ValidateSessionID validates an external session identifier.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptySessionID)
	}
	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// ValidateStatus validates that a DocumentStatus has a valid value.
func ValidateStatus(status DocumentStatus) error {
	switch status {
	case StatusProcessing, StatusReady, StatusError:
		return nil
	}
	return fmt.Errorf("%w: value %d", ErrInvalidStatus, status)
}

// ValidateTransition checks a document status change.
// Only Processing may move, and only to Ready or Error.
func ValidateTransition(from, to DocumentStatus) error {
	if from != StatusProcessing || !to.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
