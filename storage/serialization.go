package storage

import (
	"fmt"

	"github.com/poiesic/policyrag/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(id))
	})
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := decoder{bs: data}
	id := core.ID(d.uint64())
	return id, decodeErr(d.err)
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(doc.Id))
		e.string(doc.Filename)
		e.string(doc.OriginalName)
		e.string(doc.MIMEType)
		e.int64(doc.Size)
		e.string(doc.Checksum)
		e.int(int(doc.Status))
		e.int(doc.ChunkCount)
		e.string(doc.ErrorMessage)
		e.time(doc.UploadedAt)
		e.time(doc.ProcessedAt)
	})
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	d := decoder{bs: data}
	doc := &core.Document{
		Id:           core.ID(d.uint64()),
		Filename:     d.string(),
		OriginalName: d.string(),
		MIMEType:     d.string(),
		Size:         d.int64(),
		Checksum:     d.string(),
		Status:       core.DocumentStatus(d.int()),
		ChunkCount:   d.int(),
		ErrorMessage: d.string(),
		UploadedAt:   d.time(),
		ProcessedAt:  d.time(),
	}
	if err := decodeErr(d.err); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalChunk serializes a DocumentChunk to bytes.
func MarshalChunk(chunk *core.DocumentChunk) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(chunk.Id))
		e.uint64(uint64(chunk.DocumentId))
		e.int(chunk.ChunkIndex)
		e.string(chunk.Content)
		e.vector(chunk.Vector)
		e.stringMap(chunk.Metadata)
		e.time(chunk.InsertedAt)
	})
}

// UnmarshalChunk deserializes a DocumentChunk from bytes.
func UnmarshalChunk(data []byte) (*core.DocumentChunk, error) {
	d := decoder{bs: data}
	chunk := &core.DocumentChunk{
		Id:         core.ID(d.uint64()),
		DocumentId: core.ID(d.uint64()),
		ChunkIndex: d.int(),
		Content:    d.string(),
		Vector:     d.vector(),
		Metadata:   d.stringMap(),
		InsertedAt: d.time(),
	}
	if err := decodeErr(d.err); err != nil {
		return nil, err
	}
	return chunk, nil
}

// MarshalConversation serializes a Conversation to bytes.
func MarshalConversation(conv *core.Conversation) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(conv.Id))
		e.string(conv.SessionId)
		e.string(conv.Language)
		e.time(conv.CreatedAt)
	})
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	d := decoder{bs: data}
	conv := &core.Conversation{
		Id:        core.ID(d.uint64()),
		SessionId: d.string(),
		Language:  d.string(),
		CreatedAt: d.time(),
	}
	if err := decodeErr(d.err); err != nil {
		return nil, err
	}
	return conv, nil
}

// MarshalMessage serializes a Message to bytes.
// A nil Sources slice is distinguished from an empty one.
func MarshalMessage(msg *core.Message) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(msg.Id))
		e.uint64(uint64(msg.ConversationId))
		e.int(int(msg.Role))
		e.string(msg.Content)
		e.string(msg.OriginalLanguage)
		e.bool(msg.Sources != nil)
		if msg.Sources != nil {
			e.int(len(msg.Sources))
			for _, src := range msg.Sources {
				e.uint64(uint64(src.DocumentId))
				e.string(src.DocumentName)
				e.int(src.ChunkIndex)
				e.float32(src.Similarity)
				e.stringMap(src.Metadata)
			}
		}
		e.time(msg.Timestamp)
	})
}

// UnmarshalMessage deserializes a Message from bytes.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	d := decoder{bs: data}
	msg := &core.Message{
		Id:               core.ID(d.uint64()),
		ConversationId:   core.ID(d.uint64()),
		Role:             core.Role(d.int()),
		Content:          d.string(),
		OriginalLanguage: d.string(),
	}
	if d.bool() {
		l := d.length(1)
		msg.Sources = make([]core.Source, 0, l)
		for range l {
			msg.Sources = append(msg.Sources, core.Source{
				DocumentId:   core.ID(d.uint64()),
				DocumentName: d.string(),
				ChunkIndex:   d.int(),
				Similarity:   d.float32(),
				Metadata:     d.stringMap(),
			})
		}
	}
	msg.Timestamp = d.time()
	if err := decodeErr(d.err); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}
