package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend *Backend
	convSeq *badger.Sequence
	msgSeq  *badger.Sequence
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (*ConversationRepository, error) {
	convSeq, err := backend.GetSequence(conversationIDSeq)
	if err != nil {
		return nil, err
	}

	msgSeq, err := backend.GetSequence(messageIDSeq)
	if err != nil {
		convSeq.Release()
		return nil, err
	}

	return &ConversationRepository{
		backend: backend,
		convSeq: convSeq,
		msgSeq:  msgSeq,
	}, nil
}

// Close releases the ID sequences.
func (r *ConversationRepository) Close() error {
	return errors.Join(r.convSeq.Release(), r.msgSeq.Release())
}

// GetOrCreateConversation returns the conversation for a session, creating it on first use.
// Two concurrent creators both read the missing session key, so the later
// commit conflicts and its retry finds the winner's conversation.
func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, sessionID, language string) (*core.Conversation, error) {
	if err := core.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	var conv *core.Conversation
	err := r.backend.Update(func(tx *badger.Txn) error {
		existing, err := readConversationBySession(tx, sessionID)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		id, err := nextID(r.convSeq)
		if err != nil {
			return err
		}
		conv = &core.Conversation{
			Id:        core.ID(id),
			SessionId: sessionID,
			Language:  language,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Set(makeConversationKey(conv.Id), storage.MarshalConversation(conv)); err != nil {
			return err
		}
		return tx.Set(makeSessionKey(sessionID), storage.MarshalID(conv.Id))
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves the conversation for a session.
func (r *ConversationRepository) GetConversation(ctx context.Context, sessionID string) (*core.Conversation, error) {
	var conv *core.Conversation
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		conv, err = readConversationBySession(tx, sessionID)
		return err
	})
	return conv, err
}

// AddMessages appends messages to a conversation.
func (r *ConversationRepository) AddMessages(ctx context.Context, conversationID core.ID, messages ...*core.Message) ([]*core.Message, error) {
	for _, msg := range messages {
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
	}

	for _, msg := range messages {
		id, err := nextID(r.msgSeq)
		if err != nil {
			return nil, err
		}
		msg.Id = core.ID(id)
		msg.ConversationId = conversationID
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		// Keys and values both carry microsecond precision
		msg.Timestamp = msg.Timestamp.Truncate(time.Microsecond)
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		if _, err := readConversation(tx, conversationID); err != nil {
			return err
		}
		for _, msg := range messages {
			key := makeMessageKey(conversationID, msg.Timestamp, msg.Id)
			if err := tx.Set(key, storage.MarshalMessage(msg)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessages returns the messages of a conversation in ascending timestamp order.
func (r *ConversationRepository) GetMessages(ctx context.Context, conversationID core.ID) ([]*core.Message, error) {
	var messages []*core.Message
	err := r.backend.View(func(tx *badger.Txn) error {
		if _, err := readConversation(tx, conversationID); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialMessageKey(conversationID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var msg *core.Message
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				msg, unmarshalErr = storage.UnmarshalMessage(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	return messages, err
}

// Helper functions

// readConversation reads a conversation by ID.
func readConversation(tx *badger.Txn, id core.ID) (*core.Conversation, error) {
	item, err := tx.Get(makeConversationKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}

	var conv *core.Conversation
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		conv, unmarshalErr = storage.UnmarshalConversation(val)
		return unmarshalErr
	})
	return conv, err
}

// readConversationBySession resolves the session index and reads the conversation.
func readConversationBySession(tx *badger.Txn, sessionID string) (*core.Conversation, error) {
	item, err := tx.Get(makeSessionKey(sessionID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
		}
		return nil, err
	}

	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalID(val)
		return unmarshalErr
	})
	if err != nil {
		return nil, err
	}
	return readConversation(tx, id)
}
