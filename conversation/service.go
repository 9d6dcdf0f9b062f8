// Package conversation records the questions and answers of chat sessions.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/storage"
)

var (
	// ErrRepositoryRequired is returned when a conversation repository is not provided.
	ErrRepositoryRequired = errors.New("conversation repository required")

	// ErrAnswererRequired is returned when no answerer is provided.
	ErrAnswererRequired = errors.New("answerer required")
)

// Answerer produces an answer to a question in a language.
type Answerer interface {
	Answer(ctx context.Context, query, language string) (*core.Answer, error)
}

// Service asks questions on behalf of sessions and keeps their history.
type Service struct {
	conversations   storage.ConversationRepository
	answerer        Answerer
	defaultLanguage string
	logger          *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithDefaultLanguage sets the language of new conversations when a question names none.
func WithDefaultLanguage(code string) Option {
	return func(s *Service) error {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			return fmt.Errorf("%w: default language cannot be empty", core.ErrValidation)
		}
		s.defaultLanguage = code
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a conversation service.
func NewService(conversations storage.ConversationRepository, answerer Answerer, opts ...Option) (*Service, error) {
	if conversations == nil {
		return nil, ErrRepositoryRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}

	s := &Service{
		conversations:   conversations,
		answerer:        answerer,
		defaultLanguage: "en",
		logger:          slog.Default().With("component", "conversation"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Ask answers query within the session's conversation, creating it on first use.
// An empty language means the conversation's default language. The question
// is stored before answering and the answer, with its sources, after.
func (s *Service) Ask(ctx context.Context, sessionID, query, language string) (*core.Answer, error) {
	if err := core.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyContent)
	}
	language = strings.ToLower(strings.TrimSpace(language))

	initial := language
	if initial == "" {
		initial = s.defaultLanguage
	}
	conv, err := s.conversations.GetOrCreateConversation(ctx, sessionID, initial)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = conv.Language
	}

	_, err = s.conversations.AddMessages(ctx, conv.Id, &core.Message{
		Role:             core.RoleUser,
		Content:          query,
		OriginalLanguage: language,
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.answerer.Answer(ctx, query, language)
	if err != nil {
		return nil, err
	}

	sources := answer.Sources
	if sources == nil {
		sources = []core.Source{}
	}
	_, err = s.conversations.AddMessages(ctx, conv.Id, &core.Message{
		Role:             core.RoleAssistant,
		Content:          answer.Content,
		OriginalLanguage: language,
		Sources:          sources,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("answered question", "sessionID", sessionID, "conversationID", conv.Id, "sources", len(sources))
	return answer, nil
}

// History returns the session's messages in ascending timestamp order.
// Returns core.ErrNotFound if the session has never asked a question.
func (s *Service) History(ctx context.Context, sessionID string) ([]*core.Message, error) {
	if err := core.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	conv, err := s.conversations.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.conversations.GetMessages(ctx, conv.Id)
}
