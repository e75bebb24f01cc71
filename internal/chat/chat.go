// Package chat implements the chat assistant: session bookkeeping, the
// assistants that answer a turn and the client of the streaming endpoint.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/logger"
)

var (
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrInvalidSession is returned for session ids not issued by NewSessionID.
	ErrInvalidSession = errors.New("session id must be a UUID")
	// ErrAssistant wraps failures of the assistant backend.
	ErrAssistant = errors.New("assistant failed")
)

// Request is one user turn together with the session history before it.
type Request struct {
	SessionID string
	Message   string
	History   []Turn
}

// Assistant answers a chat turn either at once or as a stream of chunks.
type Assistant interface {
	Reply(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request, emit func(chunk string) error) error
}

// Service binds an Assistant to a Store so every turn sees the session history.
type Service struct {
	assistant Assistant
	store     Store
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a chat service. A nil store keeps history in memory.
func NewService(assistant Assistant, store Store, l *zap.Logger) *Service {
	if store == nil {
		store = NewMemoryStore(0)
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{assistant: assistant, store: store, logger: l, now: time.Now}
}

// Reply answers message in the given session. An empty session starts a new
// one; the effective id is returned either way.
func (s *Service) Reply(ctx context.Context, session, message string) (string, string, error) {
	req, err := s.prepare(ctx, session, message)
	if err != nil {
		return req.SessionID, "", err
	}

	reply, err := s.assistant.Reply(ctx, req)
	if err != nil {
		return req.SessionID, "", assistantError(err)
	}

	s.record(ctx, req, reply)
	return req.SessionID, reply, nil
}

// Stream answers message chunk by chunk. The turn is stored only when the
// stream completes.
func (s *Service) Stream(ctx context.Context, session, message string, emit func(chunk string) error) (string, error) {
	req, err := s.prepare(ctx, session, message)
	if err != nil {
		return req.SessionID, err
	}

	var reply strings.Builder
	err = s.assistant.Stream(ctx, req, func(chunk string) error {
		reply.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		return req.SessionID, assistantError(err)
	}

	s.record(ctx, req, reply.String())
	return req.SessionID, nil
}

// Reset drops the history of a session.
func (s *Service) Reset(ctx context.Context, session string) error {
	id, err := ParseSessionID(session)
	if err != nil {
		return err
	}
	return s.store.Reset(ctx, id)
}

func (s *Service) prepare(ctx context.Context, session, message string) (Request, error) {
	req := Request{SessionID: NewSessionID(), Message: strings.TrimSpace(message)}
	if session = strings.TrimSpace(session); session != "" {
		id, err := ParseSessionID(session)
		if err != nil {
			return Request{}, err
		}
		req.SessionID = id
	}
	if req.Message == "" {
		return req, ErrEmptyMessage
	}

	history, err := s.store.History(ctx, req.SessionID)
	if err != nil {
		return req, fmt.Errorf("loading history: %w", err)
	}
	req.History = history

	s.logger.Debug("chat turn",
		append(logger.SessionFields(req.SessionID, ""),
			zap.Int("history", len(history)),
			zap.Int("message_length", len(req.Message)),
		)...,
	)

	return req, nil
}

// record stores the finished turn. A store failure loses history but not the
// reply, so it is only logged.
func (s *Service) record(ctx context.Context, req Request, reply string) {
	now := s.now()
	err := s.store.Append(ctx, req.SessionID,
		Turn{Role: RoleUser, Text: req.Message, At: now},
		Turn{Role: RoleAssistant, Text: reply, At: now},
	)
	if err != nil {
		s.logger.Warn("failed to save chat turn", append(logger.SessionFields(req.SessionID, ""), zap.Error(err))...)
	}
}

func assistantError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAssistant, err)
}
