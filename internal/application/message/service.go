package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whisper-api/internal/domain"
	"github.com/whisper-api/internal/pkg/id"
)

const fieldIsAcceptingMessages = "is_accepting_messages"

type Service interface {
	Send(ctx context.Context, recipientUsername, content string) error
	List(ctx context.Context, accountID string) ([]domain.Message, error)
	Delete(ctx context.Context, accountID, messageID string) error
	SetAccepting(ctx context.Context, accountID string, accepting bool) error
}

type accountStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	AppendMessage(ctx context.Context, accountID string, m domain.Message) error
	RemoveMessage(ctx context.Context, accountID, messageID string) (int, error)
	ListMessages(ctx context.Context, accountID string) ([]domain.Message, error)
}

type service struct {
	repo accountStore
}

func NewService(repo accountStore) Service {
	return &service{repo: repo}
}

// Send is the anonymous intake path. The accept flag is read live and then
// re-checked by the append's own condition, so a toggle that lands between
// the two still rejects the message.
func (s *service) Send(ctx context.Context, recipientUsername, content string) error {
	if content == "" {
		return fmt.Errorf("message content is required: %w", domain.ErrBadRequest)
	}
	a, err := s.repo.GetByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("recipient not found: %w", domain.ErrNotFound)
		}
		return err
	}
	if !a.IsAcceptingMessages {
		return fmt.Errorf("recipient is not accepting messages: %w", domain.ErrForbidden)
	}
	m := domain.Message{
		MessageID: id.New(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.AppendMessage(ctx, a.AccountID, m)
}

func (s *service) List(ctx context.Context, accountID string) ([]domain.Message, error) {
	return s.repo.ListMessages(ctx, accountID)
}

// Delete removes one message from the caller's own inbox. The store scopes
// the removal to accountID, so an id from someone else's inbox never matches.
func (s *service) Delete(ctx context.Context, accountID, messageID string) error {
	modified, err := s.repo.RemoveMessage(ctx, accountID, messageID)
	if err != nil {
		return err
	}
	if modified == 0 {
		return fmt.Errorf("message not found or already deleted: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *service) SetAccepting(ctx context.Context, accountID string, accepting bool) error {
	return s.repo.Update(ctx, accountID, map[string]interface{}{
		fieldIsAcceptingMessages: accepting,
	})
}
