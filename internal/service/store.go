package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
	"github.com/fathima-sithara/marketplace-chat/internal/repository"
)

type ChatStore interface {
	Insert(ctx context.Context, c *models.Chat) error
	FindByID(ctx context.Context, id string) (*models.Chat, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Chat, error)
	FindDirect(ctx context.Context, pairKey string) (*models.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)
	Rename(ctx context.Context, id, name string) (*models.Chat, error)
	AddMembers(ctx context.Context, id string, userIDs []string) (*models.Chat, error)
	RemoveMember(ctx context.Context, id, userID string) (*models.Chat, error)
	SetLatestMessage(ctx context.Context, id, messageID string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]models.Message, error)
	AddReader(ctx context.Context, id, userID string) (*models.Message, error)
	DeleteByChat(ctx context.Context, chatID string) (int64, error)
}

type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

const msgNotParticipant = "you are not part of this chat"

// loadChat fetches a chat, mapping a missing id or record to user-facing errors.
func loadChat(ctx context.Context, op string, chats ChatStore, chatID string) (*models.Chat, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, apperr.BadRequest("chatId is required")
	}
	chat, err := chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, storeErr(op, err, "chat not found")
	}
	return chat, nil
}

func storeErr(op string, err error, notFound string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func publish(ctx context.Context, log *zap.Logger, p events.Publisher, e events.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Warn("publish event", zap.String("type", string(e.Type)), zap.String("chat_id", e.ChatID), zap.Error(err))
	}
}
