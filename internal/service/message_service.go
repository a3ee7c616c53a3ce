package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
	"github.com/fathima-sithara/marketplace-chat/internal/repository"
)

// MessageService is the append-only message log of each chat.
type MessageService struct {
	chats    ChatStore
	messages MessageStore
	views    *repository.ReadModel
	events   events.Publisher
	log      *zap.Logger
}

func NewMessageService(chats ChatStore, messages MessageStore, users UserDirectory, pub events.Publisher, log *zap.Logger) *MessageService {
	return &MessageService{
		chats:    chats,
		messages: messages,
		views:    repository.NewReadModel(users, messages, chats),
		events:   pub,
		log:      log.Named("message"),
	}
}

// Send persists the message and then moves the chat's latest message pointer.
// The two writes are not atomic, so callers must not retry a failed send blindly.
func (s *MessageService) Send(ctx context.Context, senderID, chatID, content string, attachments []string) (*models.MessageView, error) {
	const op = "service.Send"

	attachments = lo.Compact(lo.Map(attachments, func(a string, _ int) string { return strings.TrimSpace(a) }))
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, apperr.BadRequest("message content or attachments are required")
	}
	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(senderID) {
		return nil, apperr.Forbidden(msgNotParticipant)
	}

	msg := &models.Message{
		Sender:      senderID,
		Content:     content,
		Chat:        chat.ID,
		Attachments: attachments,
		ReadBy:      []string{},
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}
	if err := s.chats.SetLatestMessage(ctx, chat.ID, msg.ID, msg.CreatedAt); err != nil {
		s.log.Error("latest message pointer not updated",
			zap.String("chat_id", chat.ID), zap.String("message_id", msg.ID), zap.Error(err))
		return nil, storeErr(op, err, "chat not found")
	}

	publish(ctx, s.log, s.events, events.Event{
		Type: events.MessageSent, ChatID: chat.ID, MessageID: msg.ID, ActorID: senderID,
		Members: chat.Users, IsGroup: chat.IsGroupChat, At: msg.CreatedAt,
	})

	view, err := s.views.Message(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

func (s *MessageService) List(ctx context.Context, chatID, requesterID string) ([]models.MessageView, error) {
	const op = "service.ListMessages"

	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(requesterID) {
		return nil, apperr.Forbidden(msgNotParticipant)
	}
	msgs, err := s.messages.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	views, err := s.views.Messages(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return views, nil
}

// MarkRead adds requester to the message's readers. Repeated calls are no-ops.
func (s *MessageService) MarkRead(ctx context.Context, messageID, requesterID string) (*models.MessageView, error) {
	const op = "service.MarkRead"

	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, apperr.BadRequest("messageId is required")
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(op, err, "message not found")
	}
	chat, err := s.chats.FindByID(ctx, msg.Chat)
	if err != nil {
		return nil, storeErr(op, err, "chat not found")
	}
	if !chat.HasMember(requesterID) {
		return nil, apperr.Forbidden(msgNotParticipant)
	}

	if !lo.Contains(msg.ReadBy, requesterID) {
		msg, err = s.messages.AddReader(ctx, messageID, requesterID)
		if err != nil {
			return nil, storeErr(op, err, "message not found")
		}
		publish(ctx, s.log, s.events, events.Event{
			Type: events.MessageRead, ChatID: chat.ID, MessageID: msg.ID, ActorID: requesterID,
		})
	}

	view, err := s.views.Message(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}
