package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
	"github.com/fathima-sithara/marketplace-chat/internal/repository"
)

// ChatService is the chat directory: direct chats, groups and their membership.
type ChatService struct {
	chats    ChatStore
	messages MessageStore
	users    UserDirectory
	views    *repository.ReadModel
	events   events.Publisher
	log      *zap.Logger
}

func NewChatService(chats ChatStore, messages MessageStore, users UserDirectory, pub events.Publisher, log *zap.Logger) *ChatService {
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		views:    repository.NewReadModel(users, messages, chats),
		events:   pub,
		log:      log.Named("chat"),
	}
}

// AccessDirectChat returns the direct chat between requester and other,
// creating it on first access. created reports whether this call inserted it.
func (s *ChatService) AccessDirectChat(ctx context.Context, requesterID, otherID string) (view *models.ChatView, created bool, err error) {
	const op = "service.AccessDirectChat"

	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, false, apperr.BadRequest("userId param not sent with request")
	}
	if otherID == requesterID {
		return nil, false, apperr.BadRequest("cannot start a chat with yourself")
	}
	if _, err := s.users.FindByID(ctx, otherID); err != nil {
		return nil, false, storeErr(op, err, "user not found")
	}

	key := models.PairKey(requesterID, otherID)
	chat, err := s.chats.FindDirect(ctx, key)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if chat == nil {
		chat = &models.Chat{
			ChatName: "sender",
			Users:    []string{requesterID, otherID},
			PairKey:  key,
		}
		err = s.chats.Insert(ctx, chat)
		switch {
		case err == nil:
			created = true
			publish(ctx, s.log, s.events, events.Event{
				Type: events.ChatCreated, ChatID: chat.ID, ActorID: requesterID, Members: chat.Users,
			})
		case errors.Is(err, repository.ErrDuplicate):
			// lost the race against a concurrent creator
			chat, err = s.chats.FindDirect(ctx, key)
			if err != nil {
				return nil, false, fmt.Errorf("%s: refetch: %w", op, err)
			}
		default:
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
	}

	view, err = s.views.Chat(ctx, *chat)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return view, created, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatView, error) {
	const op = "service.ListChats"

	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	views, err := s.views.Chats(ctx, chats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return views, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID, requesterID string) (*models.ChatView, error) {
	const op = "service.GetChat"

	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(requesterID) {
		return nil, apperr.Forbidden(msgNotParticipant)
	}
	return s.view(ctx, op, chat)
}

func (s *ChatService) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string, groupImage string) (*models.ChatView, error) {
	const op = "service.CreateGroup"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("please provide a group name")
	}
	members := lo.Uniq(lo.Compact(append(lo.Map(memberIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	}), creatorID)))
	if len(members) < 2 {
		return nil, apperr.BadRequest("more than 1 user is required to form a group chat")
	}

	chat := &models.Chat{
		IsGroupChat: true,
		ChatName:    name,
		Users:       members,
		GroupAdmin:  creatorID,
		GroupImage:  strings.TrimSpace(groupImage),
	}
	if err := s.chats.Insert(ctx, chat); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publish(ctx, s.log, s.events, events.Event{
		Type: events.ChatCreated, ChatID: chat.ID, ActorID: creatorID, Members: chat.Users, IsGroup: true,
	})
	return s.view(ctx, op, chat)
}

func (s *ChatService) RenameGroup(ctx context.Context, chatID, requesterID, name string) (*models.ChatView, error) {
	const op = "service.RenameGroup"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("chatName is required")
	}
	group, err := s.adminGroup(ctx, op, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.Rename(ctx, group.ID, name)
	if err != nil {
		return nil, storeErr(op, err, "chat not found")
	}
	s.changed(ctx, chat, requesterID)
	return s.view(ctx, op, chat)
}

func (s *ChatService) AddMembers(ctx context.Context, chatID, requesterID string, memberIDs []string) (*models.ChatView, error) {
	const op = "service.AddMembers"

	ids := lo.Uniq(lo.Compact(lo.Map(memberIDs, func(id string, _ int) string { return strings.TrimSpace(id) })))
	if len(ids) == 0 {
		return nil, apperr.BadRequest("users are required")
	}
	group, err := s.adminGroup(ctx, op, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.AddMembers(ctx, group.ID, ids)
	if err != nil {
		return nil, storeErr(op, err, "chat not found")
	}
	s.changed(ctx, chat, requesterID)
	return s.view(ctx, op, chat)
}

// RemoveMember lets the admin remove any non-admin member and lets a member
// leave. The admin can never be removed this way, not even by themself.
func (s *ChatService) RemoveMember(ctx context.Context, chatID, requesterID, targetID string) (*models.ChatView, error) {
	const op = "service.RemoveMember"

	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, apperr.BadRequest("userId is required")
	}
	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(requesterID) {
		return nil, apperr.Forbidden(msgNotParticipant)
	}
	if !chat.IsGroupChat {
		return nil, apperr.BadRequest("not a group chat")
	}
	if !chat.HasMember(targetID) {
		return nil, apperr.BadRequest("user is not a member of this chat")
	}
	if targetID == chat.GroupAdmin {
		return nil, apperr.BadRequest("group admin cannot be removed")
	}
	if requesterID != chat.GroupAdmin && requesterID != targetID {
		return nil, apperr.Forbidden("only the group admin can remove other members")
	}

	updated, err := s.chats.RemoveMember(ctx, chat.ID, targetID)
	if err != nil {
		return nil, storeErr(op, err, "chat not found")
	}
	s.changed(ctx, updated, requesterID)
	return s.view(ctx, op, updated)
}

// DeleteChat removes the chat and its messages. Groups require the admin.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, requesterID string) error {
	const op = "service.DeleteChat"

	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return err
	}
	if !chat.HasMember(requesterID) {
		return apperr.Forbidden(msgNotParticipant)
	}
	if chat.IsGroupChat && !chat.IsAdmin(requesterID) {
		return apperr.Forbidden("only the group admin can delete this group")
	}
	if err := s.chats.Delete(ctx, chat.ID); err != nil {
		return storeErr(op, err, "chat not found")
	}
	n, err := s.messages.DeleteByChat(ctx, chat.ID)
	if err != nil {
		s.log.Warn("delete chat messages", zap.String("chat_id", chat.ID), zap.Error(err))
	}
	s.log.Info("chat deleted", zap.String("chat_id", chat.ID), zap.Int64("messages", n))
	publish(ctx, s.log, s.events, events.Event{
		Type: events.ChatDeleted, ChatID: chat.ID, ActorID: requesterID, Members: chat.Users, IsGroup: chat.IsGroupChat,
	})
	return nil
}

func (s *ChatService) adminGroup(ctx context.Context, op, chatID, requesterID string) (*models.Chat, error) {
	chat, err := loadChat(ctx, op, s.chats, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroupChat {
		return nil, apperr.BadRequest("not a group chat")
	}
	if !chat.IsAdmin(requesterID) {
		return nil, apperr.Forbidden("only the group admin can do this")
	}
	return chat, nil
}

func (s *ChatService) changed(ctx context.Context, chat *models.Chat, actorID string) {
	publish(ctx, s.log, s.events, events.Event{
		Type: events.ChatUpdated, ChatID: chat.ID, ActorID: actorID, Members: chat.Users, IsGroup: true,
	})
}

func (s *ChatService) view(ctx context.Context, op string, chat *models.Chat) (*models.ChatView, error) {
	v, err := s.views.Chat(ctx, *chat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}
