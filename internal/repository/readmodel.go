package repository

import (
	"context"

	"github.com/samber/lo"

	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

type UserLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type MessageLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Message, error)
}

type ChatLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Chat, error)
}

// ReadModel assembles response views from stored documents. Each call issues
// one $in query per referenced collection; nothing is resolved lazily.
type ReadModel struct {
	users    UserLookup
	messages MessageLookup
	chats    ChatLookup
}

func NewReadModel(users UserLookup, messages MessageLookup, chats ChatLookup) *ReadModel {
	return &ReadModel{users: users, messages: messages, chats: chats}
}

func (rm *ReadModel) profiles(ctx context.Context, ids []string) (map[string]models.User, error) {
	ids = lo.Uniq(lo.Compact(ids))
	found, err := rm.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(found, func(u models.User) string { return u.ID }), nil
}

// profile falls back to an id-only user when the directory has no record.
func profile(byID map[string]models.User, id string) models.User {
	if u, ok := byID[id]; ok {
		return u
	}
	return models.User{ID: id}
}

func chatShell(c models.Chat, byID map[string]models.User) models.ChatView {
	v := models.ChatView{
		ID:          c.ID,
		IsGroupChat: c.IsGroupChat,
		ChatName:    c.ChatName,
		Users:       lo.Map(c.Users, func(id string, _ int) models.User { return profile(byID, id) }),
		GroupImage:  c.GroupImage,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.GroupAdmin != "" {
		v.GroupAdmin = lo.ToPtr(profile(byID, c.GroupAdmin))
	}
	return v
}

func messageShell(m models.Message, byID map[string]models.User) models.MessageView {
	return models.MessageView{
		ID:          m.ID,
		Sender:      profile(byID, m.Sender),
		Content:     m.Content,
		ChatID:      m.Chat,
		Attachments: m.Attachments,
		ReadBy:      m.ReadBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// Chats resolves participants, admin and latest message (with its sender).
func (rm *ReadModel) Chats(ctx context.Context, chats []models.Chat) ([]models.ChatView, error) {
	latestIDs := lo.Compact(lo.Map(chats, func(c models.Chat, _ int) string { return c.LatestMessage }))
	latest, err := rm.messages.FindByIDs(ctx, latestIDs)
	if err != nil {
		return nil, err
	}
	latestByID := lo.KeyBy(latest, func(m models.Message) string { return m.ID })

	var userIDs []string
	for _, c := range chats {
		userIDs = append(userIDs, c.Users...)
		userIDs = append(userIDs, c.GroupAdmin)
	}
	for _, m := range latest {
		userIDs = append(userIDs, m.Sender)
	}
	byID, err := rm.profiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	return lo.Map(chats, func(c models.Chat, _ int) models.ChatView {
		v := chatShell(c, byID)
		if m, ok := latestByID[c.LatestMessage]; ok {
			v.LatestMessage = lo.ToPtr(messageShell(m, byID))
		}
		return v
	}), nil
}

func (rm *ReadModel) Chat(ctx context.Context, c models.Chat) (*models.ChatView, error) {
	views, err := rm.Chats(ctx, []models.Chat{c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Messages resolves each sender and the owning chat with its participants.
func (rm *ReadModel) Messages(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	chatIDs := lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) string { return m.Chat }))
	chats, err := rm.chats.FindByIDs(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	chatByID := lo.KeyBy(chats, func(c models.Chat) string { return c.ID })

	userIDs := lo.Map(msgs, func(m models.Message, _ int) string { return m.Sender })
	for _, c := range chats {
		userIDs = append(userIDs, c.Users...)
		userIDs = append(userIDs, c.GroupAdmin)
	}
	byID, err := rm.profiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make(map[string]*models.ChatView, len(chats))
	for _, c := range chats {
		views[c.ID] = lo.ToPtr(chatShell(c, byID))
	}
	return lo.Map(msgs, func(m models.Message, _ int) models.MessageView {
		v := messageShell(m, byID)
		if _, ok := chatByID[m.Chat]; ok {
			v.Chat = views[m.Chat]
		}
		return v
	}), nil
}

func (rm *ReadModel) Message(ctx context.Context, m models.Message) (*models.MessageView, error) {
	views, err := rm.Messages(ctx, []models.Message{m})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
