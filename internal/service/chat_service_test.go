package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

type fixture struct {
	chats    *memChats
	messages *memMessages
	events   *recorder
	chatSvc  *ChatService
	msgSvc   *MessageService
}

func newFixture(users ...string) *fixture {
	f := &fixture{chats: newMemChats(), messages: &memMessages{}, events: &recorder{}}
	dir := newUsers(users...)
	f.chatSvc = NewChatService(f.chats, f.messages, dir, f.events, zap.NewNop())
	f.msgSvc = NewMessageService(f.chats, f.messages, dir, f.events, zap.NewNop())
	return f
}

func userIDs(v *models.ChatView) []string {
	return lo.Map(v.Users, func(u models.User, _ int) string { return u.ID })
}

func TestAccessDirectChat_Creates_Then_Returns_Existing(t *testing.T) {
	req := require.New(t)
	f := newFixture("alice", "bob")
	ctx := context.Background()

	// When alice opens a chat with bob for the first time
	first, created, err := f.chatSvc.AccessDirectChat(ctx, "alice", "bob")
	req.NoError(err)
	req.True(created)
	req.False(first.IsGroupChat)
	req.ElementsMatch([]string{"alice", "bob"}, userIDs(first))
	req.Nil(first.GroupAdmin)
	req.Equal("name-bob", first.Users[1].Name)

	// Then bob opening the same pair gets the same chat
	second, created, err := f.chatSvc.AccessDirectChat(ctx, "bob", "alice")
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
	req.Equal(1, f.chats.count())
	req.Equal([]events.Type{events.ChatCreated}, f.events.types())
}

func TestAccessDirectChat_Concurrent_Callers_Share_One_Chat(t *testing.T) {
	req := require.New(t)
	f := newFixture("alice", "bob")

	// every caller passes the lookup before any insert commits
	const n = 16
	var gate sync.WaitGroup
	gate.Add(n)
	f.chats.insertHook = func() {
		gate.Done()
		gate.Wait()
	}

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			v, _, err := f.chatSvc.AccessDirectChat(context.Background(), a, b)
			if err == nil {
				ids[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	req.Equal(1, f.chats.count())
	req.Len(lo.Uniq(ids), 1)
	req.NotEmpty(ids[0])
}

func TestAccessDirectChat_Validation(t *testing.T) {
	f := newFixture("alice", "bob")
	tests := []struct {
		name  string
		other string
		kind  error
	}{
		{name: "missing user id", other: "  ", kind: apperr.ErrBadRequest},
		{name: "self", other: "alice", kind: apperr.ErrBadRequest},
		{name: "unknown user", other: "mallory", kind: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.chatSvc.AccessDirectChat(context.Background(), "alice", tt.other)
			require.ErrorIs(t, err, tt.kind)
		})
	}
	require.Zero(t, f.chats.count())
}

func TestGetChat_Forbidden_For_Outsider(t *testing.T) {
	req := require.New(t)
	f := newFixture("alice", "bob", "carol")
	ctx := context.Background()
	chat, _, err := f.chatSvc.AccessDirectChat(ctx, "alice", "bob")
	req.NoError(err)

	_, err = f.chatSvc.GetChat(ctx, chat.ID, "carol")
	req.ErrorIs(err, apperr.ErrForbidden)
	req.Equal("you are not part of this chat", apperr.Message(err))

	_, err = f.chatSvc.GetChat(ctx, "missing", "alice")
	req.ErrorIs(err, apperr.ErrNotFound)

	got, err := f.chatSvc.GetChat(ctx, chat.ID, "bob")
	req.NoError(err)
	req.Equal(chat.ID, got.ID)
}

func TestCreateGroup(t *testing.T) {
	tests := []struct {
		name    string
		group   string
		members []string
		want    []string
		kind    error
	}{
		{name: "creator appended as member", group: "Set", members: []string{"bob", "carol"}, want: []string{"bob", "carol", "alice"}},
		{name: "duplicates removed", group: "Set", members: []string{"bob", "bob", "alice"}, want: []string{"bob", "alice"}},
		{name: "one other member is enough", group: "Pair", members: []string{"bob"}, want: []string{"bob", "alice"}},
		{name: "empty name", group: " ", members: []string{"bob"}, kind: apperr.ErrBadRequest},
		{name: "only creator", group: "Solo", members: []string{"alice"}, kind: apperr.ErrBadRequest},
		{name: "no members", group: "Solo", kind: apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture("alice", "bob", "carol")
			v, err := f.chatSvc.CreateGroup(context.Background(), "alice", tt.group, tt.members, "")
			if tt.kind != nil {
				req.ErrorIs(err, tt.kind)
				req.Zero(f.chats.count())
				return
			}
			req.NoError(err)
			req.True(v.IsGroupChat)
			req.Equal(tt.want, userIDs(v))
			req.NotNil(v.GroupAdmin)
			req.Equal("alice", v.GroupAdmin.ID)
		})
	}
}

func TestGroup_Lifecycle_Scenario(t *testing.T) {
	req := require.New(t)
	f := newFixture("A", "B", "C")
	ctx := context.Background()

	group, err := f.chatSvc.CreateGroup(ctx, "A", "Set", []string{"B", "C"}, "https://img/x.png")
	req.NoError(err)
	req.Equal("https://img/x.png", group.GroupImage)

	// B is not the admin
	_, err = f.chatSvc.RenameGroup(ctx, group.ID, "B", "Mine")
	req.ErrorIs(err, apperr.ErrForbidden)

	renamed, err := f.chatSvc.RenameGroup(ctx, group.ID, "A", "Crew")
	req.NoError(err)
	req.Equal("Crew", renamed.ChatName)

	afterC, err := f.chatSvc.RemoveMember(ctx, group.ID, "A", "C")
	req.NoError(err)
	req.Equal([]string{"B", "A"}, userIDs(afterC))

	afterB, err := f.chatSvc.RemoveMember(ctx, group.ID, "B", "B")
	req.NoError(err)
	req.Equal([]string{"A"}, userIDs(afterB))

	// the admin cannot remove themself
	_, err = f.chatSvc.RemoveMember(ctx, group.ID, "A", "A")
	req.ErrorIs(err, apperr.ErrBadRequest)

	stored, err := f.chats.FindByID(ctx, group.ID)
	req.NoError(err)
	req.Equal([]string{"A"}, stored.Users)
	req.Equal("A", stored.GroupAdmin)
}

func TestRemoveMember_Rules(t *testing.T) {
	f := newFixture("A", "B", "C", "D")
	ctx := context.Background()
	group, err := f.chatSvc.CreateGroup(ctx, "A", "G", []string{"B", "C"}, "")
	require.NoError(t, err)
	direct, _, err := f.chatSvc.AccessDirectChat(ctx, "A", "B")
	require.NoError(t, err)

	tests := []struct {
		name      string
		chat      string
		requester string
		target    string
		kind      error
	}{
		{name: "member removes another member", chat: group.ID, requester: "B", target: "C", kind: apperr.ErrForbidden},
		{name: "member removes admin", chat: group.ID, requester: "B", target: "A", kind: apperr.ErrBadRequest},
		{name: "outsider", chat: group.ID, requester: "D", target: "B", kind: apperr.ErrForbidden},
		{name: "target not a member", chat: group.ID, requester: "A", target: "D", kind: apperr.ErrBadRequest},
		{name: "direct chat", chat: direct.ID, requester: "A", target: "B", kind: apperr.ErrBadRequest},
		{name: "missing chat", chat: "nope", requester: "A", target: "B", kind: apperr.ErrNotFound},
		{name: "missing target", chat: group.ID, requester: "A", target: "", kind: apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chatSvc.RemoveMember(ctx, tt.chat, tt.requester, tt.target)
			require.ErrorIs(t, err, tt.kind)
		})
	}

	stored, err := f.chats.FindByID(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "A"}, stored.Users)
}

func TestAddMembers_Set_Semantics(t *testing.T) {
	req := require.New(t)
	f := newFixture("A", "B", "C", "D")
	ctx := context.Background()
	group, err := f.chatSvc.CreateGroup(ctx, "A", "G", []string{"B"}, "")
	req.NoError(err)

	v, err := f.chatSvc.AddMembers(ctx, group.ID, "A", []string{"B", "C", "C", "D"})
	req.NoError(err)
	req.Equal([]string{"B", "A", "C", "D"}, userIDs(v))

	_, err = f.chatSvc.AddMembers(ctx, group.ID, "B", []string{"C"})
	req.ErrorIs(err, apperr.ErrForbidden)

	_, err = f.chatSvc.AddMembers(ctx, group.ID, "A", nil)
	req.ErrorIs(err, apperr.ErrBadRequest)
}

func TestGroupUpdates_Accept_Padded_Chat_ID(t *testing.T) {
	req := require.New(t)

	// Given a group and its id with surrounding whitespace
	f := newFixture("A", "B", "C")
	ctx := context.Background()
	group, err := f.chatSvc.CreateGroup(ctx, "A", "G", []string{"B"}, "")
	req.NoError(err)
	padded := "  " + group.ID + "\t"

	// When the admin renames and adds a member through the padded id
	renamed, err := f.chatSvc.RenameGroup(ctx, padded, "A", "Renamed")
	req.NoError(err)
	added, err := f.chatSvc.AddMembers(ctx, padded, "A", []string{"C"})
	req.NoError(err)

	// Then both writes land on the stored group
	req.Equal(group.ID, renamed.ID)
	req.Equal("Renamed", renamed.ChatName)
	req.Equal([]string{"B", "A", "C"}, userIDs(added))
}

func TestListChats_Newest_First_With_Latest_Message(t *testing.T) {
	req := require.New(t)
	f := newFixture("A", "B", "C")
	ctx := context.Background()

	ab, _, err := f.chatSvc.AccessDirectChat(ctx, "A", "B")
	req.NoError(err)
	time.Sleep(2 * time.Millisecond)
	ac, _, err := f.chatSvc.AccessDirectChat(ctx, "A", "C")
	req.NoError(err)
	time.Sleep(2 * time.Millisecond)

	// a new message in A-B moves it to the top
	sent, err := f.msgSvc.Send(ctx, "B", ab.ID, "hi", nil)
	req.NoError(err)

	chats, err := f.chatSvc.ListChats(ctx, "A")
	req.NoError(err)
	req.Len(chats, 2)
	req.Equal(ab.ID, chats[0].ID)
	req.Equal(ac.ID, chats[1].ID)
	req.NotNil(chats[0].LatestMessage)
	req.Equal(sent.ID, chats[0].LatestMessage.ID)
	req.Equal("name-B", chats[0].LatestMessage.Sender.Name)
	req.Nil(chats[1].LatestMessage)

	none, err := f.chatSvc.ListChats(ctx, "nobody")
	req.NoError(err)
	req.Empty(none)
}

func TestDeleteChat(t *testing.T) {
	req := require.New(t)
	f := newFixture("A", "B", "C")
	ctx := context.Background()

	group, err := f.chatSvc.CreateGroup(ctx, "A", "G", []string{"B"}, "")
	req.NoError(err)
	_, err = f.msgSvc.Send(ctx, "B", group.ID, "hello", nil)
	req.NoError(err)

	req.ErrorIs(f.chatSvc.DeleteChat(ctx, group.ID, "C"), apperr.ErrForbidden)
	req.ErrorIs(f.chatSvc.DeleteChat(ctx, group.ID, "B"), apperr.ErrForbidden)
	req.NoError(f.chatSvc.DeleteChat(ctx, group.ID, "A"))
	req.ErrorIs(f.chatSvc.DeleteChat(ctx, group.ID, "A"), apperr.ErrNotFound)
	req.Zero(f.messages.count())

	// either participant may delete a direct chat
	direct, _, err := f.chatSvc.AccessDirectChat(ctx, "A", "B")
	req.NoError(err)
	req.NoError(f.chatSvc.DeleteChat(ctx, direct.ID, "B"))
	req.Zero(f.chats.count())
	req.Contains(f.events.types(), events.ChatDeleted)
}
