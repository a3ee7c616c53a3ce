package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
	"github.com/fathima-sithara/marketplace-chat/internal/repository"
)

var seq atomic.Int64

func nextID(prefix string) string { return fmt.Sprintf("%s%06d", prefix, seq.Add(1)) }

// memChats mirrors the mongo repository, including the unique pair_key index.
type memChats struct {
	mu    sync.Mutex
	byID  map[string]models.Chat
	pairs map[string]string
	// insertHook runs before an insert commits; tests use it to force races.
	insertHook func()
}

func newMemChats() *memChats {
	return &memChats{byID: map[string]models.Chat{}, pairs: map[string]string{}}
}

func clone(c models.Chat) models.Chat {
	c.Users = append([]string(nil), c.Users...)
	return c
}

func (m *memChats) Insert(_ context.Context, c *models.Chat) error {
	if m.insertHook != nil {
		m.insertHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.PairKey != "" {
		if _, ok := m.pairs[c.PairKey]; ok {
			return fmt.Errorf("%w: pair_key", repository.ErrDuplicate)
		}
	}
	c.ID = nextID("c")
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.PairKey != "" {
		m.pairs[c.PairKey] = c.ID
	}
	m.byID[c.ID] = clone(*c)
	return nil
}

func (m *memChats) FindByID(_ context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c = clone(c)
	return &c, nil
}

func (m *memChats) FindByIDs(_ context.Context, ids []string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Chat{}
	for _, id := range ids {
		if c, ok := m.byID[id]; ok {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (m *memChats) FindDirect(ctx context.Context, pairKey string) (*models.Chat, error) {
	m.mu.Lock()
	id, ok := m.pairs[pairKey]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *memChats) ListByUser(_ context.Context, userID string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := lo.Filter(lo.Values(m.byID), func(c models.Chat, _ int) bool { return c.HasMember(userID) })
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memChats) mutate(id string, guard func(c *models.Chat) bool, fn func(c *models.Chat)) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || !guard(&c) {
		return nil, repository.ErrNotFound
	}
	c = clone(c)
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	m.byID[id] = c
	out := clone(c)
	return &out, nil
}

func isGroup(c *models.Chat) bool { return c.IsGroupChat }

func (m *memChats) Rename(_ context.Context, id, name string) (*models.Chat, error) {
	return m.mutate(id, isGroup, func(c *models.Chat) { c.ChatName = name })
}

func (m *memChats) AddMembers(_ context.Context, id string, userIDs []string) (*models.Chat, error) {
	return m.mutate(id, isGroup, func(c *models.Chat) { c.Users = lo.Uniq(append(c.Users, userIDs...)) })
}

func (m *memChats) RemoveMember(_ context.Context, id, userID string) (*models.Chat, error) {
	guard := func(c *models.Chat) bool { return c.IsGroupChat && c.GroupAdmin != userID }
	return m.mutate(id, guard, func(c *models.Chat) { c.Users = lo.Without(c.Users, userID) })
}

func (m *memChats) SetLatestMessage(_ context.Context, id, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.LatestMessage = messageID
	c.UpdatedAt = at
	m.byID[id] = c
	return nil
}

func (m *memChats) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.pairs, c.PairKey)
	return nil
}

func (m *memChats) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memMessages struct {
	mu   sync.Mutex
	list []models.Message
}

func (m *memMessages) Insert(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = nextID("m")
	msg.CreatedAt = time.Now().UTC()
	msg.UpdatedAt = msg.CreatedAt
	m.list = append(m.list, *msg)
	return nil
}

func (m *memMessages) FindByID(_ context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.list {
		if msg.ID == id {
			msg.ReadBy = append([]string(nil), msg.ReadBy...)
			return &msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memMessages) FindByIDs(_ context.Context, ids []string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.list, func(msg models.Message, _ int) bool { return lo.Contains(ids, msg.ID) }), nil
}

func (m *memMessages) ListByChat(_ context.Context, chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.list, func(msg models.Message, _ int) bool { return msg.Chat == chatID }), nil
}

func (m *memMessages) AddReader(_ context.Context, id, userID string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.list {
		if m.list[i].ID == id {
			if !lo.Contains(m.list[i].ReadBy, userID) {
				m.list[i].ReadBy = append(m.list[i].ReadBy, userID)
				m.list[i].UpdatedAt = time.Now().UTC()
			}
			out := m.list[i]
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memMessages) DeleteByChat(_ context.Context, chatID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.list)
	m.list = lo.Reject(m.list, func(msg models.Message, _ int) bool { return msg.Chat == chatID })
	return int64(before - len(m.list)), nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.list)
}

type memUsers map[string]models.User

func (u memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if usr, ok := u[id]; ok {
		return &usr, nil
	}
	return nil, repository.ErrNotFound
}

func (u memUsers) FindByIDs(_ context.Context, ids []string) ([]models.User, error) {
	out := []models.User{}
	for _, id := range ids {
		if usr, ok := u[id]; ok {
			out = append(out, usr)
		}
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.events, func(e events.Event, _ int) events.Type { return e.Type })
}

func newUsers(ids ...string) memUsers {
	u := memUsers{}
	for _, id := range ids {
		u[id] = models.User{ID: id, Name: "name-" + id, Email: id + "@example.com"}
	}
	return u
}
