package ws

import (
	"encoding/json"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/metrics"
)

// Hub routes frames between live connections by room. It holds no I/O of its
// own: delivery is a non-blocking push onto each client's send queue.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		log:     log.Named("hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister drops c from every room it joined and closes its send queue.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// EmitToRoom queues frame for every member of room except skip and returns
// the number of clients it was queued for.
func (h *Hub) EmitToRoom(room string, frame []byte, skip *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[room] {
		if c != skip && h.deliver(c, frame) {
			n++
		}
	}
	return n
}

func (h *Hub) EmitAll(frame []byte, skip *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c != skip && h.deliver(c, frame) {
			n++
		}
	}
	return n
}

func (h *Hub) emitTo(c *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.deliver(c, frame)
	}
}

// deliver must run under h.mu so the queue cannot be closed concurrently.
func (h *Hub) deliver(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		metrics.WSDropped("slow_consumer")
		h.log.Debug("send queue full, frame dropped", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
		return false
	}
}

// Handle applies one inbound frame from c and returns the event name when the
// frame was accepted, or "" when it was dropped.
func (h *Hub) Handle(c *Client, raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		metrics.WSDropped("malformed")
		h.log.Debug("malformed frame", zap.String("conn_id", c.id), zap.Error(err))
		return ""
	}
	metrics.WSEvent(env.Event)

	switch env.Event {
	case EventSetup:
		id := decodeRef(env.Data)
		if id == "" || id != c.userID {
			h.log.Warn("setup identity mismatch", zap.String("conn_id", c.id), zap.String("user_id", c.userID), zap.String("claimed", id))
			return ""
		}
		h.Join(c, id)
		h.emitTo(c, encode(EventConnected, nil))

	case EventJoinChat, EventLeaveChat:
		room := decodeRef(env.Data)
		if room == "" {
			return ""
		}
		if env.Event == EventJoinChat {
			h.Join(c, room)
		} else {
			h.Leave(c, room)
		}

	case EventTyping, EventStopTyping:
		room := decodeRef(env.Data)
		if room == "" {
			return ""
		}
		h.EmitToRoom(room, encode(env.Event, env.Data), c)

	case EventNewMessage:
		if !h.relayMessage(c, env.Data) {
			return ""
		}

	case EventUserOnline, EventUserOffline:
		h.EmitAll(encode(env.Event, env.Data), c)

	default:
		metrics.WSDropped("unknown_event")
		return ""
	}
	return env.Event
}

// relayMessage notifies each chat participant except the sender through
// their personal room. Payloads without chat.users are dropped.
func (h *Hub) relayMessage(c *Client, data json.RawMessage) bool {
	var msg relayedMessage
	if len(data) == 0 || json.Unmarshal(data, &msg) != nil || msg.Chat == nil || msg.Chat.Users == nil {
		return false
	}
	sender := string(msg.Sender)
	if sender == "" {
		sender = c.userID
	}
	if sender != c.userID {
		h.log.Warn("new message sender mismatch", zap.String("user_id", c.userID), zap.String("claimed", sender))
		return false
	}

	frame := encode(EventMessageReceived, data)
	recipients := lo.Uniq(lo.Map(msg.Chat.Users, func(r ref, _ int) string { return string(r) }))
	for _, uid := range recipients {
		if uid == "" || uid == sender {
			continue
		}
		h.EmitToRoom(uid, frame, c)
	}
	return true
}

// Shutdown closes every send queue so write pumps send a close frame.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.rooms = map[string]struct{}{}
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
}

func (h *Hub) Stats() (clients, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.rooms)
}
