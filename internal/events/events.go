// Package events defines the domain events emitted by the chat services for
// downstream consumers such as notification workers.
package events

import (
	"context"
	"time"
)

type Type string

const (
	ChatCreated Type = "chat.created"
	ChatUpdated Type = "chat.updated"
	ChatDeleted Type = "chat.deleted"
	MessageSent Type = "message.sent"
	MessageRead Type = "message.read"
)

type Event struct {
	Type      Type      `json:"type"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Members   []string  `json:"members,omitempty"`
	IsGroup   bool      `json:"is_group"`
	At        time.Time `json:"at"`
}

// Key partitions events so that one chat's events stay ordered.
func (e Event) Key() string { return e.ChatID }

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events. Used when kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
