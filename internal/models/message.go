package models

import "time"

type Message struct {
	ID          string    `bson:"_id" json:"_id"`
	Sender      string    `bson:"sender" json:"sender"`
	Content     string    `bson:"content" json:"content"`
	Chat        string    `bson:"chat" json:"chat"`
	Attachments []string  `bson:"attachments" json:"attachments"`
	ReadBy      []string  `bson:"read_by" json:"readBy"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}

// MessageView carries the sender profile. Chat is resolved on send, list and
// read responses; inside ChatView.LatestMessage only ChatID is set.
type MessageView struct {
	ID          string    `json:"_id"`
	Sender      User      `json:"sender"`
	Content     string    `json:"content"`
	ChatID      string    `json:"-"`
	Chat        *ChatView `json:"chat,omitempty"`
	Attachments []string  `json:"attachments"`
	ReadBy      []string  `json:"readBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
