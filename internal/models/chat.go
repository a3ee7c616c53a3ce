package models

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Chat is the stored chat document. PairKey is set only on direct chats and
// is backed by a unique sparse index.
type Chat struct {
	ID            string    `bson:"_id" json:"_id"`
	IsGroupChat   bool      `bson:"is_group_chat" json:"isGroupChat"`
	ChatName      string    `bson:"chat_name" json:"chatName"`
	Users         []string  `bson:"users" json:"users"`
	GroupAdmin    string    `bson:"group_admin,omitempty" json:"groupAdmin,omitempty"`
	GroupImage    string    `bson:"group_image,omitempty" json:"groupImage,omitempty"`
	LatestMessage string    `bson:"latest_message,omitempty" json:"latestMessage,omitempty"`
	PairKey       string    `bson:"pair_key,omitempty" json:"-"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}

func (c *Chat) HasMember(userID string) bool { return lo.Contains(c.Users, userID) }

func (c *Chat) IsAdmin(userID string) bool {
	return c.IsGroupChat && c.GroupAdmin != "" && c.GroupAdmin == userID
}

// PairKey is the order-independent key of a direct chat between a and b.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// ChatView is a chat with referenced users and latest message resolved.
type ChatView struct {
	ID            string       `json:"_id"`
	IsGroupChat   bool         `json:"isGroupChat"`
	ChatName      string       `json:"chatName"`
	Users         []User       `json:"users"`
	GroupAdmin    *User        `json:"groupAdmin,omitempty"`
	GroupImage    string       `json:"groupImage,omitempty"`
	LatestMessage *MessageView `json:"latestMessage,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
