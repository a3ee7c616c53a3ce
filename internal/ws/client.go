package ws

import (
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client is one live connection. rooms is guarded by the hub's lock.
type Client struct {
	id      string
	userID  string
	send    chan []byte
	rooms   map[string]struct{}
	limiter *rate.Limiter
}

func NewClient(userID string, buffer int, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		send:    make(chan []byte, buffer),
		rooms:   make(map[string]struct{}),
		limiter: limiter,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

func (c *Client) allow() bool { return c.limiter == nil || c.limiter.Allow() }
