package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys:
//   <prefix>:conn:<userID>      set of live connection ids
//   <prefix>:presence:<userID>  json Status

type Status struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

type Presence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewPresence(client *redis.Client, prefix string, ttl time.Duration) *Presence {
	return &Presence{client: client, prefix: prefix, ttl: ttl}
}

func (p *Presence) connKey(userID string) string { return fmt.Sprintf("%s:conn:%s", p.prefix, userID) }

func (p *Presence) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", p.prefix, userID)
}

// Online records a live connection. Keys expire after ttl unless refreshed,
// so a crashed instance cannot leave users online forever.
func (p *Presence) Online(ctx context.Context, userID, connID string) error {
	st, _ := json.Marshal(Status{UserID: userID, Online: true, LastSeen: time.Now().Unix()})
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, p.connKey(userID), connID)
	pipe.Expire(ctx, p.connKey(userID), p.ttl)
	pipe.Set(ctx, p.presenceKey(userID), st, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the ttl of an online user; called on websocket pongs.
func (p *Presence) Refresh(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.Expire(ctx, p.connKey(userID), p.ttl)
	pipe.Expire(ctx, p.presenceKey(userID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Offline drops connID and marks the user offline once no connection remains.
func (p *Presence) Offline(ctx context.Context, userID, connID string) error {
	key := p.connKey(userID)
	if err := p.client.SRem(ctx, key, connID).Err(); err != nil {
		return err
	}
	n, err := p.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	st, _ := json.Marshal(Status{UserID: userID, Online: false, LastSeen: time.Now().Unix()})
	return p.client.Set(ctx, p.presenceKey(userID), st, 0).Err()
}

func (p *Presence) Get(ctx context.Context, userID string) (Status, error) {
	b, err := p.client.Get(ctx, p.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{UserID: userID}, nil
	}
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		return Status{}, err
	}
	st.UserID = userID
	return st, nil
}
