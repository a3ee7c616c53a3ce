package ws

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/marketplace-chat/internal/auth"
	"github.com/fathima-sithara/marketplace-chat/internal/config"
	"github.com/fathima-sithara/marketplace-chat/internal/metrics"
)

const presenceTimeout = 2 * time.Second

type TokenValidator interface {
	Validate(token string) (string, error)
}

// PresenceStore records which users hold live connections.
type PresenceStore interface {
	Online(ctx context.Context, userID, connID string) error
	Offline(ctx context.Context, userID, connID string) error
	Refresh(ctx context.Context, userID string) error
}

type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	PongWait        time.Duration
	WriteWait       time.Duration
	EventsPerSecond float64
	EventBurst      int
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		SendBuffer:      cfg.WS.SendBuffer,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		PongWait:        cfg.PongWait,
		WriteWait:       cfg.WriteWait,
		EventsPerSecond: cfg.WS.EventsPerSecond,
		EventBurst:      cfg.WS.EventBurst,
	}
}

// Server upgrades authenticated requests and runs one read and one write
// pump per connection.
type Server struct {
	hub      *Hub
	tokens   TokenValidator
	presence PresenceStore
	opts     Options
	log      *zap.Logger
}

// NewServer builds a Server. presence may be nil.
func NewServer(hub *Hub, tokens TokenValidator, presence PresenceStore, opts Options, log *zap.Logger) *Server {
	return &Server{hub: hub, tokens: tokens, presence: presence, opts: opts, log: log.Named("ws")}
}

// Upgrade rejects non-websocket requests and unauthenticated callers before
// the handshake. The token comes from the Authorization header or ?token=.
func (s *Server) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"message": "websocket upgrade required"})
		}
		token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Query("token")
		}
		uid, err := s.tokens.Validate(token)
		if err != nil {
			s.log.Debug("ws auth failed", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "not authorized, token failed"})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

func (s *Server) serve(conn *websocket.Conn) {
	uid, _ := conn.Locals("user_id").(string)
	if uid == "" {
		_ = conn.Close()
		return
	}

	var lim *rate.Limiter
	if s.opts.EventsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(s.opts.EventsPerSecond), s.opts.EventBurst)
	}
	c := NewClient(uid, s.opts.SendBuffer, lim)
	log := s.log.With(zap.String("conn_id", c.id), zap.String("user_id", uid))

	s.hub.Register(c)
	metrics.ConnOpened()
	log.Info("ws connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(conn, c)
	}()

	online := s.readPump(conn, c, log)

	s.hub.Unregister(c)
	<-done
	metrics.ConnClosed()
	if online {
		s.presenceCall(log, func(ctx context.Context) error { return s.presence.Offline(ctx, uid, c.id) })
	}
	log.Info("ws disconnected")
}

// readPump returns whether the connection completed setup.
func (s *Server) readPump(conn *websocket.Conn, c *Client, log *zap.Logger) (online bool) {
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		if online {
			s.presenceCall(log, func(ctx context.Context) error { return s.presence.Refresh(ctx, c.userID) })
		}
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws read", zap.Error(err))
			}
			return online
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !c.allow() {
			metrics.WSDropped("rate_limited")
			continue
		}
		if s.hub.Handle(c, data) == EventSetup && !online {
			online = true
			s.presenceCall(log, func(ctx context.Context) error { return s.presence.Online(ctx, c.userID, c.id) })
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// unblock readPump so the client is unregistered
				_ = conn.Close()
				s.drain(c)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				_ = conn.Close()
				s.drain(c)
				return
			}
		}
	}
}

// drain discards queued frames until the hub closes the queue.
func (s *Server) drain(c *Client) {
	for range c.send {
	}
}

func (s *Server) presenceCall(log *zap.Logger, fn func(ctx context.Context) error) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("presence update failed", zap.Error(err))
	}
}
