package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/cache"
	"github.com/fathima-sithara/marketplace-chat/internal/metrics"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

type ChatAPI interface {
	AccessDirectChat(ctx context.Context, requesterID, otherID string) (*models.ChatView, bool, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatView, error)
	GetChat(ctx context.Context, chatID, requesterID string) (*models.ChatView, error)
	CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string, groupImage string) (*models.ChatView, error)
	RenameGroup(ctx context.Context, chatID, requesterID, name string) (*models.ChatView, error)
	AddMembers(ctx context.Context, chatID, requesterID string, memberIDs []string) (*models.ChatView, error)
	RemoveMember(ctx context.Context, chatID, requesterID, targetID string) (*models.ChatView, error)
	DeleteChat(ctx context.Context, chatID, requesterID string) error
}

type MessageAPI interface {
	Send(ctx context.Context, senderID, chatID, content string, attachments []string) (*models.MessageView, error)
	List(ctx context.Context, chatID, requesterID string) ([]models.MessageView, error)
	MarkRead(ctx context.Context, messageID, requesterID string) (*models.MessageView, error)
}

type PresenceReader interface {
	Get(ctx context.Context, userID string) (cache.Status, error)
}

type TokenValidator interface {
	Validate(token string) (string, error)
}

// Deps are the collaborators of the HTTP surface. Presence, Limiter, WS and
// Ready are optional.
type Deps struct {
	Chats    ChatAPI
	Messages MessageAPI
	Tokens   TokenValidator
	Presence PresenceReader
	Limiter  fiber.Handler
	WS       WSRoutes
	Ready    func(ctx context.Context) error
	Log      *zap.Logger
}

type WSRoutes interface {
	Upgrade() fiber.Handler
	Handler() fiber.Handler
}

type Server struct {
	chats    ChatAPI
	messages MessageAPI
	presence PresenceReader
	ready    func(ctx context.Context) error
	validate *validator.Validate
	log      *zap.Logger
}

func NewServer(d Deps) *fiber.App {
	s := &Server{
		chats:    d.Chats,
		messages: d.Messages,
		presence: d.Presence,
		ready:    d.Ready,
		validate: validator.New(),
		log:      d.Log.Named("http"),
	}

	app := fiber.New(fiber.Config{
		AppName:      "marketplace-chat",
		ErrorHandler: errorHandler(s.log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(requestLogger(s.log))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/ready", s.readiness)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if d.WS != nil {
		app.Get("/ws", d.WS.Upgrade(), d.WS.Handler())
	}

	api := app.Group("/api", authRequired(d.Tokens))
	if d.Limiter != nil {
		api.Use(d.Limiter)
	}

	chat := api.Group("/chat")
	chat.Post("/", s.accessChat)
	chat.Get("/", s.fetchChats)
	chat.Post("/group", s.createGroup)
	chat.Put("/group/rename", s.renameGroup)
	chat.Put("/group/add", s.addToGroup)
	chat.Put("/group/remove", s.removeFromGroup)
	chat.Get("/:chatId", s.getChat)
	chat.Delete("/:chatId", s.deleteChat)

	msg := api.Group("/message")
	msg.Post("/", s.sendMessage)
	msg.Get("/:chatId", s.allMessages)
	msg.Put("/:messageId/read", s.markRead)

	api.Get("/presence/:userId", s.getPresence)

	return app
}

func (s *Server) readiness(c *fiber.Ctx) error {
	if s.ready == nil {
		return c.JSON(fiber.Map{"status": "ready"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := s.ready(ctx); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	uid := c.Params("userId")
	if s.presence == nil {
		return c.JSON(cache.Status{UserID: uid})
	}
	st, err := s.presence.Get(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}
