package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/api"
	"github.com/fathima-sithara/marketplace-chat/internal/auth"
	"github.com/fathima-sithara/marketplace-chat/internal/cache"
	"github.com/fathima-sithara/marketplace-chat/internal/config"
	"github.com/fathima-sithara/marketplace-chat/internal/discovery"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/kafka"
	"github.com/fathima-sithara/marketplace-chat/internal/logger"
	"github.com/fathima-sithara/marketplace-chat/internal/ratelimit"
	"github.com/fathima-sithara/marketplace-chat/internal/repository"
	"github.com/fathima-sithara/marketplace-chat/internal/service"
	"github.com/fathima-sithara/marketplace-chat/internal/ws"
)

func main() {
	path := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.App.Development())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mongo
	mc, err := repository.NewMongoClient(ctx, cfg.Mongo, cfg.OpTimeout, log)
	if err != nil {
		log.Fatal("mongo", zap.Error(err))
	}
	db := mc.Database(cfg.Mongo.Database)
	chatRepo := repository.NewChatRepository(db.Collection(cfg.Mongo.ChatsCollection), cfg.OpTimeout)
	msgRepo := repository.NewMessageRepository(db.Collection(cfg.Mongo.MessagesCollection), cfg.OpTimeout)
	userRepo := repository.NewUserRepository(db.Collection(cfg.Mongo.UsersCollection), cfg.OpTimeout)
	if err := chatRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("chat indexes", zap.Error(err))
	}
	if err := msgRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("message indexes", zap.Error(err))
	}

	// Kafka
	var (
		pub      events.Publisher = events.Nop{}
		producer *kafka.Producer
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Breaker, log)
		pub = producer
	}

	chatSvc := service.NewChatService(chatRepo, msgRepo, userRepo, pub, log)
	msgSvc := service.NewMessageService(chatRepo, msgRepo, userRepo, pub, log)

	// Redis presence and rate limiting, in-process limiter otherwise
	var (
		rdb      *redis.Client
		presence *cache.Presence
		limiter  ratelimit.Limiter
	)
	if cfg.Redis.Enabled {
		rdb, err = cache.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		presence = cache.NewPresence(rdb, cfg.Redis.Prefix, cfg.PresenceTTL)
		limiter = ratelimit.NewRedis(rdb, cfg.Redis.Prefix, cfg.RateLimit.PerMinute, time.Minute)
	} else {
		local := ratelimit.NewLocal(cfg.RateLimit.PerMinute, cfg.RateLimit.PerMinute/4+1)
		go local.Cleanup(ctx, 5*time.Minute)
		limiter = local
	}

	tokens, err := auth.NewValidator(cfg.JWT)
	if err != nil {
		log.Fatal("jwt", zap.Error(err))
	}

	hub := ws.NewHub(log)
	var wsPresence ws.PresenceStore
	var apiPresence api.PresenceReader
	if presence != nil {
		wsPresence = presence
		apiPresence = presence
	}
	wsServer := ws.NewServer(hub, tokens, wsPresence, ws.OptionsFrom(cfg), log)

	deps := api.Deps{
		Chats:    chatSvc,
		Messages: msgSvc,
		Tokens:   tokens,
		Presence: apiPresence,
		WS:       wsServer,
		Ready:    func(ctx context.Context) error { return mc.Ping(ctx, nil) },
		Log:      log,
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.Middleware(limiter, log)
	}
	app := api.NewServer(deps)

	var reg *discovery.Registration
	if cfg.Consul.Enabled {
		reg, err = discovery.NewRegistration(cfg.Consul, log)
		if err != nil {
			log.Fatal("consul", zap.Error(err))
		}
		if err := reg.Register(cfg.App.Name, cfg.Consul.ServiceAddr); err != nil {
			log.Error("consul register failed", zap.Error(err))
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.App.Addr()))
		serveErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error("server stopped", zap.Error(err))
	}
	log.Info("shutting down")
	shutdown(cfg, log, app, hub, producer, reg, rdb, mc)
	log.Info("shutdown complete")
}

func shutdown(cfg *config.Config, log *zap.Logger, app *fiber.App, hub *ws.Hub,
	producer *kafka.Producer, reg *discovery.Registration, rdb *redis.Client, mc *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if reg != nil {
		if err := reg.Deregister(); err != nil {
			log.Warn("consul deregister", zap.Error(err))
		}
	}
	hub.Shutdown()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(ctx); err != nil {
			log.Warn("kafka close", zap.Error(err))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := mc.Disconnect(ctx); err != nil {
		log.Warn("mongo disconnect", zap.Error(err))
	}
}
