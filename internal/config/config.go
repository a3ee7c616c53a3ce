package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Name            string `mapstructure:"name"`
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

func (a AppConfig) Addr() string { return fmt.Sprintf(":%d", a.Port) }

func (a AppConfig) Development() bool { return a.Env == "dev" || a.Env == "development" }

type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	ChatsCollection    string `mapstructure:"chats_collection"`
	MessagesCollection string `mapstructure:"messages_collection"`
	UsersCollection    string `mapstructure:"users_collection"`
	OpTimeoutMs        int    `mapstructure:"op_timeout_ms"`
	ConnectRetrySec    int    `mapstructure:"connect_retry_sec"`
}

type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	Prefix      string `mapstructure:"prefix"`
	PresenceTTL int    `mapstructure:"presence_ttl_sec"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type BreakerConfig struct {
	MaxFailures uint32 `mapstructure:"max_failures"`
	IntervalSec int    `mapstructure:"interval_sec"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	Secret        string `mapstructure:"secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type WSConfig struct {
	SendBuffer      int     `mapstructure:"send_buffer"`
	MaxMessageBytes int64   `mapstructure:"max_message_bytes"`
	PongWaitSec     int     `mapstructure:"pong_wait_sec"`
	WriteWaitSec    int     `mapstructure:"write_wait_sec"`
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	EventBurst      int     `mapstructure:"event_burst"`
}

type RateLimitConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	PerMinute int  `mapstructure:"per_minute"`
}

type ConsulConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	// ServiceAddr is the address advertised to consul for health checks.
	ServiceAddr string `mapstructure:"service_addr"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WS        WSConfig        `mapstructure:"ws"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Consul    ConsulConfig    `mapstructure:"consul"`

	// derived values
	OpTimeout       time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
	PresenceTTL     time.Duration `mapstructure:"-"`
	PongWait        time.Duration `mapstructure:"-"`
	WriteWait       time.Duration `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketplace-chat")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8083)
	v.SetDefault("app.shutdown_seconds", 10)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "marketplace")
	v.SetDefault("mongo.chats_collection", "chats")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.users_collection", "users")
	v.SetDefault("mongo.op_timeout_ms", 5000)
	v.SetDefault("mongo.connect_retry_sec", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "chat")
	v.SetDefault("redis.presence_ttl_sec", 120)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "chat.events")

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_sec", 60)
	v.SetDefault("breaker.timeout_sec", 30)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.public_key_path", "")

	// keys must be known to viper for env overrides to reach Unmarshal
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.service_addr", "")

	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_bytes", 32*1024)
	v.SetDefault("ws.pong_wait_sec", 60)
	v.SetDefault("ws.write_wait_sec", 10)
	v.SetDefault("ws.events_per_second", 20)
	v.SetDefault("ws.event_burst", 40)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_minute", 300)

	v.SetDefault("consul.addr", "localhost:8500")
}

// Load reads an optional .env file, then the yaml config at path (if any),
// then environment overrides such as MONGO_URI or APP_PORT.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) derive() {
	c.OpTimeout = time.Duration(c.Mongo.OpTimeoutMs) * time.Millisecond
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	c.PresenceTTL = time.Duration(c.Redis.PresenceTTL) * time.Second
	c.PongWait = time.Duration(c.WS.PongWaitSec) * time.Second
	c.WriteWait = time.Duration(c.WS.WriteWaitSec) * time.Second
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port must be positive")
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return errors.New("mongo.uri and mongo.database are required")
	}
	if c.Mongo.OpTimeoutMs <= 0 {
		return errors.New("mongo.op_timeout_ms must be positive")
	}
	switch c.JWT.Alg {
	case "HS256":
		if c.JWT.Secret == "" {
			return errors.New("jwt.secret required for HS256")
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	default:
		return fmt.Errorf("unsupported jwt.alg %q", c.JWT.Alg)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic required when kafka is enabled")
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	if c.WS.PongWaitSec <= 0 || c.WS.WriteWaitSec <= 0 {
		return errors.New("ws.pong_wait_sec and ws.write_wait_sec must be positive")
	}
	return nil
}
