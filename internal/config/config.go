package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	LLM        LLMConfig
	Skills     SkillsConfig
	QuietHours QuietHoursConfig
	Governance GovernanceConfig
	XMPP       XMPPConfig
	CORS       CORSConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type EncryptionConfig struct {
	Key string
}

// LLMConfig selects the model vendor used for decision evaluation and
// memory extraction.
type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int

	// EmbeddingAPIKey is the OpenAI key used for embeddings when the chat
	// provider is not OpenAI. Empty disables vector search.
	EmbeddingAPIKey string
}

type SkillsConfig struct {
	Dir string
}

// QuietHoursConfig describes the local-time window during which outbound
// dispatch is deferred. The window wraps midnight: quiet when local hour
// >= StartHour or < EndHour.
type QuietHoursConfig struct {
	StartHour       int
	EndHour         int
	DefaultTimezone string
}

type GovernanceConfig struct {
	MaxLLMCallsPerMinute int
	MaxOutboundPerDay    int
}

type XMPPConfig struct {
	Enabled         bool
	ComponentHost   string
	ComponentPort   int
	ComponentName   string
	ComponentSecret string
	Domain          string
}

func (c XMPPConfig) ComponentAddr() string {
	return fmt.Sprintf("%s:%d", c.ComponentHost, c.ComponentPort)
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		LLM: LLMConfig{
			Provider:  k.String("llm.provider"),
			APIKey:    k.String("llm.api.key"),
			Model:     k.String("llm.model"),
			BaseURL:   k.String("llm.base.url"),
			MaxTokens: k.Int("llm.max.tokens"),

			EmbeddingAPIKey: k.String("llm.embedding.api.key"),
		},
		Skills: SkillsConfig{
			Dir: k.String("skills.dir"),
		},
		QuietHours: QuietHoursConfig{
			StartHour:       k.Int("quiet.hours.start"),
			EndHour:         k.Int("quiet.hours.end"),
			DefaultTimezone: k.String("quiet.hours.timezone"),
		},
		Governance: GovernanceConfig{
			MaxLLMCallsPerMinute: k.Int("governance.max.llm.calls.per.minute"),
			MaxOutboundPerDay:    k.Int("governance.max.outbound.per.day"),
		},
		XMPP: XMPPConfig{
			Enabled:         k.Bool("xmpp.enabled"),
			ComponentHost:   k.String("xmpp.component.host"),
			ComponentPort:   k.Int("xmpp.component.port"),
			ComponentName:   k.String("xmpp.component.name"),
			ComponentSecret: k.String("xmpp.component.secret"),
			Domain:          k.String("xmpp.domain"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "rejoin"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "rejoin"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Skills.Dir == "" {
		cfg.Skills.Dir = "skills"
	}
	if cfg.QuietHours.StartHour == 0 {
		cfg.QuietHours.StartHour = 21
	}
	if cfg.QuietHours.EndHour == 0 {
		cfg.QuietHours.EndHour = 8
	}
	if cfg.QuietHours.DefaultTimezone == "" {
		cfg.QuietHours.DefaultTimezone = "America/New_York"
	}
	if cfg.Governance.MaxLLMCallsPerMinute == 0 {
		cfg.Governance.MaxLLMCallsPerMinute = 30
	}
	if cfg.Governance.MaxOutboundPerDay == 0 {
		cfg.Governance.MaxOutboundPerDay = 200
	}
	if cfg.XMPP.ComponentHost == "" {
		cfg.XMPP.ComponentHost = "localhost"
	}
	if cfg.XMPP.ComponentPort == 0 {
		cfg.XMPP.ComponentPort = 5347
	}
	if cfg.XMPP.ComponentName == "" {
		cfg.XMPP.ComponentName = "retain.rejoin.local"
	}
	if cfg.XMPP.Domain == "" {
		cfg.XMPP.Domain = "rejoin.local"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	return cfg, nil
}
