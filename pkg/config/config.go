// Package config loads process configuration via Viper: a config file
// (config.yaml by default) overlaid with environment variables, via the
// LoadConfig("./configs") call convention.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SiteConfig is one configured storefront instance.
type SiteConfig struct {
	SiteID   string `mapstructure:"site_id" yaml:"site_id"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Key      string `mapstructure:"key" yaml:"key"`
	Secret   string `mapstructure:"secret" yaml:"secret"`
	IsActive bool   `mapstructure:"is_active" yaml:"is_active"`
}

// DatabaseConfig holds the inputs to pkg/database.NewPostgresDB.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// RedisConfig backs the stock read cache and the mapping-refresh lock.
// Addr == "" disables Redis entirely; components fall back to
// database-only behavior.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// AnalyticsConfig backs the fire-and-forget analytics sink. URL == ""
// selects the no-op sink.
type AnalyticsConfig struct {
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
	Exchange    string `mapstructure:"exchange"`
	WorkerCount int    `mapstructure:"worker_count"`
	QueueDepth  int    `mapstructure:"queue_depth"`
}

// AdminConfig gates the manual mapping-refresh trigger. Either a static
// bearer token or a JWT secret may be configured; JWT takes precedence when
// both are set. Username/PasswordHash, when both set alongside JWTSecret,
// enable POST /admin/login to exchange a password for a short-lived JWT
// instead of requiring the operator to hand-carry a static token.
type AdminConfig struct {
	BearerToken     string `mapstructure:"bearer_token"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	Username        string `mapstructure:"username"`
	PasswordHash    string `mapstructure:"password_hash"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// PropagationConfig tunes the worker's retry/backoff and breaker behavior.
type PropagationConfig struct {
	MaxRetries         int     `mapstructure:"max_retries"`
	RetryBaseSeconds   float64 `mapstructure:"retry_base_seconds"`
	QueueCapacity      int     `mapstructure:"queue_capacity"`
	DrainTimeoutSecond int     `mapstructure:"drain_timeout_seconds"`
	BreakerMinRequests uint32  `mapstructure:"breaker_min_requests"`
	BreakerFailRatio   float64 `mapstructure:"breaker_fail_ratio"`
	BreakerOpenSeconds int     `mapstructure:"breaker_open_seconds"`
}

// WebhookConfig selects and parameterizes signature verification.
type WebhookConfig struct {
	AuthMode        string `mapstructure:"auth_mode"` // "hmac" | "bearer"
	SharedSecret    string `mapstructure:"shared_secret"`
	BearerToken     string `mapstructure:"bearer_token"`
	DecrementStatus string `mapstructure:"decrement_status"`
}

// ServerConfig is the HTTP bind configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Settings is the root configuration object.
type Settings struct {
	Server            ServerConfig      `mapstructure:"server"`
	Database          DatabaseConfig    `mapstructure:"database"`
	Redis             RedisConfig       `mapstructure:"redis"`
	Analytics         AnalyticsConfig   `mapstructure:"analytics"`
	Admin             AdminConfig       `mapstructure:"admin"`
	Propagation       PropagationConfig `mapstructure:"propagation"`
	Webhook           WebhookConfig     `mapstructure:"webhook"`
	Sites             []SiteConfig      `mapstructure:"sites"`
	BackordersDefault bool              `mapstructure:"backorders_default"`
	SnowflakeNodeID   int64             `mapstructure:"snowflake_node_id"`
}

// ActiveSites returns only the sites flagged active, read fresh from the
// in-memory settings: callers that need a "live view" (propagation.Worker)
// call this once per job rather than holding a long-lived reference.
func (s *Settings) ActiveSites() []SiteConfig {
	out := make([]SiteConfig, 0, len(s.Sites))
	for _, site := range s.Sites {
		if site.IsActive {
			out = append(out, site)
		}
	}
	return out
}

// SiteByID looks up a configured site regardless of activation state.
func (s *Settings) SiteByID(id string) (SiteConfig, bool) {
	for _, site := range s.Sites {
		if site.SiteID == id {
			return site, true
		}
	}
	return SiteConfig{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "invsync")
	v.SetDefault("database.dbname", "invsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("analytics.exchange", "invsync.analytics")
	v.SetDefault("analytics.worker_count", 4)
	v.SetDefault("analytics.queue_depth", 1000)

	v.SetDefault("propagation.max_retries", 5)
	v.SetDefault("propagation.retry_base_seconds", 2.0)
	v.SetDefault("propagation.queue_capacity", 10000)
	v.SetDefault("propagation.drain_timeout_seconds", 30)
	v.SetDefault("propagation.breaker_min_requests", uint32(10))
	v.SetDefault("propagation.breaker_fail_ratio", 0.5)
	v.SetDefault("propagation.breaker_open_seconds", 30)

	v.SetDefault("admin.token_ttl_minutes", 60)

	v.SetDefault("webhook.auth_mode", "hmac")
	v.SetDefault("webhook.decrement_status", "processing")

	v.SetDefault("backorders_default", false)
	v.SetDefault("snowflake_node_id", 1)
}

// LoadConfig reads config.yaml from configPath (if present) and overlays
// environment variables (e.g. INVSYNC_DATABASE_HOST overrides database.host).
func LoadConfig(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("INVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Sites) == 0 {
		if err := v.UnmarshalKey("sites", &cfg.Sites); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sites: %w", err)
		}
	}

	return &cfg, nil
}

// RetryBaseDuration converts the configured float-seconds base into a
// time.Duration for use in the worker's backoff calculation.
func (p PropagationConfig) RetryBaseDuration() time.Duration {
	return time.Duration(p.RetryBaseSeconds * float64(time.Second))
}
