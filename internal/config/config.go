package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

type Config struct {
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`

	Server    ServerConfig           `mapstructure:"server"`
	Mongo     MongoConfig            `mapstructure:"mongo"`
	Redis     RedisConfig            `mapstructure:"redis"`
	JWT       JWTConfig              `mapstructure:"jwt"`
	SMTP      email.Config           `mapstructure:"smtp"`
	RateLimit RateLimitConfig        `mapstructure:"rateLimit"`
	Outbox    worker.OutboxConfig    `mapstructure:"outbox"`
	Reminder  worker.ReminderConfig  `mapstructure:"reminder"`
	Retention worker.RetentionConfig `mapstructure:"retention"`
	CORS      CORSConfig             `mapstructure:"cors"`
	Log       LogConfig              `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int           `mapstructure:"port" envconfig:"PORT" default:"8080"`
	Timeout     time.Duration `mapstructure:"timeout" envconfig:"SERVER_TIMEOUT" default:"30s"`
	MaxBodySize int64         `mapstructure:"maxBodySize" envconfig:"SERVER_MAX_BODY_SIZE" default:"1048576"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri" envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database string        `mapstructure:"database" envconfig:"MONGO_DATABASE" default:"consult"`
	Timeout  time.Duration `mapstructure:"timeout" envconfig:"MONGO_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	MaxRetries   int           `mapstructure:"maxRetries" envconfig:"REDIS_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `mapstructure:"retryBackoff" envconfig:"REDIS_RETRY_BACKOFF" default:"100ms"`
	PoolSize     int           `mapstructure:"poolSize" envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `mapstructure:"minIdleConns" envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
}

type JWTConfig struct {
	AccessSecret  string        `mapstructure:"accessSecret" envconfig:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `mapstructure:"refreshSecret" envconfig:"JWT_REFRESH_SECRET"`
	AccessExpiry  time.Duration `mapstructure:"accessExpiry" envconfig:"JWT_ACCESS_EXPIRY" default:"15m"`
	RefreshExpiry time.Duration `mapstructure:"refreshExpiry" envconfig:"JWT_REFRESH_EXPIRY" default:"168h"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst int     `mapstructure:"burst" envconfig:"RATE_LIMIT_BURST" default:"40"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins" envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `mapstructure:"pretty" envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads the optional YAML config file and then overlays
// environment variables, which always win.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.ReadInConfig(); err == nil {
		if err := viper.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" {
		return nil, fmt.Errorf("jwt signing secrets are required")
	}
	return &cfg, nil
}
