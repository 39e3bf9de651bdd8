// Package config loads server settings from an optional YAML file and
// LEAVE_-prefixed environment variables (LEAVE_SERVER_PORT, LEAVE_JWT_SECRET, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LeaveConfig struct {
	RecheckBalanceOnEdit          bool `mapstructure:"recheck_balance_on_edit"`
	NotifyManagerOnApprovedCancel bool `mapstructure:"notify_manager_on_approved_cancel"`
}

type AppConfig struct {
	DevMode bool `mapstructure:"dev_mode"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Leave     LeaveConfig     `mapstructure:"leave"`
	App       AppConfig       `mapstructure:"app"`
}

const envPrefix = "LEAVE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.path", "./data/leave.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "leave-engine")
	v.SetDefault("log.level", "info")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "leave.notifications")
	v.SetDefault("redis.addr", "")
	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("leave.recheck_balance_on_edit", false)
	v.SetDefault("leave.notify_manager_on_approved_cancel", false)
	v.SetDefault("app.dev_mode", false)
}

// Load reads path if given (a missing file is an error), then applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
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
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.JWT.Secret == "" && !c.App.DevMode {
		errs = append(errs, errors.New("jwt.secret is required outside dev mode"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether a notification topic should be published to.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// DevSecret is the signing key used when dev mode runs without jwt.secret.
const DevSecret = "dev-only-secret-change-me"

// SigningSecret returns the JWT secret, falling back to DevSecret in dev mode.
func (c *Config) SigningSecret() string {
	if c.JWT.Secret == "" && c.App.DevMode {
		return DevSecret
	}
	return c.JWT.Secret
}
