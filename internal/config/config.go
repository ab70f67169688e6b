package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Tracker   TrackerConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	PublicURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	RenderPerHour int
}

// TrackerConfig is the client-side connection policy for the progress
// channel.
type TrackerConfig struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	AutoReconnect        bool
	DialTimeout          time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.public_url", "")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.render_per_hour", 10)
	viper.SetDefault("tracker.heartbeat_interval", "30s")
	viper.SetDefault("tracker.reconnect_delay", "2s")
	viper.SetDefault("tracker.max_reconnect_attempts", 5)
	viper.SetDefault("tracker.auto_reconnect", true)
	viper.SetDefault("tracker.dial_timeout", "10s")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			PublicURL: viper.GetString("server.public_url"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: viper.GetInt("ratelimit.render_per_hour"),
		},
		Tracker: TrackerConfig{
			HeartbeatInterval:    viper.GetDuration("tracker.heartbeat_interval"),
			ReconnectDelay:       viper.GetDuration("tracker.reconnect_delay"),
			MaxReconnectAttempts: viper.GetInt("tracker.max_reconnect_attempts"),
			AutoReconnect:        viper.GetBool("tracker.auto_reconnect"),
			DialTimeout:          viper.GetDuration("tracker.dial_timeout"),
		},
	}

	return cfg, nil
}
