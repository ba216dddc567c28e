package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Hub     HubConfig     `mapstructure:"hub"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Sim     SimConfig     `mapstructure:"sim"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// HubConfig drives the upstream side: venue endpoints and reconnect timing.
type HubConfig struct {
	SpotURL        string        `mapstructure:"spot_url"`
	FuturesURL     string        `mapstructure:"futures_url"`
	Debounce       time.Duration `mapstructure:"debounce"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	BasisMaxAge    time.Duration `mapstructure:"basis_max_age"` // 0 = no staleness bound
	MaxSymbols     int           `mapstructure:"max_symbols"`
}

// GatewayConfig drives the subscriber-facing boundary.
type GatewayConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	AllowIPs       []string      `mapstructure:"allow_ips"`
	// Peers allowed to set X-Forwarded-For; empty trusts every peer
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
	RateBackend    string        `mapstructure:"rate_backend"` // "memory" or "redis"
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	DefaultSymbols []string      `mapstructure:"default_symbols"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// MirrorConfig toggles the optional tick taps.
type MirrorConfig struct {
	RedisEnabled bool `mapstructure:"redis_enabled"`
	KafkaEnabled bool `mapstructure:"kafka_enabled"`
	Buffer       int  `mapstructure:"buffer"`
}

// SimConfig is only read by the simulated venue.
type SimConfig struct {
	Port     string        `mapstructure:"port"`
	Interval time.Duration `mapstructure:"interval"`
	BasePx   float64       `mapstructure:"base_px"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so the bindings below can see it
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "hub.spot_url" -> "HUB_SPOT_URL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.format")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic")
	bindEnv(v, "hub.spot_url", "hub.futures_url", "hub.debounce", "hub.reconnect_delay", "hub.basis_max_age", "hub.max_symbols")
	bindEnv(v, "gateway.api_key", "gateway.allow_ips", "gateway.trusted_proxies", "gateway.rate_limit", "gateway.rate_window", "gateway.rate_backend",
		"gateway.heartbeat", "gateway.send_buffer", "gateway.default_symbols", "gateway.allowed_origins")
	bindEnv(v, "mirror.redis_enabled", "mirror.kafka_enabled", "mirror.buffer")
	bindEnv(v, "sim.port", "sim.interval", "sim.base_px")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Comma separated env values arrive as a single element
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Gateway.AllowIPs = splitList(cfg.Gateway.AllowIPs)
	cfg.Gateway.TrustedProxies = splitList(cfg.Gateway.TrustedProxies)
	cfg.Gateway.DefaultSymbols = splitList(cfg.Gateway.DefaultSymbols)
	cfg.Gateway.AllowedOrigins = splitList(cfg.Gateway.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "basis_ticks")

	v.SetDefault("hub.spot_url", "wss://stream.binance.com:9443")
	v.SetDefault("hub.futures_url", "wss://fstream.binance.com")
	v.SetDefault("hub.debounce", 150*time.Millisecond)
	v.SetDefault("hub.reconnect_delay", time.Second)
	v.SetDefault("hub.basis_max_age", time.Duration(0))
	v.SetDefault("hub.max_symbols", 3)

	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.allow_ips", []string{})
	v.SetDefault("gateway.trusted_proxies", []string{})
	v.SetDefault("gateway.rate_limit", 120)
	v.SetDefault("gateway.rate_window", 60*time.Second)
	v.SetDefault("gateway.rate_backend", "memory")
	v.SetDefault("gateway.heartbeat", 15*time.Second)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.default_symbols", []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"})
	v.SetDefault("gateway.allowed_origins", []string{"*"})

	v.SetDefault("mirror.redis_enabled", false)
	v.SetDefault("mirror.kafka_enabled", false)
	v.SetDefault("mirror.buffer", 1024)

	v.SetDefault("sim.port", ":9443")
	v.SetDefault("sim.interval", 250*time.Millisecond)
	v.SetDefault("sim.base_px", 100.0)
}

// Validate rejects settings the hub cannot run with.
func (c *Config) Validate() error {
	if c.Hub.SpotURL == "" || c.Hub.FuturesURL == "" {
		return fmt.Errorf("hub venue urls cannot be empty")
	}
	if c.Hub.Debounce <= 0 || c.Hub.ReconnectDelay <= 0 {
		return fmt.Errorf("hub debounce and reconnect_delay must be positive")
	}
	if c.Hub.MaxSymbols <= 0 {
		return fmt.Errorf("hub max_symbols must be positive, got %d", c.Hub.MaxSymbols)
	}
	if c.Gateway.RateLimit <= 0 || c.Gateway.RateWindow <= 0 {
		return fmt.Errorf("gateway rate_limit and rate_window must be positive")
	}
	if c.Gateway.Heartbeat <= 0 {
		return fmt.Errorf("gateway heartbeat must be positive")
	}
	switch c.Gateway.RateBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown gateway rate_backend %q", c.Gateway.RateBackend)
	}
	if c.Mirror.KafkaEnabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty when kafka mirror is enabled")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
