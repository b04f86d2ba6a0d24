package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "MODELHUB_CONFIG"

// EnvPrefix is stripped from environment keys; the rest maps onto config
// paths with "__" as the section separator, e.g.
// MODELHUB_SERVER__HTTP_ADDR -> server.http_addr.
const EnvPrefix = "MODELHUB_"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Aggregate AggregateConfig `koanf:"aggregate"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Sources   SourcesConfig   `koanf:"sources"`
}

type ServerConfig struct {
	HTTPAddr        string        `koanf:"http_addr" validate:"required"`
	GRPCAddr        string        `koanf:"grpc_addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
	WSOriginCheck   bool          `koanf:"ws_origin_check"`
}

type AggregateConfig struct {
	DefaultPageSize  int           `koanf:"default_page_size" validate:"gte=1,ltefield=MaxPageSize"`
	MaxPageSize      int           `koanf:"max_page_size" validate:"gte=1,lte=500"`
	MinTrendingBatch int           `koanf:"min_trending_batch" validate:"gte=1"`
	SourceTimeout    time.Duration `koanf:"source_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// UpstreamSettings is the transport tuning of one upstream. Zero values
// fall back to the adapter defaults.
type UpstreamSettings struct {
	Enabled         bool          `koanf:"enabled"`
	BaseURL         string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`
	RateLimit       float64       `koanf:"rate_limit" validate:"gte=0"`
	Burst           int           `koanf:"burst" validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gte=0"`
}

type ThingiverseConfig struct {
	Transport UpstreamSettings `koanf:"transport"`
	Token     string           `koanf:"token"`
}

type PrintablesConfig struct {
	Transport UpstreamSettings `koanf:"transport"`
}

type MyMiniFactoryConfig struct {
	Transport    UpstreamSettings `koanf:"transport"`
	APIKey       string           `koanf:"api_key"`
	ClientID     string           `koanf:"client_id"`
	ClientSecret string           `koanf:"client_secret"`
	TokenURL     string           `koanf:"token_url" validate:"omitempty,url"`
}

type MakerWorldConfig struct {
	Transport  UpstreamSettings `koanf:"transport"`
	BuildIDTTL time.Duration    `koanf:"build_id_ttl" validate:"gte=0"`
}

type LocalConfig struct {
	Enabled bool `koanf:"enabled"`
}

type SourcesConfig struct {
	Thingiverse   ThingiverseConfig   `koanf:"thingiverse"`
	Printables    PrintablesConfig    `koanf:"printables"`
	MyMiniFactory MyMiniFactoryConfig `koanf:"myminifactory"`
	MakerWorld    MakerWorldConfig    `koanf:"makerworld"`
	Local         LocalConfig         `koanf:"local"`
}

func DefaultConfig() *Config {
	upstream := UpstreamSettings{
		Enabled:         true,
		Timeout:         8 * time.Second,
		RateLimit:       5,
		Burst:           5,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ShutdownTimeout: 5 * time.Second,
		},
		Aggregate: AggregateConfig{
			DefaultPageSize:  20,
			MaxPageSize:      100,
			MinTrendingBatch: 8,
			SourceTimeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sources: SourcesConfig{
			Thingiverse:   ThingiverseConfig{Transport: upstream},
			Printables:    PrintablesConfig{Transport: upstream},
			MyMiniFactory: MyMiniFactoryConfig{Transport: upstream},
			MakerWorld:    MakerWorldConfig{Transport: upstream, BuildIDTTL: 30 * time.Minute},
			Local:         LocalConfig{Enabled: true},
		},
	}
}

// LoadConfig layers defaults, an optional YAML file and MODELHUB_*
// environment variables, then validates the result.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitList(k, "server.trusted_proxies"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	return validate.Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// splitList turns a comma separated env value into a slice.
func splitList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
