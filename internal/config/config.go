package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pkgconfig "github.com/EdulogyIT/holibayt-backend/pkg/config"
	"github.com/EdulogyIT/holibayt-backend/pkg/logger"
)

const envPrefix = "ESCROW"

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      logger.Config  `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Escrow   EscrowConfig   `yaml:"escrow"`
}

// LoadConfig reads the YAML file at CONFIG_PATH (default ./configs/escrow.yaml),
// applies ESCROW_* environment overrides and fills defaults.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/escrow.yaml"
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv(pkgconfig.FromEnv(envPrefix, envKeys...))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults. It does not read the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Secrets are normally injected from the environment rather than committed to YAML.
var envKeys = []string{
	"database.host",
	"database.password",
	"stripe.secret_key",
	"stripe.webhook_secret",
	"supabase.jwt_secret",
	"supabase.api_key",
	"escrow.internal_token",
	"redis.addr",
	"redis.password",
}

func (c *Config) applyEnv(env pkgconfig.Config) {
	override := func(key string, dst *string) {
		if env.IsSet(key) {
			*dst = env.GetString(key)
		}
	}

	override("database.host", &c.Database.Host)
	override("database.password", &c.Database.Password)
	override("stripe.secret_key", &c.Service.Stripe.SecretKey)
	override("stripe.webhook_secret", &c.Service.Stripe.WebhookSecret)
	override("supabase.jwt_secret", &c.Service.Supabase.JWTSecret)
	override("supabase.api_key", &c.Service.Supabase.APIKey)
	override("escrow.internal_token", &c.Escrow.InternalToken)
	override("redis.addr", &c.Redis.Addr)
	override("redis.password", &c.Redis.Password)
}

func (c *Config) setDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "escrow"
	}
	if c.Service.DefaultCurrency == "" {
		c.Service.DefaultCurrency = "dzd"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Server.GRPC.Port == 0 {
		c.Server.GRPC.Port = 9090
	}
	c.Escrow.setDefaults()
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.Service.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}
	if c.Service.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}
	if c.Service.Supabase.JWTSecret == "" {
		return fmt.Errorf("supabase jwt secret is required")
	}
	if c.Escrow.InternalToken == "" {
		return fmt.Errorf("escrow internal token is required")
	}
	return c.Escrow.validate()
}
