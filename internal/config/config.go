package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fairdice-backend/internal/fairness"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

type Config struct {
	Port      string          `yaml:"port"`
	Env       string          `yaml:"env"`
	JWTSecret string          `yaml:"jwt_secret"`
	TokenTTL  time.Duration   `yaml:"token_ttl"`
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Game      GameConfig      `yaml:"game"`
	NATS      NATSConfig      `yaml:"nats"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	RedisURL    string `yaml:"redis_url"`
	RedisPass   string `yaml:"redis_password"`
	RedisDB     int    `yaml:"redis_db"`
	DatabaseURL string `yaml:"database_url"`
}

type GameConfig struct {
	HouseEdge       decimal.Decimal `yaml:"house_edge"`
	MaxBet          decimal.Decimal `yaml:"max_bet"`
	RevenueShare    decimal.Decimal `yaml:"revenue_share"`
	HashAlgorithm   string          `yaml:"hash_algorithm"`
	ServerSeedBytes int             `yaml:"server_seed_bytes"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type RateLimitConfig struct {
	BetsPerMinute  int `yaml:"bets_per_minute"`
	SeedsPerMinute int `yaml:"seeds_per_minute"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:     "8080",
		Env:      "development",
		TokenTTL: 24 * time.Hour,
		LogLevel: "info",
		Store: StoreConfig{
			Driver:   StoreMemory,
			RedisURL: "localhost:6379",
		},
		Game: GameConfig{
			HouseEdge:       decimal.RequireFromString("0.02"),
			MaxBet:          decimal.NewFromInt(10000),
			RevenueShare:    decimal.RequireFromString("0.1"),
			HashAlgorithm:   "sha256",
			ServerSeedBytes: 32,
		},
		NATS: NATSConfig{
			SubjectPrefix: "dice",
		},
		RateLimit: RateLimitConfig{
			BetsPerMinute:  30,
			SeedsPerMinute: 10,
		},
	}
}

// Load reads the optional YAML file at path on top of the defaults and
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDecimal := func(key string, dst *decimal.Decimal) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("PORT", &c.Port)
	setString("ENV", &c.Env)
	setString("JWT_SECRET", &c.JWTSecret)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("STORE_DRIVER", &c.Store.Driver)
	setString("REDIS_URL", &c.Store.RedisURL)
	setString("REDIS_PASSWORD", &c.Store.RedisPass)
	setString("DATABASE_URL", &c.Store.DatabaseURL)
	setString("NATS_URL", &c.NATS.URL)

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		c.Store.RedisDB = db
	}

	if err := setDecimal("HOUSE_EDGE", &c.Game.HouseEdge); err != nil {
		return err
	}
	return setDecimal("MAX_BET", &c.Game.MaxBet)
}

func (c *Config) Validate() error {
	if c.Game.HouseEdge.IsNegative() || c.Game.HouseEdge.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("game.house_edge must be in [0, 1)")
	}
	if !c.Game.MaxBet.IsPositive() {
		return errors.New("game.max_bet must be positive")
	}
	if c.Game.RevenueShare.IsNegative() || c.Game.RevenueShare.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("game.revenue_share must be in [0, 1]")
	}
	if _, err := fairness.Lookup(c.Game.HashAlgorithm); err != nil {
		return fmt.Errorf("game.hash_algorithm %q: must be one of %s",
			c.Game.HashAlgorithm, strings.Join(fairness.Algorithms(), ", "))
	}
	if c.Game.ServerSeedBytes < 16 {
		return errors.New("game.server_seed_bytes must be at least 16")
	}
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	case StoreSQL:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the sql driver")
		}
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}
	if c.Env == "production" && c.JWTSecret == "" {
		return errors.New("jwt_secret is required in production")
	}
	return nil
}
