package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Engine    EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type LogConfig struct {
	Level string
}

// StorageConfig selects the backend. "memory" seeds from DataDir/cases.json.
type StorageConfig struct {
	Driver  string
	DataDir string
}

type DatabaseConfig struct {
	URL        string
	MaxConns   int32
	Isolation  string
	MaxRetries int
}

// RedisConfig enables the receipt cache and rate limiter when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ReplayTTL time.Duration
}

type RateLimitConfig struct {
	PurchasesPerMinute int
}

// EngineConfig is the draw math and session policy. It is handed to the
// engine explicitly; nothing reads it globally.
type EngineConfig struct {
	RTPStandard             float64
	RTPDemo                 float64
	PayoutCeilingMultiplier float64
	PayoutCeilingLimit      float64
	SessionIdleTimeout      time.Duration
	MaxQuantity             int
	DemoBias                DemoBiasConfig
}

// DemoBiasConfig reweights demo draws: prizes worth at most Threshold x price
// get LowFactor, the rest HighFactor.
type DemoBiasConfig struct {
	Threshold  float64
	LowFactor  float64
	HighFactor float64
}

// Load loads configuration from defaults, an optional config.yaml and the
// environment, in increasing priority.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Plain names used by hosting platforms.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.env", "production")

	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.datadir", "data")

	v.SetDefault("database.url", "")
	v.SetDefault("database.maxconns", 10)
	v.SetDefault("database.isolation", "read committed")
	v.SetDefault("database.maxretries", 8)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.replayttl", "24h")

	v.SetDefault("ratelimit.purchasesperminute", 60)

	v.SetDefault("engine.rtpstandard", 0.85)
	v.SetDefault("engine.rtpdemo", 0.95)
	v.SetDefault("engine.payoutceilingmultiplier", 2.0)
	v.SetDefault("engine.payoutceilinglimit", 0.0)
	v.SetDefault("engine.sessionidletimeout", "30m")
	v.SetDefault("engine.maxquantity", 10)
	v.SetDefault("engine.demobias.threshold", 1.0)
	v.SetDefault("engine.demobias.lowfactor", 1.5)
	v.SetDefault("engine.demobias.highfactor", 0.5)
}

func (c *Config) Validate() error {
	if err := c.Profiles().Standard.Validate(); err != nil {
		return err
	}
	if err := c.Profiles().Demo.Validate(); err != nil {
		return err
	}
	if c.Engine.PayoutCeilingMultiplier <= 0 {
		return fmt.Errorf("engine.payoutceilingmultiplier must be positive, got %v", c.Engine.PayoutCeilingMultiplier)
	}
	if c.Engine.PayoutCeilingLimit < 0 {
		return fmt.Errorf("engine.payoutceilinglimit must not be negative")
	}
	if c.Engine.MaxQuantity < 1 {
		return fmt.Errorf("engine.maxquantity must be at least 1")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	return nil
}

// Profiles builds the per-class draw math.
func (c *Config) Profiles() ledger.Profiles {
	return ledger.Profiles{
		Standard: gamemath.Profile{Name: string(ledger.ClassStandard), RTP: c.Engine.RTPStandard},
		Demo: gamemath.Profile{
			Name: string(ledger.ClassDemo),
			RTP:  c.Engine.RTPDemo,
			Bias: &gamemath.TierBias{
				Threshold: c.Engine.DemoBias.Threshold,
				Low:       c.Engine.DemoBias.LowFactor,
				High:      c.Engine.DemoBias.HighFactor,
			},
		},
	}
}

func (c *Config) Policy() session.Policy {
	return session.Policy{
		Multiplier:  decimal.NewFromFloat(c.Engine.PayoutCeilingMultiplier),
		Limit:       decimal.NewFromFloat(c.Engine.PayoutCeilingLimit),
		IdleTimeout: c.Engine.SessionIdleTimeout,
	}
}
