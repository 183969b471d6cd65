package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Env      string `env:"PANADERO_ENV,default=development"`
	HTTPAddr string `env:"HTTP_ADDR,default=:9000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// SigningKeyPEM takes precedence over SigningKeyFile. With neither set
	// an ephemeral key is generated, which only suits a single development instance.
	SigningKeyPEM  string `env:"SIGNING_KEY_PEM"`
	SigningKeyFile string `env:"SIGNING_KEY_FILE"`
	Issuer         string `env:"TOKEN_ISSUER,default=panadero"`

	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL,default=1h"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
	ChallengeTTL time.Duration `env:"CHALLENGE_TOKEN_TTL,default=5m"`

	StoreBackend      string `env:"STORE_BACKEND,default=memory"`
	RevocationBackend string `env:"REVOCATION_BACKEND,default=memory"`
	EventsBackend     string `env:"EVENTS_BACKEND,default=gochannel"`
	DatabaseURL       string `env:"DATABASE_URL"`
	RedisURL          string `env:"REDIS_URL,default=redis://localhost:6379/0"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=10"`
	CORSOrigins    string  `env:"CORS_ALLOWED_ORIGINS"`

	BcryptCost int    `env:"BCRYPT_COST,default=10"`
	TOTPIssuer string `env:"TOTP_ISSUER,default=Panadero"`
}

// Load reads .env when present, decodes the environment and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend names and the variables each backend needs.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory or postgres, got %q", c.StoreBackend)
	}

	switch c.RevocationBackend {
	case "memory", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when REVOCATION_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("REVOCATION_BACKEND must be memory, redis or postgres, got %q", c.RevocationBackend)
	}

	switch c.EventsBackend {
	case "gochannel", "redis":
	default:
		return fmt.Errorf("EVENTS_BACKEND must be gochannel or redis, got %q", c.EventsBackend)
	}

	if (c.RevocationBackend == "redis" || c.EventsBackend == "redis") && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis backends")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ChallengeTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, part := range strings.Split(c.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SigningKey returns the configured PEM bytes, or nil when none is set.
func (c Config) SigningKey() ([]byte, error) {
	if c.SigningKeyPEM != "" {
		return []byte(c.SigningKeyPEM), nil
	}
	if c.SigningKeyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SIGNING_KEY_FILE: %w", err)
	}
	return data, nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
