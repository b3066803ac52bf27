// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinJWTSecretLength matches the minimum signing key accepted by the token service
const MinJWTSecretLength = 32

// Config holds every setting the server binary reads
type Config struct {
	HTTPAddr string `env:"AUTH_HTTP_ADDR" envDefault:":8080"`

	DatabaseDriver string `env:"AUTH_DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"AUTH_DATABASE_DSN" envDefault:"file:family_auth.db?cache=shared"`

	// RedisURL is optional. Without it revocations live in memory only.
	RedisURL string `env:"AUTH_REDIS_URL"`

	JWTSecret   string        `env:"AUTH_JWT_SECRET,required"`
	JWTIssuer   string        `env:"AUTH_JWT_ISSUER" envDefault:"go-family-auth"`
	JWTAudience []string      `env:"AUTH_JWT_AUDIENCE" envSeparator:","`
	AccessTTL   time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"2h"`
	RefreshTTL  time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"168h"`

	StoreTimeout time.Duration `env:"AUTH_STORE_TIMEOUT" envDefault:"3s"`
	BcryptCost   int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`

	// RevocationSweepInterval drops expired in-memory revocations. Zero
	// disables the sweeper.
	RevocationSweepInterval time.Duration `env:"AUTH_REVOCATION_SWEEP_INTERVAL" envDefault:"1m"`

	PhoneRegion      string `env:"AUTH_PHONE_REGION" envDefault:"CN"`
	DeterministicIDs bool   `env:"AUTH_DETERMINISTIC_IDS" envDefault:"false"`

	// DevTrustUserHeader accepts X-User-Id without a token. Never enable
	// outside local development.
	DevTrustUserHeader bool `env:"AUTH_DEV_TRUST_USER_HEADER" envDefault:"false"`

	LogLevel string `env:"AUTH_LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional dotenv file and then parses the environment.
// A missing dotenv file is not an error.
func Load(files ...string) (Config, error) {
	if err := loadDotenv(files...); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values env tags cannot express
func (c Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", MinJWTSecretLength))
	}

	switch strings.ToLower(c.DatabaseDriver) {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("AUTH_DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("AUTH_DATABASE_DSN is required"))
	}

	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL must be positive"))
	}

	if c.RefreshTTL < c.AccessTTL {
		errs = append(errs, errors.New("AUTH_REFRESH_TTL must not be shorter than AUTH_ACCESS_TTL"))
	}

	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("AUTH_STORE_TIMEOUT must be positive"))
	}

	if c.RevocationSweepInterval < 0 {
		errs = append(errs, errors.New("AUTH_REVOCATION_SWEEP_INTERVAL must not be negative"))
	}

	return errors.Join(errs...)
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}
