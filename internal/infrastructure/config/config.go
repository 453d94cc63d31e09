package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Token TokenConfig
	Mongo MongoConfig
	Redis RedisConfig
	SMTP  SMTPConfig
	Mail  MailConfig
}

// TokenConfig configures bearer-token signing. The secret has no default on
// purpose: startup must fail loudly when it is absent.
type TokenConfig struct {
	Secret     string `env:"TOKEN_SECRET"`
	Issuer     string `env:"TOKEN_ISSUER,      default=identity-api"`
	Audience   string `env:"TOKEN_AUDIENCE,    default=storefront"`
	ExpiryDays int    `env:"TOKEN_EXPIRY_DAYS, default=7"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST, default=localhost"`
	Port     int    `env:"SMTP_PORT, default=587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM, default=no-reply@storefront.example"`
}

type MailConfig struct {
	Workers int `env:"MAIL_WORKERS, default=4"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
