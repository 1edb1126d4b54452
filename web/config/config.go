package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the HTTP API configuration loaded from environment variables
type Config struct {
	HTTPPort        string        `env:"WEB_HTTP_PORT" envDefault:"8080"`
	HTTPHost        string        `env:"WEB_HTTP_HOST" envDefault:"localhost"`
	JWTSecret       string        `env:"WEB_JWT_SECRET,required,unset"`
	JWTIssuer       string        `env:"WEB_JWT_ISSUER" envDefault:"stakeledger"`
	CORSOrigins     []string      `env:"WEB_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ReadTimeout     time.Duration `env:"WEB_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WEB_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"WEB_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// New loads all configuration from environment variables
func New() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}
	return cfg
}
