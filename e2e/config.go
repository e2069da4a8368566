package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_ADDR targets a running server, e.g. http://localhost:5000.
	// When empty the suite boots an in-process server on an in-memory store.
	ServerAddr string `envconfig:"SERVER_ADDR"`
	// E2E_COLOURS enables colorized step headers
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_JWT_SECRET is only used by the in-process server
	JWTSecret string `envconfig:"E2E_JWT_SECRET" default:"e2e-secret"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
