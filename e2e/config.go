package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_ADDR is the host:port of a running messenger server.
	ServerAddr string `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	// TOKEN_SECRET must match the server's signing key so the suite can
	// mint its own identity tokens.
	TokenSecret string `envconfig:"TOKEN_SECRET" default:"e2e-secret"`
	// E2E_DEBUG_JSON allows dumping full frame bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
