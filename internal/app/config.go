package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppID         int64  `env:"FLAKIE_APP_ID,required"`
	PrivateKeyPEM string `env:"FLAKIE_PRIVATE_KEY,required"`
	WebhookSecret string `env:"FLAKIE_WEBHOOK_SECRET,required"`

	Port         string        `env:"PORT" envDefault:"8080"`
	PipelinePath string        `env:"FLAKIE_PIPELINE"`
	Runs         int           `env:"FLAKIE_RUNS" envDefault:"5"`
	RunTimeout   time.Duration `env:"FLAKIE_RUN_TIMEOUT" envDefault:"10m"`
	Tags         string        `env:"FLAKIE_TAGS"`
}

func LoadConfigFromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Runs < 1 {
		return nil, fmt.Errorf("FLAKIE_RUNS must be >= 1, got %d", cfg.Runs)
	}
	return &cfg, nil
}

func (c *Config) Addr() string { return ":" + c.Port }
