package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server     ServerConfig     `envPrefix:"SERVER_"`
	CatalogAPI CatalogAPIConfig `envPrefix:"CATALOG_API_"`
	Preview    PreviewConfig    `envPrefix:"PREVIEW_"`
	Log        LogConfig        `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr        string `env:"ADDR" envDefault:"0.0.0.0:8080"`
	CORSPattern string `env:"CORS_PATTERN" envDefault:"^https?://(localhost|127\\.0\\.0\\.1)(:[0-9]+)?$"`
	Pprof       bool   `env:"PPROF" envDefault:"false"`
}

type CatalogAPIConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"https://localhost:7247/api"`
	// Zero keeps the transport default.
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"0s"`
	Insecure bool          `env:"INSECURE_TLS" envDefault:"false"`
}

type PreviewConfig struct {
	Dir string `env:"DIR"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
