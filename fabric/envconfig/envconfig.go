// Package envconfig reads the environment shared by the upcycle tools.
package envconfig

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Env struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// dev or prod
	LogMode string `env:"LOG_MODE" envDefault:"dev"`

	// Optional YAML file with typo fixes and group suffixes.
	RulesPath string `env:"FABRIC_RULES_PATH"`
}

// Load loads .env (if present) and parses the process environment.
func Load() (Env, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return parse(env.Options{})
}

// FromMap parses vars instead of the process environment.
func FromMap(vars map[string]string) (Env, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Env, error) {
	var cfg Env
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
