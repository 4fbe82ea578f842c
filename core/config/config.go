// Package config provides type-safe environment variable loading. A .env
// file, when present in the working directory, is loaded once before the
// first parse; parsing itself uses caarlos0/env struct tags.
package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var loadDotEnv sync.Once

// Load parses environment variables into cfg.
func Load[T any](cfg *T) error {
	loadDotEnv.Do(func() {
		// Missing .env files are fine; the environment itself is authoritative.
		_ = godotenv.Load()
	})

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// MustLoad parses environment variables into cfg and panics on failure.
// Intended for application startup where a missing required variable
// should abort the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
