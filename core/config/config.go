package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[reflect.Type]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into cfg. The result for each concrete
// type is cached: subsequent calls with the same type receive a copy of the
// first successful load instead of re-reading the environment.
//
// On first use, .env files in the working directory are loaded into the
// process environment if present; a missing .env file is not an error.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config: target must not be nil")
	}

	dotenvOnce.Do(func() {
		// Best effort: explicit env vars always win over .env contents.
		_ = godotenv.Load()
	})

	key := reflect.TypeOf(*cfg)

	cacheMu.RLock()
	cached, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		*cfg = cached.(T)
		return nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	// Re-check under the write lock: another goroutine may have loaded the
	// same type while we were waiting.
	if cached, ok := cache[key]; ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}

	cache[key] = *cfg
	return nil
}

// MustLoad is like Load but panics on failure. Intended for application
// startup where a missing required variable should abort the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
