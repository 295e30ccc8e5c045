// Package config loads the server's environment-driven settings.
package config

import (
	"strconv"

	"github.com/caarlos0/env/v11"

	"github.com/reactorhttp/reactorhttp/internal/httperr"
)

// Config is the operational surface: everything StartBlocking needs
// besides the route table and dependency registry.
type Config struct {
	Addr        string `env:"ADDR" envDefault:"0.0.0.0"`
	Port        int    `env:"PORT" envDefault:"8080"`
	WorkerCount int    `env:"WORKER_COUNT" envDefault:"0"` // 0 means "use hardware parallelism"
	QueueDepth  int    `env:"QUEUE_DEPTH" envDefault:"256"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings that can never produce a working listener.
// Port 0 is valid - it asks the kernel for an ephemeral port.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return httperr.Config("PORT must be between 0 and 65535, got " + strconv.Itoa(c.Port))
	}
	return nil
}
