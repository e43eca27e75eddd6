// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"time"

	"github.com/pkg/errors"
)

// Config is a descriptor containing the wallet API server configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// RateLimit is the number of requests per second allowed for one
	// remote address, zero disables limiting.
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	// Metrics exposes the prometheus collectors at /metrics.
	Metrics bool `yaml:"metrics"`
}

func (Config) Default() Config {
	return Config{
		Listen:       "127.0.0.1:8077",
		RateLimit:    30,
		RateBurst:    60,
		MaxBodyBytes: 1 << 20,
		ReadTimeout:  15 * time.Second,
		Metrics:      true,
	}
}

func (cfg Config) Validate() error {
	if cfg.Listen == "" {
		return errors.New("server: listen address is empty")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("server: rate limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst == 0 {
		return errors.New("server: rate_burst is required with rate_limit")
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("server: max_body_bytes must be positive")
	}
	return nil
}
