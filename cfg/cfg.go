/*
Copyright 2026 The Capsule Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cfg defines the tunables shared by every capsule and their
// defaults. It does not parse configuration files — the core only ever
// consumes an already-bound [capsule.Conf] (see [Config] for the handful
// of process-wide knobs it does own).
package cfg

import (
	"log/slog"
	"time"
)

// LogLevel is the process-wide slog verbosity. cmd/capsule sets it from
// its -loglevel flag at startup. slogru's package-level default logger
// (slogru/default.go, built by slogru/new.go) reads it once, during package
// initialization, so that logger keeps the level LogLevel held at load
// time (Info) and does not follow the flag.
var LogLevel = int(slog.LevelInfo)

// Config holds the process-wide tunables that aren't specific to any one
// capsule's listener or application items.
type Config struct {
	// MaxRequestLine bounds how many bytes of a request line the
	// connection pipeline will read before giving up.
	MaxRequestLine int

	// RequestTimeout bounds the whole connection: peek, handshake,
	// request read, dispatch and response write.
	RequestTimeout time.Duration

	// CacheCleanupInterval is how often the capsule main loop calls
	// Cache.CleanUp. Should not run faster than 1 Hz.
	CacheCleanupInterval time.Duration

	// DefaultCacheTTL is used when an application item enables caching
	// without naming an explicit lifetime.
	DefaultCacheTTL time.Duration

	// CGIMaxOutputBytes caps how much of a CGI script's stdout the
	// handler will buffer before truncating (and logging the
	// truncation).
	CGIMaxOutputBytes int64

	// MimeReloadDebounce is how long the mime table waits after a write
	// event before re-parsing mime-types.toml.
	MimeReloadDebounce time.Duration
}

// FillDefaults replaces zero-valued fields with their defaults.
func (c *Config) FillDefaults() {
	if c.MaxRequestLine <= 0 {
		c.MaxRequestLine = 1024
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Second * 30
	}

	if c.CacheCleanupInterval <= 0 {
		c.CacheCleanupInterval = time.Second
	}

	if c.DefaultCacheTTL <= 0 {
		c.DefaultCacheTTL = time.Minute * 5
	}

	if c.CGIMaxOutputBytes <= 0 {
		c.CGIMaxOutputBytes = 1024 * 1024
	}

	if c.MimeReloadDebounce <= 0 {
		c.MimeReloadDebounce = time.Second
	}
}
