// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vclog configures the process-wide zerolog logger used by
// vcshedd.
package vclog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls Configure.
type Config struct {
	Level   string // "debug", "info", "warn", "error"
	Service string
	Version string
	Pretty  bool // console-writer output, for interactive use
	Writer  io.Writer
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Configure installs the process-wide base logger. Call it once at
// process startup before spawning any goroutines that log.
func Configure(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(w).With().Timestamp()
	if cfg.Service != "" {
		l = l.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		l = l.Str("version", cfg.Version)
	}

	mu.Lock()
	base = l.Logger()
	mu.Unlock()
}

// L returns the current base logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &base
}

// WithComponent returns a child logger tagged with component, e.g.
// "accountant" or "picker".
func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}
