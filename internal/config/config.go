// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads vcshedd's YAML configuration and watches it
// for live edits, mirroring the layered config + fsnotify reload
// pattern this module's ambient stack is built on.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is vcshedd's process configuration.
type Config struct {
	Socket string `yaml:"socket"`

	NumPCPU        int `yaml:"num_pcpu"`
	ThreadsPerCore int `yaml:"threads_per_core"`
	CoresPerSocket int `yaml:"cores_per_socket"`

	DefaultWeight    uint16 `yaml:"default_weight"`
	TickPeriodUS     int32  `yaml:"tick_period_us"`
	RatelimitUS      int32  `yaml:"ratelimit_us"`
	AsymmetricExcess bool   `yaml:"asymmetric_excess_credit_removal"`

	LogLevel string `yaml:"log_level"`
	Pretty   bool   `yaml:"log_pretty"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration vcshedd starts from before any
// file or flag overrides are applied.
func Default() Config {
	return Config{
		Socket:           "/var/run/vcshed.socket",
		NumPCPU:          8,
		ThreadsPerCore:   2,
		CoresPerSocket:   4,
		DefaultWeight:    256,
		TickPeriodUS:     100,
		RatelimitUS:      1000,
		AsymmetricExcess: true,
		LogLevel:         "info",
		MetricsAddr:      ":9090",
	}
}

// Load reads and parses a YAML config file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher reloads a config file whenever it changes on disk and
// invokes onChange with the newly parsed value. Parse errors are
// logged by the caller via the returned error channel rather than
// crashing the watch loop, so a transient editor save (truncate then
// write) doesn't tear down the daemon.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	mu       sync.Mutex
	current  Config
	onChange func(Config)
	errs     chan error
}

// NewWatcher starts watching path for changes. Call Close when done.
func NewWatcher(path string, initial Config, onChange func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, fw: fw, current: initial, onChange: onChange, errs: make(chan error, 8)}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) Errors() <-chan error { return w.errs }

func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) Close() error { return w.fw.Close() }
