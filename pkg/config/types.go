package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent spool configuration stored as config.toml
// in the .spool/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Context ContextConfig `toml:"context"`
	Ingest  IngestConfig  `toml:"ingest"`
}

// StorageConfig holds the event store settings.
type StorageConfig struct {
	// Root is the storage root directory. Empty means the store/ directory
	// inside the resolved .spool/ dir.
	Root string `toml:"root,omitempty"`

	// MaxOpenLogs bounds concurrently open log file handles per pool.
	MaxOpenLogs int `toml:"max_open_logs,omitempty"`
}

// ContextConfig holds the default context-window strategy settings. These
// form the hardcoded-default tier of the strategy precedence chain;
// conversation- and participant-level settings override them at runtime.
type ContextConfig struct {
	Strategy         string `toml:"strategy,omitempty"`
	MaxMessages      int    `toml:"max_messages,omitempty"`
	RotationInterval int    `toml:"rotation_interval,omitempty"`
	PreambleSize     int    `toml:"preamble_size,omitempty"`
}

// IngestConfig holds the import worker pool settings.
type IngestConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.root": {
		get: func(c *Config) string { return c.Storage.Root },
		set: func(c *Config, v string) error { c.Storage.Root = v; return nil },
	},
	"storage.max_open_logs": {
		get: func(c *Config) string { return strconv.Itoa(c.Storage.MaxOpenLogs) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("storage.max_open_logs must be an integer: %w", err)
			}
			c.Storage.MaxOpenLogs = n
			return nil
		},
	},
	"context.strategy": {
		get: func(c *Config) string { return c.Context.Strategy },
		set: func(c *Config, v string) error { c.Context.Strategy = v; return nil },
	},
	"context.max_messages": {
		get: func(c *Config) string { return strconv.Itoa(c.Context.MaxMessages) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("context.max_messages must be an integer: %w", err)
			}
			c.Context.MaxMessages = n
			return nil
		},
	},
	"context.rotation_interval": {
		get: func(c *Config) string { return strconv.Itoa(c.Context.RotationInterval) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("context.rotation_interval must be an integer: %w", err)
			}
			c.Context.RotationInterval = n
			return nil
		},
	},
	"context.preamble_size": {
		get: func(c *Config) string { return strconv.Itoa(c.Context.PreambleSize) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("context.preamble_size must be an integer: %w", err)
			}
			c.Context.PreambleSize = n
			return nil
		},
	},
	"ingest.workers": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Ingest.Workers), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("ingest.workers must be an unsigned integer: %w", err)
			}
			c.Ingest.Workers = uint(n)
			return nil
		},
	},
	"ingest.queue_size": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Ingest.QueueSize), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("ingest.queue_size must be an unsigned integer: %w", err)
			}
			c.Ingest.QueueSize = uint(n)
			return nil
		},
	},
}

// Get returns the string form of the value at the dotted key.
func (c *Config) Get(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return info.get(c), nil
}

// Set parses and stores the value at the dotted key.
func (c *Config) Set(key, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	return info.set(c, value)
}
