// Package config handles hid-bpf configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded via go:embed from default.toml)
//  2. Overlay with config file values (if file exists)
//  3. CLI flags and environment variables override at runtime (handled by CLI layer)
//
// The TOML decoder only sets fields present in the file, leaving
// unspecified fields at their default values. A config file that
// exists but cannot be read or parsed is an error.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is the default path to the hid-bpf config file.
const DefaultConfigPath = "/etc/hid-bpf/hid-bpf.toml"

// Config is the top-level hid-bpf configuration.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Logging LoggingConfig `toml:"logging"`
	Loader  LoaderConfig  `toml:"loader"`
}

// PathsConfig locates everything hid-bpf reads or writes.
type PathsConfig struct {
	PinRoot      string `toml:"pin_root"`
	BPFFS        string `toml:"bpffs"`
	Runtime      string `toml:"runtime"`
	AttachObject string `toml:"attach_object"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	// Level is the log spec (e.g., "warn" or "warn,loader=debug").
	Level string `toml:"level"`
	// Format is the output format: "text" or "json".
	Format string `toml:"format"`
	// Components sets per-component levels when Level is empty.
	Components map[string]string `toml:"components"`
}

// LoaderConfig controls the load pipeline.
type LoaderConfig struct {
	MountBPFFS bool `toml:"mount_bpffs"`
}

// ToSpec converts the LoggingConfig to a log spec string. Level takes
// precedence; otherwise Components are listed in name order with no
// base level, so the command's default base applies.
func (c *LoggingConfig) ToSpec() string {
	if c.Level != "" {
		return c.Level
	}
	parts := make([]string, 0, len(c.Components))
	for _, component := range slices.Sorted(maps.Keys(c.Components)) {
		parts = append(parts, component+"="+c.Components[component])
	}
	return strings.Join(parts, ",")
}

// DefaultConfig returns the configuration embedded from default.toml.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default.toml: %v", err))
	}
	return cfg
}

// Load reads configuration from path over the defaults. An empty path
// means DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	return cfg, cfg.Validate()
}

// Validate checks that every path can be used to build Paths.
func (c *Config) Validate() error {
	_, err := NewPaths(c.Paths)
	return err
}
