// Package config loads the ocrpipe configuration file (config.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/ocrpipe/paths"
	"github.com/zhubert/ocrpipe/textblock"
)

// Transport modes.
const (
	ModePipe   = "pipe"   // requests over the worker's stdin/stdout
	ModeSocket = "socket" // requests over TCP to the handshake address
)

// Config holds the engine launch settings and client options.
type Config struct {
	Executable     string            `yaml:"executable,omitempty"`      // Engine path; defaults to PaddleOCR-json next to this program
	ModelsPath     string            `yaml:"models_path,omitempty"`     // Passed as --models_path
	Args           []string          `yaml:"args,omitempty"`            // Extra raw arguments, appended after flags
	Flags          map[string]any    `yaml:"flags,omitempty"`           // Engine flags, rendered by FormatFlags
	WorkingDir     string            `yaml:"working_dir,omitempty"`     // Defaults to the executable's directory
	Env            map[string]string `yaml:"env,omitempty"`             // Added to the inherited environment
	Mode           string            `yaml:"mode,omitempty"`            // "pipe" (default) or "socket"
	Debug          bool              `yaml:"debug,omitempty"`           // Debug-level logging
	RequestTimeout Duration          `yaml:"request_timeout,omitempty"` // Per-request wait limit; zero waits forever
	MetricsAddr    string            `yaml:"metrics_addr,omitempty"`    // Serve /metrics here when set
	Clipboard      bool              `yaml:"clipboard,omitempty"`       // Engine was built with clipboard support
	TextParser     string            `yaml:"text_parser,omitempty"`     // Arrange text with this textblock parser; empty lists detections

	mu       sync.Mutex
	filePath string
}

// Duration is a time.Duration written as a string like "30s" in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// IsZero lets omitempty drop an unset duration.
func (d Duration) IsZero() bool {
	return d.Duration == 0
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Flags: make(map[string]any),
		Env:   make(map[string]string),
		Mode:  ModePipe,
	}
}

// Load reads config.yaml from the config directory. A missing file yields
// the defaults.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path. A missing file yields the
// defaults, remembering path for Save.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ensureInitialized fills in what an explicit null or empty key in the file
// left unset. Only called from LoadFile before the Config is shared.
func (c *Config) ensureInitialized() {
	if c.Flags == nil {
		c.Flags = make(map[string]any)
	}
	if c.Env == nil {
		c.Env = make(map[string]string)
	}
	if c.Mode == "" {
		c.Mode = ModePipe
	}
}

// Validate checks the configuration for values the engine would reject.
func (c *Config) Validate() error {
	if c.RequestTimeout.Duration < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout.Duration)
	}
	if c.Mode != ModePipe && c.Mode != ModeSocket {
		return fmt.Errorf("mode must be %q or %q, got %q", ModePipe, ModeSocket, c.Mode)
	}
	if _, err := textblock.ByName(c.TextParser); err != nil {
		return fmt.Errorf("text_parser: %w", err)
	}
	if _, ok := c.Flags["models_path"]; ok && c.ModelsPath != "" {
		return fmt.Errorf("models_path is set both as a key and as a flag")
	}
	return validateFlags(c.Flags)
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets where Save writes (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// FilePath returns the file the configuration was loaded from.
func (c *Config) FilePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filePath
}

// ExecutablePath returns the configured engine path or the default.
func (c *Config) ExecutablePath() string {
	if c.Executable != "" {
		return c.Executable
	}
	return DefaultExecutable()
}

// EngineFlags returns the flags to pass to the engine. Socket mode asks the
// engine for a loopback listener on a random port unless configured otherwise.
func (c *Config) EngineFlags() map[string]any {
	flags := make(map[string]any, len(c.Flags)+2)
	for k, v := range c.Flags {
		flags[k] = v
	}
	if c.Mode == ModeSocket {
		if _, ok := flags["port"]; !ok {
			flags["port"] = 0
		}
		if _, ok := flags["addr"]; !ok {
			flags["addr"] = "loopback"
		}
	}
	return flags
}

// CommandArgs returns the full engine argument list: --models_path, the
// formatted flags, then the raw args.
func (c *Config) CommandArgs() []string {
	var args []string
	if c.ModelsPath != "" {
		args = append(args, "--models_path", c.ModelsPath)
	}
	args = append(args, FormatFlags(c.EngineFlags())...)
	return append(args, c.Args...)
}

// EnvList returns Env as sorted KEY=value entries.
func (c *Config) EnvList() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)
	return env
}
