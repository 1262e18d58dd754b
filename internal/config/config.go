// Package config loads the toolpipe YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toolpipe/internal/observability"
	"toolpipe/internal/toolexec"
)

// Config is the root of the configuration file.
type Config struct {
	Pipeline      PipelineConfig        `yaml:"pipeline" json:"pipeline"`
	Tools         map[string]ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty"`
	Observability observability.Config  `yaml:"observability" json:"observability"`
	Server        ServerConfig          `yaml:"server" json:"server"`
}

// PipelineConfig tunes the shared cache and rate limiter.
type PipelineConfig struct {
	CacheTTLMs      int `yaml:"cache_ttl_ms" json:"cache_ttl_ms"`
	CacheMaxEntries int `yaml:"cache_max_entries" json:"cache_max_entries"`
	RateWindowMs    int `yaml:"rate_window_ms" json:"rate_window_ms"`
}

// ToolConfig overrides the policy of one registered tool. Nil fields keep
// the tool's built-in default.
type ToolConfig struct {
	Disabled     bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	TimeoutMs    *int     `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	Cache        *bool    `yaml:"cache,omitempty" json:"cache,omitempty"`
	RateLimit    *int     `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Retries      *int     `yaml:"retries,omitempty" json:"retries,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// ServerConfig configures the HTTP admin surface.
type ServerConfig struct {
	Addr              string   `yaml:"addr" json:"addr"`
	CORSOrigins       []string `yaml:"cors_origins" json:"cors_origins"`
	ShutdownTimeoutMs int      `yaml:"shutdown_timeout_ms" json:"shutdown_timeout_ms"`
}

// Defaults returns a configuration with every default filled in.
func Defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			CacheTTLMs:      int(toolexec.DefaultCacheTTL / time.Millisecond),
			CacheMaxEntries: toolexec.DefaultCacheMaxEntries,
			RateWindowMs:    int(toolexec.DefaultRateWindow / time.Millisecond),
		},
		Tools:         map[string]ToolConfig{},
		Observability: observability.DefaultConfig(),
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			CORSOrigins:       []string{"*"},
			ShutdownTimeoutMs: 5000,
		},
	}
}

// DefaultConfigDir returns ~/.toolpipe.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolpipe"
	}
	return filepath.Join(home, ".toolpipe")
}

// DefaultConfigPath returns ~/.toolpipe/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults;
// an empty path means DefaultConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults after environment expansion.
func Parse(data []byte) (*Config, error) {
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	if cfg.Tools == nil {
		cfg.Tools = map[string]ToolConfig{}
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses default when VAR is unset or empty; an unset
// variable without default is left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := strings.Contains(match, ":-")

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Pipeline.CacheTTLMs < 0 {
		errs = append(errs, errors.New("pipeline.cache_ttl_ms must be >= 0"))
	}
	if cfg.Pipeline.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("pipeline.cache_max_entries must be >= 0"))
	}
	if cfg.Pipeline.RateWindowMs < 0 {
		errs = append(errs, errors.New("pipeline.rate_window_ms must be >= 0"))
	}

	names := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tool := cfg.Tools[name]
		if tool.TimeoutMs != nil && *tool.TimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("tools.%s.timeout_ms must be > 0", name))
		}
		if tool.RateLimit != nil && *tool.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("tools.%s.rate_limit must be >= 0", name))
		}
		if tool.Retries != nil && *tool.Retries < 0 {
			errs = append(errs, fmt.Errorf("tools.%s.retries must be >= 0", name))
		}
		for _, dep := range tool.Dependencies {
			if strings.TrimSpace(dep) == "" {
				errs = append(errs, fmt.Errorf("tools.%s.dependencies contains an empty name", name))
			} else if dep != strings.TrimSpace(dep) {
				errs = append(errs, fmt.Errorf("tools.%s.dependencies entry %q has surrounding whitespace", name, dep))
			}
		}
	}

	switch strings.ToLower(cfg.Observability.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format %q must be text or json", cfg.Observability.Logging.Format))
	}
	if cfg.Observability.Tracing.Enabled {
		switch cfg.Observability.Tracing.Exporter {
		case "", "otlp", "zipkin":
		default:
			errs = append(errs, fmt.Errorf("observability.tracing.exporter %q must be otlp or zipkin", cfg.Observability.Tracing.Exporter))
		}
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	return errors.Join(errs...)
}

// PipelineOptions converts the pipeline section into toolexec settings.
// Zero values select the toolexec defaults.
func (c *Config) PipelineOptions() toolexec.Config {
	return toolexec.Config{
		CacheTTL:        time.Duration(c.Pipeline.CacheTTLMs) * time.Millisecond,
		CacheMaxEntries: c.Pipeline.CacheMaxEntries,
		RateWindow:      time.Duration(c.Pipeline.RateWindowMs) * time.Millisecond,
	}
}

// ToolEnabled reports whether the tool was not disabled in the file.
func (c *Config) ToolEnabled(name string) bool {
	return !c.Tools[name].Disabled
}

// ApplyPolicy layers the file overrides for name on top of base.
func (c *Config) ApplyPolicy(name string, base toolexec.Policy) toolexec.Policy {
	override, ok := c.Tools[name]
	if !ok {
		return base
	}
	if override.TimeoutMs != nil {
		base.Timeout = time.Duration(*override.TimeoutMs) * time.Millisecond
	}
	if override.Cache != nil {
		base.Cache = *override.Cache
	}
	if override.RateLimit != nil {
		base.RateLimit = *override.RateLimit
	}
	if override.Retries != nil {
		base.Retries = *override.Retries
	}
	if override.Dependencies != nil {
		base.Dependencies = append([]string(nil), override.Dependencies...)
	}
	return base
}

// ShutdownTimeout returns the server's graceful shutdown budget.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutMs) * time.Millisecond
}
