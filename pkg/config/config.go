// Package config loads server configuration from defaults, an optional
// YAML file and PADDOCK_* environment variables, in that priority order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every paddock environment variable.
// Double underscore nests into sections: PADDOCK_SERVER__PORT maps to
// server.port.
const EnvPrefix = "PADDOCK_"

// Config is the full server configuration. Values load lowest priority
// first: struct defaults, then the YAML file, then environment
// variables.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Runtime    RuntimeConfig    `koanf:"runtime"`
	Kubernetes KubernetesConfig `koanf:"kubernetes"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig shapes the HTTP API listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// AuthToken guards every /api route as a bearer token when set.
	// Empty leaves the API open, which is the local development mode.
	AuthToken string `koanf:"auth_token"`
}

// DatabaseConfig points at the catalog PostgreSQL database.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"max_conns"`
}

// RuntimeConfig tunes the orchestration runtime and its BoltDB home.
type RuntimeConfig struct {
	DataDir              string        `koanf:"data_dir"`
	OrchestrationWorkers int           `koanf:"orchestration_workers"`
	ActivityWorkers      int           `koanf:"activity_workers"`
	LeaseDuration        time.Duration `koanf:"lease_duration"`
	PollInterval         time.Duration `koanf:"poll_interval"`
	SweepInterval        time.Duration `koanf:"sweep_interval"`
}

// KubernetesConfig selects the cluster and namespace instances deploy
// into. An empty Kubeconfig tries in-cluster credentials first and then
// the default kubeconfig file.
type KubernetesConfig struct {
	Namespace  string `koanf:"namespace"`
	Kubeconfig string `koanf:"kubeconfig"`
}

// LoggingConfig controls the global zerolog setup.
type LoggingConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Runtime: RuntimeConfig{
			DataDir:              "~/.paddock",
			OrchestrationWorkers: 4,
			ActivityWorkers:      20,
			LeaseDuration:        5 * time.Minute,
			PollInterval:         100 * time.Millisecond,
			SweepInterval:        30 * time.Second,
		},
		Kubernetes: KubernetesConfig{
			Namespace: "paddock",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads configuration from defaults, the optional YAML file at
// path, and PADDOCK_* environment variables, then validates the result.
// A non-empty path that does not exist is an error; an empty path skips
// the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	var err error
	if cfg.Runtime.DataDir, err = expandHome(cfg.Runtime.DataDir); err != nil {
		return nil, err
	}
	if cfg.Kubernetes.Kubeconfig, err = expandHome(cfg.Kubernetes.Kubeconfig); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot start
// with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (or set %sDATABASE__URL)", EnvPrefix)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be positive, got %d", c.Database.MaxConns)
	}
	if c.Runtime.DataDir == "" {
		return fmt.Errorf("runtime.data_dir is required")
	}
	if c.Runtime.OrchestrationWorkers < 1 {
		return fmt.Errorf("runtime.orchestration_workers must be positive, got %d", c.Runtime.OrchestrationWorkers)
	}
	if c.Runtime.ActivityWorkers < 1 {
		return fmt.Errorf("runtime.activity_workers must be positive, got %d", c.Runtime.ActivityWorkers)
	}
	if c.Runtime.LeaseDuration <= 0 {
		return fmt.Errorf("runtime.lease_duration must be positive, got %s", c.Runtime.LeaseDuration)
	}
	if c.Runtime.PollInterval <= 0 {
		return fmt.Errorf("runtime.poll_interval must be positive, got %s", c.Runtime.PollInterval)
	}
	if c.Kubernetes.Namespace == "" {
		return fmt.Errorf("kubernetes.namespace is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}
