// Package config loads the CLI configuration file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ryver/pkg/protocol"
	"ryver/pkg/realtime"
)

// Config represents the CLI configuration.
type Config struct {
	Organization string         `yaml:"organization"`
	SecretsFile  string         `yaml:"secrets_file,omitempty"`
	Presence     string         `yaml:"presence,omitempty"`
	Auth         AuthConfig     `yaml:"auth"`
	Realtime     RealtimeConfig `yaml:"realtime,omitempty"`
	Cache        CacheConfig    `yaml:"cache,omitempty"`
}

// AuthConfig holds data API credentials. Values support ${ENV_VAR}
// expansion. A token takes precedence over username/password.
type AuthConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// RealtimeConfig tunes the realtime session.
type RealtimeConfig struct {
	AckTimeoutSeconds     int   `yaml:"ack_timeout_seconds,omitempty"`
	AutoReconnect         *bool `yaml:"auto_reconnect,omitempty"`
	BackoffInitialSeconds int   `yaml:"backoff_initial_seconds,omitempty"`
	BackoffMaxSeconds     int   `yaml:"backoff_max_seconds,omitempty"`
	PingIntervalSeconds   int   `yaml:"ping_interval_seconds,omitempty"`
	PingTimeoutSeconds    int   `yaml:"ping_timeout_seconds,omitempty"`
}

// CacheConfig selects the entity cache backend.
type CacheConfig struct {
	// Backend is "file", "sqlite" or "none". Defaults to "file".
	Backend string `yaml:"backend,omitempty"`
	// Dir is the directory for the file backend.
	Dir string `yaml:"dir,omitempty"`
	// Path is the database file for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Organization: "${RYVER_ORG}",
		Presence:     protocol.PresenceAvailable,
		Auth: AuthConfig{
			Username: "${RYVER_USERNAME}",
			Password: "${RYVER_PASSWORD}",
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     "./cache",
		},
	}
}

// Load loads configuration from a file, creating a default one if the file
// doesn't exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Tilde expansion runs first so secrets_file can reference ~/... paths.
	cfg.expandTilde()

	// Load secrets file (KEY=VALUE) into the environment before expanding
	// ${ENV_VAR} placeholders in the config.
	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandEnvVars expands environment variables in configuration values.
func (c *Config) expandEnvVars() {
	c.Organization = os.ExpandEnv(c.Organization)
	c.Auth.Username = os.ExpandEnv(c.Auth.Username)
	c.Auth.Password = os.ExpandEnv(c.Auth.Password)
	c.Auth.Token = os.ExpandEnv(c.Auth.Token)
	c.Cache.Dir = os.ExpandEnv(c.Cache.Dir)
	c.Cache.Path = os.ExpandEnv(c.Cache.Path)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Organization == "" {
		return fmt.Errorf("organization is required")
	}
	if c.Auth.Token == "" && (c.Auth.Username == "" || c.Auth.Password == "") {
		return fmt.Errorf("auth requires either a token or a username and password")
	}
	switch c.Presence {
	case "", protocol.PresenceAvailable, protocol.PresenceAway,
		protocol.PresenceDoNotDisturb, protocol.PresenceOffline:
	default:
		return fmt.Errorf("invalid presence %q", c.Presence)
	}
	switch c.Cache.Backend {
	case "", "file", "sqlite", "none":
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}
	return nil
}

// RealtimeOptions translates the realtime section into session options.
// Zero-valued fields keep the session defaults.
func (c *Config) RealtimeOptions() realtime.Options {
	rc := c.Realtime
	opts := realtime.Options{
		AckTimeout:     time.Duration(rc.AckTimeoutSeconds) * time.Second,
		BackoffInitial: time.Duration(rc.BackoffInitialSeconds) * time.Second,
		BackoffMax:     time.Duration(rc.BackoffMaxSeconds) * time.Second,
		PingInterval:   time.Duration(rc.PingIntervalSeconds) * time.Second,
		PingTimeout:    time.Duration(rc.PingTimeoutSeconds) * time.Second,
		AutoReconnect:  true,
	}
	if rc.AutoReconnect != nil {
		opts.AutoReconnect = *rc.AutoReconnect
	}
	return opts
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued config fields. Called before env-var expansion so that both
// "~/foo" and "${SOME_PATH}" work.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return // can't expand, leave as-is
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.SecretsFile = expand(c.SecretsFile)
	c.Cache.Dir = expand(c.Cache.Dir)
	c.Cache.Path = expand(c.Cache.Path)
}

// loadSecretsFile reads a KEY=VALUE file into the process environment.
// Blank lines and lines starting with '#' are ignored.
// Existing environment variables are NOT overridden (shell/systemd wins).
// If SecretsFile is empty or the file doesn't exist, this is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}

	f, err := os.Open(c.SecretsFile)
	if os.IsNotExist(err) {
		return nil // missing file is fine
	}
	if err != nil {
		return fmt.Errorf("cannot open secrets file %s: %w", c.SecretsFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Strip optional surrounding quotes from value
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		// Don't override existing env vars
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
