// Package config loads the launcher's TOML configuration through viper.
// Every key may be overridden by an environment variable prefixed with
// TARS_LAUNCHER_ (dots become underscores, e.g. TARS_LAUNCHER_SERVER_LISTEN).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/command"
	"github.com/learning152/ui-tars-launcher/internal/env"
	"github.com/learning152/ui-tars-launcher/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "TARS_LAUNCHER"

// ProfilesFile is the profile store file name inside DataDir.
const ProfilesFile = "configs.json"

// Config is the top-level TOML structure.
type Config struct {
	DataDir  string   `toml:"data_dir" mapstructure:"data_dir"`
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`

	Agent   AgentConfig   `toml:"agent" mapstructure:"agent"`
	Console ConsoleConfig `toml:"console" mapstructure:"console"`
	Browser BrowserConfig `toml:"browser" mapstructure:"browser"`
	Process ProcessConfig `toml:"process" mapstructure:"process"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type AgentConfig struct {
	Binary string `toml:"binary" mapstructure:"binary"`
	// Shell is "cmd", "posix" or "auto" (by platform).
	Shell string `toml:"shell" mapstructure:"shell"`
}

type ConsoleConfig struct {
	// Encoding of child output; empty selects the platform default.
	Encoding string `toml:"encoding" mapstructure:"encoding"`
}

type BrowserConfig struct {
	AutoOpen bool `toml:"auto_open" mapstructure:"auto_open"`
}

type ProcessConfig struct {
	WaitDelay time.Duration `toml:"wait_delay" mapstructure:"wait_delay"`
	ScriptDir string        `toml:"script_dir" mapstructure:"script_dir"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConfig struct {
	// DSN lists history sinks, e.g. sqlite://history.db, postgres://...,
	// clickhouse://host:9000/table, opensearch://host:9200/index.
	DSN []string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// DefaultDataDir returns the per-user directory holding profiles and scripts.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ui-tars-launcher")
	}
	return ".ui-tars-launcher"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("use_os_env", true)
	v.SetDefault("agent.binary", command.DefaultAgent)
	v.SetDefault("agent.shell", "auto")
	v.SetDefault("console.encoding", "")
	v.SetDefault("browser.auto_open", true)
	v.SetDefault("process.wait_delay", "3s")
	v.SetDefault("process.script_dir", "")
	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", string(logger.LevelInfo))
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.color", true)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.source", false)
	v.SetDefault("log.process_dir", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", []string{})
	v.SetDefault("metrics.enabled", false)
}

// Default returns the configuration used when no file is given. Environment
// overrides still apply.
func Default() (*Config, error) { return Load("") }

// Load reads path (TOML). An empty path yields defaults plus environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if _, err := c.Shell(); err != nil {
		return err
	}
	if c.Process.WaitDelay < 0 {
		return fmt.Errorf("process.wait_delay must not be negative: %s", c.Process.WaitDelay)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/': %q", c.Server.BasePath)
	}
	return nil
}

// Shell resolves agent.shell.
func (c *Config) Shell() (command.Shell, error) {
	switch strings.ToLower(c.Agent.Shell) {
	case "", "auto":
		return command.DefaultOptions().Shell, nil
	case "cmd":
		return command.ShellCmd, nil
	case "posix", "sh":
		return command.ShellPOSIX, nil
	default:
		return 0, fmt.Errorf("unknown agent.shell %q", c.Agent.Shell)
	}
}

// CommandOptions returns the Command Builder options.
func (c *Config) CommandOptions() command.Options {
	sh, _ := c.Shell()
	agent := c.Agent.Binary
	if agent == "" {
		agent = command.DefaultAgent
	}
	return command.Options{Shell: sh, Agent: agent}
}

// ProfilesPath is where the profile store lives.
func (c *Config) ProfilesPath() string { return filepath.Join(c.DataDir, ProfilesFile) }

// ScriptDir is where launch scripts are written.
func (c *Config) ScriptDir() string {
	if c.Process.ScriptDir != "" {
		return c.Process.ScriptDir
	}
	return filepath.Join(c.DataDir, "scripts")
}

// ChildEnv composes the environment handed to launched agents. Precedence:
// OS env (when use_os_env) provides the base, env_files are applied in order,
// and the top-level env list overrides last.
func (c *Config) ChildEnv() (*env.Env, error) {
	pairs := make([]string, 0, len(c.Env))
	for _, p := range c.EnvFiles {
		file, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, file...)
	}
	pairs = append(pairs, c.Env...)
	return env.FromConfig(pairs, c.UseOSEnv), nil
}

// LoadEnvFile parses a simple .env file into "KEY=VALUE" entries, in file
// order. Blank lines and lines starting with # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}
