package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	Database string `mapstructure:"database" yaml:"database"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Relay struct {
		Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
		Backend    string        `mapstructure:"backend" yaml:"backend"`
		LogChannel string        `mapstructure:"log_channel" yaml:"log_channel"`
		BatchLimit int           `mapstructure:"batch_limit" yaml:"batch_limit"`
	} `mapstructure:"relay" yaml:"relay"`

	Agent struct {
		Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
		MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
		Runner        string        `mapstructure:"runner" yaml:"runner"`
		ClaudePath    string        `mapstructure:"claude_path" yaml:"claude_path"`
		Model         string        `mapstructure:"model" yaml:"model"`
		MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
		MaxRounds     int           `mapstructure:"max_rounds" yaml:"max_rounds"`
		ContextTokens int           `mapstructure:"context_tokens" yaml:"context_tokens"`
	} `mapstructure:"agent" yaml:"agent"`

	Slack struct {
		Token string `mapstructure:"token" yaml:"token"`
	} `mapstructure:"slack" yaml:"slack"`

	Telegram struct {
		Token  string `mapstructure:"token" yaml:"token"`
		ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
	} `mapstructure:"telegram" yaml:"telegram"`

	Anthropic struct {
		APIKey string `mapstructure:"api_key" yaml:"api_key"`
	} `mapstructure:"anthropic" yaml:"anthropic"`

	HTTP struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Listen  string `mapstructure:"listen" yaml:"listen"`
	} `mapstructure:"http" yaml:"http"`

	Telemetry struct {
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
		Stdout  bool `mapstructure:"stdout" yaml:"stdout"`
	} `mapstructure:"telemetry" yaml:"telemetry"`

	Projects map[string]Project `mapstructure:"projects" yaml:"projects"`
	Prompts  map[string]string  `mapstructure:"prompts" yaml:"prompts"`
}

// Project is the per-project section of the config file.
type Project struct {
	Repository string `mapstructure:"repository" yaml:"repository"`
}

// DefaultPath is ~/.foreman/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".foreman", "config.yaml")
}

func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Dir(DefaultPath()),
		Database: "foreman.db",
		LogLevel: "info",
	}
	cfg.Relay.Interval = 5 * time.Second
	cfg.Relay.Backend = "slack"
	cfg.Relay.BatchLimit = 500
	cfg.Agent.Interval = 5 * time.Second
	cfg.Agent.MaxConcurrent = 1
	cfg.Agent.Runner = "claude"
	cfg.Agent.ClaudePath = "claude"
	cfg.Agent.Model = "claude-sonnet-4-5"
	cfg.Agent.MaxTokens = 8192
	cfg.Agent.MaxRounds = 30
	cfg.Agent.ContextTokens = 100000
	cfg.HTTP.Listen = "127.0.0.1:7780"
	return cfg
}

// DatabasePath resolves Database against DataDir unless it is absolute.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.DataDir, c.Database)
}

// Repository returns the configured working directory for project.
// Config keys are case-insensitive, so a lower-cased match also counts.
func (c *Config) Repository(project string) string {
	if p, ok := c.Projects[project]; ok {
		return p.Repository
	}
	return c.Projects[strings.ToLower(project)].Repository
}

// Prompt returns the named prompt preset.
func (c *Config) Prompt(name string) (string, bool) {
	if p, ok := c.Prompts[name]; ok {
		return p, true
	}
	p, ok := c.Prompts[strings.ToLower(name)]
	return p, ok
}

// Load reads the config at path, writing defaults first if the file does
// not exist. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v, err := open(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// envAliases maps keys to the well-known variables read besides FOREMAN_*.
var envAliases = map[string]string{
	"anthropic.api_key": "ANTHROPIC_API_KEY",
	"slack.token":       "SLACK_BOT_TOKEN",
	"telegram.token":    "TELEGRAM_BOT_TOKEN",
}

func open(path string) (*viper.Viper, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, Defaults()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, val := range Flatten(toMap(Defaults())) {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix("FOREMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "FOREMAN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// toMap renders cfg through YAML so keys match the file layout.
func toMap(cfg *Config) map[string]any {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return map[string]any{}
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
