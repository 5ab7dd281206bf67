package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAgentURL = "http://localhost:7001"
	DefaultLogLevel = "warn"
)

type Config struct {
	Agent AgentConfig `mapstructure:"agent"`
	Log   LogConfig   `mapstructure:"log"`
	Chat  ChatConfig  `mapstructure:"chat"`
}

type AgentConfig struct {
	URL     string        `mapstructure:"url"`
	Debug   bool          `mapstructure:"debug"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChatConfig pins a backend chat session so successive invocations share
// conversation memory.
type ChatConfig struct {
	Session string `mapstructure:"session"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvKeyReplacer maps nested keys such as agent.url to ARCHPILOT_AGENT_URL.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("agent.url", DefaultAgentURL)
	v.SetDefault("agent.debug", false)
	v.SetDefault("agent.timeout", time.Duration(0))
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", "text")
	v.SetDefault("chat.session", "")
}

func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Agent.URL) == "" {
		return fmt.Errorf("agent.url is required")
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("invalid agent.timeout: %s", c.Agent.Timeout)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %s", c.Log.Format)
	}
	return nil
}
