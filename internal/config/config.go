// Package config loads nfe-auditor settings from an optional YAML file and
// NFE_AUDITOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rezonia/nfe-auditor/internal/logging"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/report"
)

// EnvPrefix prefixes every environment override: NFE_AUDITOR_LOG_LEVEL
const EnvPrefix = "NFE_AUDITOR"

// Config is the complete application configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Rules  RulesConfig  `mapstructure:"rules"`
	Audit  AuditConfig  `mapstructure:"audit"`
	Report ReportConfig `mapstructure:"report"`
	Server ServerConfig `mapstructure:"server"`
	LLM    LLMConfig    `mapstructure:"llm"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RulesConfig selects the rule source: a SQLite database when DBPath is
// set, else the YAML pack at PackPath, else the embedded pack
type RulesConfig struct {
	DBPath   string `mapstructure:"db_path"`
	PackPath string `mapstructure:"pack_path"`
}

type AuditConfig struct {
	Workers       int    `mapstructure:"workers"`
	DefaultRegime string `mapstructure:"default_regime"`
}

type ReportConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
	Version string   `mapstructure:"version"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Debug        bool          `mapstructure:"debug"`
}

type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)

	v.SetDefault("rules.db_path", "")
	v.SetDefault("rules.pack_path", "")

	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.default_regime", string(model.RegimeStandard))

	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.formats", []string{string(report.FormatJSON), string(report.FormatMarkdown)})
	v.SetDefault("report.version", report.DefaultVersion)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.debug", false)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
}

// Load reads the config file at path (optional) into a fresh instance
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith reads the config file at path into v, which may already carry
// bound flags, and decodes the result
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and names
func (c *Config) Validate() error {
	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit.workers must be positive, got %d", c.Audit.Workers)
	}
	if _, err := model.ParseRegime(c.Audit.DefaultRegime); err != nil {
		return err
	}
	for _, f := range c.Report.Formats {
		if _, err := report.ParseFormat(f); err != nil {
			return err
		}
	}
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	return nil
}

// Regime returns the parsed default regime
func (c *Config) Regime() model.Regime {
	r, _ := model.ParseRegime(c.Audit.DefaultRegime)
	return r
}

// ReportFormats returns the parsed report formats
func (c *Config) ReportFormats() []report.Format {
	out := make([]report.Format, 0, len(c.Report.Formats))
	for _, f := range c.Report.Formats {
		if parsed, err := report.ParseFormat(f); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}

// LLMEnabled reports whether an API key is configured
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}
