// Package config loads the isore CLI configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/isore/isore/internal/output"
)

// Config is the CLI configuration.
type Config struct {
	OutputFormat string `mapstructure:"output_format"`
	MaxFileSize  int64  `mapstructure:"max_file_size"` // bytes; 0 means no limit
	XMLIndent    string `mapstructure:"xml_indent"`
	LogLevel     string `mapstructure:"log_level"`
}

// Defaults.
const (
	DefaultOutputFormat = "table"
	DefaultMaxFileSize  = 256 << 20
	DefaultXMLIndent    = "  "
	DefaultLogLevel     = "info"
)

// Load reads isore-config.yaml from the usual places, or path if it is
// not empty. A missing config file is not an error; environment
// variables prefixed with ISORE_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("isore-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.isore")
	}

	v.SetDefault("output_format", DefaultOutputFormat)
	v.SetDefault("max_file_size", DefaultMaxFileSize)
	v.SetDefault("xml_indent", DefaultXMLIndent)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix("ISORE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	if !slices.Contains(output.Formats, c.OutputFormat) {
		return fmt.Errorf("unsupported output format: %s", c.OutputFormat)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative: %d", c.MaxFileSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
