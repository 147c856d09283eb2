package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/authclient"
)

type Config struct {
	BaseURL        string        `mapstructure:"base_url"        yaml:"base_url"        validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout" yaml:"refresh_timeout" validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	Email          string        `mapstructure:"email"           yaml:"email"           validate:"omitempty,email"`
	Password       string        `mapstructure:"password"        yaml:"password,omitempty"`
	LogLevel       string        `mapstructure:"log_level"       yaml:"log_level"       validate:"oneof=debug info warn error"`
	LogFile        string        `mapstructure:"log_file"        yaml:"log_file,omitempty"`
}

// LoadConfig reads vitals.yaml (or path) and VITALS_* environment variables.
// A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("vitals")
		vip.AddConfigPath(".")
		vip.AddConfigPath("$HOME/.config/vitals")
	}
	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("VITALS")
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()

	vip.SetDefault("base_url", "http://localhost:8000")
	vip.SetDefault("request_timeout", authclient.DefaultRequestTimeout)
	vip.SetDefault("refresh_timeout", 0)
	vip.SetDefault("user_agent", "vitals-cli/"+Version)
	vip.SetDefault("email", "")
	vip.SetDefault("password", "")
	vip.SetDefault("log_level", "warn")
	vip.SetDefault("log_file", "")

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) clientConfig() authclient.Config {
	return authclient.Config{
		BaseURL:        c.BaseURL,
		RequestTimeout: c.RequestTimeout,
		RefreshTimeout: c.RefreshTimeout,
		UserAgent:      c.UserAgent,
	}
}

// Redacted is the config as printed by `vitals config`.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}
