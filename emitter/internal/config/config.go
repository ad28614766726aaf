// Package config loads emitter settings from an optional YAML file and
// EMITTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete emitter configuration
type Config struct {
	Listener   ListenerConfig `mapstructure:"listener"`
	Crypto     CryptoConfig   `mapstructure:"crypto"`
	Interval   time.Duration  `mapstructure:"interval"`
	MinRecords int            `mapstructure:"min_records"`
	MaxRecords int            `mapstructure:"max_records"`
	DataFile   string         `mapstructure:"data_file"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Logging    LoggingConfig  `mapstructure:"logging"`
}

// ListenerConfig addresses the listener's TCP ingestion socket.
type ListenerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CryptoConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

// NATSConfig is only used by the watch command.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultPassphrase matches the listener's default.
const DefaultPassphrase = "encrypted-timeseries-secret-key"

// Addr returns host:port of the listener.
func (c ListenerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listener: ListenerConfig{
			Host:         "localhost",
			Port:         9000,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Crypto:     CryptoConfig{Passphrase: DefaultPassphrase},
		Interval:   10 * time.Second,
		MinRecords: 49,
		MaxRecords: 499,
		NATS:       NATSConfig{URL: "nats://localhost:4222"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listener.host", d.Listener.Host)
	v.SetDefault("listener.port", d.Listener.Port)
	v.SetDefault("listener.dial_timeout", d.Listener.DialTimeout)
	v.SetDefault("listener.write_timeout", d.Listener.WriteTimeout)
	v.SetDefault("crypto.passphrase", d.Crypto.Passphrase)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("min_records", d.MinRecords)
	v.SetDefault("max_records", d.MaxRecords)
	v.SetDefault("data_file", "")
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads configuration with cascade: env > config file > defaults.
// A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("emitter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/timeseries/emitter")
	}

	v.SetEnvPrefix("EMITTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the emitter cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Listener.Host == "" {
		errs = append(errs, errors.New("listener.host must not be empty"))
	}
	if c.Listener.Port <= 0 || c.Listener.Port > 65535 {
		errs = append(errs, fmt.Errorf("listener.port %d out of range", c.Listener.Port))
	}
	if c.Crypto.Passphrase == "" {
		errs = append(errs, errors.New("crypto.passphrase must not be empty"))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.MinRecords < 1 {
		errs = append(errs, fmt.Errorf("min_records %d must be at least 1", c.MinRecords))
	}
	if c.MaxRecords < c.MinRecords {
		errs = append(errs, fmt.Errorf("max_records %d is below min_records %d", c.MaxRecords, c.MinRecords))
	}

	return errors.Join(errs...)
}
