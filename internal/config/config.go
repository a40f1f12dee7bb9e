// Package config provides Viper-based configuration loading for the tambola server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener. Zero selects a random port.
	Port int `mapstructure:"port"`
	// Path is the HTTP path that upgrades to a WebSocket.
	Path string `mapstructure:"path"`
	// ReadTimeout is the maximum time to wait for the next client frame (pongs included).
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingPeriod is the keepalive ping interval. Must be shorter than ReadTimeout.
	PingPeriod time.Duration `mapstructure:"ping_period"`
	// SendBuffer is the per-connection outbound event queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// MaxMessageBytes caps the size of one inbound frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// LobbyConfig holds room and game timing settings.
type LobbyConfig struct {
	// MaxPlayers is the room capacity.
	MaxPlayers int `mapstructure:"max_players"`
	// GracePeriod is how long a player whose lobby connection dropped is kept
	// before being removed.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// DrawInterval is the delay between two drawn numbers.
	DrawInterval time.Duration `mapstructure:"draw_interval"`
	// RulesFile is an optional YAML ticket rules file. Empty uses the built-in rules.
	RulesFile string `mapstructure:"rules_file"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Lobby   LobbyConfig   `mapstructure:"lobby"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Sprintf("server.path must start with /, got %q", s.Path))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PingPeriod <= 0 || s.PingPeriod >= s.ReadTimeout {
		errs = append(errs, "server.ping_period must be positive and shorter than server.read_timeout")
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if s.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("server.max_message_bytes must be >= 1, got %d", s.MaxMessageBytes))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	var errs []string
	if l.MaxPlayers < 1 {
		errs = append(errs, fmt.Sprintf("lobby.max_players must be >= 1, got %d", l.MaxPlayers))
	}
	if l.GracePeriod <= 0 {
		errs = append(errs, "lobby.grace_period must be positive")
	}
	if l.DrawInterval <= 0 {
		errs = append(errs, "lobby.draw_interval must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. A .env file in the working directory, if
// present, is loaded into the process environment first.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TAMBOLA_ prefix
	v.SetEnvPrefix("TAMBOLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
//
// Postcondition: The returned Config passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic("config: built-in defaults are invalid: " + err.Error())
	}
	return cfg
}

// loadDotenv loads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.ping_period", "50s")
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.max_message_bytes", 4096)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("lobby.max_players", 8)
	v.SetDefault("lobby.grace_period", "10s")
	v.SetDefault("lobby.draw_interval", "7s")
	v.SetDefault("lobby.rules_file", "")
}
