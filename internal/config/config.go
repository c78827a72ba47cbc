package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ServerConfig holds the settings of `uplink server`
type ServerConfig struct {
	// Address is the TCP address to listen on (e.g. "0.0.0.0:23456")
	Address string `mapstructure:"address"`
	// Datapath is the storage root, created if absent
	Datapath string `mapstructure:"datapath"`
	// JournalPath is the SQLite transfer journal; empty disables it
	JournalPath string `mapstructure:"journal_path"`
	// IdleTimeout bounds each read from a client; zero means no bound
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// ClientConfig holds the settings of `uplink client`
type ClientConfig struct {
	// ReportDir receives a connection report per session; empty disables reports
	ReportDir string `mapstructure:"report_dir"`
	// Progress shows an upload progress bar
	Progress bool `mapstructure:"progress"`
}

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Server   ServerConfig `mapstructure:"server"`
	Client   ClientConfig `mapstructure:"client"`
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.Datapath == "" {
		return fmt.Errorf("server.datapath is required")
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must not be negative")
	}
	return nil
}

// Level returns the parsed log level. Call Validate first.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// New returns a viper instance with defaults and UPLINK_* environment
// variables set up. Callers may bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("server.address", "0.0.0.0:23456")
	v.SetDefault("server.datapath", "./ServerFiles")
	v.SetDefault("server.journal_path", "")
	v.SetDefault("server.idle_timeout", "0s")
	v.SetDefault("client.report_dir", "LogFiles")
	v.SetDefault("client.progress", false)

	v.SetEnvPrefix("UPLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file into v and returns the validated result
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
