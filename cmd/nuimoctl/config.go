package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/srg/nuimo/internal/bluez"
	"github.com/srg/nuimo/nuimo"
)

// Config holds tool configuration, loadable from a YAML file. Flags override
// file values.
type Config struct {
	Adapter           string        `yaml:"adapter" default:"hci0"`
	LogLevel          string        `yaml:"log_level"`
	ConnectAttempts   int           `yaml:"connect_attempts" default:"5"`
	RetryDelay        time.Duration `yaml:"retry_delay" default:"0s"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" default:"10s"`
	EventBuffer       int           `yaml:"event_buffer" default:"64"`
}

// loadConfig builds the effective configuration from defaults, an optional
// --config file and the persistent flags.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if adapter, _ := cmd.Flags().GetString("adapter"); adapter != "" {
		cfg.Adapter = adapter
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// newManager wires a ControllerManager over the system bus.
func newManager(cfg *Config, logger *logrus.Logger) (*nuimo.ControllerManager, error) {
	bus, err := bluez.NewSystemBus(logger)
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return nuimo.NewControllerManager(bus, logger, nuimo.ManagerOptions{
		Adapter:           cfg.Adapter,
		ConnectAttempts:   cfg.ConnectAttempts,
		RetryDelay:        cfg.RetryDelay,
		DisconnectTimeout: cfg.DisconnectTimeout,
		EventBuffer:       cfg.EventBuffer,
	}), nil
}
