package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config drives the ledger server: listen address, write-side IP
// whitelist, identities, and the optional archive/notifier backends.
type Config struct {
	Server struct {
		HTTP struct {
			Addr string `yaml:"addr"`
			Port int    `yaml:"port"`
		} `yaml:"http"`
	} `yaml:"server"`

	// Whitelist holds CIDRs allowed to reach the write endpoints.
	// Empty means no restriction.
	Whitelist []string `yaml:"whitelist"`

	// AdminIdentity is the sole administrator of the grant table.
	AdminIdentity string `yaml:"admin_identity"`

	// AuthorizedLoggers are granted write permission at startup.
	AuthorizedLoggers []string `yaml:"authorized_loggers"`

	Mongo struct {
		Enabled bool   `yaml:"enabled"`
		URI     string `yaml:"uri"`
		TTLDays int    `yaml:"ttl_days"`
	} `yaml:"mongo"`

	Telegram struct {
		Enabled  bool    `yaml:"enabled"`
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`
}

func Load(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", file, err)
	}

	if cfg.AdminIdentity == "" {
		return nil, fmt.Errorf("config %s: admin_identity is required", file)
	}
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = "0.0.0.0"
	}
	if cfg.Server.HTTP.Port == 0 {
		cfg.Server.HTTP.Port = 8460
	}
	if cfg.Mongo.Enabled {
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("config %s: mongo.uri is required when mongo is enabled", file)
		}
		if cfg.Mongo.TTLDays == 0 {
			cfg.Mongo.TTLDays = 30
		}
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		return nil, fmt.Errorf("config %s: telegram.bot_token is required when telegram is enabled", file)
	}
	return &cfg, nil
}
