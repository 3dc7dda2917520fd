package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Addr      string `toml:"addr"`
		StaticDir string `toml:"static_dir"`
	} `toml:"server"`

	Poller struct {
		IntervalMin  int `toml:"interval_min"`
		FallbackSec  int `toml:"fallback_sec"`
		HistorySize  int `toml:"history_size"`
		SummaryDays  int `toml:"summary_days"`
		HeartbeatSec int `toml:"heartbeat_sec"`
	} `toml:"poller"`

	Upstream struct {
		V4 struct {
			Enabled        bool   `toml:"enabled"`
			BaseURL        string `toml:"base_url"`
			TimeoutSec     int    `toml:"timeout_sec"`
			AlignOffsetSec int    `toml:"align_offset_sec"`
		} `toml:"v4"`

		V5 struct {
			Enabled        bool   `toml:"enabled"`
			BaseURL        string `toml:"base_url"`
			TimeoutSec     int    `toml:"timeout_sec"`
			AlignOffsetSec int    `toml:"align_offset_sec"`
		} `toml:"v5"`
	} `toml:"upstream"`

	Storage struct {
		Backend     string `toml:"backend"` // sqlite | postgres | composite
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
		TTLMin   int    `toml:"ttl_min"`
	} `toml:"redis"`

	Relay struct {
		Enabled bool   `toml:"enabled"`
		WsURL   string `toml:"ws_url"`
		RestURL string `toml:"rest_url"`
		Symbol  string `toml:"symbol"`
	} `toml:"relay"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8888"
	}
	if cfg.Poller.IntervalMin <= 0 {
		cfg.Poller.IntervalMin = 5
	}
	if cfg.Poller.FallbackSec <= 0 {
		cfg.Poller.FallbackSec = 60
	}
	if cfg.Poller.HistorySize <= 0 {
		cfg.Poller.HistorySize = 300
	}
	if cfg.Poller.SummaryDays <= 0 {
		cfg.Poller.SummaryDays = 30
	}
	if cfg.Poller.HeartbeatSec <= 0 {
		cfg.Poller.HeartbeatSec = 5
	}
	if cfg.Upstream.V4.TimeoutSec <= 0 {
		cfg.Upstream.V4.TimeoutSec = 15
	}
	if cfg.Upstream.V5.TimeoutSec <= 0 {
		cfg.Upstream.V5.TimeoutSec = 10
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
		cfg.Storage.SQLitePath = "data/accuracy.db"
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "curvehub"
	}
	if cfg.Redis.TTLMin <= 0 {
		cfg.Redis.TTLMin = 60
	}
	if strings.TrimSpace(cfg.Relay.WsURL) == "" {
		cfg.Relay.WsURL = "wss://stream.binance.com:9443"
	}
	if strings.TrimSpace(cfg.Relay.RestURL) == "" {
		cfg.Relay.RestURL = "https://api.binance.com"
	}
	if strings.TrimSpace(cfg.Relay.Symbol) == "" {
		cfg.Relay.Symbol = "btcusdt"
	}
}

func validate(cfg *Config) error {
	if !cfg.Upstream.V4.Enabled && !cfg.Upstream.V5.Enabled {
		return errors.New("no upstream source enabled")
	}
	if cfg.Upstream.V4.Enabled && strings.TrimSpace(cfg.Upstream.V4.BaseURL) == "" {
		return errors.New("upstream.v4.base_url empty but enabled")
	}
	if cfg.Upstream.V5.Enabled && strings.TrimSpace(cfg.Upstream.V5.BaseURL) == "" {
		return errors.New("upstream.v5.base_url empty but enabled")
	}

	switch cfg.Storage.Backend {
	case "sqlite":
	case "postgres", "composite":
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return fmt.Errorf("storage.postgres_dsn empty but backend is %s", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}
