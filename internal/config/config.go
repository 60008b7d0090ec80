// Package config loads server settings from defaults, an optional JSON file
// and the environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Duration is a time.Duration that reads "1.5s" style strings from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"1.5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type Config struct {
	Port            int      `json:"port"`
	DBPath          string   `json:"dbPath"`
	LogLevel        string   `json:"logLevel"`
	LogFormat       string   `json:"logFormat"` // "json" or "console"
	BotDrawDelay    Duration `json:"botDrawDelay"`
	BotDiscardDelay Duration `json:"botDiscardDelay"`
	BotScript       string   `json:"botScript"`
	BotStrategy     string   `json:"botStrategy"` // empty picks the script when one is set
	CleanupInterval Duration `json:"cleanupInterval"`
	PausedRoomTTL   Duration `json:"pausedRoomTtl"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Port:            8080,
		DBPath:          "okey.db",
		LogLevel:        "info",
		LogFormat:       "json",
		BotDrawDelay:    Duration(1500 * time.Millisecond),
		BotDiscardDelay: Duration(1000 * time.Millisecond),
		CleanupInterval: Duration(time.Minute),
		PausedRoomTTL:   Duration(30 * time.Minute),
	}
}

// Load builds the configuration. The JSON file named by OKEY_CONFIG is read
// if set; environment variables win over it.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	if path := getenv("OKEY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = p
	}
	if v := getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := getenv("BOT_SCRIPT"); v != "" {
		c.BotScript = v
	}
	if v := getenv("BOT_STRATEGY"); v != "" {
		c.BotStrategy = v
	}
	durations := []struct {
		key string
		dst *Duration
	}{
		{"BOT_DRAW_DELAY", &c.BotDrawDelay},
		{"BOT_DISCARD_DELAY", &c.BotDiscardDelay},
		{"CLEANUP_INTERVAL", &c.CleanupInterval},
		{"PAUSED_ROOM_TTL", &c.PausedRoomTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = Duration(parsed)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log format %q must be json or console", c.LogFormat))
	}
	for name, d := range map[string]Duration{
		"bot draw delay":    c.BotDrawDelay,
		"bot discard delay": c.BotDiscardDelay,
		"cleanup interval":  c.CleanupInterval,
		"paused room ttl":   c.PausedRoomTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, time.Duration(d)))
		}
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger builds the process logger.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
