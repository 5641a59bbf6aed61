// Package config loads the console configuration from a YAML file and the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPalette is the marker color palette.
var DefaultPalette = []string{
	"#b71c1c",
	"#4a148c",
	"#2e7d32",
	"#e65100",
	"#2962ff",
	"#c2185b",
	"#FFCD00",
	"#3e2723",
	"#03a9f4",
	"#827717",
}

type MapConfig struct {
	APIKey  string   `yaml:"api_key"`
	Zoom    int      `yaml:"zoom" validate:"gte=1,lte=22"`
	Lat     float64  `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng     float64  `yaml:"lng" validate:"gte=-180,lte=180"`
	Palette []string `yaml:"palette" validate:"min=1,dive,hexcolor"`

	// shuffle | round-robin | hash
	ColorStrategy string `yaml:"color_strategy" validate:"oneof=shuffle round-robin hash"`
}

type RealtimeConfig struct {
	Path             string        `yaml:"path" validate:"startswith=/"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial" validate:"gt=0"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" validate:"gtefield=ReconnectInitial"`
	PingInterval     time.Duration `yaml:"ping_interval" validate:"gte=0"`
}

type RateConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

type WebhookConfig struct {
	URL         string `yaml:"url" validate:"omitempty,url"`
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"max_attempts" validate:"gte=0"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	File       string `yaml:"file"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Config is the root configuration.
type Config struct {
	APIURL       string         `yaml:"api_url" validate:"required,url"`
	Listen       string         `yaml:"listen" validate:"required"`
	RoutesPath   string         `yaml:"routes_path" validate:"startswith=/"`
	FetchTimeout time.Duration  `yaml:"fetch_timeout" validate:"gt=0"`
	RedisURL     string         `yaml:"redis_url"`
	DatabaseURL  string         `yaml:"database_url"`
	Map          MapConfig      `yaml:"map"`
	Realtime     RealtimeConfig `yaml:"realtime"`
	Rate         RateConfig     `yaml:"rate"`
	Webhook      WebhookConfig  `yaml:"webhook"`
	Log          LogConfig      `yaml:"log"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		APIURL:       "http://localhost:3000",
		Listen:       ":8080",
		RoutesPath:   "/routes",
		FetchTimeout: 10 * time.Second,
		Map: MapConfig{
			Zoom:          15,
			Palette:       append([]string(nil), DefaultPalette...),
			ColorStrategy: "shuffle",
		},
		Realtime: RealtimeConfig{
			Path:             "/socket",
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
			PingInterval:     20 * time.Second,
		},
		Rate:    RateConfig{RPS: 5, Burst: 10},
		Webhook: WebhookConfig{MaxAttempts: 10},
		Log:     LogConfig{Level: "INFO", MaxAgeDays: 30},
	}
}

// Load reads path (optional), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, err
		}
	}
	applyEnv(&c)
	if len(c.Map.Palette) == 0 {
		c.Map.Palette = append([]string(nil), DefaultPalette...)
	}
	if err := validator.New().Struct(c); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Config) {
	c.APIURL = envOr("API_URL", c.APIURL)
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	c.Map.APIKey = envOr("MAP_API_KEY", c.Map.APIKey)
	c.Map.ColorStrategy = envOr("COLOR_STRATEGY", c.Map.ColorStrategy)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.Log.Level = strings.ToUpper(envOr("LOG_LEVEL", c.Log.Level))
	c.Log.File = envOr("LOG_FILE", c.Log.File)
	c.Webhook.URL = envOr("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = envOr("WEBHOOK_SECRET", c.Webhook.Secret)
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 { c.Webhook.MaxAttempts = n }
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 { c.Rate.RPS = f }
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 { c.Rate.Burst = n }
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// LogLevel maps the configured level to a logrus level, INFO when unknown.
func (c Config) LogLevel() log.Level {
	switch c.Log.Level {
	case "DEBUG":
		return log.DebugLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
