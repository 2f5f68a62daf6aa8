// Package config reads server settings from the environment (and an
// optional .env file) with defaults suitable for local development.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port           string
	LogLevel       string
	DBPath         string
	ClientOrigin   string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	Production     bool

	AnthropicAPIKey string
	RiddleModel     string
	RiddleTimeout   time.Duration

	DailySalt   string
	SessionIdle time.Duration
}

var defaults = map[string]any{
	"PORT":              "5175",
	"LOG_LEVEL":         "info",
	"DB_PATH":           "./data/tesseract.db",
	"CLIENT_ORIGIN":     "",
	"JWT_SECRET":        "",
	"JWT_EXPIRES_DAYS":  14,
	"COOKIE_NAME":       "tesseract_token",
	"NODE_ENV":          "",
	"ANTHROPIC_API_KEY": "",
	"RIDDLE_MODEL":      "",
	"RIDDLE_TIMEOUT":    "10s",
	"DAILY_SALT":        "",
	"SESSION_IDLE":      "2h",
}

// Load reads .env files (missing files are fine), then the environment.
// Pass no files to use ./.env.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("PORT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		DBPath:          v.GetString("DB_PATH"),
		ClientOrigin:    v.GetString("CLIENT_ORIGIN"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTExpiresDays:  v.GetInt("JWT_EXPIRES_DAYS"),
		CookieName:      v.GetString("COOKIE_NAME"),
		Production:      v.GetString("NODE_ENV") == "production",
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		RiddleModel:     v.GetString("RIDDLE_MODEL"),
		RiddleTimeout:   v.GetDuration("RIDDLE_TIMEOUT"),
		DailySalt:       v.GetString("DAILY_SALT"),
		SessionIdle:     v.GetDuration("SESSION_IDLE"),
	}
	if cfg.JWTExpiresDays <= 0 {
		cfg.JWTExpiresDays = 14
	}
	if cfg.RiddleTimeout <= 0 {
		return nil, errors.New("RIDDLE_TIMEOUT must be positive")
	}
	if cfg.Production && cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required in production")
	}
	return cfg, nil
}

// AuthEnabled reports whether accounts and signed tokens are available.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }
