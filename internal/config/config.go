// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds the server settings.
type Config struct {
	Port            string
	DBPath          string
	StaticDir       string
	FittingURL      string
	FittingTimeout  time.Duration
	RacesFile       string // empty means the built-in catalog
	SiteURL         string
	LogLevel        log.Level
	AutoUpdateRaces bool
}

func defaults() Config {
	return Config{
		Port:            "8080",
		DBPath:          "./tracksplits.db",
		StaticDir:       "./web",
		FittingURL:      "http://localhost:5000",
		FittingTimeout:  30 * time.Second,
		SiteURL:         "http://tracksplits2.herokuapp.com",
		LogLevel:        log.InfoLevel,
		AutoUpdateRaces: true,
	}
}

// Load reads the named .env files (".env" when none are given) and then the
// process environment. A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read env file: %w", err)
		}
		log.Debug("No .env file found, using environment variables")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, falling back to defaults for unset
// variables.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("DB_PATH", &cfg.DBPath)
	str("STATIC_DIR", &cfg.StaticDir)
	str("FITTING_URL", &cfg.FittingURL)
	str("RACES_FILE", &cfg.RacesFile)
	str("SITE_URL", &cfg.SiteURL)

	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return Config{}, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	u, err := url.Parse(cfg.FittingURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid FITTING_URL %q", cfg.FittingURL)
	}

	if v, ok := lookup("FITTING_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid FITTING_TIMEOUT %q", v)
		}
		cfg.FittingTimeout = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if v, ok := lookup("AUTO_UPDATE_RACES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_UPDATE_RACES %q: %w", v, err)
		}
		cfg.AutoUpdateRaces = b
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}
