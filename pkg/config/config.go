// Package config reads MemeStencil settings from the environment and an
// optional .env file. Command-line flags override the values it returns.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variable names.
const (
	EnvHost          = "MEMESTENCIL_HOST"
	EnvPort          = "MEMESTENCIL_PORT"
	EnvDisplayWidth  = "MEMESTENCIL_DISPLAY_WIDTH"
	EnvHistoryCap    = "MEMESTENCIL_HISTORY_CAP"
	EnvGiphyKey      = "GIPHY_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config holds process-wide settings.
type Config struct {
	Host         string // listen host; empty listens on all interfaces
	Port         string
	DisplayWidth int
	HistoryCap   int
	LogLevel     logrus.Level

	GiphyKey      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Host:         "localhost",
		Port:         "8080",
		DisplayWidth: 600,
		HistoryCap:   30,
		LogLevel:     logrus.InfoLevel,
	}
}

// Load reads the given .env files (".env" when none are named) and then the
// process environment. A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
		logrus.Debug("no .env file found")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a lookup function such as os.LookupEnv.
// Unset or empty variables keep their defaults.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvHost); ok {
		cfg.Host = v
	}
	if v, ok := get(EnvPort); ok {
		cfg.Port = strings.TrimPrefix(v, ":")
	}
	if v, ok := get(EnvDisplayWidth); ok {
		n, err := positiveInt(EnvDisplayWidth, v)
		if err != nil {
			return cfg, err
		}
		cfg.DisplayWidth = n
	}
	if v, ok := get(EnvHistoryCap); ok {
		n, err := positiveInt(EnvHistoryCap, v)
		if err != nil {
			return cfg, err
		}
		cfg.HistoryCap = n
	}
	if v, ok := get(EnvLogLevel); ok {
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}

	cfg.GiphyKey, _ = get(EnvGiphyKey)
	cfg.OpenAIKey, _ = get(EnvOpenAIKey)
	cfg.OpenAIBaseURL, _ = get(EnvOpenAIBaseURL)
	cfg.OpenAIModel, _ = get(EnvOpenAIModel)
	return cfg, nil
}

// Addr returns the listen address for Host and Port.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// BrowserURL returns the base URL a local browser should use.
func (c Config) BrowserURL() string {
	host := c.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, c.Port)
}

// ApplyLogging sets the global logrus level and formatter.
func (c Config) ApplyLogging() {
	logrus.SetLevel(c.LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func positiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}
