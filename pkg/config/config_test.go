package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.Addr() != "localhost:8080" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestAddr(t *testing.T) {
	tests := []struct {
		host, port string
		addr, url  string
	}{
		{"localhost", "8080", "localhost:8080", "http://localhost:8080"},
		{"", "9000", ":9000", "http://localhost:9000"},
		{"0.0.0.0", "80", "0.0.0.0:80", "http://localhost:80"},
		{"::1", "8080", "[::1]:8080", "http://[::1]:8080"},
		{"192.168.1.5", "8080", "192.168.1.5:8080", "http://192.168.1.5:8080"},
	}
	for _, tt := range tests {
		cfg := Config{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.addr {
			t.Errorf("Addr(%q, %q) = %q, want %q", tt.host, tt.port, got, tt.addr)
		}
		if got := cfg.BrowserURL(); got != tt.url {
			t.Errorf("BrowserURL(%q, %q) = %q, want %q", tt.host, tt.port, got, tt.url)
		}
	}
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupMap(map[string]string{
		EnvHost:         "0.0.0.0",
		EnvPort:         ":9000",
		EnvDisplayWidth: "400",
		EnvHistoryCap:   " 5 ",
		EnvLogLevel:     "debug",
		EnvGiphyKey:     "g",
		EnvOpenAIKey:    "o",
		EnvOpenAIModel:  "gpt-4o",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != "9000" || cfg.DisplayWidth != 400 || cfg.HistoryCap != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != logrus.DebugLevel {
		t.Errorf("level = %v", cfg.LogLevel)
	}
	if cfg.GiphyKey != "g" || cfg.OpenAIKey != "o" || cfg.OpenAIModel != "gpt-4o" || cfg.OpenAIBaseURL != "" {
		t.Errorf("keys = %+v", cfg)
	}
}

func TestFromLookupInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"width not a number", map[string]string{EnvDisplayWidth: "wide"}},
		{"width zero", map[string]string{EnvDisplayWidth: "0"}},
		{"negative cap", map[string]string{EnvHistoryCap: "-1"}},
		{"bad level", map[string]string{EnvLogLevel: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromLookup(lookupMap(tt.env)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MEMESTENCIL_HISTORY_CAP=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvHistoryCap, "")
	os.Unsetenv(EnvHistoryCap)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HistoryCap != 7 {
		t.Errorf("history cap = %d, want 7", cfg.HistoryCap)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file: %v", err)
	}
}
