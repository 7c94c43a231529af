package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toricodesthings/docmatch/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != "8080" || c.MaxPDFBytes != 200<<20 || c.RateLimitEvery != 600*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	o := c.Options()
	if o.Zoom != 1.0 || o.HashSize != 16 || o.MaxHammingPerPage != 6 || o.MatchRatioThreshold != 0.8 {
		t.Fatalf("options = %+v", o)
	}
	if o.TrailingPages != types.TrailingIgnore || o.Workers != 8 {
		t.Fatalf("options = %+v", o)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("PORT", "9090")
	t.Setenv("ZOOM", "2")
	t.Setenv("MAX_HAMMING_PER_PAGE", "0")
	t.Setenv("TRAILING_PAGES", "penalize")
	t.Setenv("POPPLER_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != "9090" || c.Zoom != 2 || c.MaxHammingPerPage != 0 || c.PopplerTimeout != 5*time.Second {
		t.Fatalf("env not applied: %+v", c)
	}
	if c.Options().TrailingPages != types.TrailingPenalize {
		t.Fatalf("trailing = %q", c.TrailingPages)
	}
	if len(c.CORSAllowedOrigins) != 2 || c.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %q", c.CORSAllowedOrigins)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmatch.yaml")
	yaml := strings.Join([]string{
		"hash_size: 8",
		"match_ratio_threshold: 0.9",
		"text_backend: poppler",
		"cors_allowed_origins:",
		"  - https://ui.example",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv("MATCH_RATIO_THRESHOLD", "0.7")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.HashSize != 8 || c.TextBackend != "poppler" {
		t.Fatalf("file not applied: %+v", c)
	}
	if c.MatchRatioThreshold != 0.7 {
		t.Fatalf("env must win over file, got %v", c.MatchRatioThreshold)
	}
	if len(c.CORSAllowedOrigins) != 1 || c.CORSAllowedOrigins[0] != "https://ui.example" {
		t.Fatalf("origins = %q", c.CORSAllowedOrigins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"long secret", func(c *Config) { c.InternalSharedSecret = strings.Repeat("s", 32) }, true},
		{"short secret", func(c *Config) { c.InternalSharedSecret = "short" }, false},
		{"bad backend", func(c *Config) { c.TextBackend = "ocr" }, false},
		{"bad ratio", func(c *Config) { c.MatchRatioThreshold = 1.5 }, false},
		{"bad trailing", func(c *Config) { c.TrailingPages = "truncate" }, false},
		{"zero workers", func(c *Config) { c.MaxPageWorkers = 0 }, false},
		{"zero pdf limit", func(c *Config) { c.MaxPDFBytes = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
