package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/toricodesthings/docmatch/internal/document"
	"github.com/toricodesthings/docmatch/internal/types"
)

// EnvConfigFile names an optional YAML file read before env overrides.
const EnvConfigFile = "DOCMATCH_CONFIG"

type Config struct {
	// Server
	Port string `mapstructure:"port"`

	// Secrets
	InternalSharedSecret string `mapstructure:"internal_shared_secret"`

	// Limits
	MaxPDFBytes int64 `mapstructure:"max_pdf_bytes"`

	// Concurrency
	MaxConcurrentRequests int64 `mapstructure:"max_concurrent_requests"`
	MaxPageWorkers        int   `mapstructure:"max_page_workers"` // page renders in flight per comparison

	// Server timeouts
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`

	// Request timeouts
	CompareTimeout     time.Duration `mapstructure:"compare_timeout"`
	FingerprintTimeout time.Duration `mapstructure:"fingerprint_timeout"`

	// Poppler
	TextBackend    string        `mapstructure:"text_backend"`
	PopplerTimeout time.Duration `mapstructure:"poppler_timeout"`

	// rate limiting (per IP)
	RateLimitEvery time.Duration `mapstructure:"rate_limit_every"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`

	// housekeeping
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// health
	HealthDegradeRatio float64 `mapstructure:"health_degrade_ratio"`

	// http
	MaxHeaderBytes     int      `mapstructure:"max_header_bytes"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	LogLevel string `mapstructure:"log_level"`

	// Comparison defaults (requests may override per call)
	Zoom                float64 `mapstructure:"zoom"`
	HashSize            int     `mapstructure:"hash_size"`
	MaxHammingPerPage   int     `mapstructure:"max_hamming_per_page"`
	MatchRatioThreshold float64 `mapstructure:"match_ratio_threshold"`
	TrailingPages       string  `mapstructure:"trailing_pages"`
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in increasing precedence. An empty path falls back to
// $DOCMATCH_CONFIG; no file at all is fine.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config file not found: %s", path)
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// PORT, MAX_PDF_BYTES, ZOOM ... override file values
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.CORSAllowedOrigins = splitList(c.CORSAllowedOrigins)
	return c, nil
}

func setDefaults(v *viper.Viper) {
	d := types.DefaultOptions()

	v.SetDefault("port", "8080")
	v.SetDefault("internal_shared_secret", "")

	v.SetDefault("max_pdf_bytes", int64(200<<20))

	v.SetDefault("max_concurrent_requests", 15)
	v.SetDefault("max_page_workers", 8)

	v.SetDefault("read_header_timeout", 10*time.Second)
	v.SetDefault("read_timeout", 60*time.Second)
	v.SetDefault("write_timeout", 180*time.Second)
	v.SetDefault("idle_timeout", 60*time.Second)

	v.SetDefault("compare_timeout", 160*time.Second)
	v.SetDefault("fingerprint_timeout", 90*time.Second)

	v.SetDefault("text_backend", document.BackendNative)
	v.SetDefault("poppler_timeout", 30*time.Second)

	v.SetDefault("rate_limit_every", 600*time.Millisecond)
	v.SetDefault("rate_limit_burst", 20)

	v.SetDefault("cleanup_interval", 5*time.Minute)
	v.SetDefault("health_degrade_ratio", 0.9)

	v.SetDefault("max_header_bytes", 1<<20)
	v.SetDefault("cors_allowed_origins", []string{})

	v.SetDefault("log_level", "info")

	v.SetDefault("zoom", d.Zoom)
	v.SetDefault("hash_size", d.HashSize)
	v.SetDefault("max_hamming_per_page", d.MaxHammingPerPage)
	v.SetDefault("match_ratio_threshold", d.MatchRatioThreshold)
	v.SetDefault("trailing_pages", d.TrailingPages)
}

// Validate checks server settings and the comparison defaults. The shared
// secret is optional, but when set it must be long enough to be worth having.
func (c Config) Validate() error {
	if s := strings.TrimSpace(c.InternalSharedSecret); s != "" && len(s) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	if c.MaxPDFBytes <= 0 {
		return fmt.Errorf("MAX_PDF_BYTES must be positive")
	}
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be >= 1")
	}
	if c.RateLimitEvery <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_EVERY and RATE_LIMIT_BURST must be positive")
	}
	switch c.TextBackend {
	case document.BackendNative, document.BackendPoppler:
	default:
		return fmt.Errorf("TEXT_BACKEND must be %q or %q, got %q", document.BackendNative, document.BackendPoppler, c.TextBackend)
	}
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("comparison defaults: %w", err)
	}
	return nil
}

// Options returns the comparison defaults as engine options.
func (c Config) Options() types.Options {
	return types.Options{
		Zoom:                c.Zoom,
		HashSize:            c.HashSize,
		MaxHammingPerPage:   c.MaxHammingPerPage,
		MatchRatioThreshold: c.MatchRatioThreshold,
		TrailingPages:       strings.ToLower(strings.TrimSpace(c.TrailingPages)),
		Workers:             c.MaxPageWorkers,
	}
}

// Opener returns the PDF opener these settings describe.
func (c Config) Opener() document.PDFOpener {
	return document.PDFOpener{
		Backend:     c.TextBackend,
		MaxBytes:    c.MaxPDFBytes,
		ToolTimeout: c.PopplerTimeout,
	}
}

// splitList accepts both YAML lists and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
