package types

import (
	"fmt"
	"runtime"
)

// Trailing page policies.
const (
	TrailingIgnore   = "ignore"
	TrailingPenalize = "penalize"
)

type Options struct {
	Zoom                float64 `json:"zoom" mapstructure:"zoom"`
	HashSize            int     `json:"hashSize" mapstructure:"hash_size"`
	MaxHammingPerPage   int     `json:"maxHammingPerPage" mapstructure:"max_hamming_per_page"`
	MatchRatioThreshold float64 `json:"matchRatioThreshold" mapstructure:"match_ratio_threshold"`
	TrailingPages       string  `json:"trailingPages" mapstructure:"trailing_pages"`

	// Workers bounds concurrent page renders per comparison.
	Workers int `json:"workers" mapstructure:"workers"`
}

func DefaultOptions() Options {
	return Options{
		Zoom:                1.0,
		HashSize:            16,
		MaxHammingPerPage:   6,
		MatchRatioThreshold: 0.8,
		TrailingPages:       TrailingIgnore,
		Workers:             runtime.NumCPU(),
	}
}

// WithDefaults fills unset (zero) fields. MaxHammingPerPage and
// MatchRatioThreshold are left alone because zero is meaningful for both.
func WithDefaults(o Options) Options {
	d := DefaultOptions()
	if o.Zoom == 0 {
		o.Zoom = d.Zoom
	}
	if o.HashSize == 0 {
		o.HashSize = d.HashSize
	}
	if o.TrailingPages == "" {
		o.TrailingPages = d.TrailingPages
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

func (o Options) Validate() error {
	if o.Zoom <= 0 {
		return fmt.Errorf("zoom must be positive, got %v", o.Zoom)
	}
	if o.HashSize < 2 {
		return fmt.Errorf("hashSize must be >= 2, got %d", o.HashSize)
	}
	if o.MaxHammingPerPage < 0 || o.MaxHammingPerPage > o.HashSize*o.HashSize {
		return fmt.Errorf("maxHammingPerPage must be in [0,%d], got %d", o.HashSize*o.HashSize, o.MaxHammingPerPage)
	}
	if o.MatchRatioThreshold < 0 || o.MatchRatioThreshold > 1 {
		return fmt.Errorf("matchRatioThreshold must be in [0,1], got %v", o.MatchRatioThreshold)
	}
	switch o.TrailingPages {
	case TrailingIgnore, TrailingPenalize:
	default:
		return fmt.Errorf("trailingPages must be %q or %q, got %q", TrailingIgnore, TrailingPenalize, o.TrailingPages)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", o.Workers)
	}
	return nil
}

type DigestPair struct {
	FileA     string `json:"file_a"`
	FileB     string `json:"file_b"`
	Identical bool   `json:"identical"`
}

type PageMatch struct {
	Page     int  `json:"page"` // 1-based
	Distance int  `json:"distance"`
	Match    bool `json:"match"`
}

type VisualResult struct {
	PagesA        int         `json:"pages_a"`
	PagesB        int         `json:"pages_b"`
	ComparedPages int         `json:"compared_pages"`
	Matches       int         `json:"matches"`
	MatchRatio    float64     `json:"match_ratio"`
	SameVisual    bool        `json:"same_visual"`
	TrailingPages string      `json:"trailing_pages"`
	Pages         []PageMatch `json:"pages"`
}

type ComparisonReport struct {
	SHA256   DigestPair   `json:"sha256"`
	TextHash DigestPair   `json:"text_hash"`
	Visual   VisualResult `json:"visual"`
	TextA    string       `json:"text_a"`
	TextB    string       `json:"text_b"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Same reports whether all three axes agree.
func (r ComparisonReport) Same() bool {
	return r.SHA256.Identical && r.TextHash.Identical && r.Visual.SameVisual
}

// DocumentFingerprint is the per-document half of a comparison.
type DocumentFingerprint struct {
	SHA256     string   `json:"sha256"`
	TextHash   string   `json:"text_hash"`
	Text       string   `json:"text"`
	Pages      int      `json:"pages"`
	HashSize   int      `json:"hash_size"`
	PageHashes []string `json:"page_hashes"`
}
