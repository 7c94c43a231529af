package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toricodesthings/docmatch/internal/compare"
	"github.com/toricodesthings/docmatch/internal/config"
	"github.com/toricodesthings/docmatch/internal/format"
	"github.com/toricodesthings/docmatch/internal/types"
)

// compareFlags are the per-run overrides of the configured defaults.
type compareFlags struct {
	zoom       float64
	hashSize   int
	maxHamming int
	matchRatio float64
	trailing   string
	workers    int
	backend    string
	timeout    time.Duration
}

func (f *compareFlags) register(cmd *cobra.Command) {
	d := types.DefaultOptions()
	fl := cmd.Flags()
	fl.Float64Var(&f.zoom, "zoom", d.Zoom, "render scale (72·zoom DPI)")
	fl.IntVar(&f.hashSize, "hash-size", d.HashSize, "pHash side length in bits")
	fl.IntVar(&f.maxHamming, "max-hamming", d.MaxHammingPerPage, "largest per-page distance that still matches")
	fl.Float64Var(&f.matchRatio, "match-ratio", d.MatchRatioThreshold, "matched page fraction needed for a visual match")
	fl.StringVar(&f.trailing, "trailing-pages", d.TrailingPages, "unmatched trailing pages: ignore or penalize")
	fl.IntVar(&f.workers, "workers", 0, "concurrent page renders (default from config)")
	fl.StringVar(&f.backend, "backend", "", "text backend: native or poppler (default from config)")
	fl.DurationVar(&f.timeout, "timeout", 0, "abort after this long (0 = no limit)")
}

// apply layers explicitly set flags over the loaded config.
func (f *compareFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	fl := cmd.Flags()
	if fl.Changed("zoom") {
		cfg.Zoom = f.zoom
	}
	if fl.Changed("hash-size") {
		cfg.HashSize = f.hashSize
	}
	if fl.Changed("max-hamming") {
		cfg.MaxHammingPerPage = f.maxHamming
	}
	if fl.Changed("match-ratio") {
		cfg.MatchRatioThreshold = f.matchRatio
	}
	if fl.Changed("trailing-pages") {
		cfg.TrailingPages = strings.ToLower(f.trailing)
	}
	if fl.Changed("workers") {
		cfg.MaxPageWorkers = f.workers
	}
	if fl.Changed("backend") {
		cfg.TextBackend = f.backend
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (f *compareFlags) engine(cmd *cobra.Command) (*compare.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err = f.apply(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return compare.New(cfg.Options(), cfg.Opener(), newLogger())
}

func (f *compareFlags) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if f.timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, f.timeout)
	return tctx, func() { cancel(); stop() }
}

func newCompareCmd() *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "compare A.pdf B.pdf",
		Short: "Compare two documents on bytes, text and appearance",
		Long: `Compare two PDF documents.

Exit status is 0 when all three axes agree, 2 when any axis differs and 1
on error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := f.engine(cmd)
			if err != nil {
				return err
			}
			a, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			ctx, cancel := f.context()
			defer cancel()

			start := time.Now()
			report, err := engine.Compare(ctx, a, b)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printReport(cmd, report, args[0], args[1], time.Since(start))
			}
			if !report.Same() {
				return errDiffer
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newFingerprintCmd() *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "fingerprint FILE",
		Short: "Print the byte digest, text digest and page hashes of one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := f.engine(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := f.context()
			defer cancel()

			fp, err := engine.Fingerprint(ctx, data)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, fp)
			}
			fmt.Fprint(cmd.OutOrStdout(), format.Fingerprint(fp, args[0]))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the plain report, then a coloured one-line verdict per
// axis.
func printReport(cmd *cobra.Command, r types.ComparisonReport, nameA, nameB string, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, format.Report(r, nameA, nameB))

	axis := func(label string, same bool) {
		if same {
			colorGreen.Fprintf(out, "  ✔ %-8s %s\n", label, format.MarkSame)
		} else {
			colorRed.Fprintf(out, "  ✘ %-8s %s\n", label, format.MarkDiff)
		}
	}
	printSeparator(out)
	axis("bytes", r.SHA256.Identical)
	axis("text", r.TextHash.Identical)
	axis("visual", r.Visual.SameVisual)
	for _, w := range r.Warnings {
		colorYellow.Fprintf(out, "  ! %s\n", w)
	}
	colorCyan.Fprintf(out, "  elapsed %s\n", elapsed.Round(time.Millisecond))
}
