// Package compare runs the byte, text and visual pipelines over two
// documents and merges them into one report.
package compare

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/docmatch/internal/digest"
	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/document"
	"github.com/toricodesthings/docmatch/internal/phash"
	"github.com/toricodesthings/docmatch/internal/raster"
	"github.com/toricodesthings/docmatch/internal/textlayer"
	"github.com/toricodesthings/docmatch/internal/types"
	"github.com/toricodesthings/docmatch/internal/visual"
)

// Document labels used in errors and reports.
const (
	DocA = "file_a"
	DocB = "file_b"
	Doc  = "file"
)

// Engine is safe for concurrent use; it holds configuration only.
type Engine struct {
	opts   types.Options
	opener document.Opener
	log    logrus.FieldLogger
}

// New validates opts (after filling defaults) and returns an engine. A nil
// logger discards output.
func New(opts types.Options, opener document.Opener, log logrus.FieldLogger) (*Engine, error) {
	opts = types.WithDefaults(opts)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if opener == nil {
		return nil, fmt.Errorf("nil document opener")
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Engine{opts: opts, opener: opener, log: log}, nil
}

func (e *Engine) Options() types.Options { return e.opts }

// docResult is everything computed for one document.
type docResult struct {
	sha      string
	text     string
	textHash string
	prints   []phash.Fingerprint
}

// Compare fingerprints a and b independently and reports on all three
// axes. Any failure aborts the whole comparison with a single error.
func (e *Engine) Compare(ctx context.Context, a, b []byte) (types.ComparisonReport, error) {
	start := time.Now()

	docA, err := e.open(ctx, a, DocA)
	if err != nil {
		return types.ComparisonReport{}, err
	}
	defer docA.Close()

	docB, err := e.open(ctx, b, DocB)
	if err != nil {
		return types.ComparisonReport{}, err
	}
	defer docB.Close()

	// page renders of both documents share one pool
	sem := semaphore.NewWeighted(int64(e.opts.Workers))
	g, gctx := errgroup.WithContext(ctx)

	var ra, rb docResult
	g.Go(func() error {
		r, err := e.process(gctx, sem, docA, a)
		if err != nil {
			return docerr.WithDoc(err, DocA)
		}
		ra = r
		return nil
	})
	g.Go(func() error {
		r, err := e.process(gctx, sem, docB, b)
		if err != nil {
			return docerr.WithDoc(err, DocB)
		}
		rb = r
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return types.ComparisonReport{}, ctx.Err()
		}
		return types.ComparisonReport{}, err
	}

	vis, err := visual.Match(ra.prints, rb.prints, visual.PolicyFrom(e.opts))
	if err != nil {
		return types.ComparisonReport{}, docerr.Hash(-1, err)
	}

	report := types.ComparisonReport{
		SHA256: types.DigestPair{
			FileA:     ra.sha,
			FileB:     rb.sha,
			Identical: ra.sha == rb.sha,
		},
		TextHash: types.DigestPair{
			FileA:     ra.textHash,
			FileB:     rb.textHash,
			Identical: ra.textHash == rb.textHash,
		},
		Visual: vis,
		TextA:  ra.text,
		TextB:  rb.text,
	}
	report.Warnings = Warnings(report)

	e.log.WithFields(logrus.Fields{
		"pages_a":     vis.PagesA,
		"pages_b":     vis.PagesB,
		"match_ratio": vis.MatchRatio,
		"same_bytes":  report.SHA256.Identical,
		"same_text":   report.TextHash.Identical,
		"same_visual": vis.SameVisual,
		"elapsed":     time.Since(start).String(),
	}).Debug("comparison complete")

	return report, nil
}

// Fingerprint runs the per-document pipeline on a single input.
func (e *Engine) Fingerprint(ctx context.Context, data []byte) (types.DocumentFingerprint, error) {
	doc, err := e.open(ctx, data, Doc)
	if err != nil {
		return types.DocumentFingerprint{}, err
	}
	defer doc.Close()

	sem := semaphore.NewWeighted(int64(e.opts.Workers))
	r, err := e.process(ctx, sem, doc, data)
	if err != nil {
		if ctx.Err() != nil {
			return types.DocumentFingerprint{}, ctx.Err()
		}
		return types.DocumentFingerprint{}, docerr.WithDoc(err, Doc)
	}

	hashes := make([]string, len(r.prints))
	for i, fp := range r.prints {
		hashes[i] = fp.String()
	}
	return types.DocumentFingerprint{
		SHA256:     r.sha,
		TextHash:   r.textHash,
		Text:       r.text,
		Pages:      len(r.prints),
		HashSize:   e.opts.HashSize,
		PageHashes: hashes,
	}, nil
}

func (e *Engine) open(ctx context.Context, data []byte, label string) (document.Document, error) {
	doc, err := e.opener.Open(ctx, data)
	if err != nil {
		if _, ok := docerr.As(err); ok {
			return nil, docerr.WithDoc(err, label)
		}
		return nil, fmt.Errorf("open %s: %w", label, err)
	}
	return doc, nil
}

// process computes byte digest, text layer and per-page fingerprints. Text
// extraction runs alongside the page renders; the first failure cancels
// the rest.
func (e *Engine) process(ctx context.Context, sem *semaphore.Weighted, doc document.Document, data []byte) (docResult, error) {
	res := docResult{sha: digest.Bytes(data)}

	n, err := doc.PageCount(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return docResult{}, ctx.Err()
		}
		return docResult{}, docerr.Extraction(fmt.Errorf("page count: %w", err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		text, err := textlayer.Extract(gctx, doc)
		if err != nil {
			return err
		}
		res.text = text
		res.textHash = digest.Text(text)
		return nil
	})

	prints := make([]phash.Fingerprint, n)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer sem.Release(1)
			fp, err := e.page(gctx, doc, i)
			if err != nil {
				return err
			}
			prints[i] = fp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return docResult{}, err
	}
	// Acquire only fails on cancellation, which Wait may not have seen if
	// the cause was outside this group.
	if err := ctx.Err(); err != nil {
		return docResult{}, err
	}
	res.prints = prints
	return res, nil
}

func (e *Engine) page(ctx context.Context, doc document.Document, i int) (phash.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return phash.Fingerprint{}, err
	}
	img, err := raster.Render(ctx, doc, i, e.opts.Zoom)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	fp, err := phash.Hash(img, e.opts.HashSize)
	if err != nil {
		return phash.Fingerprint{}, docerr.Hash(i, err)
	}
	return fp, nil
}
