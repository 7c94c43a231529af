package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/docmatch/internal/compare"
	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/types"
)

// multipartMemory is how much of a form is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("/compare",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleCompare)))))

	mux.HandleFunc("/fingerprint",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleFingerprint)))))

	return s.withLogging(s.withRecovery(withCORS(s.cfg.CORSAllowedOrigins, mux)))
}

// ---------- Handlers ----------

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	total, active := s.metrics.get()
	s.metrics.mu.RLock()
	comparisons, failures := s.metrics.comparisons, s.metrics.failures
	s.metrics.mu.RUnlock()

	out := map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"comparisons":    comparisons,
		"failures":       failures,
		"uptimeSeconds":  int64(time.Since(s.started).Seconds()),
	}
	if stats, err := s.processStats(); err != nil {
		s.log.WithError(err).Debug("process stats")
	} else {
		out["process"] = stats
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.URL.Query())
	if err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxPDFBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormErr(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	a, errA := s.readPDFPart(r, compare.DocA)
	b, errB := s.readPDFPart(r, compare.DocB)
	if errA != nil || errB != nil {
		if errors.Is(errA, errNotPDF) || errors.Is(errB, errNotPDF) {
			writeErr(w, http.StatusBadRequest, "invalid_input", "Both files must be PDFs")
			return
		}
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(errors.Join(errA, errB)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CompareTimeout)
	defer cancel()

	start := time.Now()
	report, err := engine.Compare(ctx, a, b)
	s.metrics.record(err == nil)
	if err != nil {
		s.writeDocErr(w, r, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"pages_a":     report.Visual.PagesA,
		"pages_b":     report.Visual.PagesB,
		"match_ratio": report.Visual.MatchRatio,
		"same":        report.Same(),
		"elapsed":     time.Since(start).String(),
	}).Info("compare")

	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r.URL.Query())
	if err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxPDFBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormErr(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	data, err := s.readPDFPart(r, compare.Doc)
	if err != nil {
		if errors.Is(err, errNotPDF) {
			writeErr(w, http.StatusBadRequest, "invalid_input", "File must be a PDF")
			return
		}
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.FingerprintTimeout)
	defer cancel()

	fp, err := engine.Fingerprint(ctx, data)
	if err != nil {
		s.writeDocErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// ---------- Request parsing ----------

var errNotPDF = errors.New("part is not application/pdf")

func (s *server) readPDFPart(r *http.Request, name string) ([]byte, error) {
	f, hdr, err := r.FormFile(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer f.Close()

	mt, _, err := mime.ParseMediaType(hdr.Header.Get("Content-Type"))
	if err != nil || mt != "application/pdf" {
		return nil, fmt.Errorf("%s: %w", name, errNotPDF)
	}

	// one byte over the limit is enough for the opener to reject it
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", name, err)
	}
	return data, nil
}

// engineFor returns the default engine, or a new one when the query string
// overrides any comparison option.
func (s *server) engineFor(q url.Values) (*compare.Engine, error) {
	opts, changed, err := applyOverrides(s.engine.Options(), q)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.engine, nil
	}
	return compare.New(opts, s.opener, s.log)
}

func applyOverrides(opts types.Options, q url.Values) (types.Options, bool, error) {
	changed := false

	if v := strings.TrimSpace(q.Get("zoom")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, false, fmt.Errorf("zoom: %w", err)
		}
		opts.Zoom, changed = f, true
	}
	if v := strings.TrimSpace(q.Get("hash_size")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, false, fmt.Errorf("hash_size: %w", err)
		}
		opts.HashSize, changed = n, true
	}
	if v := strings.TrimSpace(q.Get("max_hamming")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, false, fmt.Errorf("max_hamming: %w", err)
		}
		opts.MaxHammingPerPage, changed = n, true
	}
	if v := strings.TrimSpace(q.Get("match_ratio")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, false, fmt.Errorf("match_ratio: %w", err)
		}
		opts.MatchRatioThreshold, changed = f, true
	}
	if v := strings.TrimSpace(q.Get("trailing_pages")); v != "" {
		opts.TrailingPages, changed = strings.ToLower(v), true
	}

	if changed {
		if err := opts.Validate(); err != nil {
			return opts, false, err
		}
	}
	return opts, changed, nil
}

// ---------- Responses ----------

func (s *server) writeDocErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeErr(w, http.StatusGatewayTimeout, "timeout", "Processing timed out")
		return
	}
	if errors.Is(err, context.Canceled) {
		// client went away; nobody is left to read a response
		s.log.WithField("path", sanitizeLogString(r.URL.Path)).Info("request canceled by client")
		return
	}

	de, ok := docerr.As(err)
	if !ok {
		s.log.WithError(err).WithField("path", sanitizeLogString(r.URL.Path)).Error("unclassified failure")
		writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	status, code := http.StatusBadRequest, ""
	switch de.Kind {
	case docerr.KindInput:
		code = "invalid_input"
	case docerr.KindExtraction:
		code = "extraction_failed"
	case docerr.KindRaster:
		code = "raster_failed"
	default:
		status, code = http.StatusInternalServerError, "hash_failed"
	}

	body := map[string]any{
		"success": false,
		"error":   sanitizeError(err),
		"code":    code,
		"stage":   de.Kind.String(),
	}
	if de.Doc != "" {
		body["document"] = de.Doc
	}
	if de.Page > 0 {
		body["page"] = de.Page
	}
	writeJSON(w, status, body)
}

func writeFormErr(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeErr(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("Request body exceeds %d bytes", tooBig.Limit))
		return
	}
	writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
}
