package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/docmatch/internal/config"
	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/document"
	"github.com/toricodesthings/docmatch/internal/document/doctest"
	"github.com/toricodesthings/docmatch/internal/types"
)

func testServer(t *testing.T, mutate func(*config.Config)) *server {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.InternalSharedSecret = ""
	cfg.CORSAllowedOrigins = []string{"https://ui.example"}
	if mutate != nil {
		mutate(&cfg)
	}

	opener := document.OpenerFunc(func(ctx context.Context, data []byte) (document.Document, error) {
		switch string(data) {
		case "A":
			return newDoc(1, 2), nil
		case "B":
			return newDoc(1, 2, 3), nil
		}
		return nil, docerr.Inputf("not a PDF")
	})

	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := newServer(cfg, opener, log)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newDoc(seeds ...int64) *doctest.Doc {
	d := &doctest.Doc{}
	for _, seed := range seeds {
		d.Images = append(d.Images, doctest.Noise(seed, 48, 64))
		d.Texts = append(d.Texts, "text of a scanned contract page")
	}
	return d
}

type part struct {
	field, contentType, body string
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.field+`.pdf"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, target string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if len(parts) > 0 {
		body, ct := multipartBody(t, parts...)
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", ct)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCompareEndpoint(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/compare",
		part{"file_a", "application/pdf", "A"},
		part{"file_b", "application/pdf", "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	r := decode[types.ComparisonReport](t, rec)
	if r.SHA256.Identical || r.Visual.ComparedPages != 2 || r.Visual.Matches != 2 || !r.Visual.SameVisual {
		t.Fatalf("report = %+v", r)
	}
	if len(r.Visual.Pages) != 2 {
		t.Fatalf("pages = %+v", r.Visual.Pages)
	}
}

func TestCompareQueryOverrides(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/compare?trailing_pages=penalize&hash_size=8",
		part{"file_a", "application/pdf", "A"},
		part{"file_b", "application/pdf", "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	r := decode[types.ComparisonReport](t, rec)
	if r.Visual.TrailingPages != types.TrailingPenalize || r.Visual.SameVisual {
		t.Fatalf("visual = %+v", r.Visual)
	}

	rec = do(t, h, http.MethodPost, "/compare?match_ratio=3",
		part{"file_a", "application/pdf", "A"},
		part{"file_b", "application/pdf", "B"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad override accepted: %d", rec.Code)
	}
}

func TestCompareRejectsNonPDFParts(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/compare",
		part{"file_a", "application/pdf", "A"},
		part{"file_b", "text/html", "B"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["code"] != "invalid_input" || body["error"] != "Both files must be PDFs" {
		t.Fatalf("body = %v", body)
	}
}

func TestCompareMissingPart(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/compare", part{"file_a", "application/pdf", "A"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["code"] != "bad_request" {
		t.Fatalf("body = %v", body)
	}
}

func TestCompareInputErrorNamesDocument(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/compare",
		part{"file_a", "application/pdf", "A"},
		part{"file_b", "application/pdf", "garbage"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["code"] != "invalid_input" || body["document"] != "file_b" || body["stage"] != "input" {
		t.Fatalf("body = %v", body)
	}
}

func TestCompareMethodNotAllowed(t *testing.T) {
	h := testServer(t, nil).routes()
	rec := do(t, h, http.MethodGet, "/compare")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "POST" {
		t.Fatalf("status %d allow %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestInternalAuth(t *testing.T) {
	secret := strings.Repeat("k", 32)
	h := testServer(t, func(c *config.Config) { c.InternalSharedSecret = secret }).routes()

	rec := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing auth: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Internal-Auth", secret)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid auth: status %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if _, ok := body["totalRequests"]; !ok {
		t.Fatalf("metrics = %v", body)
	}
}

func TestRateLimit(t *testing.T) {
	h := testServer(t, func(c *config.Config) {
		c.RateLimitBurst = 1
		c.RateLimitEvery = time.Hour
	}).routes()

	first := do(t, h, http.MethodGet, "/fingerprint")
	if first.Code != http.StatusMethodNotAllowed {
		t.Fatalf("first request: %d", first.Code)
	}
	second := do(t, h, http.MethodGet, "/fingerprint")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", second.Code)
	}
}

func TestFingerprintEndpoint(t *testing.T) {
	h := testServer(t, nil).routes()

	rec := do(t, h, http.MethodPost, "/fingerprint", part{"file", "application/pdf", "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	fp := decode[types.DocumentFingerprint](t, rec)
	if fp.Pages != 3 || len(fp.PageHashes) != 3 || fp.HashSize != 16 {
		t.Fatalf("fingerprint = %+v", fp)
	}
}

func TestHealth(t *testing.T) {
	h := testServer(t, nil).routes()
	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["status"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testServer(t, nil).routes()

	req := httptest.NewRequest(http.MethodOptions, "/compare", nil)
	req.Header.Set("Origin", "https://ui.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/compare", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be allowed")
	}
}

func TestApplyOverrides(t *testing.T) {
	base := types.DefaultOptions()

	opts, changed, err := applyOverrides(base, map[string][]string{})
	if err != nil || changed || opts != base {
		t.Fatalf("no overrides: %+v %v %v", opts, changed, err)
	}

	opts, changed, err = applyOverrides(base, map[string][]string{
		"zoom": {"2"}, "max_hamming": {"0"}, "trailing_pages": {"PENALIZE"},
	})
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if opts.Zoom != 2 || opts.MaxHammingPerPage != 0 || opts.TrailingPages != types.TrailingPenalize {
		t.Fatalf("opts = %+v", opts)
	}

	if _, _, err := applyOverrides(base, map[string][]string{"hash_size": {"x"}}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteDocErrTimeoutAndCancel(t *testing.T) {
	s := testServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/compare", nil)

	rec := httptest.NewRecorder()
	s.writeDocErr(rec, req, fmt.Errorf("compare: %w", context.DeadlineExceeded))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("deadline: status %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["code"] != "timeout" {
		t.Fatalf("deadline body = %v", body)
	}

	rec = httptest.NewRecorder()
	s.writeDocErr(rec, req, context.Canceled)
	if rec.Body.Len() != 0 {
		t.Fatalf("canceled request got a response body: %s", rec.Body)
	}
	if rec.Code == http.StatusGatewayTimeout {
		t.Fatal("client cancellation reported as gateway timeout")
	}
}

func TestCompareZeroMatchRatioOverride(t *testing.T) {
	s := testServer(t, nil)

	e, err := s.engineFor(map[string][]string{"match_ratio": {"0"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Options().MatchRatioThreshold; got != 0 {
		t.Fatalf("match_ratio=0 became %v", got)
	}
}
