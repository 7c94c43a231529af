package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"github.com/ledongthuc/pdf"

	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/poppler"
)

// Text backends.
const (
	BackendNative  = "native"
	BackendPoppler = "poppler"
)

// PDFOpener opens PDF bytes. Rendering always goes through pdftoppm; text
// and page count come from the in-process parser unless Backend is poppler.
type PDFOpener struct {
	Backend  string
	MaxBytes int64
	// ToolTimeout bounds each poppler invocation; zero means no extra bound.
	ToolTimeout time.Duration
	TempDir     string
}

// Validate checks that data looks like a PDF before any processing.
func Validate(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return docerr.Inputf("empty document")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return docerr.Inputf("PDF exceeds %dMB limit", maxBytes/(1<<20))
	}
	if !filetype.Is(data, "pdf") {
		preview := data
		if len(preview) > 8 {
			preview = preview[:8]
		}
		return docerr.Inputf("not a PDF (starts with %q)", preview)
	}
	return nil
}

func (o PDFOpener) Open(ctx context.Context, data []byte) (Document, error) {
	if err := Validate(data, o.MaxBytes); err != nil {
		return nil, err
	}
	backend := o.Backend
	switch backend {
	case "":
		backend = BackendNative
	case BackendNative, BackendPoppler:
	default:
		return nil, fmt.Errorf("unknown text backend %q", backend)
	}

	tmpDir, err := os.MkdirTemp(o.TempDir, "docmatch-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	path := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("write: %w", err)
	}

	return &pdfDocument{
		data:    data,
		dir:     tmpDir,
		path:    path,
		backend: backend,
		timeout: o.ToolTimeout,
		pages:   -1,
	}, nil
}

type pdfDocument struct {
	data    []byte
	dir     string
	path    string
	backend string
	timeout time.Duration

	mu     sync.Mutex
	reader *pdf.Reader
	pages  int
}

func (d *pdfDocument) Close() error {
	return os.RemoveAll(d.dir)
}

func (d *pdfDocument) toolCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// nativeReader parses lazily; the parser panics on some malformed input.
func (d *pdfDocument) nativeReader() (r *pdf.Reader, err error) {
	if d.reader != nil {
		return d.reader, nil
	}
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("parse: %v", p)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	d.reader = r
	return r, nil
}

func (d *pdfDocument) PageCount(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages >= 0 {
		return d.pages, nil
	}

	var n int
	switch d.backend {
	case BackendPoppler:
		tctx, cancel := d.toolCtx(ctx)
		defer cancel()
		count, err := poppler.PageCount(tctx, d.path)
		if err != nil {
			return 0, err
		}
		n = count
	default:
		r, err := d.nativeReader()
		if err != nil {
			return 0, err
		}
		n = r.NumPage()
	}
	if n < 0 {
		return 0, fmt.Errorf("negative page count")
	}
	d.pages = n
	return n, nil
}

func (d *pdfDocument) checkPage(ctx context.Context, page int) error {
	n, err := d.PageCount(ctx)
	if err != nil {
		return err
	}
	if page < 0 || page >= n {
		return fmt.Errorf("page index %d out of range [0,%d)", page, n)
	}
	return nil
}

func (d *pdfDocument) ExtractText(ctx context.Context, page int) (string, error) {
	if err := d.checkPage(ctx, page); err != nil {
		return "", err
	}
	if d.backend == BackendPoppler {
		tctx, cancel := d.toolCtx(ctx)
		defer cancel()
		return poppler.TextForPage(tctx, d.path, page+1)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.nativeReader()
	if err != nil {
		return "", err
	}
	p := r.Page(page + 1)
	if p.V.IsNull() {
		return "", nil
	}
	// GetPlainText recovers its own panics and reports them as errors
	return p.GetPlainText(nil)
}

func (d *pdfDocument) RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error) {
	if err := d.checkPage(ctx, page); err != nil {
		return nil, err
	}
	if zoom <= 0 {
		return nil, fmt.Errorf("zoom must be positive, got %v", zoom)
	}
	tctx, cancel := d.toolCtx(ctx)
	defer cancel()
	return poppler.RenderPage(tctx, d.path, page+1, zoom)
}
