package poppler

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toricodesthings/docmatch/internal/pdftest"
)

func TestDPI(t *testing.T) {
	tests := []struct {
		zoom float64
		want float64
	}{
		{1, 72},
		{0.5, 36},
		{2, 144},
	}
	for _, tt := range tests {
		if got := DPI(tt.zoom); got != tt.want {
			t.Errorf("DPI(%v) = %v, want %v", tt.zoom, got, tt.want)
		}
	}
}

func TestAvailableMissingTool(t *testing.T) {
	if Available("docmatch-no-such-tool") {
		t.Fatal("nonexistent tool reported available")
	}
	if !Available() {
		t.Fatal("no tools requested must report available")
	}
}

func samplePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	data := pdftest.Build(pdftest.Text("Quarterly report"), pdftest.Text("Appendix B"))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPageCountAndText(t *testing.T) {
	if !Available("pdfinfo", "pdftotext") {
		t.Skip("poppler-utils not installed")
	}
	path := samplePDF(t)
	ctx := context.Background()

	n, err := PageCount(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("pages = %d, want 2", n)
	}

	txt, err := TextForPage(ctx, path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(txt, "Appendix B") || strings.Contains(txt, "Quarterly") {
		t.Fatalf("page 2 text = %q", txt)
	}
	if strings.HasSuffix(txt, "\f") {
		t.Fatal("form feed not stripped")
	}
}

func TestRenderPage(t *testing.T) {
	if !Available("pdftoppm") {
		t.Skip("pdftoppm not installed")
	}
	path := samplePDF(t)

	out, err := RenderPage(context.Background(), path, 1, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
	// US Letter at 36 DPI
	if b := img.Bounds(); b.Dx() < 300 || b.Dx() > 310 {
		t.Fatalf("unexpected width %d", b.Dx())
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	if !Available("pdftoppm") {
		t.Skip("pdftoppm not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderPage(ctx, samplePDF(t), 1, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunReportsToolFailure(t *testing.T) {
	if !Available("pdfinfo") {
		t.Skip("pdfinfo not installed")
	}
	_, err := PageCount(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil || !strings.Contains(err.Error(), "pdfinfo") {
		t.Fatalf("err = %v", err)
	}
}
