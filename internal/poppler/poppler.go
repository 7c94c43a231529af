package poppler

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var pagesRe = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// Available reports whether the named poppler tools are on PATH.
func Available(tools ...string) bool {
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			return false
		}
	}
	return true
}

func PageCount(ctx context.Context, pdfPath string) (int, error) {
	out, err := run(ctx, "pdfinfo", pdfPath)
	if err != nil {
		return 0, err
	}
	m := pagesRe.FindStringSubmatch(string(out))
	if len(m) != 2 {
		return 0, fmt.Errorf("pdfinfo: pages not found")
	}
	return strconv.Atoi(m[1])
}

// TextForPage returns the text of a 1-based page in reading order.
func TextForPage(ctx context.Context, pdfPath string, page int) (string, error) {
	out, err := run(ctx,
		"pdftotext",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-enc", "UTF-8",
		pdfPath,
		"-",
	)
	if err != nil {
		return "", err
	}
	// pdftotext ends every page with a form feed
	return strings.TrimSuffix(string(out), "\f"), nil
}

// DPI maps a zoom factor onto pdftoppm's resolution; 1.0 is PDF user space.
func DPI(zoom float64) float64 {
	return 72 * zoom
}

// RenderPage renders one 1-based page to PNG bytes.
func RenderPage(ctx context.Context, pdfPath string, page int, zoom float64) ([]byte, error) {
	dpi := strconv.FormatFloat(math.Max(DPI(zoom), 1), 'f', -1, 64)
	return run(ctx,
		"pdftoppm",
		"-png",
		"-singlefile",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", dpi,
		pdfPath,
	)
}

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
