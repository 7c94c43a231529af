// Package textlayer pulls the text layer out of a document and normalizes
// it for hashing.
package textlayer

import (
	"context"
	"fmt"
	"strings"

	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/document"
)

// PageSeparator joins page texts.
const PageSeparator = "\n"

// Extract returns every page's text joined by PageSeparator with the outer
// whitespace trimmed. Pages without text contribute an empty string.
func Extract(ctx context.Context, doc document.Document) (string, error) {
	n, err := doc.PageCount(ctx)
	if err != nil {
		return "", extractionErr(ctx, fmt.Errorf("page count: %w", err))
	}
	pages, err := Pages(ctx, doc, n)
	if err != nil {
		return "", err
	}
	return Normalize(pages), nil
}

// Pages extracts the raw text of the first n pages in order.
func Pages(ctx context.Context, doc document.Document, n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txt, err := doc.ExtractText(ctx, i)
		if err != nil {
			return nil, extractionErr(ctx, fmt.Errorf("page %d: %w", i+1, err))
		}
		out = append(out, txt)
	}
	return out, nil
}

// Normalize joins page texts and trims the result. Whitespace inside a
// page is kept as-is.
func Normalize(pages []string) string {
	return strings.TrimSpace(strings.Join(pages, PageSeparator))
}

func extractionErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return docerr.Extraction(err)
}
