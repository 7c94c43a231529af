// Package document is the decoder boundary of the comparison engine. The
// core only sees the Document capability interface; PDFOpener adapts the
// native parser and poppler tools behind it.
package document

import "context"

// Document is one decoded input, owned by a single request. Page indices
// are 0-based.
type Document interface {
	PageCount(ctx context.Context) (int, error)
	ExtractText(ctx context.Context, page int) (string, error)
	// RenderPage returns the page encoded as PNG.
	RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error)
	Close() error
}

// Opener validates raw bytes and returns a Document over them.
type Opener interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, data []byte) (Document, error)

func (f OpenerFunc) Open(ctx context.Context, data []byte) (Document, error) {
	return f(ctx, data)
}
