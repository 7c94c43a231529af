// Package docerr tags comparison failures with the stage, document and page
// they came from so transports can map them to a status without string
// matching.
package docerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInput Kind = iota + 1
	KindExtraction
	KindRaster
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindExtraction:
		return "extraction"
	case KindRaster:
		return "raster"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrInput      = errors.New("input error")
	ErrExtraction = errors.New("extraction error")
	ErrRaster     = errors.New("raster error")
	ErrHash       = errors.New("hash error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInput:
		return ErrInput
	case KindExtraction:
		return ErrExtraction
	case KindRaster:
		return ErrRaster
	case KindHash:
		return ErrHash
	}
	return nil
}

// Error is the single structured failure returned by a comparison.
// Page is 1-based; 0 means the failure is not tied to a page.
type Error struct {
	Kind Kind
	Doc  string
	Page int
	Err  error
}

func (e *Error) Error() string {
	where := e.Doc
	if e.Page > 0 {
		if where != "" {
			where += ", "
		}
		where += fmt.Sprintf("page %d", e.Page)
	}
	msg := e.Kind.String() + " error"
	if where != "" {
		msg += " (" + where + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func Input(err error) error      { return &Error{Kind: KindInput, Err: err} }
func Extraction(err error) error { return &Error{Kind: KindExtraction, Err: err} }

// Raster tags a render failure for the 0-based page index.
func Raster(page int, err error) error {
	return &Error{Kind: KindRaster, Page: page + 1, Err: err}
}

// Hash tags a fingerprinting failure for the 0-based page index; pass -1
// when no single page is at fault.
func Hash(page int, err error) error {
	return &Error{Kind: KindHash, Page: page + 1, Err: err}
}

// Inputf builds an input error from a format string.
func Inputf(format string, args ...any) error {
	return Input(fmt.Errorf(format, args...))
}

// WithDoc labels err with the document it belongs to. Errors that are not
// *Error (context cancellation, for instance) pass through untouched.
func WithDoc(err error, doc string) error {
	var de *Error
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	cp.Doc = doc
	return &cp
}

// As extracts the structured error, if any.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
