package docerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want error
	}{
		{Input(cause), ErrInput},
		{Extraction(cause), ErrExtraction},
		{Raster(2, cause), ErrRaster},
		{Hash(-1, cause), ErrHash},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%v: errors.Is(%v) = false", tt.err, tt.want)
		}
		if !errors.Is(tt.err, cause) {
			t.Errorf("%v: cause not reachable through Unwrap", tt.err)
		}
		if errors.Is(tt.err, ErrInput) && tt.want != ErrInput {
			t.Errorf("%v: matched the wrong sentinel", tt.err)
		}
	}
}

func TestWithDocMessage(t *testing.T) {
	err := WithDoc(Raster(2, errors.New("bad stream")), "file_b")
	want := "raster error (file_b, page 3): bad stream"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("compare: %w", err)
	de, ok := As(wrapped)
	if !ok {
		t.Fatal("As failed through fmt wrapping")
	}
	if de.Doc != "file_b" || de.Page != 3 || de.Kind != KindRaster {
		t.Fatalf("unexpected fields: %+v", de)
	}
}

func TestWithDocLeavesForeignErrors(t *testing.T) {
	err := WithDoc(context.Canceled, "file_a")
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled untouched, got %v", err)
	}
}

func TestWithDocDoesNotMutateOriginal(t *testing.T) {
	orig := Extraction(errors.New("x"))
	_ = WithDoc(orig, "file_a")
	de, _ := As(orig)
	if de.Doc != "" {
		t.Fatalf("original error mutated: %+v", de)
	}
}
