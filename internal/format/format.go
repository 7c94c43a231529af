// Package format renders reports for terminals.
package format

import (
	"fmt"
	"strings"

	"github.com/toricodesthings/docmatch/internal/types"
)

// Verdict marks used in the per-axis lines.
const (
	MarkSame = "SAME"
	MarkDiff = "DIFFERENT"
)

func Verdict(same bool) string {
	if same {
		return MarkSame
	}
	return MarkDiff
}

// Report renders r as a plain text summary. nameA and nameB label the two
// inputs (usually their paths). Colour, if any, is the caller's business.
func Report(r types.ComparisonReport, nameA, nameB string) string {
	var b strings.Builder

	b.WriteString("Document Comparison Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "  A: %s\n  B: %s\n\n", nameA, nameB)

	fmt.Fprintf(&b, "Bytes (sha256):       %s\n", Verdict(r.SHA256.Identical))
	if !r.SHA256.Identical {
		fmt.Fprintf(&b, "  A %s\n  B %s\n", r.SHA256.FileA, r.SHA256.FileB)
	} else {
		fmt.Fprintf(&b, "  %s\n", r.SHA256.FileA)
	}

	fmt.Fprintf(&b, "Text layer:           %s\n", Verdict(r.TextHash.Identical))
	if !r.TextHash.Identical {
		fmt.Fprintf(&b, "  A %s (%d chars)\n  B %s (%d chars)\n",
			r.TextHash.FileA, len([]rune(r.TextA)), r.TextHash.FileB, len([]rune(r.TextB)))
	}

	v := r.Visual
	fmt.Fprintf(&b, "Visual (pHash):       %s\n", Verdict(v.SameVisual))
	fmt.Fprintf(&b, "  pages %d vs %d, compared %d, matched %d, ratio %.3f (trailing pages: %s)\n",
		v.PagesA, v.PagesB, v.ComparedPages, v.Matches, v.MatchRatio, v.TrailingPages)

	if mismatched := Mismatches(v); len(mismatched) > 0 {
		b.WriteString("\nMismatched pages:\n")
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, p := range mismatched {
			fmt.Fprintf(&b, "  page %d: distance %d\n", p.Page, p.Distance)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	b.WriteString("\n")
	if r.Same() {
		b.WriteString("Result: documents are the same on every axis\n")
	} else {
		b.WriteString("Result: documents differ\n")
	}
	return b.String()
}

// Mismatches returns the compared pages that exceeded the distance limit.
func Mismatches(v types.VisualResult) []types.PageMatch {
	var out []types.PageMatch
	for _, p := range v.Pages {
		if !p.Match {
			out = append(out, p)
		}
	}
	return out
}

// Fingerprint renders a single document's fingerprint.
func Fingerprint(fp types.DocumentFingerprint, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", name)
	fmt.Fprintf(&b, "  sha256     %s\n", fp.SHA256)
	fmt.Fprintf(&b, "  text_hash  %s\n", fp.TextHash)
	fmt.Fprintf(&b, "  pages      %d (hash size %d)\n", fp.Pages, fp.HashSize)
	for i, h := range fp.PageHashes {
		fmt.Fprintf(&b, "  %4d  %s\n", i+1, h)
	}
	return b.String()
}
