// Package pdftest builds small, valid PDF files in memory for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one generated page. Lines are drawn top-down in Helvetica;
// Boxes are filled gray rectangles given as x, y, w, h in points.
type Page struct {
	Lines []string
	Boxes [][4]float64
}

// Text is shorthand for a page holding a single line.
func Text(s string) Page {
	return Page{Lines: []string{s}}
}

// Build returns a US Letter PDF with one page per entry.
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	const firstPage = 4
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, p := range pages {
		content := contentStream(p)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", firstPage+2*i+1))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func contentStream(p Page) string {
	var b strings.Builder
	for _, box := range p.Boxes {
		fmt.Fprintf(&b, "0.3 g %.2f %.2f %.2f %.2f re f\n", box[0], box[1], box[2], box[3])
	}
	if len(p.Lines) > 0 {
		b.WriteString("0 g BT /F1 14 Tf 16 TL 72 720 Td\n")
		for i, ln := range p.Lines {
			if i > 0 {
				b.WriteString("T*\n")
			}
			fmt.Fprintf(&b, "(%s) Tj\n", escape(ln))
		}
		b.WriteString("ET")
	}
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
