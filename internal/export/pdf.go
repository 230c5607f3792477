// Package export renders a decorated note into a PDF document. It walks the
// buffer's attribute spans after decoration, so the output mirrors the
// editor view: hidden syntax markers are omitted and resolved image
// attachments are embedded from their asset files.
package export

import (
	"fmt"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"inknote/pkg/markbuf"
)

const (
	pageMargin = 15.0
	imageWidth = 80.0
	ptToLineMM = 0.55
	minLineMM  = 5.0
)

// PDF writes the decorated buffer to path. The buffer must already be
// decorated; an undecorated buffer comes out as one plain-style run.
type PDF struct {
	Title string
}

func (p *PDF) Write(buf *markbuf.Buffer, path string) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.AddPage()

	if p.Title != "" {
		doc.SetFont("Helvetica", "B", 18)
		doc.SetTextColor(0x1F, 0x2A, 0x3C)
		doc.MultiCell(0, 9, p.Title, "", "L", false)
		doc.Ln(3)
	}

	text := buf.Bytes()
	for _, span := range buf.Spans() {
		a := span.Attr
		if a.Hidden {
			continue
		}
		chunk := string(text[span.Start:span.End])
		if a.Image != "" {
			writeImage(doc, a.Image)
			continue
		}
		writeRun(doc, chunk, a)
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export: write pdf %s: %w", path, err)
	}
	return nil
}

func writeRun(doc *fpdf.Fpdf, chunk string, a markbuf.Attr) {
	family := "Helvetica"
	if a.FontFamily == markbuf.FontMono {
		family = "Courier"
	}
	doc.SetFont(family, styleString(a), float64(a.FontSizePt))
	r, g, b := splitRGB(a.ColorRGBA)
	doc.SetTextColor(r, g, b)

	lineHt := float64(a.FontSizePt) * ptToLineMM
	if lineHt < minLineMM {
		lineHt = minLineMM
	}
	// indentation is expressed as left offset on the first write of a line
	if a.Indent > 0 && doc.GetX() <= pageMargin {
		doc.SetX(pageMargin + float64(a.Indent)*6)
	}
	doc.Write(lineHt, strings.ReplaceAll(chunk, "\r\n", "\n"))
}

func writeImage(doc *fpdf.Fpdf, path string) {
	doc.Ln(2)
	opts := fpdf.ImageOptions{ImageType: "", ReadDpi: true}
	doc.ImageOptions(path, doc.GetX(), doc.GetY(), imageWidth, 0, true, opts, 0, "")
	doc.Ln(2)
}

func styleString(a markbuf.Attr) string {
	var s strings.Builder
	if a.Bold {
		s.WriteByte('B')
	}
	if a.Italic {
		s.WriteByte('I')
	}
	if a.Underline {
		s.WriteByte('U')
	}
	if a.Strike {
		s.WriteByte('S')
	}
	return s.String()
}

func splitRGB(rgba uint32) (int, int, int) {
	return int(rgba >> 24 & 0xFF), int(rgba >> 16 & 0xFF), int(rgba >> 8 & 0xFF)
}
