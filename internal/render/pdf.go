package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Metadata labels the document header.
type Metadata struct {
	Title  string
	Author string
	Course string
	Date   time.Time
}

// Renderer converts draft text into a paginated document. Render must not
// have side effects; the lifecycle calls it with a snapshot of the content.
type Renderer interface {
	Render(ctx context.Context, content string, meta Metadata) ([]byte, string, error)
}

// PDFRenderer renders markdown-ish draft text to PDF: a centered title,
// author/course/date lines, then paragraphs with #/##/### headings sized
// down progressively.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

// Render returns the PDF bytes and the content type.
func (r *PDFRenderer) Render(ctx context.Context, content string, meta Metadata) ([]byte, string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := meta.Title
	if title == "" {
		title = "Document"
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "C", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	if meta.Author != "" {
		pdf.MultiCell(0, 5, tr("Author: "+meta.Author), "", "L", false)
	}
	if meta.Course != "" {
		pdf.MultiCell(0, 5, tr("Course: "+meta.Course), "", "L", false)
	}
	if !meta.Date.IsZero() {
		pdf.MultiCell(0, 5, tr("Date: "+meta.Date.Format("January 2, 2006")), "", "L", false)
	}
	pdf.Ln(4)

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		switch {
		case strings.HasPrefix(para, "### "):
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 6, tr(strings.TrimPrefix(para, "### ")), "", "L", false)
		case strings.HasPrefix(para, "## "):
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, tr(strings.TrimPrefix(para, "## ")), "", "L", false)
		case strings.HasPrefix(para, "# "):
			pdf.SetFont("Helvetica", "B", 15)
			pdf.MultiCell(0, 8, tr(strings.TrimPrefix(para, "# ")), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 5.5, tr(para), "", "L", false)
		}
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), "application/pdf", nil
}
