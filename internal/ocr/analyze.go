package ocr

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageDiagnostic describes one page for the analyze report.
type PageDiagnostic struct {
	Page          int    `json:"page"`
	HasTextLayer  bool   `json:"has_text_layer"`
	ReadableChars int    `json:"readable_chars"`
	Preview       string `json:"preview"`
}

// Diagnostic is the outcome of Analyze: what each page looks like and which
// tier the engine would pick for the document.
type Diagnostic struct {
	PageCount       int              `json:"page_count"`
	HasImageStreams bool             `json:"has_image_streams"`
	Pages           []PageDiagnostic `json:"pages"`
	Recommendation  string           `json:"recommendation"`
}

// Analyze inspects a PDF without running the full extraction.
func (e *Engine) Analyze(data []byte) (*Diagnostic, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, ErrInvalidPDF
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pdfCtx.PageCount == 0 {
		return nil, ErrEmptyPDF
	}

	diag := &Diagnostic{
		PageCount:       pdfCtx.PageCount,
		HasImageStreams: detectImageStreams(pdfCtx),
	}

	embedded := extractEmbeddedText(data, pdfCtx.PageCount)
	textPages := 0
	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		text := embedded[pageNum-1]
		readable := countReadable(text)
		hasLayer := readable >= e.MinCharsPerPage
		if hasLayer {
			textPages++
		}
		diag.Pages = append(diag.Pages, PageDiagnostic{
			Page:          pageNum,
			HasTextLayer:  hasLayer,
			ReadableChars: readable,
			Preview:       preview(text, 200),
		})
	}

	switch {
	case textPages == pdfCtx.PageCount:
		diag.Recommendation = "embedded text layer on every page; no OCR needed"
	case textPages == 0 && diag.HasImageStreams:
		diag.Recommendation = "scanned document; raster OCR required on every page"
	default:
		diag.Recommendation = fmt.Sprintf("mixed: %d/%d pages need raster OCR", pdfCtx.PageCount-textPages, pdfCtx.PageCount)
	}

	return diag, nil
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
