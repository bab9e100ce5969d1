// Package ocr extracts text from PDF byte streams through three tiers:
// embedded text layer, raster OCR, and a remote vision model. Each page gets
// the cheapest tier that produces readable text.
package ocr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// Extraction methods, in tier order.
const (
	MethodEmbedded  = "embedded"
	MethodTesseract = "tesseract"
	MethodVision    = "vision"
)

const (
	DefaultMinCharsPerPage  = 80
	DefaultMinReadableRatio = 0.70
	DefaultScanDPI          = 320
	DefaultMaxPages         = 200

	visionConfidence = 0.85
)

var (
	ErrInvalidPDF     = errors.New("not a PDF document")
	ErrEmptyPDF       = errors.New("PDF has no pages")
	ErrTooManyPages   = errors.New("PDF exceeds page limit")
	ErrAllPagesFailed = errors.New("no page produced text")
)

// PageResult is the outcome for a single page (1-based).
type PageResult struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	CharCount  int     `json:"char_count"`
}

// Result is the document-level outcome. Method is the modal per-page method;
// Confidence is the page average.
type Result struct {
	Text         string         `json:"text"`
	Method       string         `json:"method"`
	Confidence   float64        `json:"confidence"`
	PageCount    int            `json:"page_count"`
	Pages        []PageResult   `json:"pages"`
	FileHash     string         `json:"file_hash"`
	MethodCounts map[string]int `json:"method_counts"`
}

// Engine drives the tiered extraction. A nil Vision disables tier 3.
type Engine struct {
	MinCharsPerPage  int
	MinReadableRatio float64
	ScanDPI          int
	MaxPages         int
	RasterWorkers    int
	Raster           *Rasterizer
	Vision           *VisionOCR
}

// NewEngine returns an engine with the default thresholds. MAX_PDF_PAGES
// overrides the page limit.
func NewEngine(vision *VisionOCR) *Engine {
	return &Engine{
		MinCharsPerPage:  DefaultMinCharsPerPage,
		MinReadableRatio: DefaultMinReadableRatio,
		ScanDPI:          DefaultScanDPI,
		MaxPages:         pageLimit(),
		RasterWorkers:    2,
		Raster:           NewRasterizer(),
		Vision:           vision,
	}
}

func pageLimit() int {
	if v := os.Getenv("MAX_PDF_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("[ocr] ignoring invalid MAX_PDF_PAGES=%q", v)
	}
	return DefaultMaxPages
}

// Process runs the tiered extraction over PDF bytes.
func (e *Engine) Process(ctx context.Context, data []byte) (*Result, error) {
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
	if e.MaxPages > 0 && pdfCtx.PageCount > e.MaxPages {
		return nil, fmt.Errorf("%w: %d pages", ErrTooManyPages, pdfCtx.PageCount)
	}

	pages := make([]PageResult, 0, pdfCtx.PageCount)
	var needRaster []int

	// Tier 1: embedded text layer.
	embedded := extractEmbeddedText(data, pdfCtx.PageCount)
	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		text := embedded[pageNum-1]
		readable := countReadable(text)
		if readable >= e.MinCharsPerPage {
			conf := float64(readable) / float64(3*e.MinCharsPerPage)
			if conf > 1.0 {
				conf = 1.0
			}
			pages = append(pages, PageResult{
				Page: pageNum, Text: text, Method: MethodEmbedded,
				Confidence: round3(conf), CharCount: len([]rune(text)),
			})
			continue
		}
		needRaster = append(needRaster, pageNum)
	}

	// Tier 2: raster OCR off the hot path, bounded workers.
	var needVision []visionTask
	if len(needRaster) > 0 {
		rastered, visionTasks, err := e.rasterPass(ctx, data, needRaster)
		if err != nil {
			log.Printf("[ocr] raster pass degraded: %v", err)
		}
		pages = append(pages, rastered...)
		needVision = visionTasks
	}

	// Tier 3: vision model replaces same-page tesseract fallbacks.
	if e.Vision != nil && len(needVision) > 0 {
		for _, task := range needVision {
			text, err := e.Vision.RecognizePage(ctx, task.png)
			if err != nil {
				log.Printf("[ocr] vision failed for page %d: %v", task.page, err)
				continue
			}
			replaced := false
			for i := range pages {
				if pages[i].Page == task.page {
					pages[i] = PageResult{
						Page: task.page, Text: text, Method: MethodVision,
						Confidence: visionConfidence, CharCount: len([]rune(text)),
					}
					replaced = true
					break
				}
			}
			if !replaced {
				pages = append(pages, PageResult{
					Page: task.page, Text: text, Method: MethodVision,
					Confidence: visionConfidence, CharCount: len([]rune(text)),
				})
			}
		}
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })

	var textPages []string
	counts := make(map[string]int)
	sumConf := 0.0
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		textPages = append(textPages, p.Text)
		counts[p.Method]++
		sumConf += p.Confidence
	}
	if len(textPages) == 0 {
		return nil, ErrAllPagesFailed
	}

	dominant := ""
	for method, n := range counts {
		if dominant == "" || n > counts[dominant] {
			dominant = method
		}
	}

	hash := sha256.Sum256(data)

	return &Result{
		Text:         joinPages(textPages),
		Method:       dominant,
		Confidence:   round3(sumConf / float64(len(textPages))),
		PageCount:    pdfCtx.PageCount,
		Pages:        pages,
		FileHash:     hex.EncodeToString(hash[:]),
		MethodCounts: counts,
	}, nil
}

type visionTask struct {
	page int
	png  []byte
}

// rasterPass rasterizes and OCRs the given pages concurrently. Pages whose
// readable ratio stays below the threshold keep their low-confidence
// tesseract text and are queued for the vision tier.
func (e *Engine) rasterPass(ctx context.Context, data []byte, pageNums []int) ([]PageResult, []visionTask, error) {
	if e.Raster == nil || !e.Raster.Available() {
		return nil, nil, fmt.Errorf("raster tools unavailable")
	}

	doc, err := e.Raster.Open(data, e.ScanDPI)
	if err != nil {
		return nil, nil, err
	}
	defer doc.Close()

	type outcome struct {
		result PageResult
		vision *visionTask
	}
	results := make([]outcome, len(pageNums))

	g, gctx := errgroup.WithContext(ctx)
	workers := e.RasterWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, pageNum := range pageNums {
		g.Go(func() error {
			png, err := doc.RenderPage(gctx, pageNum)
			if err != nil {
				return fmt.Errorf("render page %d: %w", pageNum, err)
			}
			text, err := doc.OCRImage(gctx, png)
			if err != nil {
				return fmt.Errorf("ocr page %d: %w", pageNum, err)
			}

			ratio := readableRatio(text)
			if ratio >= e.MinReadableRatio {
				results[i] = outcome{result: PageResult{
					Page: pageNum, Text: text, Method: MethodTesseract,
					Confidence: round3(ratio * 0.9), CharCount: len([]rune(text)),
				}}
				return nil
			}

			results[i] = outcome{
				result: PageResult{
					Page: pageNum, Text: text, Method: MethodTesseract,
					Confidence: round3(ratio * 0.5), CharCount: len([]rune(text)),
				},
				vision: &visionTask{page: pageNum, png: png},
			}
			return nil
		})
	}

	err = g.Wait()

	var pages []PageResult
	var tasks []visionTask
	for _, o := range results {
		if o.result.Page == 0 {
			continue
		}
		pages = append(pages, o.result)
		if o.vision != nil {
			tasks = append(tasks, *o.vision)
		}
	}
	return pages, tasks, err
}

// detectImageStreams reports whether any page references an image XObject.
func detectImageStreams(pdfCtx *model.Context) bool {
	if pdfCtx.Optimize == nil {
		return false
	}
	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		if len(pdfcpu.ImageObjNrs(pdfCtx, pageNum)) > 0 {
			return true
		}
	}
	return false
}

func joinPages(pages []string) string {
	var b bytes.Buffer
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
