package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

// Rasterizer shells out to pdftoppm for rendering and tesseract for OCR.
// Both binaries are resolved from PATH once; when either is missing the
// raster tier is reported unavailable and the engine degrades.
type Rasterizer struct {
	PdftoppmPath  string
	TesseractPath string
	Lang          string // tesseract language pack, "rus+eng"

	once      sync.Once
	available bool
}

func NewRasterizer() *Rasterizer {
	return &Rasterizer{Lang: "rus+eng"}
}

// Available reports whether both external tools are present.
func (r *Rasterizer) Available() bool {
	r.once.Do(func() {
		if r.PdftoppmPath == "" {
			r.PdftoppmPath, _ = exec.LookPath("pdftoppm")
		}
		if r.TesseractPath == "" {
			r.TesseractPath, _ = exec.LookPath("tesseract")
		}
		r.available = r.PdftoppmPath != "" && r.TesseractPath != ""
	})
	return r.available
}

// RasterDoc is a PDF staged on disk for page rendering.
type RasterDoc struct {
	r       *Rasterizer
	dir     string
	pdfPath string
	dpi     int
}

// Open writes the PDF to a temp directory for rendering.
func (r *Rasterizer) Open(data []byte, dpi int) (*RasterDoc, error) {
	if !r.Available() {
		return nil, fmt.Errorf("pdftoppm or tesseract not found in PATH")
	}

	dir, err := os.MkdirTemp("", "sportrank-ocr-")
	if err != nil {
		return nil, err
	}
	pdfPath := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &RasterDoc{r: r, dir: dir, pdfPath: pdfPath, dpi: dpi}, nil
}

func (d *RasterDoc) Close() error {
	return os.RemoveAll(d.dir)
}

// RenderPage rasterizes one page (1-based) to grayscale PNG. pdftoppm's
// -gray output with the scan DPI stands in for the grayscale/contrast
// preprocessing chain; tesseract applies its own Otsu binarization.
func (d *RasterDoc) RenderPage(ctx context.Context, pageNum int) ([]byte, error) {
	prefix := filepath.Join(d.dir, fmt.Sprintf("page-%d", pageNum))
	cmd := exec.CommandContext(ctx, d.r.PdftoppmPath,
		"-png", "-gray",
		"-r", strconv.Itoa(d.dpi),
		"-f", strconv.Itoa(pageNum),
		"-l", strconv.Itoa(pageNum),
		d.pdfPath, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, string(out))
	}

	// pdftoppm pads the page suffix depending on total page count.
	matches, _ := filepath.Glob(prefix + "*.png")
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for page %d", pageNum)
	}
	return os.ReadFile(matches[0])
}

// writeTempImage stages an image under dir with a unique name, so pages
// processed concurrently never overwrite each other.
func writeTempImage(dir string, png []byte) (string, error) {
	f, err := os.CreateTemp(dir, "ocr-*.png")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(png); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// OCRImage runs tesseract over a rendered page.
func (d *RasterDoc) OCRImage(ctx context.Context, png []byte) (string, error) {
	imgPath, err := writeTempImage(d.dir, png)
	if err != nil {
		return "", err
	}
	defer os.Remove(imgPath)

	cmd := exec.CommandContext(ctx, d.r.TesseractPath,
		imgPath, "stdout",
		"-l", d.r.Lang,
		"--psm", "6",
	)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}
