package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/maxim/sportrank/internal/registry"
)

// In-page PDF references in descending preference: anchors, then viewer
// frames and embeds.
var pdfLinkRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<a[^>]+href=["']([^"']*\.pdf[^"']*)["']`),
	regexp.MustCompile(`(?i)<iframe[^>]+src=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<embed[^>]+src=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<a[^>]+href=["']([^"']*/media/docs/[^"']*)["']`),
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

func readLimited(resp *http.Response) ([]byte, error) {
	return readCapped(resp.Body)
}

// FileHash is the identity of a downloaded document.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Downloader picks the HTTP or browser path per source and validates that
// what came back is a PDF.
type Downloader struct {
	HTTP    *HTTPFetcher
	Browser *BrowserFetcher
	Dir     string // storage directory for downloaded files
}

func NewDownloader(hosts HostChecker, dir string) *Downloader {
	return &Downloader{
		HTTP:    NewHTTPFetcher(hosts),
		Browser: NewBrowserFetcher(hosts),
		Dir:     dir,
	}
}

// Download fetches one document for a source. Browser sources go through
// the headless path; everything else is a plain GET with retries.
func (d *Downloader) Download(ctx context.Context, src registry.SourceConfig, fileURL string) ([]byte, error) {
	if src.Download.Method == "browser" {
		return d.Browser.DownloadPDF(ctx, fileURL, src.Download)
	}

	resp, err := d.HTTP.Fetch(ctx, Request{
		URL:        fileURL,
		Referer:    src.Download.BaseURL,
		MaxRetries: src.Download.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if !isPDF(resp.Body) {
		if IsAntibotPage(string(resp.Body)) {
			return nil, nonPDFError(fileURL, resp.Body)
		}
		// Some portals link an HTML viewer page instead of the file.
		if found, ferr := findPDFLink(string(resp.Body), resp.FinalURL); ferr == nil {
			inner, ierr := d.HTTP.Fetch(ctx, Request{URL: found, Referer: fileURL})
			if ierr != nil {
				return nil, ierr
			}
			if isPDF(inner.Body) {
				return inner.Body, nil
			}
			return nil, nonPDFError(found, inner.Body)
		}
		return nil, nonPDFError(fileURL, resp.Body)
	}
	return resp.Body, nil
}

// nonPDFError classifies a body that failed the PDF magic check: an
// anti-bot interstitial is a distinct failure from a plain HTML page,
// because it means the source needs the browser path.
func nonPDFError(fileURL string, body []byte) error {
	if IsAntibotPage(string(body)) {
		return fmt.Errorf("download %s: %w", fileURL, ErrAntibotDetected)
	}
	return fmt.Errorf("download %s: %w", fileURL, ErrNotPDF)
}

// Save writes a document under its content hash and returns the path.
// Re-saving the same bytes is a no-op.
func (d *Downloader) Save(data []byte) (string, error) {
	if d.Dir == "" {
		return "", fmt.Errorf("no storage directory configured")
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	name := FileHash(data)[:16] + ".pdf"
	path := filepath.Join(d.Dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Close releases the browser if it was launched.
func (d *Downloader) Close() {
	if d.Browser != nil {
		d.Browser.Close()
	}
}
