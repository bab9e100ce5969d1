package detect

import (
	"context"
	"fmt"
	"html"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/maxim/sportrank/internal/fetch"
	"github.com/maxim/sportrank/internal/registry"
)

// Check outcomes.
const (
	StatusUnchanged = "UNCHANGED"
	StatusNewDocs   = "NEW_DOCS"
	StatusChanged   = "CHANGED"
	StatusError     = "ERROR"
	StatusSkipped   = "SKIPPED"
)

// CheckResult is the outcome of checking one source.
type CheckResult struct {
	SourceCode string    `json:"source_code"`
	Status     string    `json:"status"`
	PageHash   string    `json:"page_hash,omitempty"`
	ETag       string    `json:"etag,omitempty"` // from the first listing page
	NewDocs    []DocLink `json:"new_docs,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	Err        error     `json:"-"`
}

// State is what the detector needs to remember between runs.
type State interface {
	// LastPageHash returns the fingerprint stored for the source, "" when
	// the source has never been checked.
	LastPageHash(ctx context.Context, sourceCode string) (string, error)
	// KnownDocument reports whether a page or file URL was already ingested.
	KnownDocument(ctx context.Context, url string) (bool, error)
}

var titlePolicy = bluemonday.StrictPolicy()

// Detector checks registered sources for new documents. Plain sources are
// crawled with a collector over the guarded transport; protected sources go
// through the headless browser.
type Detector struct {
	Registry *registry.Registry
	Browser  *fetch.BrowserFetcher
	State    State
}

func NewDetector(reg *registry.Registry, browser *fetch.BrowserFetcher, state State) *Detector {
	return &Detector{Registry: reg, Browser: browser, State: state}
}

// CheckSource fetches a source's listing pages, fingerprints them and
// returns the documents not seen before.
func (d *Detector) CheckSource(ctx context.Context, src registry.SourceConfig) CheckResult {
	result := CheckResult{SourceCode: src.Code, CheckedAt: time.Now()}
	if !src.Active {
		result.Status = StatusSkipped
		return result
	}
	// Red-risk sources are processed manually, never polled.
	if src.RiskClass == "red" {
		log.Printf("[detect] %s: red risk class, manual processing only", src.Code)
		result.Status = StatusSkipped
		return result
	}

	pages := expandPages(src.Detect)
	var bodies []string
	for i, pageURL := range pages {
		if i > 0 {
			select {
			case <-ctx.Done():
				result.Status = StatusError
				result.Err = ctx.Err()
				return result
			case <-time.After(paginationPause()):
			}
		}
		body, etag, err := d.fetchListing(ctx, pageURL, src)
		if err != nil {
			result.Status = StatusError
			result.Err = fmt.Errorf("fetch %s: %w", pageURL, err)
			return result
		}
		if i == 0 {
			result.ETag = etag
		}
		bodies = append(bodies, body)
	}

	result.PageHash = ContentHash(strings.Join(bodies, "\n"))

	lastHash := ""
	if d.State != nil {
		var err error
		lastHash, err = d.State.LastPageHash(ctx, src.Code)
		if err != nil {
			result.Status = StatusError
			result.Err = fmt.Errorf("load state: %w", err)
			return result
		}
	}
	if lastHash != "" && lastHash == result.PageHash {
		result.Status = StatusUnchanged
		return result
	}

	for i, body := range bodies {
		links, err := ExtractLinks(body, pages[i], src.Detect)
		if err != nil {
			result.Status = StatusError
			result.Err = err
			return result
		}
		for _, link := range links {
			link.Title = cleanTitle(link.Title)
			known := false
			if d.State != nil {
				known, err = d.State.KnownDocument(ctx, link.URL)
				if err != nil {
					result.Status = StatusError
					result.Err = fmt.Errorf("check known: %w", err)
					return result
				}
			}
			if known {
				log.Printf("[detect] %s: known document %s", src.Code, link.URL)
				continue
			}
			result.NewDocs = append(result.NewDocs, link)
		}
	}

	if len(result.NewDocs) > 0 {
		result.Status = StatusNewDocs
	} else {
		result.Status = StatusChanged
	}
	return result
}

// CheckAll checks every active source with a polite pause between them.
func (d *Detector) CheckAll(ctx context.Context) []CheckResult {
	var results []CheckResult
	for i, src := range d.Registry.Active() {
		if i > 0 {
			pause := 2*time.Second + time.Duration(rand.Int63n(int64(3*time.Second)))
			select {
			case <-ctx.Done():
				return results
			case <-time.After(pause):
			}
		}
		res := d.CheckSource(ctx, src)
		if res.Err != nil {
			log.Printf("[detect] %s: %v", src.Code, res.Err)
		} else {
			log.Printf("[detect] %s: %s (%d new)", src.Code, res.Status, len(res.NewDocs))
		}
		results = append(results, res)
	}
	return results
}

// paginationPause is the polite gap between listing pages of one source:
// 1.5-3 seconds.
func paginationPause() time.Duration {
	return 1500*time.Millisecond + time.Duration(rand.Int63n(int64(1500*time.Millisecond)))
}

func (d *Detector) fetchListing(ctx context.Context, pageURL string, src registry.SourceConfig) (string, string, error) {
	if src.Download.Method == "browser" {
		if d.Browser == nil {
			return "", "", fmt.Errorf("source %s needs a browser fetcher", src.Code)
		}
		resp, err := d.Browser.FetchPage(ctx, pageURL, src.Download)
		if err != nil {
			return "", "", err
		}
		return string(resp.Body), resp.ETag, nil
	}
	return d.crawlPage(ctx, pageURL, src)
}

// crawlPage fetches one listing page with a collector, returning the body
// and the response ETag.
func (d *Detector) crawlPage(ctx context.Context, pageURL string, src registry.SourceConfig) (string, string, error) {
	if err := fetch.ValidateURL(pageURL, d.Registry); err != nil {
		return "", "", err
	}

	timeout := time.Duration(src.Download.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(fetch.SafeTransport())
	c.SetRequestTimeout(timeout)

	var body, etag string
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.5")
		if src.Download.BaseURL != "" {
			r.Headers.Set("Referer", src.Download.BaseURL)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
		etag = r.Headers.Get("ETag")
	})

	if err := c.Visit(pageURL); err != nil {
		return "", "", fmt.Errorf("visit: %w", err)
	}
	c.Wait()

	if body == "" {
		return "", "", fmt.Errorf("empty response from %s", pageURL)
	}
	if fetch.IsAntibotPage(body) {
		return "", "", fetch.ErrAntibotDetected
	}
	return body, etag, nil
}

// expandPages produces the listing URLs to visit: each configured list URL
// plus its pagination template expanded for pages 2..max_pages.
func expandPages(cfg registry.DetectConfig) []string {
	var pages []string
	for _, listURL := range cfg.ListURLs {
		pages = append(pages, listURL)
		if cfg.Pagination == "" || cfg.MaxPages <= 1 {
			continue
		}
		for n := 2; n <= cfg.MaxPages; n++ {
			suffix := strings.ReplaceAll(cfg.Pagination, "{n}", strconv.Itoa(n))
			pages = append(pages, listURL+suffix)
		}
	}
	return pages
}

func cleanTitle(title string) string {
	return strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(title)))
}
