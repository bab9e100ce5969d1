package fetch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/semaphore"

	"github.com/maxim/sportrank/internal/registry"
)

// Challenge-page markers seen on the protected portals.
var antibotMarkers = []string{
	"servicepipe",
	"ddos-guard",
	"cloudflare",
	"checking your browser",
	"проверка браузера",
	"just a moment",
	"enable javascript",
}

// IsAntibotPage reports whether HTML looks like an anti-bot interstitial
// rather than portal content.
func IsAntibotPage(html string) bool {
	if len(html) > 20000 {
		// Real listing pages are large; challenges are small shells.
		return false
	}
	lower := strings.ToLower(html)
	for _, marker := range antibotMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BrowserFetcher drives a headless browser for sources behind anti-bot
// walls. At most two pages render concurrently; the browser launches
// lazily on first use.
type BrowserFetcher struct {
	hosts HostChecker
	sem   *semaphore.Weighted

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserFetcher(hosts HostChecker) *BrowserFetcher {
	return &BrowserFetcher{
		hosts: hosts,
		sem:   semaphore.NewWeighted(2),
	}
}

func (f *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL, err := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.browser = browser
	return browser, nil
}

// Close shuts the browser down. Safe to call without a prior fetch.
func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			log.Printf("[fetch] browser close: %v", err)
		}
		f.browser = nil
	}
}

// FetchPage renders a listing page and returns its HTML. The source config
// supplies the wait selector and the human-looking delay range.
func (f *BrowserFetcher) FetchPage(ctx context.Context, pageURL string, cfg registry.DownloadConfig) (*Response, error) {
	if err := ValidateURL(pageURL, f.hosts); err != nil {
		return nil, err
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	sleepHuman(ctx, cfg)

	if cfg.WaitSelector != "" {
		if _, err := page.Timeout(20 * time.Second).Element(cfg.WaitSelector); err != nil {
			log.Printf("[fetch] wait selector %q not found on %s: %v", cfg.WaitSelector, pageURL, err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	if IsAntibotPage(html) {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, ErrAntibotDetected)
	}

	finalURL := pageURL
	if info, err := page.Info(); err == nil {
		finalURL = info.URL
	}
	return &Response{
		Body:        []byte(html),
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		FinalURL:    finalURL,
		FetchedAt:   time.Now(),
	}, nil
}

// DownloadPDF renders a document page, locates the PDF it embeds or links,
// and downloads it over HTTP reusing the browser session's cookies. When the
// target URL is itself a PDF the in-page discovery is skipped.
func (f *BrowserFetcher) DownloadPDF(ctx context.Context, pageURL string, cfg registry.DownloadConfig) ([]byte, error) {
	if err := ValidateURL(pageURL, f.hosts); err != nil {
		return nil, err
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	// Warm up on the portal home page so the challenge cookie is issued
	// before the document request.
	if cfg.BaseURL != "" {
		if err := page.Navigate(cfg.BaseURL); err == nil {
			_ = page.WaitLoad()
			sleepHuman(ctx, cfg)
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	sleepHuman(ctx, cfg)

	pdfURL := pageURL
	if !strings.HasSuffix(strings.ToLower(pageURL), ".pdf") {
		html, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("read page html: %w", err)
		}
		if IsAntibotPage(html) {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, ErrAntibotDetected)
		}
		found, err := findPDFLink(html, pageURL)
		if err != nil {
			return nil, err
		}
		pdfURL = found
	}

	data, err := f.downloadWithCookies(ctx, page, pdfURL, pageURL)
	if err != nil {
		return nil, err
	}
	if !isPDF(data) {
		return nil, fmt.Errorf("download %s: %w", pdfURL, ErrNotPDF)
	}
	return data, nil
}

// findPDFLink scans a rendered page for the document it presents: direct
// .pdf anchors first, then iframe/embed viewers, then portal media paths.
func findPDFLink(html, baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	for _, re := range pdfLinkRes {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			href := strings.TrimSpace(m[1])
			if href == "" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref).String()
			if strings.Contains(strings.ToLower(resolved), ".pdf") ||
				strings.Contains(resolved, "/media/docs/") {
				return resolved, nil
			}
		}
	}
	return "", ErrPDFNotFound
}

// downloadWithCookies fetches a URL over plain HTTP with the browser's
// cookies, so the challenge clearance carries over.
func (f *BrowserFetcher) downloadWithCookies(ctx context.Context, page *rod.Page, rawURL, referer string) ([]byte, error) {
	if err := ValidateURL(rawURL, f.hosts); err != nil {
		return nil, err
	}

	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[0])
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.5")
	req.Header.Set("Referer", referer)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	client := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: safeDialContext,
		},
		CheckRedirect: safeCheckRedirect,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status code %d", rawURL, resp.StatusCode)
	}
	return readLimited(resp)
}

func sleepHuman(ctx context.Context, cfg registry.DownloadConfig) {
	minSec, maxSec := cfg.DelayMinSec, cfg.DelayMaxSec
	if minSec <= 0 {
		minSec = 1
	}
	if maxSec < minSec {
		maxSec = minSec
	}
	seconds := minSec + rand.Float64()*(maxSec-minSec)
	delay := time.Duration(seconds * float64(time.Second))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
