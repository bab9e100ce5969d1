package detect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/maxim/sportrank/internal/registry"
)

// contextWindow is how many bytes around a matched link are searched for the
// document title, order number and order date.
const contextWindow = 500

var tagRe = regexp.MustCompile(`<[^>]+>`)

// DocLink is one document discovered on a listing page.
type DocLink struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	OrderNumber string `json:"order_number"`
	OrderDate   string `json:"order_date"`
	OrderType   string `json:"order_type,omitempty"` // order | directive, "" when the wording is silent
}

// detectOrderType classifies a document by the wording around its link.
// Portals that mix приказы and распоряжения on one listing need
// per-document typing.
func detectOrderType(context string) string {
	lower := strings.ToLower(context)
	if strings.Contains(lower, "распоряжени") {
		return "directive"
	}
	if strings.Contains(lower, "приказ") {
		return "order"
	}
	return ""
}

// ExtractLinks pulls document links out of listing HTML according to the
// source's detect config: regex scan for pdf_portal/html_table pages,
// embedded-variable parse for json_embed pages, card grouping for
// document_cards pages.
func ExtractLinks(html, pageURL string, cfg registry.DetectConfig) ([]DocLink, error) {
	switch cfg.SourceType {
	case "json_embed":
		return extractJSONEmbed(html, pageURL, cfg)
	case "document_cards":
		return extractDocumentCards(html, pageURL, cfg)
	}
	return extractByRegex(html, pageURL, cfg)
}

func extractByRegex(html, pageURL string, cfg registry.DetectConfig) ([]DocLink, error) {
	linkRe, err := regexp.Compile(cfg.LinkRegex)
	if err != nil {
		return nil, fmt.Errorf("link_regex: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	titleRe := compileOptional(cfg.TitleRegex)
	dateRe := compileOptional(cfg.OrderDateRegex)
	numberRe := compileOptional(cfg.OrderNumberRegex)

	var links []DocLink
	seen := make(map[string]bool)
	for _, loc := range linkRe.FindAllStringSubmatchIndex(html, -1) {
		if len(loc) < 4 || loc[2] < 0 {
			continue
		}
		href := html[loc[2]:loc[3]]
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			continue
		}
		seen[abs] = true

		// The surrounding markup usually carries the order attributes.
		start := loc[0] - contextWindow
		if start < 0 {
			start = 0
		}
		end := loc[1] + contextWindow
		if end > len(html) {
			end = len(html)
		}
		context := html[start:end]

		link := DocLink{URL: abs}
		if titleRe != nil {
			link.Title = firstGroup(titleRe, context)
		}
		if link.Title == "" {
			link.Title = anchorText(html, loc[1])
		}
		if dateRe != nil {
			link.OrderDate = firstGroup(dateRe, context)
		}
		if numberRe != nil {
			link.OrderNumber = firstGroup(numberRe, context)
		}
		link.OrderType = detectOrderType(context)
		links = append(links, link)
	}
	return links, nil
}

func compileOptional(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}

// anchorText returns the visible text immediately after a matched href,
// which on most portals is the anchor body with the document title.
func anchorText(html string, from int) string {
	rest := html[from:]
	if len(rest) > contextWindow {
		rest = rest[:contextWindow]
	}
	if close := strings.Index(rest, ">"); close >= 0 {
		rest = rest[close+1:]
	}
	if open := strings.Index(rest, "</a>"); open >= 0 {
		rest = rest[:open]
	}
	text := strings.TrimSpace(tagRe.ReplaceAllString(rest, " "))
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) > 300 {
		runes := []rune(text)
		text = string(runes[:300])
	}
	return text
}

// extractJSONEmbed parses a JavaScript variable assignment embedded in the
// page ("var $obj = {...};") and collects the document entries inside it.
func extractJSONEmbed(html, pageURL string, cfg registry.DetectConfig) ([]DocLink, error) {
	if cfg.JSVar == "" {
		return nil, fmt.Errorf("json_embed source without js_var")
	}
	body, err := locateAssignment(html, cfg.JSVar)
	if err != nil {
		return nil, err
	}
	var root interface{}
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cfg.JSVar, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []DocLink
	walkJSON(root, func(obj map[string]interface{}) {
		link := docFromObject(obj, base)
		if link != nil {
			links = append(links, *link)
		}
	})
	return links, nil
}

// locateAssignment finds the JSON literal assigned to the named variable by
// balancing braces or brackets from the first opener after "=".
func locateAssignment(html, name string) (string, error) {
	idx := strings.Index(html, name)
	if idx < 0 {
		return "", fmt.Errorf("variable %s not found in page", name)
	}
	rest := html[idx+len(name):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return "", fmt.Errorf("no assignment to %s", name)
	}
	rest = strings.TrimSpace(rest[eq+1:])
	if rest == "" || (rest[0] != '{' && rest[0] != '[') {
		return "", fmt.Errorf("%s is not assigned an object literal", name)
	}

	open, closeCh := rest[0], byte('}')
	if open == '[' {
		closeCh = ']'
	}
	depth := 0
	inString := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				return rest[:i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced literal assigned to %s", name)
}

func walkJSON(v interface{}, visit func(map[string]interface{})) {
	switch t := v.(type) {
	case map[string]interface{}:
		visit(t)
		for _, child := range t {
			walkJSON(child, visit)
		}
	case []interface{}:
		for _, child := range t {
			walkJSON(child, visit)
		}
	}
}

func docFromObject(obj map[string]interface{}, base *url.URL) *DocLink {
	fileURL := stringField(obj, "file", "url", "href", "link", "path")
	if fileURL == "" || !strings.Contains(strings.ToLower(fileURL), ".pdf") {
		return nil
	}
	ref, err := url.Parse(fileURL)
	if err != nil {
		return nil
	}
	return &DocLink{
		URL:         base.ResolveReference(ref).String(),
		Title:       stringField(obj, "title", "name", "caption"),
		OrderNumber: stringField(obj, "number", "order_number"),
		OrderDate:   stringField(obj, "date", "order_date"),
	}
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
