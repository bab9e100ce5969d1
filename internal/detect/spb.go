package detect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maxim/sportrank/internal/registry"
)

// DocGroup is an order together with its attachments. The Petersburg portal
// publishes each order as a document card whose first PDF is the order body
// and the rest are appendices with the actual name lists.
type DocGroup struct {
	Main        DocLink   `json:"main"`
	Attachments []DocLink `json:"attachments,omitempty"`
}

// GroupAttachments parses a document-listing page into order groups. A card
// is any element that carries its own heading and one or more PDF links;
// cards without a PDF are skipped.
func GroupAttachments(html, pageURL string) ([]DocGroup, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var groups []DocGroup
	doc.Find("div.doc, div.document, article, li.document-item, tr").Each(func(_ int, card *goquery.Selection) {
		var links []DocLink
		card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.Contains(strings.ToLower(href), ".pdf") {
				return
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			links = append(links, DocLink{
				URL:   base.ResolveReference(ref).String(),
				Title: strings.Join(strings.Fields(a.Text()), " "),
			})
		})
		if len(links) == 0 {
			return
		}

		group := DocGroup{Main: links[0]}
		if title := cardTitle(card); title != "" {
			group.Main.Title = title
		}
		for _, link := range links[1:] {
			// Appendices name the lists; keep the order title as context.
			if link.Title == "" {
				link.Title = group.Main.Title
			}
			group.Attachments = append(group.Attachments, link)
		}
		groups = append(groups, group)
	})
	return dedupeGroups(groups), nil
}

// extractDocumentCards flattens the groups of a card-style listing into a
// link list: each order body first, then its appendices, which carry the
// actual name lists. Order attributes are read from the card title.
func extractDocumentCards(html, pageURL string, cfg registry.DetectConfig) ([]DocLink, error) {
	groups, err := GroupAttachments(html, pageURL)
	if err != nil {
		return nil, err
	}
	dateRe := compileOptional(cfg.OrderDateRegex)
	numberRe := compileOptional(cfg.OrderNumberRegex)

	var links []DocLink
	for _, g := range groups {
		if dateRe != nil {
			g.Main.OrderDate = firstGroup(dateRe, g.Main.Title)
		}
		if numberRe != nil {
			g.Main.OrderNumber = firstGroup(numberRe, g.Main.Title)
		}
		g.Main.OrderType = detectOrderType(g.Main.Title)
		links = append(links, g.Main)
		for _, att := range g.Attachments {
			att.OrderDate = g.Main.OrderDate
			att.OrderNumber = g.Main.OrderNumber
			att.OrderType = g.Main.OrderType
			links = append(links, att)
		}
	}
	return links, nil
}

func cardTitle(card *goquery.Selection) string {
	for _, sel := range []string{"h1", "h2", "h3", "h4", ".title", ".doc-title"} {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

// dedupeGroups drops groups whose main URL repeats. Nested containers can
// make the same card match twice.
func dedupeGroups(groups []DocGroup) []DocGroup {
	seen := make(map[string]bool)
	var out []DocGroup
	for _, g := range groups {
		if seen[g.Main.URL] {
			continue
		}
		seen[g.Main.URL] = true
		out = append(out, g)
	}
	return out
}
