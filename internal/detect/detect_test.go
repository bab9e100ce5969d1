package detect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maxim/sportrank/internal/registry"
)

func TestContentHashStable(t *testing.T) {
	page := `<html><body><a href="/doc1.pdf">Приказ № 15</a></body></html>`
	if ContentHash(page) != ContentHash(page) {
		t.Fatal("hash not deterministic")
	}
}

func TestContentHashIgnoresVolatileParts(t *testing.T) {
	a := `<html><head><script>var t=123;</script><style>.x{}</style></head>
		<body data-csrf-token="abc123"><!-- build 42 --><a href="/doc1.pdf">Приказ</a></body></html>`
	b := `<html><head><script>var t=999;</script><style>.y{}</style></head>
		<body data-csrf-token="zzz999"><!-- build 43 --><a href="/doc1.pdf">Приказ</a></body></html>`
	if ContentHash(a) != ContentHash(b) {
		t.Error("volatile markup changed the fingerprint")
	}

	c := strings.Replace(a, "/doc1.pdf", "/doc2.pdf", 1)
	if ContentHash(a) == ContentHash(c) {
		t.Error("content change did not change the fingerprint")
	}
}

func TestContentHashCollapsesWhitespace(t *testing.T) {
	a := `<div>Приказ   № 15</div>`
	b := "<div>Приказ \n\t № 15</div>"
	if ContentHash(a) != ContentHash(b) {
		t.Error("whitespace layout changed the fingerprint")
	}
}

func TestExtractLinksResolvesRelative(t *testing.T) {
	html := `<html><body>
		<div>Приказ от 15.01.2024 № 12-п
			<a href="/upload/docs/prikaz_12.pdf">О присвоении спортивных разрядов</a>
		</div>
		<div>Приказ от 20.01.2024 № 14-п
			<a href="https://minsport.krasnodar.ru/upload/docs/prikaz_14.pdf">О присвоении судейских категорий</a>
		</div>
	</body></html>`

	cfg := registry.DetectConfig{
		LinkRegex:        `href=["']([^"']*\.pdf)["']`,
		OrderDateRegex:   `от\s+(\d{2}\.\d{2}\.\d{4})`,
		OrderNumberRegex: `№\s*([\d-]+[а-яё]*)`,
	}
	links, err := ExtractLinks(html, "https://minsport.krasnodar.ru/activity/docs/", cfg)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].URL != "https://minsport.krasnodar.ru/upload/docs/prikaz_12.pdf" {
		t.Errorf("relative URL resolved to %q", links[0].URL)
	}
	if links[0].OrderDate != "15.01.2024" {
		t.Errorf("order date = %q", links[0].OrderDate)
	}
	if links[0].OrderNumber != "12-п" {
		t.Errorf("order number = %q", links[0].OrderNumber)
	}
	if links[0].Title != "О присвоении спортивных разрядов" {
		t.Errorf("title = %q", links[0].Title)
	}
	if links[1].URL != "https://minsport.krasnodar.ru/upload/docs/prikaz_14.pdf" {
		t.Errorf("absolute URL mangled: %q", links[1].URL)
	}
}

func TestExtractLinksDedupes(t *testing.T) {
	html := `<a href="/a.pdf">x</a><a href="/a.pdf">x</a>`
	links, err := ExtractLinks(html, "https://example.org/", registry.DetectConfig{
		LinkRegex: `href=["']([^"']*\.pdf)["']`,
	})
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("got %d links, want 1", len(links))
	}
}

func TestExtractJSONEmbed(t *testing.T) {
	html := `<html><script>
		window.foo = 1;
		var $obj = {"documents":[
			{"title":"Приказ № 101","date":"10.02.2024","file":"/files/prikaz_101.pdf"},
			{"title":"Новость","url":"/news/1.html"},
			{"title":"Приказ № 102","date":"12.02.2024","file":"https://msrfinfo.ru/files/prikaz_102.pdf"}
		]};
		init($obj);
	</script></html>`

	cfg := registry.DetectConfig{SourceType: "json_embed", JSVar: "$obj"}
	links, err := ExtractLinks(html, "https://msrfinfo.ru/documents/", cfg)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2 (non-PDF entry skipped): %+v", len(links), links)
	}
	byURL := map[string]DocLink{}
	for _, l := range links {
		byURL[l.URL] = l
	}
	first, ok := byURL["https://msrfinfo.ru/files/prikaz_101.pdf"]
	if !ok {
		t.Fatalf("relative file not resolved: %+v", links)
	}
	if first.Title != "Приказ № 101" || first.OrderDate != "10.02.2024" {
		t.Errorf("first link fields: %+v", first)
	}
	if _, ok := byURL["https://msrfinfo.ru/files/prikaz_102.pdf"]; !ok {
		t.Errorf("absolute file missing: %+v", links)
	}
}

func TestExtractJSONEmbedMissingVar(t *testing.T) {
	cfg := registry.DetectConfig{SourceType: "json_embed", JSVar: "$obj"}
	if _, err := ExtractLinks("<html>nothing here</html>", "https://msrfinfo.ru/", cfg); err == nil {
		t.Error("missing variable should error")
	}
}

func TestLocateAssignmentBalancesStrings(t *testing.T) {
	html := `var $obj = {"a":"value with } brace","b":[1,2]};`
	body, err := locateAssignment(html, "$obj")
	if err != nil {
		t.Fatalf("locateAssignment: %v", err)
	}
	if body != `{"a":"value with } brace","b":[1,2]}` {
		t.Errorf("got %q", body)
	}
}

func TestCheckSourceSkipsRedRisk(t *testing.T) {
	d := NewDetector(nil, nil, nil)
	src := registry.SourceConfig{
		Code:      "krasnodar_minsport",
		Active:    true,
		RiskClass: "red",
		Detect:    registry.DetectConfig{ListURLs: []string{"https://example.invalid/docs"}},
	}
	res := d.CheckSource(context.Background(), src)
	if res.Status != StatusSkipped {
		t.Fatalf("red source status = %s, want %s", res.Status, StatusSkipped)
	}
	if res.Err != nil {
		t.Fatalf("red source produced an error: %v", res.Err)
	}
}

func TestCheckSourceSkipsInactive(t *testing.T) {
	d := NewDetector(nil, nil, nil)
	src := registry.SourceConfig{Code: "spb_kfkis", Active: false}
	if res := d.CheckSource(context.Background(), src); res.Status != StatusSkipped {
		t.Fatalf("inactive source status = %s, want %s", res.Status, StatusSkipped)
	}
}

func TestExpandPages(t *testing.T) {
	cfg := registry.DetectConfig{
		ListURLs:   []string{"https://mst.mosreg.ru/documents"},
		Pagination: "?page={n}",
		MaxPages:   3,
	}
	pages := expandPages(cfg)
	want := []string{
		"https://mst.mosreg.ru/documents",
		"https://mst.mosreg.ru/documents?page=2",
		"https://mst.mosreg.ru/documents?page=3",
	}
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Errorf("page %d = %q, want %q", i, pages[i], want[i])
		}
	}
}

func TestExpandPagesNoPagination(t *testing.T) {
	cfg := registry.DetectConfig{ListURLs: []string{"https://a.example/docs", "https://a.example/other"}}
	pages := expandPages(cfg)
	if len(pages) != 2 {
		t.Errorf("got %d pages, want 2", len(pages))
	}
}

func TestGroupAttachments(t *testing.T) {
	html := `<html><body>
	<article>
		<h3>Распоряжение от 05.03.2024 № 88-р</h3>
		<a href="/docs/order_88.pdf">Распоряжение</a>
		<a href="/docs/order_88_app1.pdf">Приложение 1</a>
		<a href="/docs/order_88_app2.pdf">Приложение 2</a>
	</article>
	<article>
		<h3>Новость без документов</h3>
		<a href="/news/123">Читать</a>
	</article>
	</body></html>`

	groups, err := GroupAttachments(html, "https://kfis.gov.spb.ru/documents/")
	if err != nil {
		t.Fatalf("GroupAttachments: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}
	g := groups[0]
	if g.Main.URL != "https://kfis.gov.spb.ru/docs/order_88.pdf" {
		t.Errorf("main url = %q", g.Main.URL)
	}
	if g.Main.Title != "Распоряжение от 05.03.2024 № 88-р" {
		t.Errorf("main title = %q", g.Main.Title)
	}
	if len(g.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(g.Attachments))
	}
	if g.Attachments[0].Title != "Приложение 1" {
		t.Errorf("attachment title = %q", g.Attachments[0].Title)
	}
}

func TestExtractLinksDocumentCards(t *testing.T) {
	html := `<html><body>
	<article>
		<h3>Распоряжение от 05.03.2024 № 88-р</h3>
		<a href="/docs/order_88.pdf">Распоряжение</a>
		<a href="/docs/order_88_app1.pdf">Приложение 1</a>
	</article>
	</body></html>`

	cfg := registry.DetectConfig{
		SourceType:       "document_cards",
		OrderDateRegex:   `от\s+(\d{1,2}\.\d{2}\.\d{4})`,
		OrderNumberRegex: `[№N]\s*(\S+)`,
	}
	links, err := ExtractLinks(html, "https://kfis.gov.spb.ru/documents/", cfg)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2: %+v", len(links), links)
	}
	if links[0].URL != "https://kfis.gov.spb.ru/docs/order_88.pdf" {
		t.Errorf("main url = %q", links[0].URL)
	}
	if links[0].OrderNumber != "88-р" || links[0].OrderDate != "05.03.2024" {
		t.Errorf("main attrs = %q / %q", links[0].OrderNumber, links[0].OrderDate)
	}
	// The appendix inherits the order attributes from its card.
	if links[1].OrderNumber != "88-р" || links[1].OrderDate != "05.03.2024" {
		t.Errorf("appendix attrs = %q / %q", links[1].OrderNumber, links[1].OrderDate)
	}
	if links[1].Title != "Приложение 1" {
		t.Errorf("appendix title = %q", links[1].Title)
	}
	if links[0].OrderType != "directive" || links[1].OrderType != "directive" {
		t.Errorf("order types = %q / %q, want directive", links[0].OrderType, links[1].OrderType)
	}
}

func TestExtractLinksOrderTypeFromContext(t *testing.T) {
	// Cards on real listings sit further apart than the context window.
	gap := strings.Repeat("<br/> ", 100)
	html := `<html><body>
	<div>Распоряжение от 12.02.2024 № 45-р <a href="/docs/r45.pdf">скачать</a></div>` + gap + `
	<div>Приказ от 13.02.2024 № 121 <a href="/docs/p121.pdf">скачать</a></div>` + gap + `
	<div>Протокол заседания <a href="/docs/proto.pdf">скачать</a></div>
	</body></html>`

	cfg := registry.DetectConfig{LinkRegex: `href="([^"]*\.pdf)"`}
	links, err := ExtractLinks(html, "https://minsport.krasnodar.ru/docs/", cfg)
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}
	want := []string{"directive", "order", ""}
	for i, w := range want {
		if links[i].OrderType != w {
			t.Errorf("link %d order type = %q, want %q", i, links[i].OrderType, w)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	got := cleanTitle(`<b>Приказ &laquo;О присвоении&raquo;</b>`)
	if got != "Приказ «О присвоении»" {
		t.Errorf("cleanTitle = %q", got)
	}
}

func TestPaginationPauseBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := paginationPause()
		if p < 1500*time.Millisecond || p >= 3*time.Second {
			t.Fatalf("pause %v outside [1.5s, 3s)", p)
		}
	}
}
