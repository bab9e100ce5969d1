package api

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/pipeline"
	"github.com/maxim/sportrank/internal/sports"
)

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		name  string
		def   int
		want  int
	}{
		{"limit=25", "limit", 50, 25},
		{"", "limit", 50, 50},
		{"limit=abc", "limit", 50, 50},
		{"limit=-3", "limit", 50, 50},
		{"offset=0", "offset", 10, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if got := queryInt(c, tt.name, tt.def); got != tt.want {
			t.Errorf("queryInt(%q, %q): got %d, want %d", tt.query, tt.name, got, tt.want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , ,b ", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := splitCSV(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCSV(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func goldenResult(assignments ...models.Assignment) *pipeline.Result {
	return &pipeline.Result{
		Records:     len(assignments),
		Assignments: assignments,
	}
}

func TestDiffGoldenCaseClean(t *testing.T) {
	birth := time.Date(1995, 5, 12, 0, 0, 0, 0, time.UTC)
	result := goldenResult(
		models.Assignment{Fio: "Иванов Иван Иванович", RankCategory: "кандидат в мастера спорта", Sport: "Дзюдо", BirthDate: &birth},
		models.Assignment{Fio: "Петров Петр Петрович", RankCategory: "первый спортивный разряд", Sport: "Бокс"},
	)
	gc := GoldenCase{
		ExpectedRecords: 2,
		ExpectedSamples: []GoldenSample{
			{Fio: "Иванов Иван Иванович", RankCategory: "кандидат в мастера спорта", Sport: "Дзюдо", BirthDate: "12.05.1995"},
			{Fio: "Петров Петр Петрович", Sport: "Бокс"},
		},
	}
	diffs, msgs := diffGoldenCase(gc, result)
	if diffs != 0 {
		t.Fatalf("expected clean diff, got %d: %v", diffs, msgs)
	}
}

func TestDiffGoldenCaseMismatches(t *testing.T) {
	result := goldenResult(
		models.Assignment{Fio: "Иванов Иван Иванович", RankCategory: "первый спортивный разряд", Sport: "Дзюдо"},
	)
	gc := GoldenCase{
		ExpectedRecords: 2,
		ExpectedSamples: []GoldenSample{
			{Fio: "Иванов Иван Иванович", RankCategory: "кандидат в мастера спорта"},
			{Fio: "Сидоров Олег Викторович"},
		},
	}
	diffs, msgs := diffGoldenCase(gc, result)
	// count mismatch + wrong rank + missing record
	if diffs != 3 {
		t.Fatalf("expected 3 diffs, got %d: %v", diffs, msgs)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 diff messages, got %v", msgs)
	}
}

func TestDiffGoldenCaseIgnoresUnsetFields(t *testing.T) {
	result := goldenResult(
		models.Assignment{Fio: "Иванов Иван Иванович", RankCategory: "второй спортивный разряд", Sport: "Самбо"},
	)
	gc := GoldenCase{
		ExpectedSamples: []GoldenSample{{Fio: "иванов иван иванович"}},
	}
	if diffs, msgs := diffGoldenCase(gc, result); diffs != 0 {
		t.Fatalf("expected case-insensitive fio match with no diffs, got %d: %v", diffs, msgs)
	}
}

func TestSportAliasEndpoint(t *testing.T) {
	norm := sports.NewNormalizer([]sports.Sport{
		{ID: 4, CodeBase: 8, Section: 2, Name: "Спортивная акробатика"},
	})
	s := &Server{Echo: echo.New(), Sports: norm}

	body := `{"old_name":"Акробатика спортивная","canonical":"Спортивная акробатика","valid_to":"2024-12-31"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sports/alias", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.Echo.NewContext(req, rec)

	if err := s.handleSportAlias(c); err != nil {
		t.Fatalf("handleSportAlias: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if m := norm.Normalize("Акробатика спортивная"); m.Canonical != "Спортивная акробатика" {
		t.Errorf("alias not registered: %+v", m)
	}
}

func TestSportAliasEndpointUnknownCanonical(t *testing.T) {
	norm := sports.NewNormalizer([]sports.Sport{{ID: 1, Name: "Бокс"}})
	s := &Server{Echo: echo.New(), Sports: norm}

	body := `{"old_name":"Старый бокс","canonical":"Кикбоксинг"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sports/alias", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.Echo.NewContext(req, rec)

	if err := s.handleSportAlias(c); err != nil {
		t.Fatalf("handleSportAlias: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
