package ocr

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestProcessRejectsNonPDF(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Process(context.Background(), []byte("<html><body>not a pdf</body></html>"))
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Process(context.Background(), nil)
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
}

func TestCountReadable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"cyrillic sentence", "Приказ №5", 9},
		{"empty", "", 0},
		{"noise only", "\x01\x02\x7f", 0},
		{"mixed", "абв\x01где", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countReadable(tt.in); got != tt.want {
				t.Errorf("countReadable(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadableRatio(t *testing.T) {
	if r := readableRatio(""); r != 0 {
		t.Errorf("empty ratio = %v", r)
	}
	if r := readableRatio("Спортивный разряд 1"); r != 1.0 {
		t.Errorf("clean text ratio = %v, want 1.0", r)
	}
	if r := readableRatio("аб\x01\x02"); r != 0.5 {
		t.Errorf("half-noise ratio = %v, want 0.5", r)
	}
}

// Embedded confidence: min(1.0, readable/(3*threshold)).
func TestEmbeddedConfidenceFormula(t *testing.T) {
	e := NewEngine(nil)

	readable := 120
	conf := float64(readable) / float64(3*e.MinCharsPerPage)
	if conf != 0.5 {
		t.Fatalf("confidence for 120 readable chars = %v, want 0.5", conf)
	}

	readable = 1000
	conf = float64(readable) / float64(3*e.MinCharsPerPage)
	if conf < 1.0 {
		t.Fatalf("confidence for 1000 readable chars must cap at 1.0, formula gave %v", conf)
	}
}

func TestJoinPages(t *testing.T) {
	got := joinPages([]string{"страница 1", "страница 2"})
	want := "страница 1\n\nстраница 2"
	if got != want {
		t.Errorf("joinPages = %q, want %q", got, want)
	}
}

func TestWriteTempImageUniquePaths(t *testing.T) {
	dir := t.TempDir()
	// Same content, same length: the staged files must never collide.
	img := []byte("fake png bytes")
	first, err := writeTempImage(dir, img)
	if err != nil {
		t.Fatalf("writeTempImage: %v", err)
	}
	second, err := writeTempImage(dir, img)
	if err != nil {
		t.Fatalf("writeTempImage: %v", err)
	}
	if first == second {
		t.Fatalf("both images staged at %s", first)
	}
	got, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read staged image: %v", err)
	}
	if string(got) != string(img) {
		t.Errorf("staged bytes = %q", got)
	}
}

func TestPageLimitFromEnv(t *testing.T) {
	t.Setenv("MAX_PDF_PAGES", "12")
	if got := pageLimit(); got != 12 {
		t.Errorf("pageLimit = %d, want 12", got)
	}
	t.Setenv("MAX_PDF_PAGES", "zero")
	if got := pageLimit(); got != DefaultMaxPages {
		t.Errorf("invalid MAX_PDF_PAGES: pageLimit = %d, want default", got)
	}
}
