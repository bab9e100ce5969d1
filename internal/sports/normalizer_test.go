package sports

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRegistry() []Sport {
	return []Sport{
		{ID: 1, CodeBase: 3, Section: 2, Name: "Бокс"},
		{ID: 2, CodeBase: 35, Section: 2, Name: "Дзюдо"},
		{ID: 3, CodeBase: 7, Section: 2, Name: "Плавание"},
		{ID: 4, CodeBase: 8, Section: 2, Name: "Спортивная акробатика"},
		{ID: 5, CodeBase: 17, Section: 2, Name: "Киокусинкай"},
		{ID: 6, CodeBase: 22, Section: 2, Name: "Самбо"},
		{ID: 7, CodeBase: 41, Section: 2, Name: "Шахматы"},
		{ID: 8, CodeBase: 55, Section: 2, Name: "Художественная гимнастика"},
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	n := NewNormalizer(testRegistry())

	for _, s := range n.Sports() {
		m := n.Normalize(s.Name)
		if m.Canonical != s.Name {
			t.Errorf("round trip %q -> %q", s.Name, m.Canonical)
		}
		if m.Confidence != 1.0 || m.Method != MethodExact {
			t.Errorf("round trip %q: confidence=%v method=%s", s.Name, m.Confidence, m.Method)
		}
	}
}

func TestNormalizeCaseNormalized(t *testing.T) {
	n := NewNormalizer(testRegistry())

	m := n.Normalize("ДЗЮДО")
	if m.Canonical != "Дзюдо" || m.Method != MethodCaseNormalized || m.Confidence != 0.95 {
		t.Fatalf("case-normalized match: %+v", m)
	}
}

func TestNormalizeCuratedAlias(t *testing.T) {
	n := NewNormalizer(testRegistry())

	m := n.Normalize("Киокушин")
	if m.Canonical != "Киокусинкай" {
		t.Fatalf("alias miss: %+v", m)
	}
	if m.Method != MethodAlias && m.Method != MethodCaseNormalized {
		t.Fatalf("unexpected method: %s", m.Method)
	}
}

func TestNormalizeFuzzyInflection(t *testing.T) {
	n := NewNormalizer(testRegistry())

	// Dative case as it appears in free text ("по боксу").
	m := n.Normalize("боксу")
	if m.Canonical != "Бокс" {
		t.Fatalf("fuzzy miss: %+v", m)
	}
	if m.Method != MethodFuzzy {
		t.Fatalf("expected fuzzy, got %s", m.Method)
	}
	if m.Confidence < n.ReviewThreshold {
		t.Fatalf("fuzzy confidence below review threshold: %v", m.Confidence)
	}
}

func TestNormalizeNotFoundKeepsAlternatives(t *testing.T) {
	n := NewNormalizer(testRegistry())

	m := n.Normalize("квантовая механика")
	if m.Found() {
		t.Fatalf("unexpected match: %+v", m)
	}
	if len(m.Alternatives) == 0 {
		t.Fatal("alternatives must be preserved for review")
	}
}

func TestFuzzyConfidenceAboveReviewThreshold(t *testing.T) {
	n := NewNormalizer(testRegistry())

	inputs := []string{"боксу", "дзюдо ", "плаванию", "самбо борьба", "шахматам"}
	for _, in := range inputs {
		m := n.Normalize(in)
		if m.Found() && m.Method == MethodFuzzy && m.Confidence < n.ReviewThreshold {
			t.Errorf("%q: fuzzy match below review threshold: %+v", in, m)
		}
	}
}

func TestSetNameLifetime(t *testing.T) {
	n := NewNormalizer(testRegistry())

	if n.Normalize("Акробатика спортивная (устар.)").Found() {
		t.Fatal("retired name matched before registration")
	}

	ok := n.SetNameLifetime("Акробатика спортивная (устар.)", time.Now(), "Спортивная акробатика")
	if !ok {
		t.Fatal("SetNameLifetime rejected known canonical")
	}

	m := n.Normalize("Акробатика спортивная (устар.)")
	if m.Canonical != "Спортивная акробатика" || m.Method != MethodAlias {
		t.Fatalf("operator alias not applied: %+v", m)
	}
}

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Спортивная   акробатика ", "СПОРТИВНАЯ АКРОБАТИКА"},
		{"Тхэквондо (ВТФ)", "ТХЭКВОНДО ВТФ"},
		{"фёдор", "ФЕДОР"},
		{"Греко-римская борьба", "ГРЕКО-РИМСКАЯ БОРЬБА"},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScoreDetectsSectionHeaders(t *testing.T) {
	n := NewNormalizer(testRegistry())

	if s := n.Score("Художественная гимнастика"); s != 1.0 {
		t.Errorf("exact header score = %v", s)
	}
	if s := n.Score("протокол заседания комиссии"); s >= 0.85 {
		t.Errorf("non-sport line scored too high: %v", s)
	}
}

func TestNormalizerConcurrentAliasRegistration(t *testing.T) {
	n := NewNormalizer(testRegistry())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			n.SetNameLifetime(fmt.Sprintf("Старое название %d", i), time.Now(), "Самбо")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			n.Normalize("дзю-до")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			n.Score("плаванье")
		}
	}()
	wg.Wait()

	m := n.Normalize("Старое название 7")
	if m.Canonical != "Самбо" {
		t.Fatalf("alias registered during churn not applied: %+v", m)
	}
}
