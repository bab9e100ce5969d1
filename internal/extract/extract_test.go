package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/sports"
)

func testNormalizer() *sports.Normalizer {
	return sports.NewNormalizer([]sports.Sport{
		{ID: 1, Name: "Футбол", CodeBase: 1},
		{ID: 2, Name: "Бокс", CodeBase: 2},
		{ID: 3, Name: "Дзюдо", CodeBase: 3},
		{ID: 4, Name: "Спортивная борьба", CodeBase: 4},
	})
}

const tabularOrder = `Приложение к приказу

1. Иванов Петр Сергеевич 12.05.1995 12345 Футбол
2. Петрова Анна Ивановна 03.11.2001 54321 Бокс
3. Сидоров Олег Маратович 25.07.1988 Дзюдо

Спортивный судья третьей
категории
Спортивный судья второй категории
Спортивный судья первой категории

Документ зарегистрирован № 123 от 01.02.2024. Страница 1 из 1`

func TestRuleExtractorTabular(t *testing.T) {
	e := NewRuleExtractor(testNormalizer())
	recs, err := e.Extract(context.Background(), tabularOrder, Meta{SourceCode: "moskva_tstisk", OrderDate: "01.02.2024"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}

	first := recs[0]
	if first.Fio != "Иванов Петр Сергеевич" {
		t.Errorf("fio = %q", first.Fio)
	}
	if first.BirthDate != "12.05.1995" {
		t.Errorf("birth_date = %q", first.BirthDate)
	}
	if first.IasID == nil || *first.IasID != 12345 {
		t.Errorf("ias_id = %v", first.IasID)
	}
	if first.Sport != "Футбол" {
		t.Errorf("sport = %q", first.Sport)
	}
	if first.RankCategory != evsk.JudgeThird {
		t.Errorf("rank_category = %q, want wrapped category joined and normalized", first.RankCategory)
	}
	if first.Kind != models.AssignmentJudgeCategory {
		t.Errorf("kind = %q", first.Kind)
	}
	if first.ExtractorTag != RuleExtractorTag {
		t.Errorf("extractor tag = %q", first.ExtractorTag)
	}

	if recs[1].RankCategory != evsk.JudgeSecond {
		t.Errorf("second rank_category = %q", recs[1].RankCategory)
	}
	if recs[2].RankCategory != evsk.JudgeFirst {
		t.Errorf("third rank_category = %q", recs[2].RankCategory)
	}
	if recs[2].IasID != nil {
		t.Errorf("third ias_id = %v, want nil", recs[2].IasID)
	}

	// Three non-empty fields of five for the id-less row still clears review.
	if recs[0].Confidence < 0.7 {
		t.Errorf("full row confidence = %v, want >= 0.7", recs[0].Confidence)
	}
}

func TestRuleExtractorGluedName(t *testing.T) {
	e := NewRuleExtractor(nil)
	recs := e.postProcess([]Record{{Fio: "ШолинМаксимАндреевич", BirthDate: "01.01.2000"}}, Meta{})
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Fio != "Шолин Максим Андреевич" {
		t.Errorf("fio = %q", recs[0].Fio)
	}
}

func TestRuleExtractorDedupe(t *testing.T) {
	e := NewRuleExtractor(nil)
	in := []Record{
		{Fio: "Иванов Иван", BirthDate: "01.01.2000"},
		{Fio: "Иванов Иван", BirthDate: "01.01.2000"},
		{Fio: "Иванов Иван", BirthDate: "02.02.2002"},
	}
	recs := e.postProcess(in, Meta{})
	if len(recs) != 2 {
		t.Errorf("got %d records, want 2 after dedupe", len(recs))
	}
}

func TestRuleExtractorDropsHeaderRows(t *testing.T) {
	e := NewRuleExtractor(nil)
	recs := e.postProcess([]Record{
		{Fio: "Список спортсменов"},
		{Fio: "Петров Петр Петрович", BirthDate: "05.05.1995"},
	}, Meta{})
	if len(recs) != 1 || recs[0].Fio != "Петров Петр Петрович" {
		t.Errorf("header row not dropped: %+v", recs)
	}
}

const freeTextOrder = `О присвоении спортивных разрядов

Присвоить первый спортивный разряд Кузнецову Андрею Викторовичу, 14.03.1999 г.р., по виду спорта футбол.
Присвоить второй спортивный разряд Смирновой Ольге Павловне, 22.09.2003 г.р., по боксу.
Присвоить кандидат в мастера спорта Волкову Денису Олеговичу, 30.06.1997 г.р., по дзюдо.`

func TestRuleExtractorFreeText(t *testing.T) {
	e := NewRuleExtractor(testNormalizer())
	recs, err := e.Extract(context.Background(), freeTextOrder, Meta{SourceCode: "krasnodar_minsport", OrderDate: "10.01.2024"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(recs), recs)
	}
	wantFio := []string{"Кузнецову Андрею Викторовичу", "Смирновой Ольге Павловне", "Волкову Денису Олеговичу"}
	wantSport := []string{"Футбол", "Бокс", "Дзюдо"}
	for i, rec := range recs {
		if rec.Fio != wantFio[i] {
			t.Errorf("record %d fio = %q, want %q", i, rec.Fio, wantFio[i])
		}
		if rec.Sport != wantSport[i] {
			t.Errorf("record %d sport = %q, want %q", i, rec.Sport, wantSport[i])
		}
	}
}

func TestRuleExtractorEmptyText(t *testing.T) {
	e := NewRuleExtractor(nil)
	recs, err := e.Extract(context.Background(), "   ", Meta{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records from empty text", len(recs))
	}
}

func TestValidDate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"12.05.1995", true},
		{"29.02.2024", true},
		{"29.02.2023", false},
		{"31.04.2000", false},
		{"01.01.1929", false},
		{"01.01.2031", false},
		{"1995-05-12", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidDate(c.in); got != c.want {
			t.Errorf("ValidDate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPlausibleBirthDate(t *testing.T) {
	if PlausibleBirthDate("01.01.2022", "01.02.2024") {
		t.Error("two-year-old accepted")
	}
	if !PlausibleBirthDate("01.01.2010", "01.02.2024") {
		t.Error("fourteen-year-old rejected")
	}
	if PlausibleBirthDate("01.01.1910", "01.02.2024") {
		t.Error("114-year-old accepted")
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"12.05.1995", "12.05.1995"},
		{"12.05.1995 г.", "12.05.1995"},
		{"12-05-1995", "12.05.1995"},
		{"12/05/1995", "12.05.1995"},
		{"1995.05.12", "12.05.1995"},
		{"не указана", ""},
	}
	for _, c := range cases {
		if got := normalizeDate(c.in); got != c.want {
			t.Errorf("normalizeDate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLocateJSONArray(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `[{"fio":"a"}]`, `[{"fio":"a"}]`, true},
		{"fenced", "```json\n[1,2]\n```", "[1,2]", true},
		{"prose wrapped", `Вот результат: [1] конец`, "[1]", true},
		{"no array", "извините, записей нет", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := locateJSONArray(c.in)
			if c.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, c.ok)
			}
			if c.ok && got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestCoerceEnums(t *testing.T) {
	if got := coerceKind("судейская категория"); got != models.AssignmentJudgeCategory {
		t.Errorf("coerceKind = %q", got)
	}
	if got := coerceKind("sport_rank"); got != models.AssignmentSportRank {
		t.Errorf("coerceKind passthrough = %q", got)
	}
	if got := coerceAction("отказано"); got != models.ActionRefusal {
		t.Errorf("coerceAction = %q", got)
	}
	if got := coerceAction(""); got != models.ActionAssignment {
		t.Errorf("coerceAction default = %q", got)
	}
}

func TestSplitChunks(t *testing.T) {
	text := strings.Repeat("абзац текста\n\n", 50)
	chunks := splitChunks(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d is %d bytes, over limit", i, len(c))
		}
	}
	var joined []string
	for _, c := range chunks {
		joined = append(joined, strings.TrimSpace(c))
	}
	if strings.Join(joined, "\n\n") != strings.TrimSpace(text) {
		t.Error("chunks do not reassemble into the input")
	}
}

type stubExtractor struct {
	records []Record
	err     error
	calls   int
}

func (s *stubExtractor) Extract(context.Context, string, Meta) ([]Record, error) {
	s.calls++
	return s.records, s.err
}

func TestFallbackUsesSecondaryOnError(t *testing.T) {
	primary := &stubExtractor{err: context.DeadlineExceeded}
	secondary := &stubExtractor{records: []Record{{Fio: "Иванов Иван"}}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	recs, err := f.Extract(context.Background(), "текст", Meta{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 1 || secondary.calls != 1 {
		t.Errorf("secondary not used: recs=%d calls=%d", len(recs), secondary.calls)
	}
}

func TestFallbackPrefersPrimary(t *testing.T) {
	primary := &stubExtractor{records: []Record{{Fio: "Иванов Иван"}}}
	secondary := &stubExtractor{}
	f := &Fallback{Primary: primary, Secondary: secondary}

	recs, _ := f.Extract(context.Background(), "текст", Meta{})
	if len(recs) != 1 || secondary.calls != 0 {
		t.Errorf("primary result not used: recs=%d secondary calls=%d", len(recs), secondary.calls)
	}
}
