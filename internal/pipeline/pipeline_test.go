package pipeline

import (
	"testing"
	"time"

	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/extract"
	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/sports"
)

func testPipeline() *Pipeline {
	return &Pipeline{
		Sports: sports.NewNormalizer([]sports.Sport{
			{ID: 7, Name: "Дзюдо", CodeBase: 35},
			{ID: 9, Name: "Спортивная борьба", CodeBase: 26},
		}),
	}
}

func TestToAssignmentNormalizes(t *testing.T) {
	p := testPipeline()
	rec := extract.Record{
		Fio:          "Ёлкин  Пётр Сергеевич",
		BirthDate:    "12.05.1995",
		Kind:         models.AssignmentSportRank,
		RankCategory: "КМС",
		Action:       models.ActionAssignment,
		Sport:        "дзюдо",
		Confidence:   0.8,
		ExtractorTag: "rule_extractor",
	}

	a := p.toAssignment(rec)

	if a.FioNormalized != "елкин петр сергеевич" {
		t.Errorf("fio_normalized = %q", a.FioNormalized)
	}
	if a.BirthDate == nil {
		t.Fatal("birth date not parsed")
	}
	if got := a.BirthDate.Format("2006-01-02"); got != "1995-05-12" {
		t.Errorf("birth date = %s", got)
	}
	if a.BirthDateRaw != "12.05.1995" {
		t.Errorf("birth_date_raw = %q", a.BirthDateRaw)
	}
	if a.RankCategory != evsk.KMS {
		t.Errorf("rank_category = %q", a.RankCategory)
	}
	if a.Sport != "Дзюдо" {
		t.Errorf("sport = %q", a.Sport)
	}
	if a.SportID == nil || *a.SportID != 7 {
		t.Errorf("sport_id = %v", a.SportID)
	}
	if a.SportOriginal != "дзюдо" {
		t.Errorf("sport_original = %q", a.SportOriginal)
	}
	if v, ok := a.ExtraFields["rank_category_original"]; !ok || v != "КМС" {
		t.Errorf("rank_category_original = %v", a.ExtraFields)
	}
}

func TestToAssignmentKeepsRankWording(t *testing.T) {
	p := testPipeline()
	a := p.toAssignment(extract.Record{
		Fio:                  "Иванов Иван Иванович",
		RankCategory:         "кандидат в мастера спорта",
		RankCategoryOriginal: "кандидата в мастера спорта по дзюдо",
	})
	if a.RankCategory != evsk.KMS {
		t.Errorf("rank_category = %q", a.RankCategory)
	}
	if v := a.ExtraFields["rank_category_original"]; v != "кандидата в мастера спорта по дзюдо" {
		t.Errorf("rank_category_original = %v", v)
	}
}

func TestToAssignmentUnknownSport(t *testing.T) {
	p := testPipeline()
	a := p.toAssignment(extract.Record{
		Fio:   "Иванов Иван Иванович",
		Sport: "городошный марафон",
	})
	if a.Sport != "городошный марафон" {
		t.Errorf("unknown sport replaced: %q", a.Sport)
	}
	if a.SportID != nil {
		t.Errorf("sport_id = %v, want nil", a.SportID)
	}
	if v, ok := a.ExtraFields["sport_not_found"]; !ok || v != true {
		t.Errorf("extra flag missing: %v", a.ExtraFields)
	}
}

func TestToAssignmentInvalidBirthDate(t *testing.T) {
	p := testPipeline()
	a := p.toAssignment(extract.Record{Fio: "Иванов Иван", BirthDate: "31.02.2000"})
	if a.BirthDate != nil {
		t.Errorf("impossible date parsed: %v", a.BirthDate)
	}
	if a.BirthDateRaw != "31.02.2000" {
		t.Errorf("raw date lost: %q", a.BirthDateRaw)
	}
}

func TestToAssignmentKeepsPreResolvedSport(t *testing.T) {
	p := testPipeline()
	id := 42
	a := p.toAssignment(extract.Record{Fio: "Иванов Иван", Sport: "Дзюдо", SportID: &id})
	if a.SportID == nil || *a.SportID != 42 {
		t.Errorf("pre-resolved sport_id overwritten: %v", a.SportID)
	}
}

func TestNormalizeFio(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Иванов Иван", "иванов иван"},
		{"  Пётр   Ёжиков  ", "петр ежиков"},
		{"СИДОРОВ-ПЕТРОВ Олег", "сидоров-петров олег"},
	}
	for _, c := range cases {
		if got := normalizeFio(c.in); got != c.want {
			t.Errorf("normalizeFio(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResultStepRecording(t *testing.T) {
	r := &Result{}
	started := time.Now()
	r.step(StageOCR, StepOK, "3 pages", started)
	r.step(StageSave, StepSkipped, "dry run", started)

	if len(r.Steps) != 2 {
		t.Fatalf("got %d steps", len(r.Steps))
	}
	if r.Steps[0].Stage != StageOCR || r.Steps[0].Status != StepOK {
		t.Errorf("first step = %+v", r.Steps[0])
	}
	if r.Steps[1].Status != StepSkipped {
		t.Errorf("second step = %+v", r.Steps[1])
	}
}

func TestStageNamesDistinct(t *testing.T) {
	stages := []string{StageDetect, StageDownload, StageDedup, StageOCR, StageExtract, StageSave}
	seen := make(map[string]bool)
	for _, st := range stages {
		if seen[st] {
			t.Errorf("duplicate stage name %q", st)
		}
		seen[st] = true
	}
	// A duplicate-document skip must be reported as its own stage, not as
	// a recognition outcome.
	if StageDedup == StageOCR {
		t.Error("dedup stage shares the recognition stage name")
	}
}
