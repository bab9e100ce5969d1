package extract

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/sports"
)

// RuleExtractorTag marks records produced by the deterministic path.
const RuleExtractorTag = "rule_extractor"

// A data row: row number, 2-5 capitalized name words (optional patronymic
// suffix), birth date, optional 4-7 digit external id, free-text sport,
// optional submission date.
var dataRowRe = regexp.MustCompile(`^\s*(\d+)[.)]?\s+([А-ЯЁ][а-яё-]+(?:\s+[А-ЯЁ][а-яё-]+){1,4}(?:\s+(?:оглы|кызы|угли|уулу))?)\s+(\d{2}\.\d{2}\.\d{4})(?:\s+(\d{4,7}))?(?:\s+(.*?))?(?:\s+(\d{2}\.\d{2}\.\d{4}))?\s*$`)

var (
	nameTokenRe = regexp.MustCompile(`\b[А-ЯЁ][а-яё-]{2,}\b`)
	dateTokenRe = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
	gluedNameRe = regexp.MustCompile(`([а-яё])([А-ЯЁ])`)
)

var headerWords = []string{"приложение", "список", "приказ", "категори", "разряд"}

// Sources whose orders are known to use the tabular layout.
var knownTabularSources = map[string]bool{
	"moskva_tstisk":      true,
	"moskva_moskomsport": true,
}

// RuleExtractor parses order text with three format-specific parsers and an
// auto-selection heuristic. The sport normalizer is optional; without it the
// section parser is skipped.
type RuleExtractor struct {
	Sports *sports.Normalizer
}

func NewRuleExtractor(n *sports.Normalizer) *RuleExtractor {
	return &RuleExtractor{Sports: n}
}

// Extract implements the Extractor contract. Zero records is not an error.
func (e *RuleExtractor) Extract(_ context.Context, text string, meta Meta) ([]Record, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 30 {
		return nil, nil
	}

	records := e.selectAndParse(text, meta)
	return e.postProcess(records, meta), nil
}

func (e *RuleExtractor) selectAndParse(text string, meta Meta) []Record {
	dataRows := countDataRows(text)

	if knownTabularSources[meta.SourceCode] {
		if recs := e.parseTabular(text); len(recs) > 0 {
			return recs
		}
	}

	if dataRows >= 3 {
		if recs := e.parseTabular(text); len(recs) > 0 {
			return recs
		}
	}

	if e.Sports != nil && e.countSportHeaderLines(text) >= 2 {
		if recs := e.parseSections(text); len(recs) > 0 {
			return recs
		}
	}

	if len(nameTokenRe.FindAllString(text, 4)) >= 3 && len(dateTokenRe.FindAllString(text, 4)) >= 3 {
		if recs := e.parseFreeText(text); len(recs) > 0 {
			return recs
		}
	}

	for _, parse := range []func(string) []Record{e.parseTabular, e.parseSections, e.parseFreeText} {
		if recs := parse(text); len(recs) > 0 {
			return recs
		}
	}
	return nil
}

func countDataRows(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if dataRowRe.MatchString(line) {
			n++
		}
	}
	return n
}

func (e *RuleExtractor) countSportHeaderLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || dataRowRe.MatchString(line) || len([]rune(line)) > 60 {
			continue
		}
		if e.Sports.Score(line) >= 0.85 {
			n++
			if n >= 2 {
				break
			}
		}
	}
	return n
}

// postProcess applies the shared cleanup: glued-name splitting, header-word
// filtering, deduplication, date validation, plausibility flags and the
// per-record confidence score.
func (e *RuleExtractor) postProcess(records []Record, meta Meta) []Record {
	var out []Record
	seen := make(map[string]bool)

	for _, rec := range records {
		rec.Fio = splitGluedName(rec.Fio)
		rec.Fio = strings.Join(strings.Fields(rec.Fio), " ")
		if rec.Fio == "" || isHeaderWord(rec.Fio) {
			continue
		}

		key := rec.Fio + "|" + rec.BirthDate
		if seen[key] {
			continue
		}
		seen[key] = true

		if rec.BirthDate != "" && !ValidDate(rec.BirthDate) {
			rec.SetExtra("birth_date_suspicious", true)
		} else if rec.BirthDate != "" && meta.OrderDate != "" && !PlausibleBirthDate(rec.BirthDate, meta.OrderDate) {
			rec.SetExtra("birth_date_suspicious", true)
		}

		if rec.Kind == "" {
			rec.Kind = models.AssignmentSportRank
		}
		if rec.Action == "" {
			rec.Action = models.ActionAssignment
		}

		rec.Confidence = scoreRecord(rec)
		if rec.Confidence < 0.5 {
			rec.SetExtra("needs_review", true)
		}
		rec.ExtractorTag = RuleExtractorTag

		out = append(out, rec)
	}

	if dropped := len(records) - len(out); dropped > 0 {
		log.Printf("[extract] dropped %d record(s) in post-processing", dropped)
	}
	return out
}

func scoreRecord(rec Record) float64 {
	points := 0
	if len(strings.Fields(rec.Fio)) >= 2 {
		points++
	}
	if ValidDate(rec.BirthDate) {
		points++
	}
	if len([]rune(rec.Sport)) > 2 {
		points++
	}
	if len([]rune(rec.RankCategory)) > 2 {
		points++
	}
	if rec.IasID != nil {
		points++
	}
	return float64(points) / 5.0
}

// splitGluedName restores spaces the OCR dropped between name words.
func splitGluedName(fio string) string {
	return gluedNameRe.ReplaceAllString(fio, "$1 $2")
}

func isHeaderWord(fio string) bool {
	lower := strings.ToLower(fio)
	for _, w := range headerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
