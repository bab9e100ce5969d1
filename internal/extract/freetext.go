package extract

import (
	"regexp"
	"strings"

	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/sports"
)

// Narrative mention: "Иванову Ивану Ивановичу, 12.05.1995 г.р., ..." with
// whatever case endings the order's prose uses.
var freeTextRe = regexp.MustCompile(`([А-ЯЁ][а-яё-]+(?:\s+[А-ЯЁ][а-яё-]+){1,4}(?:\s+(?:оглы|кызы|угли|уулу))?)\s*,?\s*(\d{2}\.\d{2}\.\d{4})\s*(?:г\.?\s*р\.?|года\s+рождения)?\s*,?\s*([^\n.;]*)`)

var sportPhraseRe = regexp.MustCompile(`(?i)по\s+(?:виду\s+спорта\s+)?[«"]?([а-яёА-ЯЁa-zA-Z\s-]{3,40}?)[»"]?(?:\s*[,.;]|\s*$)`)

// parseFreeText handles narrative orders without a table: one sentence or
// clause per person, rank and sport named inline.
func (e *RuleExtractor) parseFreeText(text string) []Record {
	var records []Record
	for _, m := range freeTextRe.FindAllStringSubmatch(text, -1) {
		rec := Record{
			Fio:       m[1],
			BirthDate: normalizeDate(m[2]),
			Action:    models.ActionAssignment,
		}
		tail := m[3]

		for _, seg := range strings.Split(tail, ",") {
			seg = strings.TrimSpace(seg)
			if seg == "" || rec.RankCategory != "" {
				continue
			}
			if canon, _ := evsk.NormalizeRank(seg); canon != "" {
				rec.RankCategoryOriginal = seg
				rec.RankCategory = canon
				rec.Kind = kindForCategory(seg)
			}
		}

		if sm := sportPhraseRe.FindStringSubmatch(tail); sm != nil {
			candidate := strings.TrimSpace(sm[1])
			if e.Sports != nil {
				if match := e.Sports.Normalize(candidate); match.Method != sports.MethodNone {
					rec.Sport = match.Canonical
					rec.SportOriginal = candidate
				}
			}
			if rec.Sport == "" {
				rec.Sport = candidate
				rec.SportOriginal = candidate
			}
		}

		records = append(records, rec)
	}
	return records
}
