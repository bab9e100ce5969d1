package extract

import (
	"regexp"
	"strings"

	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/models"
)

// Person line inside a sport section: optional row number, name, birth date,
// optional trailing category text.
var sectionRowRe = regexp.MustCompile(`^\s*(?:\d+[.)]?\s+)?([А-ЯЁ][а-яё-]+(?:\s+[А-ЯЁ][а-яё-]+){1,4}(?:\s+(?:оглы|кызы|угли|уулу))?)\s+(\d{2}\.\d{2}\.\d{4})\s*(.*?)\s*$`)

// parseSections handles orders grouped by sport: a header line names the
// sport, the lines below it list the people it applies to. Requires the
// normalizer to recognize header lines.
func (e *RuleExtractor) parseSections(text string) []Record {
	if e.Sports == nil {
		return nil
	}

	var records []Record
	currentSport := ""
	currentRank := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := sectionRowRe.FindStringSubmatch(line); m != nil && currentSport != "" {
			rec := Record{
				Fio:           m[1],
				BirthDate:     normalizeDate(m[2]),
				Sport:         currentSport,
				SportOriginal: currentSport,
				Action:        models.ActionAssignment,
			}
			rank := strings.TrimSpace(m[3])
			if rank == "" {
				rank = currentRank
			}
			if rank != "" {
				rec.RankCategoryOriginal = rank
				rec.RankCategory = rank
				if canon, _ := evsk.NormalizeRank(rank); canon != "" {
					rec.RankCategory = canon
				}
				rec.Kind = kindForCategory(rank)
			}
			records = append(records, rec)
			continue
		}

		// A short non-person line is either a sport header or a rank header
		// that applies to the rows below it.
		if len([]rune(line)) <= 60 {
			if e.Sports.Score(line) >= 0.85 {
				currentSport = line
				currentRank = ""
				continue
			}
			if categoryStartRe.MatchString(line) {
				currentRank = line
			}
		}
	}
	return records
}
