package extract

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/models"
)

// Electronic document-flow footer that terminates each page of a signed order.
var pageFooterRe = regexp.MustCompile(`(?is)документ\s+зарегистрирован.*?страница\s+\d+\s+из\s+\d+`)

var categoryStartRe = regexp.MustCompile(`(?i)^(спортивн\S*\s+судья|юный\s+спортивн|судья|почетн\S*|заслуженн\S*|кандидат\s+в\s+мастера|мастер\s+спорта|гроссмейстер|перв\S+|втор\S+|трет\S+|высш\S+|i{1,3}\b|[123]\s)`)

// parseTabular handles the numbered-table layout: each page carries data rows
// (number, name, birth date, optional id, sport) followed by a block of
// assigned-category lines in the same order as the rows.
func (e *RuleExtractor) parseTabular(text string) []Record {
	var records []Record
	for _, page := range pageFooterRe.Split(text, -1) {
		records = append(records, e.parseTabularPage(page)...)
	}
	return records
}

func (e *RuleExtractor) parseTabularPage(page string) []Record {
	lines := strings.Split(page, "\n")

	var records []Record
	lastRowLine := -1
	for i, line := range lines {
		m := dataRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lastRowLine = i

		rec := Record{
			Fio:       strings.TrimSpace(m[2]),
			BirthDate: normalizeDate(m[3]),
			Sport:     strings.TrimSpace(m[5]),
			Action:    models.ActionAssignment,
		}
		rec.SportOriginal = rec.Sport
		if m[4] != "" {
			if id, err := strconv.Atoi(m[4]); err == nil {
				rec.IasID = &id
			}
		}
		if m[6] != "" {
			rec.SetExtra("submission_date", normalizeDate(m[6]))
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	categories := collectCategoryBlock(lines[lastRowLine+1:])
	if len(categories) > 0 && len(categories) != len(records) {
		log.Printf("[extract] tabular page: %d rows but %d category lines, mapping by position", len(records), len(categories))
	}
	for i := range records {
		if i < len(categories) {
			records[i].RankCategoryOriginal = categories[i]
			records[i].RankCategory = categories[i]
			if canon, _ := evsk.NormalizeRank(categories[i]); canon != "" {
				records[i].RankCategory = canon
			}
			records[i].Kind = kindForCategory(categories[i])
		}
	}
	return records
}

// collectCategoryBlock gathers the category lines that follow the last data
// row on a page. OCR often wraps a category onto two lines ("Спортивный судья
// третьей" / "категории"); short non-starting lines are joined to the
// preceding category.
func collectCategoryBlock(lines []string) []string {
	var categories []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if categoryStartRe.MatchString(line) {
			categories = append(categories, line)
			continue
		}
		// Wrapped continuation ("Спортивный судья третьей" / "категории"):
		// short lowercase-leading remainder joins the previous category.
		if len(categories) > 0 && len([]rune(line)) < 40 && startsLower(line) {
			categories[len(categories)-1] += " " + line
		}
	}
	return categories
}

func startsLower(line string) bool {
	for _, r := range line {
		return unicode.IsLower(r)
	}
	return false
}

func kindForCategory(category string) string {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "судья") || strings.Contains(lower, "судей"):
		return models.AssignmentJudgeCategory
	case strings.Contains(lower, "квалификацион"):
		return models.AssignmentSpecialistCategory
	case strings.Contains(lower, "тренер") && strings.Contains(lower, "категори"):
		return models.AssignmentCoachCategory
	case strings.Contains(lower, "почетн") || strings.Contains(lower, "заслуженн"):
		return models.AssignmentHonoraryTitle
	default:
		return models.AssignmentSportRank
	}
}
