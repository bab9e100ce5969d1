package sports

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet layout of the national sport registry: four sheets (one per
// registry section). Each row: numeric position, sport name, seven code
// columns, discipline name in column 10. A row carrying a sport may also
// carry a discipline.
const (
	colPosition   = 0
	colSportName  = 1
	colCodeFirst  = 2
	colCodeLast   = 8
	colDiscipline = 9
)

// LoadRegistryFile reads the registry spreadsheet and returns sports with
// their disciplines, in sheet order.
func LoadRegistryFile(path string) ([]Sport, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) < 4 {
		return nil, fmt.Errorf("registry spreadsheet has %d sheets, want 4", len(sheets))
	}

	var out []Sport
	nextID := 1

	for section := 1; section <= 4; section++ {
		rows, err := f.GetRows(sheets[section-1])
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[section-1], err)
		}

		var current *Sport
		for _, row := range rows {
			name := cell(row, colSportName)
			discipline := cell(row, colDiscipline)

			if name != "" && isPositionRow(cell(row, colPosition)) {
				codeFull, codeBase := parseCodes(row)
				out = append(out, Sport{
					ID:       nextID,
					CodeBase: codeBase,
					CodeFull: codeFull,
					Section:  section,
					Name:     name,
				})
				current = &out[len(out)-1]
				nextID++
			}

			if discipline != "" && current != nil {
				current.Disciplines = append(current.Disciplines, discipline)
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("registry spreadsheet produced no sports")
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// isPositionRow filters header and note rows: data rows start with a number.
func isPositionRow(pos string) bool {
	if pos == "" {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSuffix(pos, "."))
	return err == nil
}

func parseCodes(row []string) (string, int) {
	var parts []string
	for i := colCodeFirst; i <= colCodeLast; i++ {
		if c := cell(row, i); c != "" {
			parts = append(parts, c)
		}
	}
	codeFull := strings.Join(parts, "")

	base := 0
	digits := strings.Builder{}
	for _, r := range codeFull {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
	}
	if digits.Len() > 0 {
		// Base identifier is the leading numeric run, capped to fit int.
		if v, err := strconv.Atoi(digits.String()); err == nil {
			base = v
		}
	}
	return codeFull, base
}
