package extract

import (
	"strings"
	"time"
)

const dateLayout = "02.01.2006"

// ValidDate accepts calendar-valid dd.mm.yyyy dates with year in [1930, 2030].
func ValidDate(s string) bool {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return false
	}
	return t.Year() >= 1930 && t.Year() <= 2030
}

// PlausibleBirthDate checks the person's age at the order date is in [5, 100].
func PlausibleBirthDate(birth, orderDate string) bool {
	b, err := time.Parse(dateLayout, birth)
	if err != nil {
		return false
	}
	o, err := time.Parse(dateLayout, orderDate)
	if err != nil {
		// Without an order date only the static range applies.
		return ValidDate(birth)
	}
	age := o.Year() - b.Year()
	if o.Month() < b.Month() || (o.Month() == b.Month() && o.Day() < b.Day()) {
		age--
	}
	return age >= 5 && age <= 100
}

// normalizeDate coerces the model's date spellings to dd.mm.yyyy.
// Returns "" when the value cannot be interpreted.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "г.")
	s = strings.TrimSuffix(s, "г")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", ".")
	s = strings.ReplaceAll(s, "/", ".")

	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	if t, err := time.Parse("2006.01.02", s); err == nil {
		return t.Format(dateLayout)
	}
	return ""
}
