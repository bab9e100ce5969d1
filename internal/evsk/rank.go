// Package evsk normalizes free-form rank and title strings to the canonical
// vocabulary of the national classifier.
package evsk

import (
	"regexp"
	"strings"
)

// Canonical rank and title names.
const (
	KMS  = "кандидат в мастера спорта"
	MS   = "мастер спорта россии"
	MSMK = "мастер спорта россии международного класса"
	ZMS  = "заслуженный мастер спорта россии"
	GM   = "гроссмейстер россии"
	ZTR  = "заслуженный тренер россии"

	RankFirst  = "первый спортивный разряд"
	RankSecond = "второй спортивный разряд"
	RankThird  = "третий спортивный разряд"

	YouthFirst  = "первый юношеский спортивный разряд"
	YouthSecond = "второй юношеский спортивный разряд"
	YouthThird  = "третий юношеский спортивный разряд"

	JudgeAllRussian = "спортивный судья всероссийской категории"
	JudgeFirst      = "спортивный судья первой категории"
	JudgeSecond     = "спортивный судья второй категории"
	JudgeThird      = "спортивный судья третьей категории"
	JudgeYouth      = "юный спортивный судья"

	SpecialistHighest = "высшая квалификационная категория"
	SpecialistFirst   = "первая квалификационная категория"
	SpecialistSecond  = "вторая квалификационная категория"

	HonoraryJudge  = "почетный спортивный судья"
	HonoraryMaster = "почетный мастер спорта"
	HonoraryCoach  = "почетный тренер"
)

var exactAliases = map[string]string{
	"кмс":                  KMS,
	"мс":                   MS,
	"мастер спорта":        MS,
	"мсмк":                 MSMK,
	"змс":                  ZMS,
	"гм":                   GM,
	"гмр":                  GM,
	"гроссмейстер россии":  GM,
	"зтр":                  ZTR,
}

// Ordinal matchers. Roman/arabic forms use word boundaries so that "I" is
// never a prefix-match inside "II" or "III"; checks must run third, second,
// first in that order.
var (
	reThird  = regexp.MustCompile(`(?i)\b(iii|3)\b`)
	reSecond = regexp.MustCompile(`(?i)\b(ii|2)\b`)
	reFirst  = regexp.MustCompile(`(?i)\b(i|1)\b`)
)

func hasThird(s string) bool  { return reThird.MatchString(s) || strings.Contains(s, "трет") }
func hasSecond(s string) bool { return reSecond.MatchString(s) || strings.Contains(s, "втор") }
func hasFirst(s string) bool  { return reFirst.MatchString(s) || strings.Contains(s, "перв") }

// NormalizeRank maps a free-form rank/title string to its canonical form
// plus a canonicalization confidence: 1.0 for an exact alias hit, 0.9 for a
// keyword-pattern match. Returns "" and 0 when the input is not recognized.
func NormalizeRank(raw string) (string, float64) {
	s := normalizeText(raw)
	if s == "" {
		return "", 0
	}
	if canonical, ok := exactAliases[s]; ok {
		return canonical, 1
	}
	if canonical := classify(s); canonical != "" {
		return canonical, 0.9
	}
	return "", 0
}

// classify pattern-matches an already-normalized string against the
// canonical vocabulary.
func classify(s string) string {
	// Judge categories. The youth judge has no ordinal and must win over
	// the ordinal checks below.
	if strings.Contains(s, "судь") && !strings.Contains(s, "почетн") {
		switch {
		case strings.Contains(s, "юный") || strings.Contains(s, "юного"):
			return JudgeYouth
		case strings.Contains(s, "всероссийск"):
			return JudgeAllRussian
		case hasThird(s):
			return JudgeThird
		case hasSecond(s):
			return JudgeSecond
		case hasFirst(s):
			return JudgeFirst
		}
		return ""
	}

	// Youth ranks before adult ranks: "1 юношеский разряд" contains
	// "разряд" too and would otherwise fall through to the adult table.
	if strings.Contains(s, "юношеск") {
		switch {
		case hasThird(s):
			return YouthThird
		case hasSecond(s):
			return YouthSecond
		case hasFirst(s):
			return YouthFirst
		}
		return ""
	}

	if strings.Contains(s, "разряд") {
		switch {
		case hasThird(s):
			return RankThird
		case hasSecond(s):
			return RankSecond
		case hasFirst(s):
			return RankFirst
		}
		return ""
	}

	// Specialist qualification categories.
	if strings.Contains(s, "квалификацион") {
		switch {
		case strings.Contains(s, "высш"):
			return SpecialistHighest
		case hasSecond(s):
			return SpecialistSecond
		case hasFirst(s):
			return SpecialistFirst
		}
		return ""
	}

	// Honorary titles.
	if strings.Contains(s, "почетн") {
		switch {
		case strings.Contains(s, "судь"):
			return HonoraryJudge
		case strings.Contains(s, "мастер"):
			return HonoraryMaster
		case strings.Contains(s, "тренер"):
			return HonoraryCoach
		}
		return ""
	}

	// Titles by keyword pairs.
	switch {
	case strings.Contains(s, "кандидат") && strings.Contains(s, "мастер"):
		return KMS
	case strings.Contains(s, "международ") && strings.Contains(s, "мастер"):
		return MSMK
	case strings.Contains(s, "заслуж") && strings.Contains(s, "мастер"):
		return ZMS
	case strings.Contains(s, "заслуж") && strings.Contains(s, "тренер"):
		return ZTR
	case strings.Contains(s, "гроссмейстер"):
		return GM
	case strings.Contains(s, "мастер") && strings.Contains(s, "спорт"):
		return MS
	}

	return ""
}

// normalizeText lowercases, maps ё to е, drops the numero sign and collapses
// whitespace (incl. newlines from OCR line wraps).
func normalizeText(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "ё", "е")
	s = strings.ReplaceAll(s, "№", " ")
	return strings.Join(strings.Fields(s), " ")
}
