package ocr

import "regexp"

// Readable characters: Cyrillic, Latin, digits and common document
// punctuation. Everything else is treated as OCR noise.
var readableRe = regexp.MustCompile(`[А-ЯЁа-яёA-Za-z0-9\s.,;:\-()"'«»№/]`)

func countReadable(text string) int {
	return len(readableRe.FindAllString(text, -1))
}

// readableRatio is readable characters over total characters.
func readableRatio(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	return float64(countReadable(text)) / float64(len(runes))
}
