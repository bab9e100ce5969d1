package sports

import "strings"

// trigrams returns the set of letter trigrams of s (padded with spaces so
// short names still produce a useful set).
func trigrams(s string) map[string]bool {
	r := []rune(" " + s + " ")
	set := make(map[string]bool)
	for i := 0; i+3 <= len(r); i++ {
		set[string(r[i:i+3])] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// similarity is the deterministic fuzzy score: trigram Jaccard plus a +0.15
// bonus for substring containment and up to +0.10 for length ratio, capped
// at 1.0. Both inputs are expected to be folded already.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	score := jaccard(trigrams(a), trigrams(b))

	if strings.Contains(a, b) || strings.Contains(b, a) {
		score += 0.15
	}

	la, lb := len([]rune(a)), len([]rune(b))
	if la > 0 && lb > 0 {
		ratio := float64(la) / float64(lb)
		if ratio > 1 {
			ratio = 1 / ratio
		}
		score += 0.10 * ratio
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
