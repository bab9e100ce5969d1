// Package sports matches free-form sport names against the canonical
// national registry via an exact / alias / case-normalized / fuzzy cascade.
package sports

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sport is one entry of the canonical registry.
type Sport struct {
	ID          int
	CodeBase    int
	CodeFull    string
	Section     int // 1 recognized, 2 all-Russian, 3 national, 4 applied
	Name        string
	Disciplines []string
}

// Match methods, most confident first.
const (
	MethodExact          = "exact"
	MethodAlias          = "alias"
	MethodCaseNormalized = "case_normalized"
	MethodFuzzy          = "fuzzy"
	MethodNone           = "none"
)

// Alternative is a fuzzy runner-up kept for operator review.
type Alternative struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Match is the result of a normalization lookup.
type Match struct {
	Canonical    string        `json:"canonical"`
	SportID      int           `json:"sport_id"`
	Confidence   float64       `json:"confidence"`
	Method       string        `json:"method"`
	NeedsReview  bool          `json:"needs_review"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Found reports whether a canonical name was resolved.
func (m Match) Found() bool { return m.Canonical != "" }

// Curated alternates and historically-retired names. Keys are folded.
var curatedAliases = map[string]string{
	"КИОКУШИН":          "Киокусинкай",
	"КИОКУШИНКАЙ":       "Киокусинкай",
	"БОРЬБА САМБО":      "Самбо",
	"ВОЛЬНАЯ БОРЬБА":    "Спортивная борьба",
	"ГРЕКО-РИМСКАЯ БОРЬБА": "Спортивная борьба",
	"ШАХМАТЫ КЛАССИЧЕСКИЕ": "Шахматы",
}

type candidate struct {
	name  string // display form
	fold  string
	sport *Sport
}

// Normalizer resolves free-form sport names. Safe for concurrent use after
// construction; operator aliases and the memo table take the mutex.
type Normalizer struct {
	AutoThreshold   float64
	ReviewThreshold float64

	sports []Sport
	byName map[string]*Sport // exact current names
	byFold map[string]*Sport

	mu         sync.RWMutex
	aliasRaw   map[string]*Sport
	aliasFold  map[string]*Sport
	memo       map[string]Match
	candidates []candidate // grows with operator aliases, guarded by mu
}

// NewNormalizer indexes the given registry entries.
func NewNormalizer(entries []Sport) *Normalizer {
	n := &Normalizer{
		AutoThreshold:   0.85,
		ReviewThreshold: 0.70,
		sports:          entries,
		byName:          make(map[string]*Sport, len(entries)),
		byFold:          make(map[string]*Sport, len(entries)),
		aliasRaw:        make(map[string]*Sport),
		aliasFold:       make(map[string]*Sport),
		memo:            make(map[string]Match),
	}

	for i := range n.sports {
		s := &n.sports[i]
		n.byName[s.Name] = s
		n.byFold[Fold(s.Name)] = s
		n.candidates = append(n.candidates, candidate{name: s.Name, fold: Fold(s.Name), sport: s})
	}

	for alias, canonical := range curatedAliases {
		if s, ok := n.byFold[Fold(canonical)]; ok {
			n.aliasRaw[alias] = s
			n.aliasFold[Fold(alias)] = s
			n.candidates = append(n.candidates, candidate{name: alias, fold: Fold(alias), sport: s})
		}
	}

	return n
}

var foldStrip = regexp.MustCompile(`[^\pL\pN\s-]`)

// Fold uppercases, maps Ё to Е, strips non-word characters (keeping hyphens)
// and collapses whitespace.
func Fold(s string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	u = strings.ReplaceAll(u, "Ё", "Е")
	u = foldStrip.ReplaceAllString(u, "")
	return strings.Join(strings.Fields(u), " ")
}

// Normalize resolves name through the match cascade. Results are memoized.
func (n *Normalizer) Normalize(name string) Match {
	name = strings.TrimSpace(name)
	if name == "" {
		return Match{Method: MethodNone}
	}

	n.mu.RLock()
	if m, ok := n.memo[name]; ok {
		n.mu.RUnlock()
		return m
	}
	n.mu.RUnlock()

	m := n.lookup(name)

	n.mu.Lock()
	n.memo[name] = m
	n.mu.Unlock()
	return m
}

func (n *Normalizer) lookup(name string) Match {
	if s, ok := n.byName[name]; ok {
		return Match{Canonical: s.Name, SportID: s.ID, Confidence: 1.0, Method: MethodExact}
	}

	n.mu.RLock()
	aliasHit, aliasOK := n.aliasRaw[name]
	n.mu.RUnlock()
	if aliasOK {
		return Match{Canonical: aliasHit.Name, SportID: aliasHit.ID, Confidence: 0.98, Method: MethodAlias}
	}

	fold := Fold(name)
	if s, ok := n.byFold[fold]; ok {
		return Match{Canonical: s.Name, SportID: s.ID, Confidence: 0.95, Method: MethodCaseNormalized}
	}

	n.mu.RLock()
	aliasHit, aliasOK = n.aliasFold[fold]
	n.mu.RUnlock()
	if aliasOK {
		return Match{Canonical: aliasHit.Name, SportID: aliasHit.ID, Confidence: 0.95, Method: MethodAlias}
	}

	return n.fuzzy(fold)
}

func (n *Normalizer) fuzzy(fold string) Match {
	type scored struct {
		candidate
		score float64
	}

	n.mu.RLock()
	ranked := make([]scored, 0, len(n.candidates))
	for _, c := range n.candidates {
		ranked = append(ranked, scored{c, similarity(fold, c.fold)})
	}
	n.mu.RUnlock()
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	var alts []Alternative
	for i := 1; i < len(ranked) && i <= 3; i++ {
		alts = append(alts, Alternative{Name: ranked[i].name, Score: round3(ranked[i].score)})
	}

	if len(ranked) == 0 {
		return Match{Method: MethodNone}
	}

	best := ranked[0]
	switch {
	case best.score >= n.AutoThreshold:
		return Match{
			Canonical: best.sport.Name, SportID: best.sport.ID,
			Confidence: round3(best.score), Method: MethodFuzzy, Alternatives: alts,
		}
	case best.score >= n.ReviewThreshold:
		return Match{
			Canonical: best.sport.Name, SportID: best.sport.ID,
			Confidence: round3(best.score), Method: MethodFuzzy, NeedsReview: true, Alternatives: alts,
		}
	default:
		return Match{
			Method: MethodNone, Confidence: round3(best.score),
			Alternatives: append([]Alternative{{Name: best.name, Score: round3(best.score)}}, alts...),
		}
	}
}

// Score returns the best fuzzy similarity of name against the registry
// without threshold gating. Used by the section parser to detect sport
// header lines.
func (n *Normalizer) Score(name string) float64 {
	fold := Fold(name)
	if fold == "" {
		return 0
	}
	if _, ok := n.byFold[fold]; ok {
		return 1.0
	}
	best := 0.0
	n.mu.RLock()
	for _, c := range n.candidates {
		if s := similarity(fold, c.fold); s > best {
			best = s
		}
	}
	n.mu.RUnlock()
	return best
}

// SetNameLifetime registers old as an alias of newCanonical for future
// matching. validTo is recorded for audit only and does not gate matching.
func (n *Normalizer) SetNameLifetime(old string, validTo time.Time, newCanonical string) bool {
	s, ok := n.byFold[Fold(newCanonical)]
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.aliasRaw[old] = s
	n.aliasFold[Fold(old)] = s
	n.candidates = append(n.candidates, candidate{name: old, fold: Fold(old), sport: s})
	// Memoized misses may now resolve; start fresh.
	n.memo = make(map[string]Match)
	return true
}

// Sports returns the indexed registry entries.
func (n *Normalizer) Sports() []Sport { return n.sports }

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
