// Package extract parses order text into per-person award records. Two
// extractors share one contract: a remote-model extractor (primary) and a
// deterministic rule-based extractor (fallback).
package extract

import (
	"context"

	"github.com/maxim/sportrank/internal/models"
)

// Meta carries document-level attributes into the extractors.
type Meta struct {
	SourceCode  string
	IssuingBody string
	OrderDate   string // dd.mm.yyyy
	OrderNumber string
}

// Record is one extracted person-and-award entry. Sport and rank hold the
// values as extracted; canonical normalization happens in the pipeline.
type Record struct {
	Fio                  string
	BirthDate            string // dd.mm.yyyy
	IasID                *int
	SubmissionNumber     string
	Kind                 string // models.Assignment* value
	RankCategory         string
	RankCategoryOriginal string
	Action               string // models.Action* value
	Sport                string
	SportOriginal        string
	SportID              *int
	Confidence           float64
	ExtractorTag         string
	Extras               map[string]interface{}
}

// SetExtra lazily initializes the extras map.
func (r *Record) SetExtra(key string, value interface{}) {
	if r.Extras == nil {
		r.Extras = make(map[string]interface{})
	}
	r.Extras[key] = value
}

// Extractor is the shared contract of the rule-based and model-based paths.
type Extractor interface {
	Extract(ctx context.Context, text string, meta Meta) ([]Record, error)
}

func validKind(k string) bool {
	switch k {
	case models.AssignmentSportRank, models.AssignmentJudgeCategory,
		models.AssignmentSpecialistCategory, models.AssignmentCoachCategory,
		models.AssignmentHonoraryTitle:
		return true
	}
	return false
}

func validAction(a string) bool {
	switch a {
	case models.ActionAssignment, models.ActionConfirmation, models.ActionRefusal,
		models.ActionRevocation, models.ActionRestoration:
		return true
	}
	return false
}
