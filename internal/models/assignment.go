package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment kinds as stored in the assignments table.
const (
	AssignmentSportRank         = "sport_rank"
	AssignmentJudgeCategory     = "judge_category"
	AssignmentSpecialistCategory = "specialist_category"
	AssignmentCoachCategory     = "coach_category"
	AssignmentHonoraryTitle     = "honorary_title"
)

// Assignment actions.
const (
	ActionAssignment   = "assignment"
	ActionConfirmation = "confirmation"
	ActionRefusal      = "refusal"
	ActionRevocation   = "revocation"
	ActionRestoration  = "restoration"
)

// Assignment is one person-and-award record extracted from an order.
type Assignment struct {
	ID               uuid.UUID              `json:"id"`
	OrderID          uuid.UUID              `json:"order_id"`
	Fio              string                 `json:"fio"`
	FioNormalized    string                 `json:"fio_normalized"`
	BirthDate        *time.Time             `json:"birth_date"`
	BirthDateRaw     string                 `json:"birth_date_raw"`
	IasID            *int                   `json:"ias_id"`
	SubmissionNumber string                 `json:"submission_number"`
	AssignmentType   string                 `json:"assignment_type"`
	RankCategory     string                 `json:"rank_category"`
	Sport            string                 `json:"sport"`
	SportOriginal    string                 `json:"sport_original"`
	SportID          *int                   `json:"sport_id"`
	Action           string                 `json:"action"`
	ExtraFields      map[string]interface{} `json:"extra_fields"`
	ExtractorTag     string                 `json:"llm_model"`
	Confidence       float64                `json:"confidence"`
	CreatedAt        time.Time              `json:"created_at"`
}
