package models

import (
	"time"

	"github.com/google/uuid"
)

// Source is the stored mirror of a registry source plus runtime check state.
type Source struct {
	ID              uuid.UUID              `json:"id"`
	Code            string                 `json:"code"`
	Name            string                 `json:"name"`
	Region          string                 `json:"region"`
	SourceType      string                 `json:"source_type"` // pdf_portal | json_embed | html_table
	RiskClass       string                 `json:"risk_class"`  // green | amber | red
	Active          bool                   `json:"active"`
	DiscoveryConfig map[string]interface{} `json:"discovery_config"`
	OfficialBasis   string                 `json:"official_basis"`
	LastPageHash    string                 `json:"last_page_hash"`
	LastETag        string                 `json:"last_etag"`
	LastCheckedAt   *time.Time             `json:"last_checked_at"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ProcessingLog is one append-only pipeline event.
type ProcessingLog struct {
	ID        uuid.UUID              `json:"id"`
	OrderID   *uuid.UUID             `json:"order_id"`
	SourceID  *uuid.UUID             `json:"source_id"`
	Level     string                 `json:"level"` // info | warn | error
	Stage     string                 `json:"stage"` // change_detection | download | ocr | extract | normalize | save
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}
