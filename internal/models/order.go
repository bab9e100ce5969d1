package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. Lifecycle: new -> downloaded -> extracted -> approved|rejected.
// "failed" is reachable from any non-terminal state; reprocess re-enters "new".
const (
	OrderStatusNew        = "new"
	OrderStatusDownloaded = "downloaded"
	OrderStatusExtracted  = "extracted"
	OrderStatusApproved   = "approved"
	OrderStatusRejected   = "rejected"
	OrderStatusFailed     = "failed"
)

type Order struct {
	ID            uuid.UUID  `json:"id"`
	SourceID      uuid.UUID  `json:"source_id"`
	SourceCode    string     `json:"source_code"`
	OrderNumber   string     `json:"order_number"`
	OrderDate     string     `json:"order_date"` // dd.mm.yyyy as published
	OrderType     string     `json:"order_type"` // order | directive
	Title         string     `json:"title"`
	SourceURL     string     `json:"source_url"`
	FileURL       string     `json:"file_url"`
	FileHash      string     `json:"file_hash"`
	Status        string     `json:"status"`
	PageCount     int        `json:"page_count"`
	OCRMethod     string     `json:"ocr_method"`
	OCRConfidence float64    `json:"ocr_confidence"`
	ErrorMessage  string     `json:"error_message"`
	RecordCount   int        `json:"record_count"`
	CreatedAt     time.Time  `json:"created_at"`
	ExtractedAt   *time.Time `json:"extracted_at"`
}
