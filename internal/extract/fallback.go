package extract

import (
	"context"
	"log"
)

// Fallback runs the primary extractor and falls back to the secondary when
// the primary is nil, errors, or returns nothing.
type Fallback struct {
	Primary   Extractor
	Secondary Extractor
}

func (f *Fallback) Extract(ctx context.Context, text string, meta Meta) ([]Record, error) {
	if f.Primary != nil {
		records, err := f.Primary.Extract(ctx, text, meta)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			log.Printf("[extract] primary extractor failed, using fallback: %v", err)
		}
	}
	if f.Secondary == nil {
		return nil, nil
	}
	return f.Secondary.Extract(ctx, text, meta)
}
