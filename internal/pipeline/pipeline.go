// Package pipeline wires change detection, download, recognition, extraction
// and persistence into one order-processing flow.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maxim/sportrank/internal/db"
	"github.com/maxim/sportrank/internal/detect"
	"github.com/maxim/sportrank/internal/evsk"
	"github.com/maxim/sportrank/internal/extract"
	"github.com/maxim/sportrank/internal/fetch"
	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/ocr"
	"github.com/maxim/sportrank/internal/registry"
	"github.com/maxim/sportrank/internal/sports"
)

// Pipeline stages.
const (
	StageDetect   = "change_detection"
	StageDownload = "download"
	StageDedup    = "dedup"
	StageOCR      = "ocr"
	StageExtract  = "extract"
	StageSave     = "save"
)

// Step statuses.
const (
	StepOK      = "ok"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// StepResult is one stage outcome inside a Result.
type StepResult struct {
	Stage    string        `json:"stage"`
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of processing one document.
type Result struct {
	OrderID     uuid.UUID           `json:"order_id,omitempty"`
	SourceCode  string              `json:"source_code"`
	FileHash    string              `json:"file_hash,omitempty"`
	PageCount   int                 `json:"page_count"`
	OCRMethod   string              `json:"ocr_method,omitempty"`
	OCRConf     float64             `json:"ocr_confidence"`
	Records     int                 `json:"records"`
	Assignments []models.Assignment `json:"assignments,omitempty"`
	Steps       []StepResult        `json:"steps"`
}

func (r *Result) step(stage, status, message string, started time.Time) {
	r.Steps = append(r.Steps, StepResult{
		Stage:    stage,
		Status:   status,
		Message:  message,
		Duration: time.Since(started),
	})
}

// Pipeline holds the stage components. A nil Store runs every stage except
// persistence (dry-run mode, used by the file tools).
type Pipeline struct {
	Registry   *registry.Registry
	Downloader *fetch.Downloader
	Detector   *detect.Detector
	Engine     *ocr.Engine
	Extractor  extract.Extractor
	Sports     *sports.Normalizer
	Store      *db.Store

	sourceIDs map[string]uuid.UUID
}

// New wires the default stage components around a registry. store may be
// nil for dry-run use, norm may be nil when the sport registry is not
// loaded. The downloader writes under DATA_DIR (default data/orders).
func New(reg *registry.Registry, store *db.Store, norm *sports.Normalizer) *Pipeline {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = "data/orders"
	}

	// One shared browser instance serves both listing checks and downloads.
	browser := fetch.NewBrowserFetcher(reg)
	var state detect.State
	if store != nil {
		state = store
	}

	var primary extract.Extractor
	if llm := extract.NewLLMExtractor(); llm != nil {
		primary = llm
	}

	return &Pipeline{
		Registry: reg,
		Downloader: &fetch.Downloader{
			HTTP:    fetch.NewHTTPFetcher(reg),
			Browser: browser,
			Dir:     dir,
		},
		Detector:   detect.NewDetector(reg, browser, state),
		Engine:     ocr.NewEngine(ocr.NewVisionOCR()),
		Extractor: &extract.Fallback{
			Primary:   primary,
			Secondary: extract.NewRuleExtractor(norm),
		},
		Sports: norm,
		Store:  store,
	}
}

// LoadNormalizer builds the sport normalizer, preferring the registry
// stored in the database and falling back to the spreadsheet that
// SPORT_REGISTRY_PATH points to. Returns nil when neither is available.
func LoadNormalizer(ctx context.Context, store *db.Store) *sports.Normalizer {
	if store != nil {
		entries, err := store.LoadSportEntries(ctx)
		if err != nil {
			log.Printf("[pipeline] failed to load sport registry from database: %v", err)
		}
		if len(entries) > 0 {
			list := make([]sports.Sport, 0, len(entries))
			for _, e := range entries {
				list = append(list, sports.Sport{
					ID:          e.ID,
					CodeBase:    e.CodeBase,
					CodeFull:    e.CodeFull,
					Section:     e.Section,
					Name:        e.Name,
					Disciplines: e.Disciplines,
				})
			}
			log.Printf("[pipeline] loaded %d sports from database", len(list))
			return sports.NewNormalizer(list)
		}
	}

	if path := os.Getenv("SPORT_REGISTRY_PATH"); path != "" {
		list, err := sports.LoadRegistryFile(path)
		if err != nil {
			log.Printf("[pipeline] failed to load sport registry from %s: %v", path, err)
			return nil
		}
		log.Printf("[pipeline] loaded %d sports from %s", len(list), path)
		return sports.NewNormalizer(list)
	}

	log.Printf("[pipeline] no sport registry available, normalization disabled")
	return nil
}

// Close releases the shared browser.
func (p *Pipeline) Close() {
	if p.Downloader != nil {
		p.Downloader.Close()
	}
}

// EnsureSources mirrors the registry into the database and caches the ids.
// Required before any persisting operation; a no-op without a store.
func (p *Pipeline) EnsureSources(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	seeds := make([]db.SourceSeed, 0)
	for _, src := range p.Registry.All() {
		seeds = append(seeds, db.SourceSeed{
			Code:       src.Code,
			Name:       src.Name,
			Region:     src.Meta.Region,
			SourceType: src.Detect.SourceType,
			RiskClass:  src.RiskClass,
			Active:     src.Active,
			DiscoveryConfig: map[string]interface{}{
				"list_urls":  src.Detect.ListURLs,
				"link_regex": src.Detect.LinkRegex,
				"method":     src.Download.Method,
			},
			OfficialBasis: src.Meta.OfficialBasis,
		})
	}
	ids, err := p.Store.SyncSources(ctx, seeds)
	if err != nil {
		return fmt.Errorf("sync sources: %w", err)
	}
	p.sourceIDs = ids
	return nil
}

func (p *Pipeline) sourceID(code string) (uuid.UUID, bool) {
	id, ok := p.sourceIDs[code]
	return id, ok
}

// CheckSources runs change detection over every active source and enqueues
// an order row for each newly discovered document.
func (p *Pipeline) CheckSources(ctx context.Context) ([]detect.CheckResult, error) {
	if p.Detector == nil {
		return nil, fmt.Errorf("no detector configured")
	}
	if err := p.EnsureSources(ctx); err != nil {
		return nil, err
	}

	results := p.Detector.CheckAll(ctx)
	for _, res := range results {
		if res.Status == detect.StatusError || res.Status == detect.StatusSkipped {
			continue
		}
		src, ok := p.Registry.ByCode(res.SourceCode)
		if !ok {
			continue
		}
		if p.Store != nil {
			if err := p.Store.UpdateSourceCheck(ctx, res.SourceCode, res.PageHash, res.ETag); err != nil {
				log.Printf("[pipeline] %s: %v", res.SourceCode, err)
			}
		}
		for _, doc := range res.NewDocs {
			if err := p.enqueueDoc(ctx, src, doc); err != nil {
				log.Printf("[pipeline] %s: enqueue %s: %v", res.SourceCode, doc.URL, err)
			}
		}
	}
	return results, nil
}

func (p *Pipeline) enqueueDoc(ctx context.Context, src *registry.SourceConfig, doc detect.DocLink) error {
	if p.Store == nil {
		log.Printf("[pipeline] %s: discovered %s (dry run, not enqueued)", src.Code, doc.URL)
		return nil
	}
	srcID, ok := p.sourceID(src.Code)
	if !ok {
		return fmt.Errorf("unknown source %s", src.Code)
	}
	// The listing wording beats the source default: some portals publish
	// both приказы and распоряжения on one page.
	orderType := doc.OrderType
	if orderType == "" {
		orderType = src.Meta.OrderType
	}
	order := &models.Order{
		SourceID:    srcID,
		SourceCode:  src.Code,
		OrderNumber: doc.OrderNumber,
		OrderDate:   doc.OrderDate,
		OrderType:   orderType,
		Title:       doc.Title,
		FileURL:     doc.URL,
		Status:      models.OrderStatusNew,
	}
	created, err := p.Store.GetOrCreateOrder(ctx, order)
	if err != nil {
		return err
	}
	if created {
		log.Printf("[pipeline] %s: enqueued %s", src.Code, doc.URL)
		p.logStage(ctx, order, "info", StageDetect, "new document discovered", map[string]interface{}{"url": doc.URL})
	}
	return nil
}

// ProcessURL downloads one document and runs the full flow on it.
func (p *Pipeline) ProcessURL(ctx context.Context, sourceCode, fileURL string) (*Result, error) {
	src, ok := p.Registry.ByCode(sourceCode)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceCode)
	}
	if err := p.EnsureSources(ctx); err != nil {
		return nil, err
	}

	result := &Result{SourceCode: sourceCode}
	started := time.Now()
	data, err := p.Downloader.Download(ctx, *src, fileURL)
	if err != nil {
		result.step(StageDownload, StepFailed, err.Error(), started)
		return result, fmt.Errorf("download: %w", err)
	}
	result.step(StageDownload, StepOK, fmt.Sprintf("%d bytes", len(data)), started)

	order := &models.Order{
		SourceCode: sourceCode,
		OrderType:  src.Meta.OrderType,
		FileURL:    fileURL,
	}
	return p.processDocument(ctx, src, order, data, result)
}

// ProcessFile runs the flow on a local PDF, without download or enqueueing.
func (p *Pipeline) ProcessFile(ctx context.Context, sourceCode, path string) (*Result, error) {
	src, ok := p.Registry.ByCode(sourceCode)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceCode)
	}
	if err := p.EnsureSources(ctx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	result := &Result{SourceCode: sourceCode}
	order := &models.Order{
		SourceCode: sourceCode,
		OrderType:  src.Meta.OrderType,
		FileURL:    "file://" + path,
	}
	return p.processDocument(ctx, src, order, data, result)
}

// ProcessBytes runs the flow on an in-memory PDF. Used by the admin
// test endpoint; never persists regardless of the store.
func (p *Pipeline) ProcessBytes(ctx context.Context, sourceCode string, data []byte) (*Result, error) {
	src, ok := p.Registry.ByCode(sourceCode)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceCode)
	}

	dry := *p
	dry.Store = nil
	result := &Result{SourceCode: sourceCode}
	order := &models.Order{
		SourceCode: sourceCode,
		OrderType:  src.Meta.OrderType,
	}
	return dry.processDocument(ctx, src, order, data, result)
}

// ProcessPending drains queued orders: downloads each file and runs
// recognition and extraction. Requires a store.
func (p *Pipeline) ProcessPending(ctx context.Context, limit int) ([]*Result, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("processing the queue requires a database")
	}
	if err := p.EnsureSources(ctx); err != nil {
		return nil, err
	}

	pending, err := p.Store.GetPendingOrders(ctx, limit)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for i := range pending {
		order := pending[i]
		res, err := p.processPendingOrder(ctx, &order)
		if err != nil {
			log.Printf("[pipeline] order %s: %v", order.ID, err)
			if uerr := p.Store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFailed, err.Error()); uerr != nil {
				log.Printf("[pipeline] order %s: mark failed: %v", order.ID, uerr)
			}
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, nil
}

func (p *Pipeline) processPendingOrder(ctx context.Context, order *models.Order) (*Result, error) {
	srcCode := order.SourceCode
	if srcCode == "" {
		if full, err := p.Store.GetOrder(ctx, order.ID); err == nil && full != nil {
			srcCode = full.SourceCode
		}
	}
	src, ok := p.Registry.ByCode(srcCode)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", srcCode)
	}

	result := &Result{SourceCode: srcCode, OrderID: order.ID}
	started := time.Now()
	data, err := p.Downloader.Download(ctx, *src, order.FileURL)
	if err != nil {
		result.step(StageDownload, StepFailed, err.Error(), started)
		p.logStage(ctx, order, "error", StageDownload, err.Error(), nil)
		return result, fmt.Errorf("download: %w", err)
	}
	result.step(StageDownload, StepOK, fmt.Sprintf("%d bytes", len(data)), started)

	// Record the fetch before recognition starts, so a later OCR or
	// extraction crash leaves the order resumable from the stored hash.
	order.FileHash = fetch.FileHash(data)
	order.Status = models.OrderStatusDownloaded
	if err := p.Store.MarkOrderDownloaded(ctx, order.ID, order.FileHash); err != nil {
		log.Printf("[pipeline] order %s: mark downloaded: %v", order.ID, err)
	}
	return p.processDocument(ctx, src, order, data, result)
}

// Reprocess re-runs recognition and extraction for a stored order.
func (p *Pipeline) Reprocess(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("reprocess requires a database")
	}
	if err := p.EnsureSources(ctx); err != nil {
		return nil, err
	}
	order, err := p.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if err := p.Store.UpdateOrderStatus(ctx, orderID, models.OrderStatusNew, ""); err != nil {
		return nil, err
	}
	return p.processPendingOrder(ctx, order)
}

// processDocument runs recognition, extraction and persistence on a
// downloaded PDF. The order may or may not exist in the store yet.
func (p *Pipeline) processDocument(ctx context.Context, src *registry.SourceConfig, order *models.Order, data []byte, result *Result) (*Result, error) {
	order.FileHash = fetch.FileHash(data)
	result.FileHash = order.FileHash

	if p.Store != nil {
		if skipped, err := p.shortCircuit(ctx, src, order, result); err != nil {
			return result, err
		} else if skipped {
			return result, nil
		}
		if p.Downloader != nil && p.Downloader.Dir != "" {
			if _, err := p.Downloader.Save(data); err != nil {
				log.Printf("[pipeline] save file: %v", err)
			}
		}
	}

	started := time.Now()
	ocrRes, err := p.Engine.Process(ctx, data)
	if err != nil {
		result.step(StageOCR, StepFailed, err.Error(), started)
		p.logStage(ctx, order, "error", StageOCR, err.Error(), nil)
		p.markFailed(ctx, order, fmt.Sprintf("ocr: %v", err))
		return result, fmt.Errorf("ocr: %w", err)
	}
	result.PageCount = ocrRes.PageCount
	result.OCRMethod = ocrRes.Method
	result.OCRConf = ocrRes.Confidence
	order.PageCount = ocrRes.PageCount
	order.OCRMethod = ocrRes.Method
	order.OCRConfidence = ocrRes.Confidence
	result.step(StageOCR, StepOK, fmt.Sprintf("%d pages via %s (%.2f)", ocrRes.PageCount, ocrRes.Method, ocrRes.Confidence), started)

	if p.Store != nil && order.ID != uuid.Nil {
		if err := p.Store.UpdateOrderOCR(ctx, order.ID, order.PageCount, order.OCRMethod, order.OCRConfidence); err != nil {
			log.Printf("[pipeline] order %s: %v", order.ID, err)
		}
	}

	started = time.Now()
	meta := extract.Meta{
		SourceCode:  src.Code,
		IssuingBody: src.Meta.IssuingBody,
		OrderDate:   order.OrderDate,
		OrderNumber: order.OrderNumber,
	}
	records, err := p.Extractor.Extract(ctx, ocrRes.Text, meta)
	if err != nil {
		result.step(StageExtract, StepFailed, err.Error(), started)
		p.logStage(ctx, order, "error", StageExtract, err.Error(), nil)
		p.markFailed(ctx, order, fmt.Sprintf("extract: %v", err))
		return result, fmt.Errorf("extract: %w", err)
	}
	result.Records = len(records)
	result.step(StageExtract, StepOK, fmt.Sprintf("%d records", len(records)), started)

	assignments := make([]models.Assignment, 0, len(records))
	for _, rec := range records {
		assignments = append(assignments, p.toAssignment(rec))
	}
	result.Assignments = assignments

	started = time.Now()
	if p.Store == nil {
		result.step(StageSave, StepSkipped, "dry run", started)
		return result, nil
	}

	if order.ID == uuid.Nil {
		srcID, ok := p.sourceID(src.Code)
		if !ok {
			return result, fmt.Errorf("unknown source %s", src.Code)
		}
		order.SourceID = srcID
		order.Status = models.OrderStatusDownloaded
		if _, err := p.Store.GetOrCreateOrder(ctx, order); err != nil {
			result.step(StageSave, StepFailed, err.Error(), started)
			return result, err
		}
		if err := p.Store.UpdateOrderOCR(ctx, order.ID, order.PageCount, order.OCRMethod, order.OCRConfidence); err != nil {
			log.Printf("[pipeline] order %s: %v", order.ID, err)
		}
	}
	result.OrderID = order.ID

	if err := p.Store.SaveAssignments(ctx, order.ID, assignments); err != nil {
		result.step(StageSave, StepFailed, err.Error(), started)
		p.logStage(ctx, order, "error", StageSave, err.Error(), nil)
		return result, fmt.Errorf("save: %w", err)
	}
	result.step(StageSave, StepOK, fmt.Sprintf("%d assignments", len(assignments)), started)
	p.logStage(ctx, order, "info", StageSave, fmt.Sprintf("saved %d assignments", len(assignments)), map[string]interface{}{
		"ocr_method":     order.OCRMethod,
		"ocr_confidence": order.OCRConfidence,
	})
	return result, nil
}

// shortCircuit skips documents whose content was already extracted.
func (p *Pipeline) shortCircuit(ctx context.Context, src *registry.SourceConfig, order *models.Order, result *Result) (bool, error) {
	started := time.Now()
	if order.ID == uuid.Nil {
		srcID, ok := p.sourceID(src.Code)
		if !ok {
			return false, fmt.Errorf("unknown source %s", src.Code)
		}
		order.SourceID = srcID
		order.Status = models.OrderStatusDownloaded
		created, err := p.Store.GetOrCreateOrder(ctx, order)
		if err != nil {
			return false, err
		}
		result.OrderID = order.ID
		if !created {
			existing, err := p.Store.GetOrder(ctx, order.ID)
			if err != nil {
				return false, err
			}
			if existing != nil && (existing.Status == models.OrderStatusExtracted || existing.Status == models.OrderStatusApproved) {
				result.Records = existing.RecordCount
				result.step(StageDedup, StepSkipped, "document already extracted", started)
				log.Printf("[pipeline] %s: file %s already extracted, skipping", src.Code, order.FileHash[:16])
				return true, nil
			}
		}
	}
	return false, nil
}

func (p *Pipeline) markFailed(ctx context.Context, order *models.Order, message string) {
	if p.Store == nil || order.ID == uuid.Nil {
		return
	}
	if err := p.Store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFailed, message); err != nil {
		log.Printf("[pipeline] order %s: mark failed: %v", order.ID, err)
	}
}

func (p *Pipeline) logStage(ctx context.Context, order *models.Order, level, stage, message string, details map[string]interface{}) {
	if p.Store == nil {
		return
	}
	entry := models.ProcessingLog{Level: level, Stage: stage, Message: message, Details: details}
	if order.ID != uuid.Nil {
		id := order.ID
		entry.OrderID = &id
	}
	if order.SourceID != uuid.Nil {
		id := order.SourceID
		entry.SourceID = &id
	}
	if err := p.Store.LogProcessing(ctx, entry); err != nil {
		log.Printf("[pipeline] log stage %s: %v", stage, err)
	}
}

// toAssignment converts an extracted record into a stored assignment,
// normalizing the sport against the register and the rank against the
// unified vocabulary.
func (p *Pipeline) toAssignment(rec extract.Record) models.Assignment {
	a := models.Assignment{
		Fio:              rec.Fio,
		FioNormalized:    normalizeFio(rec.Fio),
		BirthDateRaw:     rec.BirthDate,
		IasID:            rec.IasID,
		SubmissionNumber: rec.SubmissionNumber,
		AssignmentType:   rec.Kind,
		RankCategory:     rec.RankCategory,
		Sport:            rec.Sport,
		SportOriginal:    rec.SportOriginal,
		SportID:          rec.SportID,
		Action:           rec.Action,
		ExtraFields:      rec.Extras,
		ExtractorTag:     rec.ExtractorTag,
		Confidence:       rec.Confidence,
	}
	if a.SportOriginal == "" {
		a.SportOriginal = rec.Sport
	}

	if t, err := time.Parse("02.01.2006", rec.BirthDate); err == nil {
		a.BirthDate = &t
	}

	if canon, conf := evsk.NormalizeRank(rec.RankCategory); canon != "" && conf > 0 {
		a.RankCategory = canon
	}
	// The document wording survives normalization for audit and review.
	original := rec.RankCategoryOriginal
	if original == "" {
		original = rec.RankCategory
	}
	if original != "" && original != a.RankCategory {
		setExtra(&a, "rank_category_original", original)
	}

	if p.Sports != nil && rec.Sport != "" && rec.SportID == nil {
		match := p.Sports.Normalize(rec.Sport)
		if match.Method != sports.MethodNone {
			a.Sport = match.Canonical
			a.SportID = &match.SportID
			if match.NeedsReview {
				setExtra(&a, "sport_needs_review", true)
				setExtra(&a, "sport_match_confidence", match.Confidence)
			}
		} else {
			setExtra(&a, "sport_not_found", true)
		}
	}
	return a
}

func setExtra(a *models.Assignment, key string, value interface{}) {
	if a.ExtraFields == nil {
		a.ExtraFields = make(map[string]interface{})
	}
	a.ExtraFields[key] = value
}

// normalizeFio lowercases a name and folds ё for stable trigram search.
func normalizeFio(fio string) string {
	s := strings.ToLower(strings.Join(strings.Fields(fio), " "))
	return strings.ReplaceAll(s, "ё", "е")
}
