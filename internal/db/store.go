package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maxim/sportrank/internal/models"
)

// maxLogMessage caps a processing_log message.
const maxLogMessage = 2000

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ---- sources ----

// SourceSeed is what the registry provides when mirroring a source into the
// database.
type SourceSeed struct {
	Code            string
	Name            string
	Region          string
	SourceType      string
	RiskClass       string
	Active          bool
	DiscoveryConfig map[string]interface{}
	OfficialBasis   string
}

// SyncSources upserts the configured sources and returns code -> id. Check
// state columns are left untouched on conflict.
func (s *Store) SyncSources(ctx context.Context, seeds []SourceSeed) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(seeds))
	for _, seed := range seeds {
		cfg, err := json.Marshal(seed.DiscoveryConfig)
		if err != nil {
			return nil, fmt.Errorf("encode discovery config for %s: %w", seed.Code, err)
		}
		var id uuid.UUID
		err = s.pool.QueryRow(ctx, `
			INSERT INTO registry_sources (code, name, region, source_type, risk_class, active, discovery_config, official_basis)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				region = EXCLUDED.region,
				source_type = EXCLUDED.source_type,
				risk_class = EXCLUDED.risk_class,
				active = EXCLUDED.active,
				discovery_config = EXCLUDED.discovery_config,
				official_basis = EXCLUDED.official_basis,
				updated_at = NOW()
			RETURNING id
		`, seed.Code, seed.Name, seed.Region, seed.SourceType, seed.RiskClass, seed.Active, cfg, seed.OfficialBasis).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert source %s: %w", seed.Code, err)
		}
		ids[seed.Code] = id
	}
	return ids, nil
}

const sourceCols = `id, code, name, region, source_type, risk_class, active,
	discovery_config, official_basis, last_page_hash, last_etag, last_checked_at,
	created_at, updated_at`

func scanSource(scan func(dest ...interface{}) error) (models.Source, error) {
	var src models.Source
	var cfgRaw []byte
	err := scan(
		&src.ID, &src.Code, &src.Name, &src.Region, &src.SourceType, &src.RiskClass, &src.Active,
		&cfgRaw, &src.OfficialBasis, &src.LastPageHash, &src.LastETag, &src.LastCheckedAt,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return src, err
	}
	if len(cfgRaw) > 0 {
		_ = json.Unmarshal(cfgRaw, &src.DiscoveryConfig)
	}
	return src, nil
}

func (s *Store) GetSourceByCode(ctx context.Context, code string) (*models.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceCols+` FROM registry_sources WHERE code = $1`, code)
	src, err := scanSource(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", code, err)
	}
	return &src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceCols+` FROM registry_sources ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SetSourceActive flips a source on or off.
func (s *Store) SetSourceActive(ctx context.Context, code string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE registry_sources SET active = $2, updated_at = NOW() WHERE code = $1
	`, code, active)
	if err != nil {
		return fmt.Errorf("set source %s active: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s not found", code)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ErrDuplicateSource reports a create with an already-taken code.
var ErrDuplicateSource = errors.New("source code already exists")

// ErrSourceInUse reports a delete while orders still reference the source.
var ErrSourceInUse = errors.New("source has orders")

// CreateSource inserts one operator-defined source.
func (s *Store) CreateSource(ctx context.Context, seed SourceSeed) (*models.Source, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO registry_sources (code, name, region, source_type, risk_class, active, discovery_config, official_basis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING
	`, seed.Code, seed.Name, seed.Region, seed.SourceType, seed.RiskClass, seed.Active, seed.DiscoveryConfig, seed.OfficialBasis)
	if err != nil {
		return nil, fmt.Errorf("create source %s: %w", seed.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDuplicateSource
	}
	return s.GetSourceByCode(ctx, seed.Code)
}

// DeleteSource removes a source that has no orders.
func (s *Store) DeleteSource(ctx context.Context, code string) error {
	var orders int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE source_id = (SELECT id FROM registry_sources WHERE code = $1)
	`, code).Scan(&orders)
	if err != nil {
		return fmt.Errorf("count orders for %s: %w", code, err)
	}
	if orders > 0 {
		return fmt.Errorf("%w: %d orders reference %s", ErrSourceInUse, orders, code)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM registry_sources WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete source %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s not found", code)
	}
	return nil
}

// UpdateSourceCheck stores the fingerprint of the last successful check.
func (s *Store) UpdateSourceCheck(ctx context.Context, code, pageHash, etag string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE registry_sources
		SET last_page_hash = $2, last_etag = $3, last_checked_at = NOW(), updated_at = NOW()
		WHERE code = $1
	`, code, pageHash, etag)
	if err != nil {
		return fmt.Errorf("update source check %s: %w", code, err)
	}
	return nil
}

// LastPageHash implements the change-detector state contract.
func (s *Store) LastPageHash(ctx context.Context, code string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT last_page_hash FROM registry_sources WHERE code = $1`, code).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last page hash %s: %w", code, err)
	}
	return hash, nil
}

// KnownDocument reports whether a page or file URL was already ingested.
func (s *Store) KnownDocument(ctx context.Context, url string) (bool, error) {
	var known bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM orders WHERE file_url = $1 OR source_url = $1)
	`, url).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("check known document: %w", err)
	}
	return known, nil
}

// ---- orders ----

const orderCols = `id, source_id, order_number, order_date, order_type, title,
	source_url, file_url, file_hash, status, page_count, ocr_method, ocr_confidence,
	error_message, record_count, created_at, extracted_at`

func scanOrder(scan func(dest ...interface{}) error) (models.Order, error) {
	var o models.Order
	err := scan(
		&o.ID, &o.SourceID, &o.OrderNumber, &o.OrderDate, &o.OrderType, &o.Title,
		&o.SourceURL, &o.FileURL, &o.FileHash, &o.Status, &o.PageCount, &o.OCRMethod, &o.OCRConfidence,
		&o.ErrorMessage, &o.RecordCount, &o.CreatedAt, &o.ExtractedAt,
	)
	return o, err
}

// orderIdentityLookup builds the registry-identity dedup predicate
// (source, order number, order date). A partial identity yields no lookup.
func orderIdentityLookup(o *models.Order) (string, []interface{}, bool) {
	if o.SourceID == uuid.Nil || o.OrderNumber == "" || o.OrderDate == "" {
		return "", nil, false
	}
	return "source_id = $1 AND order_number = $2 AND order_date = $3",
		[]interface{}{o.SourceID, o.OrderNumber, o.OrderDate}, true
}

// GetOrCreateOrder inserts an order unless a row with the same file hash,
// or the same (source, order number, order date) identity, already exists.
// The order's ID is filled in either way; the boolean is true when a new
// row was created.
func (s *Store) GetOrCreateOrder(ctx context.Context, o *models.Order) (bool, error) {
	if o.FileHash != "" {
		var existing uuid.UUID
		err := s.pool.QueryRow(ctx, `SELECT id FROM orders WHERE file_hash = $1`, o.FileHash).Scan(&existing)
		if err == nil {
			o.ID = existing
			return false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("lookup order by hash: %w", err)
		}
	}

	if clause, args, ok := orderIdentityLookup(o); ok {
		var existing uuid.UUID
		err := s.pool.QueryRow(ctx, `SELECT id FROM orders WHERE `+clause, args...).Scan(&existing)
		if err == nil {
			o.ID = existing
			return false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("lookup order by identity: %w", err)
		}
	}

	if o.Status == "" {
		o.Status = models.OrderStatusNew
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (source_id, order_number, order_date, order_type, title,
			source_url, file_url, file_hash, status, page_count, ocr_method, ocr_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`, o.SourceID, o.OrderNumber, o.OrderDate, o.OrderType, o.Title,
		o.SourceURL, o.FileURL, o.FileHash, o.Status, o.PageCount, o.OCRMethod, o.OCRConfidence,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}
	return true, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+orderCols+`, (SELECT code FROM registry_sources WHERE id = orders.source_id)
		FROM orders WHERE id = $1
	`, id)

	var o models.Order
	var code *string
	err := row.Scan(
		&o.ID, &o.SourceID, &o.OrderNumber, &o.OrderDate, &o.OrderType, &o.Title,
		&o.SourceURL, &o.FileURL, &o.FileHash, &o.Status, &o.PageCount, &o.OCRMethod, &o.OCRConfidence,
		&o.ErrorMessage, &o.RecordCount, &o.CreatedAt, &o.ExtractedAt, &code,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if code != nil {
		o.SourceCode = *code
	}
	return &o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, error_message = $3 WHERE id = $1
	`, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// MarkOrderDownloaded records that the file for an order was fetched,
// together with the content hash of what actually came down.
func (s *Store) MarkOrderDownloaded(ctx context.Context, id uuid.UUID, fileHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, file_hash = $3, error_message = '' WHERE id = $1
	`, id, models.OrderStatusDownloaded, fileHash)
	if err != nil {
		return fmt.Errorf("mark order downloaded: %w", err)
	}
	return nil
}

// UpdateOrderOCR records the recognition outcome on the order row.
func (s *Store) UpdateOrderOCR(ctx context.Context, id uuid.UUID, pageCount int, method string, confidence float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET page_count = $2, ocr_method = $3, ocr_confidence = $4 WHERE id = $1
	`, id, pageCount, method, confidence)
	if err != nil {
		return fmt.Errorf("update order ocr: %w", err)
	}
	return nil
}

// GetPendingOrders returns orders awaiting extraction, oldest first.
func (s *Store) GetPendingOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE status IN ($1, $2)
		ORDER BY created_at
		LIMIT $3
	`, models.OrderStatusNew, models.OrderStatusDownloaded, limit)
	if err != nil {
		return nil, fmt.Errorf("pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OrderListParams filter the admin order listing.
type OrderListParams struct {
	SourceCode string
	Status     string
	Search     string // matches title and order number
	Limit      int
	Offset     int
}

// OrderListResult is one page of orders plus the unpaged total.
type OrderListResult struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// buildOrderFilter turns listing params into a WHERE clause and its args.
func buildOrderFilter(p OrderListParams) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.SourceCode != "" {
		where = append(where, "source_id = (SELECT id FROM registry_sources WHERE code = "+arg(p.SourceCode)+")")
	}
	if p.Status != "" && p.Status != "all" {
		where = append(where, "status = "+arg(p.Status))
	}
	if p.Search != "" {
		ph := arg("%" + p.Search + "%")
		where = append(where, "(title ILIKE "+ph+" OR order_number ILIKE "+ph+")")
	}
	return strings.Join(where, " AND "), args
}

func (s *Store) ListOrders(ctx context.Context, p OrderListParams) (*OrderListResult, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}

	whereClause, args := buildOrderFilter(p)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := "SELECT " + orderCols + " FROM orders WHERE " + whereClause +
		" ORDER BY created_at DESC LIMIT " + arg(p.Limit) + " OFFSET " + arg(p.Offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	result := &OrderListResult{Limit: p.Limit, Offset: p.Offset, Total: total}
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result.Orders = append(result.Orders, o)
	}
	return result, rows.Err()
}

// ---- assignments ----

// SaveAssignments replaces an order's assignments in one transaction and
// marks the order extracted. Reprocessing an order therefore never
// duplicates records.
func (s *Store) SaveAssignments(ctx context.Context, orderID uuid.UUID, assignments []models.Assignment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM assignments WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}

	for i, a := range assignments {
		extras, err := json.Marshal(a.ExtraFields)
		if err != nil {
			return fmt.Errorf("encode extras for record %d: %w", i, err)
		}
		if len(a.ExtraFields) == 0 {
			extras = []byte("{}")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO assignments (order_id, fio, fio_normalized, birth_date, birth_date_raw,
				ias_id, submission_number, assignment_type, rank_category, sport, sport_original,
				sport_id, action, extra_fields, llm_model, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, orderID, a.Fio, a.FioNormalized, a.BirthDate, a.BirthDateRaw,
			a.IasID, a.SubmissionNumber, a.AssignmentType, a.RankCategory, a.Sport, a.SportOriginal,
			a.SportID, a.Action, extras, a.ExtractorTag, a.Confidence)
		if err != nil {
			return fmt.Errorf("insert assignment %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET record_count = $2, extracted_at = NOW(), status = $3, error_message = ''
		WHERE id = $1
	`, orderID, len(assignments), models.OrderStatusExtracted); err != nil {
		return fmt.Errorf("mark order extracted: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetAssignments(ctx context.Context, orderID uuid.UUID) ([]models.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, fio, fio_normalized, birth_date, birth_date_raw,
			ias_id, submission_number, assignment_type, rank_category, sport, sport_original,
			sport_id, action, extra_fields, llm_model, confidence, created_at
		FROM assignments WHERE order_id = $1 ORDER BY created_at, fio
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.Assignment
	for rows.Next() {
		var a models.Assignment
		var extrasRaw []byte
		err := rows.Scan(
			&a.ID, &a.OrderID, &a.Fio, &a.FioNormalized, &a.BirthDate, &a.BirthDateRaw,
			&a.IasID, &a.SubmissionNumber, &a.AssignmentType, &a.RankCategory, &a.Sport, &a.SportOriginal,
			&a.SportID, &a.Action, &extrasRaw, &a.ExtractorTag, &a.Confidence, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if len(extrasRaw) > 0 {
			_ = json.Unmarshal(extrasRaw, &a.ExtraFields)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SearchAssignments finds records by person name (trigram) or sport.
func (s *Store) SearchAssignments(ctx context.Context, query string, limit int) ([]models.Assignment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, fio, fio_normalized, birth_date, birth_date_raw,
			ias_id, submission_number, assignment_type, rank_category, sport, sport_original,
			sport_id, action, extra_fields, llm_model, confidence, created_at
		FROM assignments
		WHERE fio_normalized % $1 OR fio ILIKE '%' || $1 || '%' OR sport ILIKE '%' || $1 || '%'
		ORDER BY similarity(fio_normalized, $1) DESC
		LIMIT $2
	`, strings.ToLower(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.Assignment
	for rows.Next() {
		var a models.Assignment
		var extrasRaw []byte
		err := rows.Scan(
			&a.ID, &a.OrderID, &a.Fio, &a.FioNormalized, &a.BirthDate, &a.BirthDateRaw,
			&a.IasID, &a.SubmissionNumber, &a.AssignmentType, &a.RankCategory, &a.Sport, &a.SportOriginal,
			&a.SportID, &a.Action, &extrasRaw, &a.ExtractorTag, &a.Confidence, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if len(extrasRaw) > 0 {
			_ = json.Unmarshal(extrasRaw, &a.ExtraFields)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ---- processing log ----

func (s *Store) LogProcessing(ctx context.Context, entry models.ProcessingLog) error {
	if len(entry.Message) > maxLogMessage {
		entry.Message = entry.Message[:maxLogMessage]
	}
	details, err := json.Marshal(entry.Details)
	if err != nil || len(entry.Details) == 0 {
		details = []byte("{}")
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO processing_log (order_id, source_id, level, stage, message, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.OrderID, entry.SourceID, entry.Level, entry.Stage, entry.Message, details); err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

func (s *Store) GetLogs(ctx context.Context, orderID uuid.UUID, limit int) ([]models.ProcessingLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, source_id, level, stage, message, details, created_at
		FROM processing_log WHERE order_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ProcessingLog
	for rows.Next() {
		var entry models.ProcessingLog
		var detailsRaw []byte
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.SourceID, &entry.Level, &entry.Stage, &entry.Message, &detailsRaw, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if len(detailsRaw) > 0 {
			_ = json.Unmarshal(detailsRaw, &entry.Details)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ---- quality ----

// DashboardStats are the whole-system aggregates for the admin landing page.
type DashboardStats struct {
	Sources         int `json:"sources"`
	ActiveSources   int `json:"active_sources"`
	Orders          int `json:"orders"`
	PendingOrders   int `json:"pending_orders"`
	ExtractedOrders int `json:"extracted_orders"`
	FailedOrders    int `json:"failed_orders"`
	Assignments     int `json:"assignments"`
	NeedingReview   int `json:"needing_review"`
}

func (s *Store) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var d DashboardStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM registry_sources),
			(SELECT count(*) FROM registry_sources WHERE active),
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM orders WHERE status IN ('new', 'downloaded')),
			(SELECT count(*) FROM orders WHERE status = 'extracted'),
			(SELECT count(*) FROM orders WHERE status = 'failed'),
			(SELECT count(*) FROM assignments),
			(SELECT count(*) FROM assignments WHERE extra_fields ? 'needs_review')
	`).Scan(&d.Sources, &d.ActiveSources, &d.Orders, &d.PendingOrders,
		&d.ExtractedOrders, &d.FailedOrders, &d.Assignments, &d.NeedingReview)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &d, nil
}

// SourceQuality is per-source ingestion health for the admin dashboard.
type SourceQuality struct {
	SourceCode       string     `json:"source_code"`
	Orders           int        `json:"orders"`
	Extracted        int        `json:"extracted"`
	Failed           int        `json:"failed"`
	Records          int        `json:"records"`
	AvgOCRConfidence float64    `json:"avg_ocr_confidence"`
	AvgConfidence    float64    `json:"avg_confidence"`
	LastCheckedAt    *time.Time `json:"last_checked_at"`
}

func (s *Store) QualityMetrics(ctx context.Context) ([]SourceQuality, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rs.code,
			COUNT(o.id),
			COUNT(o.id) FILTER (WHERE o.status IN ('extracted', 'approved')),
			COUNT(o.id) FILTER (WHERE o.status = 'failed'),
			COALESCE(SUM(o.record_count), 0),
			COALESCE(AVG(o.ocr_confidence) FILTER (WHERE o.ocr_confidence > 0), 0),
			COALESCE((SELECT AVG(a.confidence) FROM assignments a
				JOIN orders ao ON ao.id = a.order_id WHERE ao.source_id = rs.id), 0),
			rs.last_checked_at
		FROM registry_sources rs
		LEFT JOIN orders o ON o.source_id = rs.id
		GROUP BY rs.id, rs.code
		ORDER BY rs.code
	`)
	if err != nil {
		return nil, fmt.Errorf("quality metrics: %w", err)
	}
	defer rows.Close()

	var metrics []SourceQuality
	for rows.Next() {
		var q SourceQuality
		if err := rows.Scan(&q.SourceCode, &q.Orders, &q.Extracted, &q.Failed, &q.Records,
			&q.AvgOCRConfidence, &q.AvgConfidence, &q.LastCheckedAt); err != nil {
			return nil, fmt.Errorf("scan quality: %w", err)
		}
		metrics = append(metrics, q)
	}
	return metrics, rows.Err()
}

// ---- sport registry ----

// SportEntry is one sport with its historical names and disciplines, as
// imported from the national register workbook.
type SportEntry struct {
	ID          int
	CodeBase    int
	CodeFull    string
	Section     int
	Name        string
	Names       []string
	Disciplines []string
}

// SaveSportRegistry replaces the sport tables with a new register import and
// records the version.
func (s *Store) SaveSportRegistry(ctx context.Context, label, fileHash string, entries []SportEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sports`); err != nil {
		return fmt.Errorf("clear sports: %w", err)
	}

	nameCount := 0
	for _, e := range entries {
		var sportID int
		err := tx.QueryRow(ctx, `
			INSERT INTO sports (code_base, code_full, section, current_name)
			VALUES ($1, $2, $3, $4) RETURNING id
		`, e.CodeBase, e.CodeFull, e.Section, e.Name).Scan(&sportID)
		if err != nil {
			return fmt.Errorf("insert sport %q: %w", e.Name, err)
		}

		names := e.Names
		if len(names) == 0 {
			names = []string{e.Name}
		}
		for i, name := range names {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sport_names (sport_id, name, is_primary) VALUES ($1, $2, $3)
				ON CONFLICT (sport_id, name) DO NOTHING
			`, sportID, name, i == 0); err != nil {
				return fmt.Errorf("insert sport name %q: %w", name, err)
			}
			nameCount++
		}
		for _, d := range e.Disciplines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sport_disciplines (sport_id, name) VALUES ($1, $2)
				ON CONFLICT (sport_id, name) DO NOTHING
			`, sportID, d); err != nil {
				return fmt.Errorf("insert discipline %q: %w", d, err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sport_registry_versions (label, file_hash, sport_count, name_count)
		VALUES ($1, $2, $3, $4)
	`, label, fileHash, len(entries), nameCount); err != nil {
		return fmt.Errorf("record registry version: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadSportEntries reads the sport register back for the normalizer.
func (s *Store) LoadSportEntries(ctx context.Context) ([]SportEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sp.id, sp.code_base, sp.code_full, sp.section, sp.current_name,
			COALESCE(array_agg(DISTINCT sn.name) FILTER (WHERE sn.name IS NOT NULL), '{}'),
			COALESCE(array_agg(DISTINCT sd.name) FILTER (WHERE sd.name IS NOT NULL), '{}')
		FROM sports sp
		LEFT JOIN sport_names sn ON sn.sport_id = sp.id AND sn.valid_to IS NULL
		LEFT JOIN sport_disciplines sd ON sd.sport_id = sp.id
		GROUP BY sp.id
		ORDER BY sp.section, sp.code_base
	`)
	if err != nil {
		return nil, fmt.Errorf("load sports: %w", err)
	}
	defer rows.Close()

	var entries []SportEntry
	for rows.Next() {
		var e SportEntry
		if err := rows.Scan(&e.ID, &e.CodeBase, &e.CodeFull, &e.Section, &e.Name, &e.Names, &e.Disciplines); err != nil {
			return nil, fmt.Errorf("scan sport: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
