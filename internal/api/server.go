// Package api exposes the admin HTTP surface: login, source management,
// order review, assignment search, quality metrics and on-demand pipeline
// jobs.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/maxim/sportrank/internal/auth"
	"github.com/maxim/sportrank/internal/db"
	"github.com/maxim/sportrank/internal/detect"
	"github.com/maxim/sportrank/internal/models"
	"github.com/maxim/sportrank/internal/pipeline"
	"github.com/maxim/sportrank/internal/registry"
	"github.com/maxim/sportrank/internal/sports"
)

const (
	jobTimeout     = 30 * time.Minute
	maxUploadBytes = 50 << 20
)

// backgroundJob tracks one long-running admin operation. Only one job
// runs at a time.
type backgroundJob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // running | completed | failed
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Cancel    context.CancelFunc
}

// Server wires the HTTP routes to the store and the pipeline.
type Server struct {
	Echo     *echo.Echo
	Store    *db.Store
	Auth     *auth.Service
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
	Sports   *sports.Normalizer

	jobMu      sync.Mutex
	runningJob *backgroundJob
}

// NewServer builds the echo app with middleware and routes registered.
func NewServer(store *db.Store, authSvc *auth.Service, pl *pipeline.Pipeline, reg *registry.Registry, norm *sports.Normalizer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	origins := splitCSV(os.Getenv("CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	s := &Server{
		Echo:     e,
		Store:    store,
		Auth:     authSvc,
		Pipeline: pl,
		Registry: reg,
		Sports:   norm,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	v1 := s.Echo.Group("/api/v1")
	v1.POST("/auth/login", s.handleLogin)

	admin := v1.Group("/admin")
	admin.Use(auth.Middleware)

	admin.GET("/dashboard", s.handleDashboard)
	admin.GET("/sources", s.handleListSources)
	admin.POST("/sources", s.handleCreateSource)
	admin.GET("/sources/:code", s.handleGetSource)
	admin.DELETE("/sources/:code", s.handleDeleteSource)
	admin.PATCH("/sources/:code/active", s.handleSetSourceActive)
	admin.POST("/sources/:code/test-regex", s.handleTestRegex)
	admin.POST("/sources/:code/test-live", s.handleTestLive)
	admin.POST("/test-pipeline", s.handleTestPipeline)
	admin.GET("/golden-set", s.handleListGoldenSet)
	admin.POST("/golden-set/run", s.handleGoldenSet)

	admin.GET("/orders", s.handleListOrders)
	admin.GET("/orders/:id", s.handleGetOrder)
	admin.GET("/orders/:id/assignments", s.handleGetAssignments)
	admin.GET("/orders/:id/logs", s.handleGetLogs)
	admin.POST("/orders/:id/approve", s.handleApproveOrder)
	admin.POST("/orders/:id/reject", s.handleRejectOrder)
	admin.POST("/orders/:id/reprocess", s.handleReprocessOrder)

	admin.GET("/search", s.handleSearch)
	admin.GET("/quality", s.handleQuality)
	admin.POST("/sports/normalize", s.handleNormalizeSport)
	admin.POST("/sports/alias", s.handleSportAlias)

	admin.POST("/check-sources", s.handleCheckSources)
	admin.POST("/process-pending", s.handleProcessPending)
	admin.GET("/job/:id", s.handleJobStatus)
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	log.Printf("[api] listening on %s", addr)
	return s.Echo.Start(addr)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.Store != nil {
		if err := s.Store.Ping(c.Request().Context()); err != nil {
			log.Printf("[api] health: database unreachable: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "database unreachable"})
		}
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleDashboard(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	stats, err := s.Store.Dashboard(c.Request().Context())
	if err != nil {
		log.Printf("[api] dashboard: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load dashboard"})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	resp, err := s.Auth.Login(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		}
		log.Printf("[api] login failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// sourceView merges the static config with database check state.
type sourceView struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	RiskClass   string     `json:"risk_class"`
	Active      bool       `json:"active"`
	Method      string     `json:"download_method"`
	ListURLs    []string   `json:"list_urls"`
	Region      string     `json:"region"`
	IssuingBody string     `json:"issuing_body"`
	LastChecked *time.Time `json:"last_checked_at,omitempty"`
	LastHash    string     `json:"last_page_hash,omitempty"`
}

func (s *Server) handleListSources(c echo.Context) error {
	dbSources := map[string]models.Source{}
	if s.Store != nil {
		list, err := s.Store.ListSources(c.Request().Context())
		if err != nil {
			log.Printf("[api] list sources: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sources"})
		}
		for _, src := range list {
			dbSources[src.Code] = src
		}
	}

	views := make([]sourceView, 0, len(s.Registry.All()))
	for _, cfg := range s.Registry.All() {
		v := sourceView{
			Code:        cfg.Code,
			Name:        cfg.Name,
			RiskClass:   cfg.RiskClass,
			Active:      cfg.Active,
			Method:      cfg.Download.Method,
			ListURLs:    cfg.Detect.ListURLs,
			Region:      cfg.Meta.Region,
			IssuingBody: cfg.Meta.IssuingBody,
		}
		if rec, ok := dbSources[cfg.Code]; ok {
			v.Active = rec.Active
			v.LastChecked = rec.LastCheckedAt
			v.LastHash = rec.LastPageHash
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sources": views})
}

func (s *Server) handleGetSource(c echo.Context) error {
	code := c.Param("code")
	cfg, ok := s.Registry.ByCode(code)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}
	resp := map[string]interface{}{"config": cfg}
	if s.Store != nil {
		rec, err := s.Store.GetSourceByCode(c.Request().Context(), code)
		if err != nil {
			log.Printf("[api] get source %s: %v", code, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load source"})
		}
		if rec != nil {
			resp["state"] = rec
			quality, err := s.Store.QualityMetrics(c.Request().Context())
			if err == nil {
				for _, q := range quality {
					if q.SourceCode == code {
						resp["quality"] = q
						break
					}
				}
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSetSourceActive(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	code := c.Param("code")
	if _, ok := s.Registry.ByCode(code); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.Store.SetSourceActive(c.Request().Context(), code, req.Active); err != nil {
		log.Printf("[api] set source %s active=%v: %v", code, req.Active, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update source"})
	}
	user, _ := auth.GetUsernameFromContext(c)
	log.Printf("[api] source %s active=%v by %s", code, req.Active, user)
	return c.JSON(http.StatusOK, map[string]interface{}{"code": code, "active": req.Active})
}

var riskClasses = map[string]bool{"green": true, "amber": true, "red": true}

// handleCreateSource registers an operator-defined source. The new host
// joins the egress allowlist immediately.
func (s *Server) handleCreateSource(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	var req struct {
		Code          string   `json:"code"`
		Name          string   `json:"name"`
		Region        string   `json:"region"`
		RiskClass     string   `json:"risk_class"`
		Active        bool     `json:"active"`
		ListURLs      []string `json:"list_urls"`
		LinkRegex     string   `json:"link_regex"`
		Method        string   `json:"download_method"`
		OfficialBasis string   `json:"official_basis"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" || req.Name == "" || len(req.ListURLs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code, name and list_urls are required"})
	}
	if req.RiskClass == "" {
		req.RiskClass = "amber"
	}
	if !riskClasses[req.RiskClass] {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "risk_class must be green, amber or red"})
	}

	hosts := make([]string, 0, len(req.ListURLs))
	for _, raw := range req.ListURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Hostname() == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid list URL %q", raw)})
		}
		hosts = append(hosts, u.Hostname())
	}

	src, err := s.Store.CreateSource(c.Request().Context(), db.SourceSeed{
		Code:      req.Code,
		Name:      req.Name,
		Region:    req.Region,
		RiskClass: req.RiskClass,
		Active:    req.Active,
		DiscoveryConfig: map[string]interface{}{
			"list_urls":  req.ListURLs,
			"link_regex": req.LinkRegex,
			"method":     req.Method,
		},
		OfficialBasis: req.OfficialBasis,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateSource) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "source code already exists"})
		}
		log.Printf("[api] create source %s: %v", req.Code, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create source"})
	}

	for _, host := range hosts {
		s.Registry.RegisterHost(host)
	}
	user, _ := auth.GetUsernameFromContext(c)
	log.Printf("[api] source %s created by %s", req.Code, user)
	return c.JSON(http.StatusCreated, src)
}

func (s *Server) handleDeleteSource(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	code := c.Param("code")
	if _, ok := s.Registry.ByCode(code); ok {
		return c.JSON(http.StatusConflict, map[string]string{"error": "configured sources cannot be deleted"})
	}
	if err := s.Store.DeleteSource(c.Request().Context(), code); err != nil {
		if errors.Is(err, db.ErrSourceInUse) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		log.Printf("[api] delete source %s: %v", code, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete source"})
	}
	user, _ := auth.GetUsernameFromContext(c)
	log.Printf("[api] source %s deleted by %s", code, user)
	return c.NoContent(http.StatusNoContent)
}

// handleTestRegex runs a source's link-detection config against posted HTML
// without any side effects. Overrides let operators iterate on patterns.
func (s *Server) handleTestRegex(c echo.Context) error {
	cfg, ok := s.Registry.ByCode(c.Param("code"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}
	var req struct {
		HTML             string `json:"html"`
		PageURL          string `json:"page_url"`
		LinkRegex        string `json:"link_regex"`
		TitleRegex       string `json:"title_regex"`
		OrderDateRegex   string `json:"order_date_regex"`
		OrderNumberRegex string `json:"order_number_regex"`
	}
	if err := c.Bind(&req); err != nil || req.HTML == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "html is required"})
	}

	dcfg := cfg.Detect
	if req.LinkRegex != "" {
		dcfg.LinkRegex = req.LinkRegex
	}
	if req.TitleRegex != "" {
		dcfg.TitleRegex = req.TitleRegex
	}
	if req.OrderDateRegex != "" {
		dcfg.OrderDateRegex = req.OrderDateRegex
	}
	if req.OrderNumberRegex != "" {
		dcfg.OrderNumberRegex = req.OrderNumberRegex
	}
	pageURL := req.PageURL
	if pageURL == "" && len(dcfg.ListURLs) > 0 {
		pageURL = dcfg.ListURLs[0]
	}

	links, err := detect.ExtractLinks(req.HTML, pageURL, dcfg)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(links),
		"links": links,
	})
}

// handleTestLive fetches the source's live listing page and reports what
// would be detected. No orders are created and no hashes are written.
func (s *Server) handleTestLive(c echo.Context) error {
	cfg, ok := s.Registry.ByCode(c.Param("code"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}
	if s.Pipeline == nil || s.Pipeline.Detector == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "detector not configured"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	// An operator-initiated check is exempt from the inactive and
	// red-risk auto-poll restrictions.
	manual := *cfg
	manual.Active = true
	manual.RiskClass = "amber"
	result := s.Pipeline.Detector.CheckSource(ctx, manual)
	resp := map[string]interface{}{
		"source_code": result.SourceCode,
		"status":      result.Status,
		"page_hash":   result.PageHash,
		"new_docs":    result.NewDocs,
	}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// handleTestPipeline runs the full pipeline on one document in dry-run mode:
// download (or posted PDF bytes), OCR, extraction and normalization, nothing
// persisted. Raw mode: POST with Content-Type application/pdf and ?source=.
func (s *Server) handleTestPipeline(c echo.Context) error {
	if s.Pipeline == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Minute)
	defer cancel()

	var (
		result *pipeline.Result
		err    error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), "application/pdf") {
		sourceCode := c.QueryParam("source")
		if sourceCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "source query parameter is required"})
		}
		data, rerr := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
		if rerr != nil || len(data) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read PDF body"})
		}
		result, err = s.Pipeline.ProcessBytes(ctx, sourceCode, data)
	} else {
		var req struct {
			SourceCode string `json:"source_code"`
			URL        string `json:"url"`
		}
		if berr := c.Bind(&req); berr != nil || req.SourceCode == "" || req.URL == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_code and url are required"})
		}
		result, err = s.dryRunPipeline().ProcessURL(ctx, req.SourceCode, req.URL)
	}
	if err != nil {
		resp := map[string]interface{}{"error": err.Error()}
		if result != nil {
			resp["result"] = result
		}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, result)
}

// dryRunPipeline is a copy of the live pipeline with persistence detached.
func (s *Server) dryRunPipeline() *pipeline.Pipeline {
	dry := *s.Pipeline
	dry.Store = nil
	return &dry
}

func (s *Server) handleListOrders(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	params := db.OrderListParams{
		SourceCode: c.QueryParam("source"),
		Status:     c.QueryParam("status"),
		Search:     c.QueryParam("q"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	}
	result, err := s.Store.ListOrders(c.Request().Context(), params)
	if err != nil {
		log.Printf("[api] list orders: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list orders"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) orderFromParam(c echo.Context) (*models.Order, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	order, err := s.Store.GetOrder(c.Request().Context(), id)
	if err != nil {
		log.Printf("[api] get order %s: %v", id, err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load order")
	}
	if order == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return order, nil
}

func (s *Server) handleGetOrder(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	order, err := s.orderFromParam(c)
	if err != nil {
		return err
	}
	assignments, err := s.Store.GetAssignments(c.Request().Context(), order.ID)
	if err != nil {
		log.Printf("[api] get assignments %s: %v", order.ID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load assignments"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order":       order,
		"assignments": assignments,
	})
}

func (s *Server) handleGetAssignments(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	order, err := s.orderFromParam(c)
	if err != nil {
		return err
	}
	assignments, err := s.Store.GetAssignments(c.Request().Context(), order.ID)
	if err != nil {
		log.Printf("[api] get assignments %s: %v", order.ID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load assignments"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"assignments": assignments})
}

func (s *Server) handleGetLogs(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	order, err := s.orderFromParam(c)
	if err != nil {
		return err
	}
	logs, err := s.Store.GetLogs(c.Request().Context(), order.ID, queryInt(c, "limit", 100))
	if err != nil {
		log.Printf("[api] get logs %s: %v", order.ID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load logs"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) setOrderReviewStatus(c echo.Context, status string, from ...string) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	order, err := s.orderFromParam(c)
	if err != nil {
		return err
	}
	allowed := false
	for _, f := range from {
		if order.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("order in status %q cannot move to %q", order.Status, status),
		})
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)
	if err := s.Store.UpdateOrderStatus(c.Request().Context(), order.ID, status, req.Reason); err != nil {
		log.Printf("[api] update order %s status %s: %v", order.ID, status, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update order"})
	}
	user, _ := auth.GetUsernameFromContext(c)
	log.Printf("[api] order %s -> %s by %s", order.ID, status, user)
	return c.JSON(http.StatusOK, map[string]interface{}{"id": order.ID, "status": status})
}

func (s *Server) handleApproveOrder(c echo.Context) error {
	return s.setOrderReviewStatus(c, models.OrderStatusApproved, models.OrderStatusExtracted)
}

// A rejection may also reverse an earlier approval.
func (s *Server) handleRejectOrder(c echo.Context) error {
	return s.setOrderReviewStatus(c, models.OrderStatusRejected, models.OrderStatusExtracted, models.OrderStatusApproved)
}

func (s *Server) handleReprocessOrder(c echo.Context) error {
	if s.Store == nil || s.Pipeline == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
	}
	order, err := s.orderFromParam(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Minute)
	defer cancel()

	result, rerr := s.Pipeline.Reprocess(ctx, order.ID)
	if rerr != nil {
		resp := map[string]interface{}{"error": rerr.Error()}
		if result != nil {
			resp["result"] = result
		}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if len([]rune(query)) < 3 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query must be at least 3 characters"})
	}
	results, err := s.Store.SearchAssignments(c.Request().Context(), query, queryInt(c, "limit", 50))
	if err != nil {
		log.Printf("[api] search %q: %v", query, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "search failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleQuality(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
	}
	metrics, err := s.Store.QualityMetrics(c.Request().Context())
	if err != nil {
		log.Printf("[api] quality metrics: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to compute metrics"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sources": metrics})
}

func (s *Server) handleNormalizeSport(c echo.Context) error {
	if s.Sports == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "sport registry not loaded"})
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	match := s.Sports.Normalize(req.Name)
	return c.JSON(http.StatusOK, match)
}

// handleSportAlias registers a historical sport name against its current
// canonical entry, so orders quoting the old wording keep resolving after
// a registry rename.
func (s *Server) handleSportAlias(c echo.Context) error {
	if s.Sports == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "sport registry not loaded"})
	}
	var req struct {
		OldName   string `json:"old_name"`
		Canonical string `json:"canonical"`
		ValidTo   string `json:"valid_to,omitempty"` // YYYY-MM-DD, audit only
	}
	if err := c.Bind(&req); err != nil ||
		strings.TrimSpace(req.OldName) == "" || strings.TrimSpace(req.Canonical) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "old_name and canonical are required"})
	}
	validTo := time.Now()
	if req.ValidTo != "" {
		t, err := time.Parse("2006-01-02", req.ValidTo)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "valid_to must be YYYY-MM-DD"})
		}
		validTo = t
	}
	if !s.Sports.SetNameLifetime(strings.TrimSpace(req.OldName), validTo, strings.TrimSpace(req.Canonical)) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "canonical sport not found in registry"})
	}
	return c.JSON(http.StatusOK, s.Sports.Normalize(req.OldName))
}

// startJob registers and launches a background job, or reports the one
// already running. The handler goroutine is detached from the request
// context so client disconnects do not cancel the work.
func (s *Server) startJob(c echo.Context, name string, run func(ctx context.Context) (any, error)) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  fmt.Sprintf("job %s (%s) is already running", job.ID, job.Name),
			"job_id": job.ID,
		})
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), jobTimeout)
	job := &backgroundJob{
		ID:        uuid.New().String()[:8],
		Name:      name,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    cancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer cancel()
		result, err := run(ctx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[api] job %s (%s) failed: %v", job.ID, job.Name, err)
		} else {
			job.Status = "completed"
			job.Result = result
			log.Printf("[api] job %s (%s) completed in %s", job.ID, job.Name, job.EndedAt.Sub(job.StartedAt).Round(time.Second))
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": name + " started",
		"job_id":  job.ID,
		"poll":    "/api/v1/admin/job/" + job.ID,
	})
}

func (s *Server) handleCheckSources(c echo.Context) error {
	if s.Pipeline == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
	}
	return s.startJob(c, "check-sources", func(ctx context.Context) (any, error) {
		results, err := s.Pipeline.CheckSources(ctx)
		if err != nil {
			return nil, err
		}
		summary := map[string]int{}
		for _, r := range results {
			summary[r.Status]++
		}
		return map[string]interface{}{
			"checked": len(results),
			"summary": summary,
			"results": results,
		}, nil
	})
}

func (s *Server) handleProcessPending(c echo.Context) error {
	if s.Pipeline == nil || s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
	}
	limit := queryInt(c, "limit", 20)
	return s.startJob(c, "process-pending", func(ctx context.Context) (any, error) {
		results, err := s.Pipeline.ProcessPending(ctx, limit)
		if err != nil {
			return nil, err
		}
		var records int
		for _, r := range results {
			records += r.Records
		}
		return map[string]interface{}{
			"processed": len(results),
			"records":   records,
			"results":   results,
		}, nil
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	id := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != id {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"name":       job.Name,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
