package http

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/crane-billing/internal/application/service"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
	"github.com/garyjia/crane-billing/pkg/utils"
)

// Version is reported by the health check
const Version = "1.0.0"

// ActorHeader names the caller; authentication happens upstream
const ActorHeader = "X-User-ID"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	measurements   service.MeasurementService
	generator      service.GeneratorService
	documents      service.DocumentService
	reports        service.ReportService
	audit          service.AuditService
	health         HealthFunc
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		measurements:   services.Measurements,
		generator:      services.Generator,
		documents:      services.Documents,
		reports:        services.Reports,
		audit:          services.Audit,
		health:         services.Health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func actor(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			response.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   "database unreachable",
			})
			return
		}
	}

	ok(c, http.StatusOK, response)
}

// CreateMeasurement handles POST /measurements
func (h *Handlers) CreateMeasurement(c *gin.Context) {
	var req CreateMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}

	parent, err := entity.ParentFromIDs(req.BudgetID, req.SiteID)
	if err != nil {
		h.writeError(c, "create measurement", err)
		return
	}
	period, err := entity.ParsePeriod(req.Period)
	if err != nil {
		h.writeError(c, "create measurement", err)
		return
	}
	date, err := parseDate("measurement_date", req.MeasurementDate)
	if err != nil {
		h.writeError(c, "create measurement", err)
		return
	}

	detail, err := h.measurements.Create(c.Request.Context(), service.CreateMeasurementInput{
		Parent:          parent,
		Number:          req.Number,
		Period:          period,
		MeasurementDate: date,
		MonthReference:  req.MonthReference,
		YearReference:   req.YearReference,
		Notes:           req.Notes,
		Items:           req.lineItems(),
		Actor:           actor(c),
	})
	if err != nil {
		h.writeError(c, "create measurement", err)
		return
	}

	ok(c, http.StatusCreated, toDetailResponse(detail))
}

// GenerateMeasurement handles POST /measurements/generate-automatic
func (h *Handlers) GenerateMeasurement(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.BudgetID) == "" {
		h.badRequest(c, "budget_id", "is required")
		return
	}
	period, err := entity.ParsePeriod(req.Period)
	if err != nil {
		h.writeError(c, "generate measurement", err)
		return
	}
	date, err := parseDate("measurement_date", req.MeasurementDate)
	if err != nil {
		h.writeError(c, "generate measurement", err)
		return
	}

	copyRecurring := true
	if req.CopyRecurringCosts != nil {
		copyRecurring = *req.CopyRecurringCosts
	}

	detail, err := h.generator.GenerateFromBudget(c.Request.Context(), service.GenerateInput{
		BudgetID:               req.BudgetID,
		Period:                 period,
		MeasurementDate:        date,
		CopyRecurringCosts:     copyRecurring,
		CopyOvertime:           req.CopyOvertime,
		CopyAdditionalServices: req.CopyAdditionalServices,
		Actor:                  actor(c),
	})
	if err != nil {
		h.writeError(c, "generate measurement", err)
		return
	}

	ok(c, http.StatusCreated, toDetailResponse(detail))
}

// GetMeasurement handles GET /measurements/:id
func (h *Handlers) GetMeasurement(c *gin.Context) {
	detail, err := h.measurements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get measurement", err)
		return
	}
	ok(c, http.StatusOK, toDetailResponse(detail))
}

// MeasurementAudit handles GET /measurements/:id/audit.
// Only the most recent changes kept in memory are returned.
func (h *Handlers) MeasurementAudit(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.measurements.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, "measurement audit", err)
		return
	}
	ok(c, http.StatusOK, toAuditResponses(h.audit.Recent(id)))
}

// UpdateMeasurement handles PUT /measurements/:id
func (h *Handlers) UpdateMeasurement(c *gin.Context) {
	var req UpdateMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}

	in := service.UpdateMeasurementInput{
		Number:         req.Number,
		MonthReference: req.MonthReference,
		YearReference:  req.YearReference,
		Notes:          req.Notes,
		Replace:        req.byCategory(),
		Actor:          actor(c),
	}
	if req.Period != nil {
		period, err := entity.ParsePeriod(*req.Period)
		if err != nil {
			h.writeError(c, "update measurement", err)
			return
		}
		in.Period = &period
	}
	if req.MeasurementDate != nil {
		date, err := parseDate("measurement_date", *req.MeasurementDate)
		if err != nil {
			h.writeError(c, "update measurement", err)
			return
		}
		if date.IsZero() {
			h.badRequest(c, "measurement_date", "cannot be empty")
			return
		}
		in.MeasurementDate = &date
	}

	detail, err := h.measurements.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, "update measurement", err)
		return
	}
	ok(c, http.StatusOK, toDetailResponse(detail))
}

// DeleteMeasurement handles DELETE /measurements/:id
func (h *Handlers) DeleteMeasurement(c *gin.Context) {
	id := c.Param("id")
	if err := h.measurements.Delete(c.Request.Context(), id, actor(c)); err != nil {
		h.writeError(c, "delete measurement", err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// FinalizeMeasurement handles PATCH /measurements/:id/finalize
func (h *Handlers) FinalizeMeasurement(c *gin.Context) {
	result, err := h.measurements.Finalize(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.writeError(c, "finalize measurement", err)
		return
	}
	ok(c, http.StatusOK, FinalizeResponse{
		Measurement: toMeasurementResponse(result.Measurement),
		Budget:      toBudgetResponse(result.Budget),
	})
}

// CancelMeasurement handles PATCH /measurements/:id/cancel
func (h *Handlers) CancelMeasurement(c *gin.Context) {
	m, err := h.measurements.Cancel(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.writeError(c, "cancel measurement", err)
		return
	}
	ok(c, http.StatusOK, toMeasurementResponse(m))
}

// SendMeasurement handles PATCH /measurements/:id/send
func (h *Handlers) SendMeasurement(c *gin.Context) {
	m, err := h.measurements.Send(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.writeError(c, "send measurement", err)
		return
	}
	ok(c, http.StatusOK, toMeasurementResponse(m))
}

// RecordApproval handles PATCH /measurements/:id/approval
func (h *Handlers) RecordApproval(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}

	m, err := h.measurements.RecordApproval(c.Request.Context(), c.Param("id"), req.Decision, req.Notes, actor(c))
	if err != nil {
		h.writeError(c, "record approval", err)
		return
	}
	ok(c, http.StatusOK, toMeasurementResponse(m))
}

// ListByBudget handles GET /measurements/by-budget/:budget_id
func (h *Handlers) ListByBudget(c *gin.Context) {
	list, err := h.measurements.ListByBudget(c.Request.Context(), c.Param("budget_id"))
	if err != nil {
		h.writeError(c, "list measurements", err)
		return
	}
	ok(c, http.StatusOK, toMeasurementResponses(list))
}

// ListBySite handles GET /measurements/by-site/:site_id
func (h *Handlers) ListBySite(c *gin.Context) {
	list, err := h.measurements.ListBySite(c.Request.Context(), c.Param("site_id"))
	if err != nil {
		h.writeError(c, "list measurements", err)
		return
	}
	ok(c, http.StatusOK, toMeasurementResponses(list))
}

// ListMeasurements handles GET /measurements
func (h *Handlers) ListMeasurements(c *gin.Context) {
	var req ListMeasurementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		h.badRequest(c, "query", "invalid query parameters")
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	filter := entity.MeasurementFilter{
		BudgetID: req.BudgetID,
		SiteID:   req.SiteID,
		Status:   workflow.State(req.Status),
		Limit:    req.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = entity.DefaultPageSize
	}
	if filter.Limit > entity.MaxPageSize {
		filter.Limit = entity.MaxPageSize
	}
	if maxPage := math.MaxInt32 / filter.Limit; req.Page > maxPage {
		req.Page = maxPage
	}
	filter.Offset = (req.Page - 1) * filter.Limit

	if req.Period != "" {
		period, err := entity.ParsePeriod(req.Period)
		if err != nil {
			h.writeError(c, "list measurements", err)
			return
		}
		filter.Period = &period
	}

	page, err := h.measurements.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "list measurements", err)
		return
	}
	ok(c, http.StatusOK, toPageResponse(page, req.Page))
}

func (h *Handlers) category(c *gin.Context) (entity.Category, bool) {
	category, err := entity.ParseCategory(c.Param("category"))
	if err != nil {
		h.writeError(c, "", err)
		return "", false
	}
	return category, true
}

func (h *Handlers) itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "item_id", "must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handlers) readLineItem(c *gin.Context, category entity.Category) (entity.LineItem, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.badRequest(c, "body", "unreadable request body")
		return nil, false
	}
	item, err := decodeLineItem(category, body)
	if err != nil {
		h.writeError(c, "", err)
		return nil, false
	}
	return item, true
}

// AddLineItem handles POST /measurements/:id/items/:category
func (h *Handlers) AddLineItem(c *gin.Context) {
	category, valid := h.category(c)
	if !valid {
		return
	}
	item, valid := h.readLineItem(c, category)
	if !valid {
		return
	}

	detail, err := h.measurements.AddLineItem(c.Request.Context(), c.Param("id"), item, actor(c))
	if err != nil {
		h.writeError(c, "add line item", err)
		return
	}
	ok(c, http.StatusCreated, toDetailResponse(detail))
}

// UpdateLineItem handles PUT /measurements/:id/items/:category/:item_id
func (h *Handlers) UpdateLineItem(c *gin.Context) {
	category, valid := h.category(c)
	if !valid {
		return
	}
	id, valid := h.itemID(c)
	if !valid {
		return
	}
	item, valid := h.readLineItem(c, category)
	if !valid {
		return
	}
	setItemID(item, id)

	detail, err := h.measurements.UpdateLineItem(c.Request.Context(), c.Param("id"), item, actor(c))
	if err != nil {
		h.writeError(c, "update line item", err)
		return
	}
	ok(c, http.StatusOK, toDetailResponse(detail))
}

// RemoveLineItem handles DELETE /measurements/:id/items/:category/:item_id
func (h *Handlers) RemoveLineItem(c *gin.Context) {
	category, valid := h.category(c)
	if !valid {
		return
	}
	id, valid := h.itemID(c)
	if !valid {
		return
	}

	detail, err := h.measurements.RemoveLineItem(c.Request.Context(), c.Param("id"), category, id, actor(c))
	if err != nil {
		h.writeError(c, "remove line item", err)
		return
	}
	ok(c, http.StatusOK, toDetailResponse(detail))
}

// ReplaceLineItems handles PUT /measurements/:id/items/:category with a JSON array body
func (h *Handlers) ReplaceLineItems(c *gin.Context) {
	category, valid := h.category(c)
	if !valid {
		return
	}

	var raw []json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.badRequest(c, "body", "expected a JSON array of line items")
		return
	}
	items := make([]entity.LineItem, 0, len(raw))
	for _, r := range raw {
		item, err := decodeLineItem(category, r)
		if err != nil {
			h.writeError(c, "", err)
			return
		}
		items = append(items, item)
	}

	detail, err := h.measurements.ReplaceAllLineItems(c.Request.Context(), c.Param("id"), category, items, actor(c))
	if err != nil {
		h.writeError(c, "replace line items", err)
		return
	}
	ok(c, http.StatusOK, toDetailResponse(detail))
}

func setItemID(item entity.LineItem, id int64) {
	switch v := item.(type) {
	case *entity.RecurringCost:
		v.ID = id
	case *entity.Overtime:
		v.ID = id
	case *entity.AdditionalService:
		v.ID = id
	case *entity.Amendment:
		v.ID = id
	}
}

// ListDocuments handles GET /measurements/:id/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "list documents", err)
		return
	}
	ok(c, http.StatusOK, toDocumentResponses(docs))
}

// AttachDocument handles POST /measurements/:id/documents.
// A multipart body with a "file" part is stored; a JSON body registers an existing reference.
func (h *Handlers) AttachDocument(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.uploadDocument(c)
		return
	}

	var req AttachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}
	kind, err := entity.ParseDocumentKind(req.Kind)
	if err != nil {
		h.writeError(c, "attach document", err)
		return
	}

	doc, err := h.documents.Attach(c.Request.Context(), service.AttachInput{
		MeasurementID:  c.Param("id"),
		Kind:           kind,
		DocumentNumber: req.DocumentNumber,
		FileReference:  req.FileReference,
		Actor:          actor(c),
	})
	if err != nil {
		h.writeError(c, "attach document", err)
		return
	}
	ok(c, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handlers) uploadDocument(c *gin.Context) {
	var req AttachDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, "body", "invalid form: "+err.Error())
		return
	}
	kind, err := entity.ParseDocumentKind(req.Kind)
	if err != nil {
		h.writeError(c, "upload document", err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file", "is required")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		h.badRequest(c, "file", "exceeds the maximum upload size")
		return
	}

	f, err := header.Open()
	if err != nil {
		h.writeError(c, "upload document", err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.writeError(c, "upload document", err)
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), service.UploadInput{
		MeasurementID:  c.Param("id"),
		Kind:           kind,
		DocumentNumber: req.DocumentNumber,
		FileName:       header.Filename,
		Content:        content,
		Actor:          actor(c),
	})
	if err != nil {
		h.writeError(c, "upload document", err)
		return
	}
	ok(c, http.StatusCreated, toDocumentResponse(doc))
}

// UpdateDocumentStatus handles PATCH /measurements/:id/documents/:kind/status
func (h *Handlers) UpdateDocumentStatus(c *gin.Context) {
	kind, err := entity.ParseDocumentKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, "", err)
		return
	}

	var req DocumentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", "invalid JSON: "+err.Error())
		return
	}
	status, err := entity.ParseDocumentStatus(req.Status)
	if err != nil {
		h.writeError(c, "", err)
		return
	}

	doc, err := h.documents.UpdateStatus(c.Request.Context(), c.Param("id"), kind, status, actor(c))
	if err != nil {
		h.writeError(c, "update document status", err)
		return
	}
	ok(c, http.StatusOK, toDocumentResponse(doc))
}

// BudgetReport handles GET /budgets/:budget_id/measurements/report.xlsx
func (h *Handlers) BudgetReport(c *gin.Context) {
	budgetID := c.Param("budget_id")

	var buf bytes.Buffer
	if err := h.reports.WriteBudgetReport(c.Request.Context(), budgetID, &buf); err != nil {
		h.writeError(c, "render budget report", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="medicoes-`+utils.SanitizeFileName(budgetID)+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
