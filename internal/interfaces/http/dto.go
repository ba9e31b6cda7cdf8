package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/application/service"
	"github.com/garyjia/crane-billing/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Field   string      `json:"field,omitempty"`
	// ExistingID is set on duplicate_period errors
	ExistingID string `json:"existing_id,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Line item payloads

type RecurringCostRequest struct {
	Category       string           `json:"category"`
	Description    string           `json:"description"`
	MonthlyValue   decimal.Decimal  `json:"monthly_value"`
	QuantityMonths *decimal.Decimal `json:"quantity_months"`
	Notes          string           `json:"notes"`
}

func (r RecurringCostRequest) toEntity() *entity.RecurringCost {
	return &entity.RecurringCost{
		CostCategory:   r.Category,
		Description:    r.Description,
		MonthlyValue:   r.MonthlyValue,
		QuantityMonths: orOne(r.QuantityMonths),
		Notes:          r.Notes,
	}
}

type OvertimeRequest struct {
	Role       string          `json:"role"`
	DayKind    string          `json:"day_kind"`
	Hours      decimal.Decimal `json:"hours"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Notes      string          `json:"notes"`
}

func (r OvertimeRequest) toEntity() *entity.Overtime {
	return &entity.Overtime{
		Role:       entity.OvertimeRole(r.Role),
		DayKind:    entity.DayKind(r.DayKind),
		Hours:      r.Hours,
		HourlyRate: r.HourlyRate,
		Notes:      r.Notes,
	}
}

type AdditionalServiceRequest struct {
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal  `json:"unit_value"`
	Notes       string           `json:"notes"`
}

func (r AdditionalServiceRequest) toEntity() *entity.AdditionalService {
	return &entity.AdditionalService{
		ServiceCategory: r.Category,
		Description:     r.Description,
		Quantity:        orOne(r.Quantity),
		UnitValue:       r.UnitValue,
		Notes:           r.Notes,
	}
}

type AmendmentRequest struct {
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	Notes       string          `json:"notes"`
}

func (r AmendmentRequest) toEntity() *entity.Amendment {
	return &entity.Amendment{
		Kind:        entity.AmendmentKind(r.Kind),
		Description: r.Description,
		Value:       r.Value,
		Notes:       r.Notes,
	}
}

func orOne(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.NewFromInt(1)
	}
	return *d
}

// LineItemArrays is the four optional line-item collections of a payload.
// A nil slice means the category was absent.
type LineItemArrays struct {
	RecurringCosts     []RecurringCostRequest     `json:"recurring_costs"`
	Overtime           []OvertimeRequest          `json:"overtime"`
	AdditionalServices []AdditionalServiceRequest `json:"additional_services"`
	Amendments         []AmendmentRequest         `json:"amendments"`
}

func (a LineItemArrays) byCategory() map[entity.Category][]entity.LineItem {
	out := make(map[entity.Category][]entity.LineItem)
	if a.RecurringCosts != nil {
		items := make([]entity.LineItem, 0, len(a.RecurringCosts))
		for _, r := range a.RecurringCosts {
			items = append(items, r.toEntity())
		}
		out[entity.CategoryRecurringCosts] = items
	}
	if a.Overtime != nil {
		items := make([]entity.LineItem, 0, len(a.Overtime))
		for _, r := range a.Overtime {
			items = append(items, r.toEntity())
		}
		out[entity.CategoryOvertime] = items
	}
	if a.AdditionalServices != nil {
		items := make([]entity.LineItem, 0, len(a.AdditionalServices))
		for _, r := range a.AdditionalServices {
			items = append(items, r.toEntity())
		}
		out[entity.CategoryAdditionalServices] = items
	}
	if a.Amendments != nil {
		items := make([]entity.LineItem, 0, len(a.Amendments))
		for _, r := range a.Amendments {
			items = append(items, r.toEntity())
		}
		out[entity.CategoryAmendments] = items
	}
	return out
}

func (a LineItemArrays) lineItems() entity.LineItems {
	var items entity.LineItems
	byCategory := a.byCategory()
	for _, c := range entity.Categories {
		for _, item := range byCategory[c] {
			items.Add(item)
		}
	}
	return items
}

// decodeLineItem reads a single line item of the given category
func decodeLineItem(category entity.Category, body []byte) (entity.LineItem, error) {
	var (
		item entity.LineItem
		err  error
	)
	switch category {
	case entity.CategoryRecurringCosts:
		var r RecurringCostRequest
		err = json.Unmarshal(body, &r)
		item = r.toEntity()
	case entity.CategoryOvertime:
		var r OvertimeRequest
		err = json.Unmarshal(body, &r)
		item = r.toEntity()
	case entity.CategoryAdditionalServices:
		var r AdditionalServiceRequest
		err = json.Unmarshal(body, &r)
		item = r.toEntity()
	case entity.CategoryAmendments:
		var r AmendmentRequest
		err = json.Unmarshal(body, &r)
		item = r.toEntity()
	default:
		return nil, entity.NewValidationError("category", "unknown line item category")
	}
	if err != nil {
		return nil, entity.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return item, nil
}

// CreateMeasurementRequest is the body of POST /measurements
type CreateMeasurementRequest struct {
	BudgetID        string `json:"budget_id"`
	SiteID          string `json:"site_id"`
	Number          string `json:"number"`
	Period          string `json:"period"`
	MeasurementDate string `json:"measurement_date"`
	MonthReference  int    `json:"month_reference"`
	YearReference   int    `json:"year_reference"`
	Notes           string `json:"notes"`
	LineItemArrays
}

// UpdateMeasurementRequest is the body of PUT /measurements/{id}
type UpdateMeasurementRequest struct {
	Number          *string `json:"number"`
	Period          *string `json:"period"`
	MeasurementDate *string `json:"measurement_date"`
	MonthReference  *int    `json:"month_reference"`
	YearReference   *int    `json:"year_reference"`
	Notes           *string `json:"notes"`
	LineItemArrays
}

// GenerateRequest is the body of POST /measurements/generate-automatic.
// copy_recurring_costs defaults to true; the other copies default to false.
type GenerateRequest struct {
	BudgetID               string `json:"budget_id"`
	Period                 string `json:"period"`
	MeasurementDate        string `json:"measurement_date"`
	CopyRecurringCosts     *bool  `json:"copy_recurring_costs"`
	CopyOvertime           bool   `json:"copy_overtime"`
	CopyAdditionalServices bool   `json:"copy_additional_services"`
}

// ApprovalRequest is the body of PATCH /measurements/{id}/approval
type ApprovalRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

// AttachDocumentRequest is the JSON body of POST /measurements/{id}/documents
type AttachDocumentRequest struct {
	Kind           string `json:"kind" form:"kind"`
	DocumentNumber string `json:"document_number" form:"document_number"`
	FileReference  string `json:"file_reference" form:"file_reference"`
}

// DocumentStatusRequest is the body of PATCH /measurements/{id}/documents/{kind}/status
type DocumentStatusRequest struct {
	Status string `json:"status"`
}

// ListMeasurementsRequest represents query parameters for listing measurements
type ListMeasurementsRequest struct {
	BudgetID string `form:"budget_id"`
	SiteID   string `form:"site_id"`
	Period   string `form:"period"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// Responses

type TotalsResponse struct {
	GrossMonthlyValue string `json:"gross_monthly_value"`
	AmendmentsValue   string `json:"amendments_value"`
	ExtraCostsValue   string `json:"extra_costs_value"`
	DiscountsValue    string `json:"discounts_value"`
	GrandTotal        string `json:"grand_total"`
}

type MeasurementResponse struct {
	ID              string  `json:"id"`
	BudgetID        string  `json:"budget_id,omitempty"`
	SiteID          string  `json:"site_id,omitempty"`
	Number          string  `json:"number"`
	Period          string  `json:"period"`
	PeriodLabel     string  `json:"period_label"`
	MeasurementDate string  `json:"measurement_date"`
	MonthReference  int     `json:"month_reference"`
	YearReference   int     `json:"year_reference"`
	TotalsResponse
	Status         string  `json:"status"`
	ApprovalStatus string  `json:"approval_status,omitempty"`
	ApprovalNotes  string  `json:"approval_notes,omitempty"`
	FinalizedAt    *string `json:"finalized_at,omitempty"`
	SentAt         *string `json:"sent_at,omitempty"`
	ApprovedAt     *string `json:"approved_at,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	CreatedBy      string  `json:"created_by,omitempty"`
	UpdatedBy      string  `json:"updated_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type RecurringCostResponse struct {
	ID             int64  `json:"id"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	MonthlyValue   string `json:"monthly_value"`
	QuantityMonths string `json:"quantity_months"`
	LineTotal      string `json:"line_total"`
	Notes          string `json:"notes,omitempty"`
}

type OvertimeResponse struct {
	ID         int64  `json:"id"`
	Role       string `json:"role"`
	DayKind    string `json:"day_kind"`
	Hours      string `json:"hours"`
	HourlyRate string `json:"hourly_rate"`
	LineTotal  string `json:"line_total"`
	Notes      string `json:"notes,omitempty"`
}

type AdditionalServiceResponse struct {
	ID          int64  `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitValue   string `json:"unit_value"`
	LineTotal   string `json:"line_total"`
	Notes       string `json:"notes,omitempty"`
}

type AmendmentResponse struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Notes       string `json:"notes,omitempty"`
}

type DocumentResponse struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	DocumentNumber string `json:"document_number,omitempty"`
	FileReference  string `json:"file_reference"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type MeasurementDetailResponse struct {
	MeasurementResponse
	RecurringCosts     []RecurringCostResponse     `json:"recurring_costs"`
	Overtime           []OvertimeResponse          `json:"overtime"`
	AdditionalServices []AdditionalServiceResponse `json:"additional_services"`
	Amendments         []AmendmentResponse         `json:"amendments"`
	Documents          []DocumentResponse          `json:"documents"`
}

type BudgetResponse struct {
	ID                       string `json:"id"`
	Number                   string `json:"number"`
	ClientName               string `json:"client_name"`
	AccumulatedInvoicedTotal string `json:"accumulated_invoiced_total"`
	LastMeasuredPeriod       string `json:"last_measured_period,omitempty"`
}

type FinalizeResponse struct {
	Measurement MeasurementResponse `json:"measurement"`
	Budget      *BudgetResponse     `json:"budget,omitempty"`
}

type AuditEntryResponse struct {
	EventID    string                 `json:"event_id"`
	Type       string                 `json:"type"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt string                 `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

type MeasurementPageResponse struct {
	Items []MeasurementResponse `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

func moneyString(d decimal.Decimal) string {
	return d.StringFixed(entity.MoneyPlaces)
}

func timeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeString(*t)
	return &s
}

func toMeasurementResponse(m *entity.Measurement) MeasurementResponse {
	resp := MeasurementResponse{
		ID:              m.ID,
		Number:          m.Number,
		Period:          m.Period.String(),
		PeriodLabel:     m.Period.Label(),
		MeasurementDate: m.MeasurementDate.Format(dateLayout),
		MonthReference:  m.MonthReference,
		YearReference:   m.YearReference,
		TotalsResponse: TotalsResponse{
			GrossMonthlyValue: moneyString(m.Totals.GrossMonthlyValue),
			AmendmentsValue:   moneyString(m.Totals.AmendmentsValue),
			ExtraCostsValue:   moneyString(m.Totals.ExtraCostsValue),
			DiscountsValue:    moneyString(m.Totals.DiscountsValue),
			GrandTotal:        moneyString(m.Totals.GrandTotal),
		},
		Status:         m.Status.String(),
		ApprovalStatus: m.ApprovalStatus,
		ApprovalNotes:  m.ApprovalNotes,
		FinalizedAt:    optionalTime(m.FinalizedAt),
		SentAt:         optionalTime(m.SentAt),
		ApprovedAt:     optionalTime(m.ApprovedAt),
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
		UpdatedBy:      m.UpdatedBy,
		CreatedAt:      timeString(m.CreatedAt),
		UpdatedAt:      timeString(m.UpdatedAt),
	}
	resp.BudgetID, _ = m.Parent.BudgetID()
	resp.SiteID, _ = m.Parent.SiteID()
	return resp
}

func toMeasurementResponses(list []*entity.Measurement) []MeasurementResponse {
	out := make([]MeasurementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMeasurementResponse(m))
	}
	return out
}

func toDocumentResponse(d *entity.DocumentAttachment) DocumentResponse {
	return DocumentResponse{
		ID:             d.ID,
		Kind:           string(d.Kind),
		DocumentNumber: d.DocumentNumber,
		FileReference:  d.FileReference,
		Status:         string(d.Status),
		CreatedAt:      timeString(d.CreatedAt),
		UpdatedAt:      timeString(d.UpdatedAt),
	}
}

func toDocumentResponses(docs []*entity.DocumentAttachment) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	return out
}

func toAuditResponses(entries []service.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			EventID:    e.EventID,
			Type:       e.Type.String(),
			Actor:      e.Actor,
			OccurredAt: timeString(e.OccurredAt),
			Payload:    e.Payload,
		})
	}
	return out
}

func toDetailResponse(d *entity.MeasurementDetail) MeasurementDetailResponse {
	resp := MeasurementDetailResponse{
		MeasurementResponse: toMeasurementResponse(d.Measurement),
		RecurringCosts:      make([]RecurringCostResponse, 0, len(d.Items.RecurringCosts)),
		Overtime:            make([]OvertimeResponse, 0, len(d.Items.Overtime)),
		AdditionalServices:  make([]AdditionalServiceResponse, 0, len(d.Items.AdditionalServices)),
		Amendments:          make([]AmendmentResponse, 0, len(d.Items.Amendments)),
		Documents:           toDocumentResponses(d.Documents),
	}
	for _, r := range d.Items.RecurringCosts {
		resp.RecurringCosts = append(resp.RecurringCosts, RecurringCostResponse{
			ID:             r.ID,
			Category:       r.CostCategory,
			Description:    r.Description,
			MonthlyValue:   moneyString(r.MonthlyValue),
			QuantityMonths: r.QuantityMonths.String(),
			LineTotal:      moneyString(r.LineTotal),
			Notes:          r.Notes,
		})
	}
	for _, o := range d.Items.Overtime {
		resp.Overtime = append(resp.Overtime, OvertimeResponse{
			ID:         o.ID,
			Role:       string(o.Role),
			DayKind:    string(o.DayKind),
			Hours:      o.Hours.String(),
			HourlyRate: moneyString(o.HourlyRate),
			LineTotal:  moneyString(o.LineTotal),
			Notes:      o.Notes,
		})
	}
	for _, s := range d.Items.AdditionalServices {
		resp.AdditionalServices = append(resp.AdditionalServices, AdditionalServiceResponse{
			ID:          s.ID,
			Category:    s.ServiceCategory,
			Description: s.Description,
			Quantity:    s.Quantity.String(),
			UnitValue:   moneyString(s.UnitValue),
			LineTotal:   moneyString(s.LineTotal),
			Notes:       s.Notes,
		})
	}
	for _, a := range d.Items.Amendments {
		resp.Amendments = append(resp.Amendments, AmendmentResponse{
			ID:          a.ID,
			Kind:        string(a.Kind),
			Description: a.Description,
			Value:       moneyString(a.Value),
			Notes:       a.Notes,
		})
	}
	return resp
}

func toBudgetResponse(b *entity.Budget) *BudgetResponse {
	if b == nil {
		return nil
	}
	resp := &BudgetResponse{
		ID:                       b.ID,
		Number:                   b.Number,
		ClientName:               b.ClientName,
		AccumulatedInvoicedTotal: moneyString(b.AccumulatedInvoicedTotal),
	}
	if b.LastMeasuredPeriod != nil {
		resp.LastMeasuredPeriod = b.LastMeasuredPeriod.String()
	}
	return resp
}

func toPageResponse(p *service.MeasurementPage, page int) MeasurementPageResponse {
	return MeasurementPageResponse{
		Items: toMeasurementResponses(p.Items),
		Total: p.Total,
		Page:  page,
		Limit: p.Limit,
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty input yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, entity.NewValidationError(field, "must be a date in the format YYYY-MM-DD")
}
