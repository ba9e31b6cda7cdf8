package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category names one of the four line-item families of a measurement.
type Category string

const (
	CategoryRecurringCosts     Category = "recurring_costs"
	CategoryOvertime           Category = "overtime"
	CategoryAdditionalServices Category = "additional_services"
	CategoryAmendments         Category = "amendments"
)

// Categories lists every line-item family in a stable order.
var Categories = []Category{
	CategoryRecurringCosts,
	CategoryOvertime,
	CategoryAdditionalServices,
	CategoryAmendments,
}

// ParseCategory validates a category token from the wire.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", NewValidationError("category", fmt.Sprintf("unknown line item category %q", s))
}

// OvertimeRole identifies who or what worked the extra hours.
type OvertimeRole string

const (
	RoleOperator     OvertimeRole = "operator"
	RoleSignalPerson OvertimeRole = "signal_person"
	RoleEquipment    OvertimeRole = "equipment"
)

func (r OvertimeRole) IsValid() bool {
	return r == RoleOperator || r == RoleSignalPerson || r == RoleEquipment
}

// DayKind classifies the day overtime was worked on.
type DayKind string

const (
	DaySaturday      DayKind = "saturday"
	DaySundayHoliday DayKind = "sunday_holiday"
	DayNormal        DayKind = "normal"
)

func (d DayKind) IsValid() bool {
	return d == DaySaturday || d == DaySundayHoliday || d == DayNormal
}

// AmendmentKind separates credits from debits.
type AmendmentKind string

const (
	AmendmentAddition AmendmentKind = "addition"
	AmendmentDiscount AmendmentKind = "discount"
)

func (k AmendmentKind) IsValid() bool {
	return k == AmendmentAddition || k == AmendmentDiscount
}

// LineItem is implemented by the four line-item families.
type LineItem interface {
	Category() Category
	ItemID() int64
	// Validate checks caller-supplied fields.
	Validate() error
	// Normalize rounds monetary fields and recomputes the line total.
	Normalize()
	// Total computes the line total from the item's factors.
	Total() decimal.Decimal
	isLineItem()
}

// RecurringCost is a monthly charge such as crane rental or operator salary.
type RecurringCost struct {
	ID             int64           `json:"id"`
	MeasurementID  string          `json:"measurement_id"`
	CostCategory   string          `json:"category"`
	Description    string          `json:"description"`
	MonthlyValue   decimal.Decimal `json:"monthly_value"`
	QuantityMonths decimal.Decimal `json:"quantity_months"`
	LineTotal      decimal.Decimal `json:"line_total"`
	Notes          string          `json:"notes,omitempty"`
}

func (*RecurringCost) Category() Category { return CategoryRecurringCosts }
func (r *RecurringCost) ItemID() int64    { return r.ID }
func (*RecurringCost) isLineItem()        {}

func (r *RecurringCost) Total() decimal.Decimal {
	return RoundMoney(r.MonthlyValue.Mul(r.QuantityMonths))
}

func (r *RecurringCost) Normalize() {
	r.MonthlyValue = RoundMoney(r.MonthlyValue)
	r.LineTotal = r.Total()
}

func (r *RecurringCost) Validate() error {
	if strings.TrimSpace(r.CostCategory) == "" {
		return NewValidationError("category", "is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return NewValidationError("description", "is required")
	}
	if r.MonthlyValue.IsNegative() {
		return NewValidationError("monthly_value", "cannot be negative")
	}
	if r.QuantityMonths.IsNegative() {
		return NewValidationError("quantity_months", "cannot be negative")
	}
	if err := CheckMoney("monthly_value", r.MonthlyValue); err != nil {
		return err
	}
	return CheckMoney("line_total", r.Total())
}

// Overtime records extra hours billed at an hourly rate.
type Overtime struct {
	ID            int64           `json:"id"`
	MeasurementID string          `json:"measurement_id"`
	Role          OvertimeRole    `json:"role"`
	DayKind       DayKind         `json:"day_kind"`
	Hours         decimal.Decimal `json:"hours"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	LineTotal     decimal.Decimal `json:"line_total"`
	Notes         string          `json:"notes,omitempty"`
}

func (*Overtime) Category() Category { return CategoryOvertime }
func (o *Overtime) ItemID() int64    { return o.ID }
func (*Overtime) isLineItem()        {}

func (o *Overtime) Total() decimal.Decimal {
	return RoundMoney(o.Hours.Mul(o.HourlyRate))
}

func (o *Overtime) Normalize() {
	o.HourlyRate = RoundMoney(o.HourlyRate)
	o.LineTotal = o.Total()
}

func (o *Overtime) Validate() error {
	if !o.Role.IsValid() {
		return NewValidationError("role", "must be operator, signal_person or equipment")
	}
	if !o.DayKind.IsValid() {
		return NewValidationError("day_kind", "must be saturday, sunday_holiday or normal")
	}
	if o.Hours.IsNegative() {
		return NewValidationError("hours", "cannot be negative")
	}
	if o.HourlyRate.IsNegative() {
		return NewValidationError("hourly_rate", "cannot be negative")
	}
	if err := CheckMoney("hourly_rate", o.HourlyRate); err != nil {
		return err
	}
	return CheckMoney("line_total", o.Total())
}

// AdditionalService is a one-off service billed by quantity.
type AdditionalService struct {
	ID              int64           `json:"id"`
	MeasurementID   string          `json:"measurement_id"`
	ServiceCategory string          `json:"category"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitValue       decimal.Decimal `json:"unit_value"`
	LineTotal       decimal.Decimal `json:"line_total"`
	Notes           string          `json:"notes,omitempty"`
}

func (*AdditionalService) Category() Category { return CategoryAdditionalServices }
func (s *AdditionalService) ItemID() int64    { return s.ID }
func (*AdditionalService) isLineItem()        {}

func (s *AdditionalService) Total() decimal.Decimal {
	return RoundMoney(s.Quantity.Mul(s.UnitValue))
}

func (s *AdditionalService) Normalize() {
	s.UnitValue = RoundMoney(s.UnitValue)
	s.LineTotal = s.Total()
}

func (s *AdditionalService) Validate() error {
	if strings.TrimSpace(s.ServiceCategory) == "" {
		return NewValidationError("category", "is required")
	}
	if strings.TrimSpace(s.Description) == "" {
		return NewValidationError("description", "is required")
	}
	if s.Quantity.IsNegative() {
		return NewValidationError("quantity", "cannot be negative")
	}
	if s.UnitValue.IsNegative() {
		return NewValidationError("unit_value", "cannot be negative")
	}
	if err := CheckMoney("unit_value", s.UnitValue); err != nil {
		return err
	}
	return CheckMoney("line_total", s.Total())
}

// Amendment is a signed credit or debit applied to the period.
type Amendment struct {
	ID            int64           `json:"id"`
	MeasurementID string          `json:"measurement_id"`
	Kind          AmendmentKind   `json:"kind"`
	Description   string          `json:"description"`
	Value         decimal.Decimal `json:"value"`
	Notes         string          `json:"notes,omitempty"`
}

func (*Amendment) Category() Category { return CategoryAmendments }
func (a *Amendment) ItemID() int64    { return a.ID }
func (*Amendment) isLineItem()        {}

// Total is the amendment's effect on the grand total: additions count as
// given, discounts always subtract their magnitude.
func (a *Amendment) Total() decimal.Decimal {
	if a.Kind == AmendmentDiscount {
		return a.Value.Abs().Neg()
	}
	return a.Value
}

func (a *Amendment) Normalize() {
	a.Value = RoundMoney(a.Value)
}

func (a *Amendment) Validate() error {
	if !a.Kind.IsValid() {
		return NewValidationError("kind", "must be addition or discount")
	}
	if strings.TrimSpace(a.Description) == "" {
		return NewValidationError("description", "is required")
	}
	return CheckMoney("value", a.Value)
}

// LineItems holds the current line items of one measurement, grouped by family.
type LineItems struct {
	RecurringCosts     []*RecurringCost     `json:"recurring_costs"`
	Overtime           []*Overtime          `json:"overtime"`
	AdditionalServices []*AdditionalService `json:"additional_services"`
	Amendments         []*Amendment         `json:"amendments"`
}

// Add appends item to the matching family.
func (l *LineItems) Add(item LineItem) {
	switch v := item.(type) {
	case *RecurringCost:
		l.RecurringCosts = append(l.RecurringCosts, v)
	case *Overtime:
		l.Overtime = append(l.Overtime, v)
	case *AdditionalService:
		l.AdditionalServices = append(l.AdditionalServices, v)
	case *Amendment:
		l.Amendments = append(l.Amendments, v)
	}
}

// Of returns the items of a single family.
func (l LineItems) Of(c Category) []LineItem {
	var out []LineItem
	switch c {
	case CategoryRecurringCosts:
		for _, v := range l.RecurringCosts {
			out = append(out, v)
		}
	case CategoryOvertime:
		for _, v := range l.Overtime {
			out = append(out, v)
		}
	case CategoryAdditionalServices:
		for _, v := range l.AdditionalServices {
			out = append(out, v)
		}
	case CategoryAmendments:
		for _, v := range l.Amendments {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of items across all families.
func (l LineItems) Count() int {
	return len(l.RecurringCosts) + len(l.Overtime) + len(l.AdditionalServices) + len(l.Amendments)
}

// PrepareLineItem validates item, checks it belongs to category and normalizes it.
func PrepareLineItem(category Category, item LineItem) error {
	if item == nil {
		return NewValidationError("item", "is required")
	}
	if item.Category() != category {
		return NewValidationError("category", fmt.Sprintf("item of kind %s cannot be stored as %s", item.Category(), category))
	}
	if err := item.Validate(); err != nil {
		return err
	}
	item.Normalize()
	return nil
}
