package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is the commercial agreement a measurement bills against.
// AccumulatedInvoicedTotal and LastMeasuredPeriod change only through finalization.
type Budget struct {
	ID                       string          `json:"id"`
	Number                   string          `json:"number"`
	ClientName               string          `json:"client_name"`
	AccumulatedInvoicedTotal decimal.Decimal `json:"accumulated_invoiced_total"`
	LastMeasuredPeriod       *Period         `json:"last_measured_period,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// Label is the budget number, or its id when the number is blank.
func (b *Budget) Label() string {
	if b.Number != "" {
		return b.Number
	}
	return b.ID
}

// Site is a construction site ("obra") measurements can bill directly.
type Site struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BudgetRecurringCost is a monthly cost in a budget's catalog.
type BudgetRecurringCost struct {
	ID           int64           `json:"id"`
	BudgetID     string          `json:"budget_id"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	MonthlyValue decimal.Decimal `json:"monthly_value"`
	Notes        string          `json:"notes,omitempty"`
}

// BudgetOvertimeRate is an agreed hourly rate for overtime.
type BudgetOvertimeRate struct {
	ID         int64           `json:"id"`
	BudgetID   string          `json:"budget_id"`
	Role       OvertimeRole    `json:"role"`
	DayKind    DayKind         `json:"day_kind"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Notes      string          `json:"notes,omitempty"`
}

// BudgetAdditionalService is an optional service in a budget's catalog.
type BudgetAdditionalService struct {
	ID          int64           `json:"id"`
	BudgetID    string          `json:"budget_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	Notes       string          `json:"notes,omitempty"`
}

// BudgetTemplates is the catalog the generator seeds measurements from.
type BudgetTemplates struct {
	RecurringCosts     []*BudgetRecurringCost
	OvertimeRates      []*BudgetOvertimeRate
	AdditionalServices []*BudgetAdditionalService
}
