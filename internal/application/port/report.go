package port

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/domain/entity"
)

// BudgetReport is the chronological measurement history of one budget
type BudgetReport struct {
	Budget      *entity.Budget
	Rows        []BudgetReportRow
	GeneratedAt time.Time
}

// BudgetReportRow is one measurement plus the finalized total accumulated up to it
type BudgetReportRow struct {
	Measurement          *entity.Measurement
	AccumulatedFinalized decimal.Decimal
}
