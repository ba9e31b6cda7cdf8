package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// MeasurementRepository defines persistence operations for Measurement headers.
//
// Create must enforce period uniqueness atomically and return an error
// matching entity.ErrDuplicatePeriod when the parent already has a
// measurement for the period.
type MeasurementRepository interface {
	Create(ctx context.Context, m *entity.Measurement) error
	GetByID(ctx context.Context, id string) (*entity.Measurement, error)
	FindByParentPeriod(ctx context.Context, parent entity.Parent, period entity.Period) (*entity.Measurement, error)
	UpdateHeader(ctx context.Context, m *entity.Measurement) error
	UpdateTotals(ctx context.Context, id string, totals entity.Totals, updatedBy string, at time.Time) error

	// TransitionStatus moves the measurement from `from` to m.Status, writing
	// the lifecycle timestamps. It returns false when the stored status was no
	// longer `from`.
	TransitionStatus(ctx context.Context, m *entity.Measurement, from workflow.State) (bool, error)
	UpdateApproval(ctx context.Context, m *entity.Measurement) error
	Delete(ctx context.Context, id string) error

	ListByBudget(ctx context.Context, budgetID string) ([]*entity.Measurement, error)
	ListBySite(ctx context.Context, siteID string) ([]*entity.Measurement, error)
	List(ctx context.Context, filter entity.MeasurementFilter) ([]*entity.Measurement, int, error)
}

// LineItemRepository persists one line-item family. The four families
// share this shape; Category tells which one an implementation serves.
type LineItemRepository interface {
	Category() entity.Category
	Insert(ctx context.Context, measurementID string, item entity.LineItem) error
	Update(ctx context.Context, measurementID string, item entity.LineItem) error
	Delete(ctx context.Context, measurementID string, itemID int64) error
	DeleteAll(ctx context.Context, measurementID string) error
	List(ctx context.Context, measurementID string) ([]entity.LineItem, error)
}

// BudgetRepository defines persistence operations for budgets and their catalogs
type BudgetRepository interface {
	Create(ctx context.Context, b *entity.Budget) error
	GetByID(ctx context.Context, id string) (*entity.Budget, error)
	GetTemplates(ctx context.Context, budgetID string) (*entity.BudgetTemplates, error)
	AddRecurringCost(ctx context.Context, t *entity.BudgetRecurringCost) error
	AddOvertimeRate(ctx context.Context, t *entity.BudgetOvertimeRate) error
	AddAdditionalService(ctx context.Context, t *entity.BudgetAdditionalService) error

	// ApplyFinalized atomically adds grandTotal to the accumulated invoiced
	// total and advances last_measured_period when period is later.
	ApplyFinalized(ctx context.Context, budgetID string, grandTotal decimal.Decimal, period entity.Period) error
}

// SiteRepository defines persistence operations for sites
type SiteRepository interface {
	Create(ctx context.Context, s *entity.Site) error
	GetByID(ctx context.Context, id string) (*entity.Site, error)
}

// DocumentRepository defines persistence operations for document attachments
type DocumentRepository interface {
	// Upsert replaces the record for (measurement, kind) and resets its status.
	Upsert(ctx context.Context, doc *entity.DocumentAttachment) error
	GetByKind(ctx context.Context, measurementID string, kind entity.DocumentKind) (*entity.DocumentAttachment, error)
	ListByMeasurement(ctx context.Context, measurementID string) ([]*entity.DocumentAttachment, error)
	UpdateStatus(ctx context.Context, measurementID string, kind entity.DocumentKind, status entity.DocumentStatus, at time.Time) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
