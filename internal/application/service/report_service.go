package service

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// ReportService renders measurement history reports
type ReportService interface {
	BudgetReport(ctx context.Context, budgetID string) (*port.BudgetReport, error)
	WriteBudgetReport(ctx context.Context, budgetID string, w io.Writer) error
}

type reportServiceImpl struct {
	budgets      port.BudgetRepository
	measurements port.MeasurementRepository
	renderer     port.ReportRenderer
	logger       Logger
	now          func() time.Time
}

// NewReportService creates a new report service
func NewReportService(
	budgets port.BudgetRepository,
	measurements port.MeasurementRepository,
	renderer port.ReportRenderer,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		budgets:      budgets,
		measurements: measurements,
		renderer:     renderer,
		logger:       logger,
		now:          time.Now,
	}
}

// BudgetReport lists a budget's measurements in period order with the
// running total of everything finalized so far.
func (s *reportServiceImpl) BudgetReport(ctx context.Context, budgetID string) (*port.BudgetReport, error) {
	b, err := s.budgets.GetByID(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &entity.NotFoundError{Resource: "budget", ID: budgetID}
	}

	list, err := s.measurements.ListByBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	report := &port.BudgetReport{
		Budget:      b,
		Rows:        make([]port.BudgetReportRow, 0, len(list)),
		GeneratedAt: s.now().UTC(),
	}
	running := decimal.Zero
	for _, m := range list {
		if countsAsInvoiced(m.Status) {
			running = running.Add(m.Totals.GrandTotal)
		}
		report.Rows = append(report.Rows, port.BudgetReportRow{Measurement: m, AccumulatedFinalized: running})
	}
	return report, nil
}

// WriteBudgetReport renders the budget report into w
func (s *reportServiceImpl) WriteBudgetReport(ctx context.Context, budgetID string, w io.Writer) error {
	report, err := s.BudgetReport(ctx, budgetID)
	if err != nil {
		return err
	}
	if err := s.renderer.RenderBudgetReport(w, report); err != nil {
		s.logger.Error("Failed to render budget report", "budget_id", budgetID, "error", err)
		return err
	}
	s.logger.Info("Budget report rendered", "budget_id", budgetID, "rows", len(report.Rows))
	return nil
}

// countsAsInvoiced is true for measurements whose totals were folded into
// the budget: finalized ones and those sent after finalization.
func countsAsInvoiced(s workflow.State) bool {
	return s == workflow.StateFinalized || s == workflow.StateSent
}
