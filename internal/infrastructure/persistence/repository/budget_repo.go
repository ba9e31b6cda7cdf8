package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BudgetRepository implements port.BudgetRepository
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) port.BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a budget. Used by seeding and tests; budgets are managed elsewhere.
func (r *BudgetRepository) Create(ctx context.Context, b *entity.Budget) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	var last sql.NullString
	if b.LastMeasuredPeriod != nil {
		last = nullString(b.LastMeasuredPeriod.String())
	}

	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO budgets (id, number, client_name, accumulated_invoiced_cents, last_measured_period, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Number, b.ClientName, entity.ToCents(b.AccumulatedInvoicedTotal), last, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create budget", zap.String("budget_id", b.ID), zap.Error(err))
		return storageError("create budget", err)
	}
	return nil
}

// GetByID retrieves a budget by ID. Returns nil, nil when absent.
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.Budget, error) {
	var (
		b     entity.Budget
		cents int64
		last  sql.NullString
	)

	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, number, client_name, accumulated_invoiced_cents, last_measured_period, created_at, updated_at
		FROM budgets WHERE id = ?`, id,
	).Scan(&b.ID, &b.Number, &b.ClientName, &cents, &last, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get budget by ID", zap.String("budget_id", id), zap.Error(err))
		return nil, storageError("get budget", err)
	}

	b.AccumulatedInvoicedTotal = entity.FromCents(cents)
	if b.LastMeasuredPeriod, err = periodPtr(last); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetTemplates loads the three catalogs of a budget
func (r *BudgetRepository) GetTemplates(ctx context.Context, budgetID string) (*entity.BudgetTemplates, error) {
	exec := executor(ctx, r.db)
	t := &entity.BudgetTemplates{}

	rows, err := exec.QueryContext(ctx, `
		SELECT id, budget_id, category, description, monthly_value_cents, notes
		FROM budget_recurring_costs WHERE budget_id = ? ORDER BY id`, budgetID)
	if err != nil {
		return nil, r.templateError("recurring costs", budgetID, err)
	}
	for rows.Next() {
		var rc entity.BudgetRecurringCost
		var cents int64
		if err := rows.Scan(&rc.ID, &rc.BudgetID, &rc.Category, &rc.Description, &cents, &rc.Notes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recurring cost template: %w", err)
		}
		rc.MonthlyValue = entity.FromCents(cents)
		t.RecurringCosts = append(t.RecurringCosts, &rc)
	}
	if err := closeRows(rows); err != nil {
		return nil, r.templateError("recurring costs", budgetID, err)
	}

	rows, err = exec.QueryContext(ctx, `
		SELECT id, budget_id, role, day_kind, hourly_rate_cents, notes
		FROM budget_overtime_rates WHERE budget_id = ? ORDER BY id`, budgetID)
	if err != nil {
		return nil, r.templateError("overtime rates", budgetID, err)
	}
	for rows.Next() {
		var ot entity.BudgetOvertimeRate
		var role, day string
		var cents int64
		if err := rows.Scan(&ot.ID, &ot.BudgetID, &role, &day, &cents, &ot.Notes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan overtime template: %w", err)
		}
		ot.Role = entity.OvertimeRole(role)
		ot.DayKind = entity.DayKind(day)
		ot.HourlyRate = entity.FromCents(cents)
		t.OvertimeRates = append(t.OvertimeRates, &ot)
	}
	if err := closeRows(rows); err != nil {
		return nil, r.templateError("overtime rates", budgetID, err)
	}

	rows, err = exec.QueryContext(ctx, `
		SELECT id, budget_id, category, description, quantity, unit_value_cents, notes
		FROM budget_additional_services WHERE budget_id = ? ORDER BY id`, budgetID)
	if err != nil {
		return nil, r.templateError("additional services", budgetID, err)
	}
	for rows.Next() {
		var s entity.BudgetAdditionalService
		var cents int64
		if err := rows.Scan(&s.ID, &s.BudgetID, &s.Category, &s.Description, &s.Quantity, &cents, &s.Notes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan additional service template: %w", err)
		}
		s.UnitValue = entity.FromCents(cents)
		t.AdditionalServices = append(t.AdditionalServices, &s)
	}
	if err := closeRows(rows); err != nil {
		return nil, r.templateError("additional services", budgetID, err)
	}

	return t, nil
}

// AddRecurringCost adds a recurring-cost template to a budget
func (r *BudgetRepository) AddRecurringCost(ctx context.Context, t *entity.BudgetRecurringCost) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO budget_recurring_costs (budget_id, category, description, monthly_value_cents, notes)
		VALUES (?, ?, ?, ?, ?)`,
		t.BudgetID, t.Category, t.Description, entity.ToCents(t.MonthlyValue), t.Notes,
	)
	if err != nil {
		return r.templateError("recurring cost", t.BudgetID, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// AddOvertimeRate adds an overtime template to a budget
func (r *BudgetRepository) AddOvertimeRate(ctx context.Context, t *entity.BudgetOvertimeRate) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO budget_overtime_rates (budget_id, role, day_kind, hourly_rate_cents, notes)
		VALUES (?, ?, ?, ?, ?)`,
		t.BudgetID, string(t.Role), string(t.DayKind), entity.ToCents(t.HourlyRate), t.Notes,
	)
	if err != nil {
		return r.templateError("overtime rate", t.BudgetID, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// AddAdditionalService adds an additional-service template to a budget
func (r *BudgetRepository) AddAdditionalService(ctx context.Context, t *entity.BudgetAdditionalService) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO budget_additional_services (budget_id, category, description, quantity, unit_value_cents, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.BudgetID, t.Category, t.Description, t.Quantity, entity.ToCents(t.UnitValue), t.Notes,
	)
	if err != nil {
		return r.templateError("additional service", t.BudgetID, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// ApplyFinalized folds a finalized grand total into the budget.
// The increment happens in SQL so concurrent finalizations never lose an update.
func (r *BudgetRepository) ApplyFinalized(ctx context.Context, budgetID string, grandTotal decimal.Decimal, period entity.Period) error {
	query := `
		UPDATE budgets
		SET accumulated_invoiced_cents = accumulated_invoiced_cents + ?,
			last_measured_period = CASE
				WHEN last_measured_period IS NULL OR last_measured_period < ? THEN ?
				ELSE last_measured_period
			END,
			updated_at = ?
		WHERE id = ?
	`

	p := period.String()
	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		entity.ToCents(grandTotal), p, p, time.Now().UTC(), budgetID,
	)
	if err != nil {
		r.logger.Error("Failed to apply finalized measurement to budget",
			zap.String("budget_id", budgetID),
			zap.String("period", p),
			zap.Error(err))
		return storageError("apply finalized measurement", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: "budget", ID: budgetID}
	}
	return nil
}

func (r *BudgetRepository) templateError(what, budgetID string, err error) error {
	r.logger.Error("Failed budget template operation",
		zap.String("template", what),
		zap.String("budget_id", budgetID),
		zap.Error(err))
	return storageError("access budget "+what, err)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// Verify interface compliance
var _ port.BudgetRepository = (*BudgetRepository)(nil)
