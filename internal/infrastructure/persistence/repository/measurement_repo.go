package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const measurementColumns = `
	id, budget_id, site_id, number, period, measurement_date,
	month_reference, year_reference,
	gross_monthly_cents, amendments_cents, extra_costs_cents, discounts_cents, grand_total_cents,
	status, approval_status, approval_notes, finalized_at, sent_at, approved_at,
	notes, created_by, updated_by, created_at, updated_at`

// MeasurementRepository implements port.MeasurementRepository
type MeasurementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMeasurementRepository creates a new measurement repository
func NewMeasurementRepository(db *sql.DB, logger *zap.Logger) port.MeasurementRepository {
	return &MeasurementRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a measurement header. The unique indexes on
// (budget_id, period) and (site_id, period) decide duplicate periods.
func (r *MeasurementRepository) Create(ctx context.Context, m *entity.Measurement) error {
	query := `
		INSERT INTO measurements (
			id, budget_id, site_id, number, period, measurement_date,
			month_reference, year_reference,
			gross_monthly_cents, amendments_cents, extra_costs_cents, discounts_cents, grand_total_cents,
			status, notes, created_by, updated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	budgetID, _ := m.Parent.BudgetID()
	siteID, _ := m.Parent.SiteID()

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		m.ID,
		nullString(budgetID),
		nullString(siteID),
		m.Number,
		m.Period.String(),
		m.MeasurementDate,
		m.MonthReference,
		m.YearReference,
		entity.ToCents(m.Totals.GrossMonthlyValue),
		entity.ToCents(m.Totals.AmendmentsValue),
		entity.ToCents(m.Totals.ExtraCostsValue),
		entity.ToCents(m.Totals.DiscountsValue),
		entity.ToCents(m.Totals.GrandTotal),
		m.Status.String(),
		m.Notes,
		m.CreatedBy,
		m.UpdatedBy,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return r.classifyWriteError(ctx, "create measurement", m, err)
	}
	return nil
}

// GetByID retrieves a measurement by ID. Returns nil, nil when absent.
func (r *MeasurementRepository) GetByID(ctx context.Context, id string) (*entity.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE id = ?`

	m, err := scanMeasurement(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get measurement by ID", zap.String("measurement_id", id), zap.Error(err))
		return nil, storageError("get measurement", err)
	}
	return m, nil
}

// FindByParentPeriod returns the measurement occupying period for parent, or nil.
func (r *MeasurementRepository) FindByParentPeriod(ctx context.Context, parent entity.Parent, period entity.Period) (*entity.Measurement, error) {
	var query string
	if _, ok := parent.BudgetID(); ok {
		query = `SELECT ` + measurementColumns + ` FROM measurements WHERE budget_id = ? AND period = ?`
	} else {
		query = `SELECT ` + measurementColumns + ` FROM measurements WHERE site_id = ? AND budget_id IS NULL AND period = ?`
	}

	m, err := scanMeasurement(executor(ctx, r.db).QueryRowContext(ctx, query, parent.ID(), period.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find measurement by period",
			zap.String("parent", parent.String()),
			zap.String("period", period.String()),
			zap.Error(err))
		return nil, storageError("find measurement by period", err)
	}
	return m, nil
}

// UpdateHeader writes the editable header fields
func (r *MeasurementRepository) UpdateHeader(ctx context.Context, m *entity.Measurement) error {
	query := `
		UPDATE measurements
		SET number = ?, period = ?, measurement_date = ?, month_reference = ?, year_reference = ?,
			notes = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		m.Number,
		m.Period.String(),
		m.MeasurementDate,
		m.MonthReference,
		m.YearReference,
		m.Notes,
		m.UpdatedBy,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return r.classifyWriteError(ctx, "update measurement", m, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: "measurement", ID: m.ID}
	}
	return nil
}

// UpdateTotals stores a freshly recalculated summary
func (r *MeasurementRepository) UpdateTotals(ctx context.Context, id string, totals entity.Totals, updatedBy string, at time.Time) error {
	query := `
		UPDATE measurements
		SET gross_monthly_cents = ?, amendments_cents = ?, extra_costs_cents = ?,
			discounts_cents = ?, grand_total_cents = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		entity.ToCents(totals.GrossMonthlyValue),
		entity.ToCents(totals.AmendmentsValue),
		entity.ToCents(totals.ExtraCostsValue),
		entity.ToCents(totals.DiscountsValue),
		entity.ToCents(totals.GrandTotal),
		updatedBy,
		at,
		id,
	)
	if err != nil {
		r.logger.Error("Failed to update measurement totals", zap.String("measurement_id", id), zap.Error(err))
		return storageError("update measurement totals", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: "measurement", ID: id}
	}
	return nil
}

// TransitionStatus performs a compare-and-set on the status column
func (r *MeasurementRepository) TransitionStatus(ctx context.Context, m *entity.Measurement, from workflow.State) (bool, error) {
	query := `
		UPDATE measurements
		SET status = ?, finalized_at = ?, sent_at = ?, approval_status = ?, updated_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		m.Status.String(),
		nullTime(m.FinalizedAt),
		nullTime(m.SentAt),
		nullString(m.ApprovalStatus),
		m.UpdatedBy,
		m.UpdatedAt,
		m.ID,
		from.String(),
	)
	if err != nil {
		r.logger.Error("Failed to transition measurement status",
			zap.String("measurement_id", m.ID),
			zap.String("from", from.String()),
			zap.String("to", m.Status.String()),
			zap.Error(err))
		return false, storageError("transition measurement status", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateApproval records the client's decision on a sent measurement
func (r *MeasurementRepository) UpdateApproval(ctx context.Context, m *entity.Measurement) error {
	query := `
		UPDATE measurements
		SET approval_status = ?, approval_notes = ?, approved_at = ?, updated_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		nullString(m.ApprovalStatus),
		m.ApprovalNotes,
		nullTime(m.ApprovedAt),
		m.UpdatedBy,
		m.UpdatedAt,
		m.ID,
		workflow.StateSent.String(),
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.String("measurement_id", m.ID), zap.Error(err))
		return storageError("update approval", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.InvalidStateError{MeasurementID: m.ID, Status: m.Status.String(), Operation: "record approval for"}
	}
	return nil
}

// Delete removes a measurement; line items and documents cascade
func (r *MeasurementRepository) Delete(ctx context.Context, id string) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM measurements WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete measurement", zap.String("measurement_id", id), zap.Error(err))
		return storageError("delete measurement", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: "measurement", ID: id}
	}
	return nil
}

// ListByBudget returns the budget's period history, oldest first
func (r *MeasurementRepository) ListByBudget(ctx context.Context, budgetID string) ([]*entity.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE budget_id = ? ORDER BY period ASC, created_at ASC`
	return r.query(ctx, "list measurements by budget", query, budgetID)
}

// ListBySite returns measurements billed directly to a site, oldest first
func (r *MeasurementRepository) ListBySite(ctx context.Context, siteID string) ([]*entity.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE site_id = ? ORDER BY period ASC, created_at ASC`
	return r.query(ctx, "list measurements by site", query, siteID)
}

// List returns one page of measurements plus the total matching count
func (r *MeasurementRepository) List(ctx context.Context, filter entity.MeasurementFilter) ([]*entity.Measurement, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.BudgetID != "" {
		conds = append(conds, "budget_id = ?")
		args = append(args, filter.BudgetID)
	}
	if filter.SiteID != "" {
		conds = append(conds, "site_id = ?")
		args = append(args, filter.SiteID)
	}
	if filter.Period != nil {
		conds = append(conds, "period = ?")
		args = append(args, filter.Period.String())
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status.String())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count measurements", zap.Error(err))
		return nil, 0, storageError("count measurements", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = entity.DefaultPageSize
	}
	query := `SELECT ` + measurementColumns + ` FROM measurements` + where +
		` ORDER BY period DESC, created_at DESC LIMIT ? OFFSET ?`
	items, err := r.query(ctx, "list measurements", query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MeasurementRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.Measurement, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, storageError(op, err)
	}
	defer rows.Close()

	measurements := []*entity.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

// classifyWriteError maps constraint failures to domain errors
func (r *MeasurementRepository) classifyWriteError(ctx context.Context, op string, m *entity.Measurement, err error) error {
	switch {
	case sqlite.IsUniqueViolation(err) && isPeriodIndex(sqlite.ViolatedIndex(err)):
		dup := &entity.DuplicatePeriodError{Parent: m.Parent, Period: m.Period}
		if existing, findErr := r.FindByParentPeriod(ctx, m.Parent, m.Period); findErr == nil && existing != nil {
			dup.ExistingID = existing.ID
		}
		r.logger.Info("Duplicate measurement period rejected",
			zap.String("parent", m.Parent.String()),
			zap.String("period", m.Period.String()),
			zap.String("existing_id", dup.ExistingID))
		return dup
	case sqlite.IsForeignKeyViolation(err):
		return &entity.NotFoundError{Resource: string(m.Parent.Kind()), ID: m.Parent.ID()}
	default:
		r.logger.Error("Failed to "+op, zap.String("measurement_id", m.ID), zap.Error(err))
		return storageError(op, err)
	}
}

func scanMeasurement(row rowScanner) (*entity.Measurement, error) {
	var (
		m                                          entity.Measurement
		budgetID, siteID, approvalStatus           sql.NullString
		period, status                             string
		gross, amendments, extra, discounts, grand int64
		finalizedAt, sentAt, approvedAt            sql.NullTime
	)

	err := row.Scan(
		&m.ID,
		&budgetID,
		&siteID,
		&m.Number,
		&period,
		&m.MeasurementDate,
		&m.MonthReference,
		&m.YearReference,
		&gross,
		&amendments,
		&extra,
		&discounts,
		&grand,
		&status,
		&approvalStatus,
		&m.ApprovalNotes,
		&finalizedAt,
		&sentAt,
		&approvedAt,
		&m.Notes,
		&m.CreatedBy,
		&m.UpdatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Parent, err = entity.ParentFromIDs(budgetID.String, siteID.String); err != nil {
		return nil, fmt.Errorf("measurement %s: %w", m.ID, err)
	}
	if m.Period, err = entity.ParsePeriod(period); err != nil {
		return nil, fmt.Errorf("measurement %s: %w", m.ID, err)
	}
	m.Status = workflow.State(status)
	m.ApprovalStatus = approvalStatus.String
	m.FinalizedAt = timePtr(finalizedAt)
	m.SentAt = timePtr(sentAt)
	m.ApprovedAt = timePtr(approvedAt)
	m.Totals = entity.Totals{
		GrossMonthlyValue: entity.FromCents(gross),
		AmendmentsValue:   entity.FromCents(amendments),
		ExtraCostsValue:   entity.FromCents(extra),
		DiscountsValue:    entity.FromCents(discounts),
		GrandTotal:        entity.FromCents(grand),
	}
	return &m, nil
}

// Verify interface compliance
var _ port.MeasurementRepository = (*MeasurementRepository)(nil)

// isPeriodIndex reports whether the violated columns are one of the
// per-parent period indexes rather than, say, the primary key.
func isPeriodIndex(columns string) bool {
	return strings.Contains(columns, "measurements.period")
}
