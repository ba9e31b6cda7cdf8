package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"go.uber.org/zap"
)

// lineItemTable holds what the four line-item stores share: the table name,
// the family it serves and the delete paths.
type lineItemTable struct {
	db       *sql.DB
	logger   *zap.Logger
	table    string
	category entity.Category
}

func (t *lineItemTable) Category() entity.Category {
	return t.category
}

// Delete removes one item of the measurement
func (t *lineItemTable) Delete(ctx context.Context, measurementID string, itemID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND measurement_id = ?`, t.table)

	res, err := executor(ctx, t.db).ExecContext(ctx, query, itemID, measurementID)
	if err != nil {
		t.logger.Error("Failed to delete line item",
			zap.String("category", string(t.category)),
			zap.String("measurement_id", measurementID),
			zap.Int64("item_id", itemID),
			zap.Error(err))
		return storageError("delete line item", err)
	}
	return t.expectOne(res, itemID)
}

// DeleteAll removes every item of this family from the measurement
func (t *lineItemTable) DeleteAll(ctx context.Context, measurementID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE measurement_id = ?`, t.table)

	if _, err := executor(ctx, t.db).ExecContext(ctx, query, measurementID); err != nil {
		t.logger.Error("Failed to delete line items",
			zap.String("category", string(t.category)),
			zap.String("measurement_id", measurementID),
			zap.Error(err))
		return storageError("delete line items", err)
	}
	return nil
}

func (t *lineItemTable) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := executor(ctx, t.db).ExecContext(ctx, query, args...)
	if err != nil {
		t.logger.Error("Failed to insert line item", zap.String("category", string(t.category)), zap.Error(err))
		return 0, storageError("insert line item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

func (t *lineItemTable) update(ctx context.Context, itemID int64, query string, args ...interface{}) error {
	res, err := executor(ctx, t.db).ExecContext(ctx, query, args...)
	if err != nil {
		t.logger.Error("Failed to update line item",
			zap.String("category", string(t.category)),
			zap.Int64("item_id", itemID),
			zap.Error(err))
		return storageError("update line item", err)
	}
	return t.expectOne(res, itemID)
}

func (t *lineItemTable) list(ctx context.Context, query, measurementID string, scan func(rowScanner) (entity.LineItem, error)) ([]entity.LineItem, error) {
	rows, err := executor(ctx, t.db).QueryContext(ctx, query, measurementID)
	if err != nil {
		t.logger.Error("Failed to list line items",
			zap.String("category", string(t.category)),
			zap.String("measurement_id", measurementID),
			zap.Error(err))
		return nil, storageError("list line items", err)
	}
	defer rows.Close()

	items := []entity.LineItem{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s item: %w", t.category, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *lineItemTable) expectOne(res sql.Result, itemID int64) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: string(t.category) + " item", ID: fmt.Sprint(itemID)}
	}
	return nil
}

func wrongFamily(want entity.Category, item entity.LineItem) error {
	return entity.NewValidationError("category", fmt.Sprintf("%T cannot be stored as %s", item, want))
}

// RecurringCostRepository stores recurring costs
type RecurringCostRepository struct{ lineItemTable }

// NewRecurringCostRepository creates the recurring-cost store
func NewRecurringCostRepository(db *sql.DB, logger *zap.Logger) port.LineItemRepository {
	return &RecurringCostRepository{lineItemTable{db: db, logger: logger, table: "measurement_recurring_costs", category: entity.CategoryRecurringCosts}}
}

func (r *RecurringCostRepository) Insert(ctx context.Context, measurementID string, item entity.LineItem) error {
	rc, ok := item.(*entity.RecurringCost)
	if !ok {
		return wrongFamily(r.category, item)
	}
	id, err := r.insert(ctx, `
		INSERT INTO measurement_recurring_costs (
			measurement_id, category, description, monthly_value_cents, quantity_months, line_total_cents, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		measurementID, rc.CostCategory, rc.Description,
		entity.ToCents(rc.MonthlyValue), rc.QuantityMonths, entity.ToCents(rc.LineTotal), rc.Notes,
	)
	if err != nil {
		return err
	}
	rc.ID = id
	rc.MeasurementID = measurementID
	return nil
}

func (r *RecurringCostRepository) Update(ctx context.Context, measurementID string, item entity.LineItem) error {
	rc, ok := item.(*entity.RecurringCost)
	if !ok {
		return wrongFamily(r.category, item)
	}
	rc.MeasurementID = measurementID
	return r.update(ctx, rc.ID, `
		UPDATE measurement_recurring_costs
		SET category = ?, description = ?, monthly_value_cents = ?, quantity_months = ?, line_total_cents = ?, notes = ?
		WHERE id = ? AND measurement_id = ?`,
		rc.CostCategory, rc.Description, entity.ToCents(rc.MonthlyValue), rc.QuantityMonths,
		entity.ToCents(rc.LineTotal), rc.Notes, rc.ID, measurementID,
	)
}

func (r *RecurringCostRepository) List(ctx context.Context, measurementID string) ([]entity.LineItem, error) {
	query := `
		SELECT id, measurement_id, category, description, monthly_value_cents, quantity_months, line_total_cents, notes
		FROM measurement_recurring_costs WHERE measurement_id = ? ORDER BY id`
	return r.list(ctx, query, measurementID, func(row rowScanner) (entity.LineItem, error) {
		var rc entity.RecurringCost
		var monthly, total int64
		if err := row.Scan(&rc.ID, &rc.MeasurementID, &rc.CostCategory, &rc.Description,
			&monthly, &rc.QuantityMonths, &total, &rc.Notes); err != nil {
			return nil, err
		}
		rc.MonthlyValue = entity.FromCents(monthly)
		rc.LineTotal = entity.FromCents(total)
		return &rc, nil
	})
}

// OvertimeRepository stores overtime entries
type OvertimeRepository struct{ lineItemTable }

// NewOvertimeRepository creates the overtime store
func NewOvertimeRepository(db *sql.DB, logger *zap.Logger) port.LineItemRepository {
	return &OvertimeRepository{lineItemTable{db: db, logger: logger, table: "measurement_overtime", category: entity.CategoryOvertime}}
}

func (r *OvertimeRepository) Insert(ctx context.Context, measurementID string, item entity.LineItem) error {
	ot, ok := item.(*entity.Overtime)
	if !ok {
		return wrongFamily(r.category, item)
	}
	id, err := r.insert(ctx, `
		INSERT INTO measurement_overtime (
			measurement_id, role, day_kind, hours, hourly_rate_cents, line_total_cents, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		measurementID, string(ot.Role), string(ot.DayKind), ot.Hours,
		entity.ToCents(ot.HourlyRate), entity.ToCents(ot.LineTotal), ot.Notes,
	)
	if err != nil {
		return err
	}
	ot.ID = id
	ot.MeasurementID = measurementID
	return nil
}

func (r *OvertimeRepository) Update(ctx context.Context, measurementID string, item entity.LineItem) error {
	ot, ok := item.(*entity.Overtime)
	if !ok {
		return wrongFamily(r.category, item)
	}
	ot.MeasurementID = measurementID
	return r.update(ctx, ot.ID, `
		UPDATE measurement_overtime
		SET role = ?, day_kind = ?, hours = ?, hourly_rate_cents = ?, line_total_cents = ?, notes = ?
		WHERE id = ? AND measurement_id = ?`,
		string(ot.Role), string(ot.DayKind), ot.Hours, entity.ToCents(ot.HourlyRate),
		entity.ToCents(ot.LineTotal), ot.Notes, ot.ID, measurementID,
	)
}

func (r *OvertimeRepository) List(ctx context.Context, measurementID string) ([]entity.LineItem, error) {
	query := `
		SELECT id, measurement_id, role, day_kind, hours, hourly_rate_cents, line_total_cents, notes
		FROM measurement_overtime WHERE measurement_id = ? ORDER BY id`
	return r.list(ctx, query, measurementID, func(row rowScanner) (entity.LineItem, error) {
		var ot entity.Overtime
		var role, day string
		var rate, total int64
		if err := row.Scan(&ot.ID, &ot.MeasurementID, &role, &day, &ot.Hours, &rate, &total, &ot.Notes); err != nil {
			return nil, err
		}
		ot.Role = entity.OvertimeRole(role)
		ot.DayKind = entity.DayKind(day)
		ot.HourlyRate = entity.FromCents(rate)
		ot.LineTotal = entity.FromCents(total)
		return &ot, nil
	})
}

// AdditionalServiceRepository stores additional services
type AdditionalServiceRepository struct{ lineItemTable }

// NewAdditionalServiceRepository creates the additional-service store
func NewAdditionalServiceRepository(db *sql.DB, logger *zap.Logger) port.LineItemRepository {
	return &AdditionalServiceRepository{lineItemTable{db: db, logger: logger, table: "measurement_additional_services", category: entity.CategoryAdditionalServices}}
}

func (r *AdditionalServiceRepository) Insert(ctx context.Context, measurementID string, item entity.LineItem) error {
	s, ok := item.(*entity.AdditionalService)
	if !ok {
		return wrongFamily(r.category, item)
	}
	id, err := r.insert(ctx, `
		INSERT INTO measurement_additional_services (
			measurement_id, category, description, quantity, unit_value_cents, line_total_cents, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		measurementID, s.ServiceCategory, s.Description, s.Quantity,
		entity.ToCents(s.UnitValue), entity.ToCents(s.LineTotal), s.Notes,
	)
	if err != nil {
		return err
	}
	s.ID = id
	s.MeasurementID = measurementID
	return nil
}

func (r *AdditionalServiceRepository) Update(ctx context.Context, measurementID string, item entity.LineItem) error {
	s, ok := item.(*entity.AdditionalService)
	if !ok {
		return wrongFamily(r.category, item)
	}
	s.MeasurementID = measurementID
	return r.update(ctx, s.ID, `
		UPDATE measurement_additional_services
		SET category = ?, description = ?, quantity = ?, unit_value_cents = ?, line_total_cents = ?, notes = ?
		WHERE id = ? AND measurement_id = ?`,
		s.ServiceCategory, s.Description, s.Quantity, entity.ToCents(s.UnitValue),
		entity.ToCents(s.LineTotal), s.Notes, s.ID, measurementID,
	)
}

func (r *AdditionalServiceRepository) List(ctx context.Context, measurementID string) ([]entity.LineItem, error) {
	query := `
		SELECT id, measurement_id, category, description, quantity, unit_value_cents, line_total_cents, notes
		FROM measurement_additional_services WHERE measurement_id = ? ORDER BY id`
	return r.list(ctx, query, measurementID, func(row rowScanner) (entity.LineItem, error) {
		var s entity.AdditionalService
		var unit, total int64
		if err := row.Scan(&s.ID, &s.MeasurementID, &s.ServiceCategory, &s.Description,
			&s.Quantity, &unit, &total, &s.Notes); err != nil {
			return nil, err
		}
		s.UnitValue = entity.FromCents(unit)
		s.LineTotal = entity.FromCents(total)
		return &s, nil
	})
}

// AmendmentRepository stores amendments
type AmendmentRepository struct{ lineItemTable }

// NewAmendmentRepository creates the amendment store
func NewAmendmentRepository(db *sql.DB, logger *zap.Logger) port.LineItemRepository {
	return &AmendmentRepository{lineItemTable{db: db, logger: logger, table: "measurement_amendments", category: entity.CategoryAmendments}}
}

func (r *AmendmentRepository) Insert(ctx context.Context, measurementID string, item entity.LineItem) error {
	a, ok := item.(*entity.Amendment)
	if !ok {
		return wrongFamily(r.category, item)
	}
	id, err := r.insert(ctx, `
		INSERT INTO measurement_amendments (measurement_id, kind, description, value_cents, notes)
		VALUES (?, ?, ?, ?, ?)`,
		measurementID, string(a.Kind), a.Description, entity.ToCents(a.Value), a.Notes,
	)
	if err != nil {
		return err
	}
	a.ID = id
	a.MeasurementID = measurementID
	return nil
}

func (r *AmendmentRepository) Update(ctx context.Context, measurementID string, item entity.LineItem) error {
	a, ok := item.(*entity.Amendment)
	if !ok {
		return wrongFamily(r.category, item)
	}
	a.MeasurementID = measurementID
	return r.update(ctx, a.ID, `
		UPDATE measurement_amendments
		SET kind = ?, description = ?, value_cents = ?, notes = ?
		WHERE id = ? AND measurement_id = ?`,
		string(a.Kind), a.Description, entity.ToCents(a.Value), a.Notes, a.ID, measurementID,
	)
}

func (r *AmendmentRepository) List(ctx context.Context, measurementID string) ([]entity.LineItem, error) {
	query := `
		SELECT id, measurement_id, kind, description, value_cents, notes
		FROM measurement_amendments WHERE measurement_id = ? ORDER BY id`
	return r.list(ctx, query, measurementID, func(row rowScanner) (entity.LineItem, error) {
		var a entity.Amendment
		var kind string
		var value int64
		if err := row.Scan(&a.ID, &a.MeasurementID, &kind, &a.Description, &value, &a.Notes); err != nil {
			return nil, err
		}
		a.Kind = entity.AmendmentKind(kind)
		a.Value = entity.FromCents(value)
		return &a, nil
	})
}

// NewLineItemRepositories builds the four stores keyed by family
func NewLineItemRepositories(db *sql.DB, logger *zap.Logger) map[entity.Category]port.LineItemRepository {
	repos := []port.LineItemRepository{
		NewRecurringCostRepository(db, logger),
		NewOvertimeRepository(db, logger),
		NewAdditionalServiceRepository(db, logger),
		NewAmendmentRepository(db, logger),
	}
	out := make(map[entity.Category]port.LineItemRepository, len(repos))
	for _, r := range repos {
		out[r.Category()] = r
	}
	return out
}

// Verify interface compliance
var (
	_ port.LineItemRepository = (*RecurringCostRepository)(nil)
	_ port.LineItemRepository = (*OvertimeRepository)(nil)
	_ port.LineItemRepository = (*AdditionalServiceRepository)(nil)
	_ port.LineItemRepository = (*AmendmentRepository)(nil)
)
