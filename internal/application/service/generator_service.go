package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// GenerateInput selects the budget, period and which catalogs to copy
type GenerateInput struct {
	BudgetID               string
	Period                 entity.Period
	MeasurementDate        time.Time
	CopyRecurringCosts     bool
	CopyOvertime           bool
	CopyAdditionalServices bool
	Actor                  string
}

// GeneratorService seeds a measurement from a budget's catalogs
type GeneratorService interface {
	GenerateFromBudget(ctx context.Context, in GenerateInput) (*entity.MeasurementDetail, error)
}

type generatorServiceImpl struct {
	aggregate
}

// NewGeneratorService creates a new generator service
func NewGeneratorService(
	repos Repositories,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
) GeneratorService {
	return &generatorServiceImpl{
		aggregate: aggregate{
			repos:     repos,
			txManager: txManager,
			publisher: publisher,
			logger:    logger,
		},
	}
}

// MeasurementNumber is the deterministic label of a generated measurement
func MeasurementNumber(period entity.Period, b *entity.Budget) string {
	return fmt.Sprintf("MED-%s-%s", period, b.Label())
}

// GenerateFromBudget builds a pending measurement for the period. The early
// duplicate check gives a clean error; the unique index decides races.
func (s *generatorServiceImpl) GenerateFromBudget(ctx context.Context, in GenerateInput) (*entity.MeasurementDetail, error) {
	if in.BudgetID == "" {
		return nil, entity.ErrMissingParent
	}
	if in.Period.IsZero() {
		return nil, entity.NewValidationError("period", "is required")
	}

	now := s.clock()
	actor := actorOrSystem(in.Actor)
	parent := entity.BudgetParent(in.BudgetID)

	measurementDate := in.MeasurementDate
	if measurementDate.IsZero() {
		measurementDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	var (
		m      *entity.Measurement
		detail *entity.MeasurementDetail
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.repos.Measurements.FindByParentPeriod(txCtx, parent, in.Period)
		if err != nil {
			return err
		}
		if existing != nil {
			return &entity.DuplicatePeriodError{Parent: parent, Period: in.Period, ExistingID: existing.ID}
		}

		b, err := s.ensureParent(txCtx, parent)
		if err != nil {
			return err
		}
		templates, err := s.repos.Budgets.GetTemplates(txCtx, b.ID)
		if err != nil {
			return err
		}

		m = &entity.Measurement{
			ID:              uuid.NewString(),
			Parent:          parent,
			Number:          MeasurementNumber(in.Period, b),
			MeasurementDate: measurementDate,
			Status:          workflow.StatePending,
			CreatedBy:       actor,
			UpdatedBy:       actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		m.SetPeriod(in.Period)
		if err := m.Validate(); err != nil {
			return err
		}

		items := seedItems(templates, in)
		if err := prepareItems(items); err != nil {
			return err
		}
		if err := s.repos.Measurements.Create(txCtx, m); err != nil {
			return err
		}
		if err := s.insertAll(txCtx, m, items); err != nil {
			return err
		}
		detail, err = s.detail(txCtx, m)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to generate measurement",
			"budget_id", in.BudgetID,
			"period", in.Period.String(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Measurement generated from budget",
		"measurement_id", m.ID,
		"budget_id", in.BudgetID,
		"period", m.Period.String(),
		"items", detail.Items.Count(),
		"grand_total", m.Totals.GrandTotal.StringFixed(entity.MoneyPlaces),
	)
	payload := measurementPayload(m)
	payload["generated"] = true
	s.publish(ctx, event.NewEvent(event.TypeMeasurementCreated, m.ID, actor, payload))
	return detail, nil
}

// seedItems copies the selected catalogs into fresh line items
func seedItems(t *entity.BudgetTemplates, in GenerateInput) entity.LineItems {
	var items entity.LineItems
	if t == nil {
		return items
	}

	if in.CopyRecurringCosts {
		for _, rc := range t.RecurringCosts {
			items.Add(&entity.RecurringCost{
				CostCategory:   rc.Category,
				Description:    rc.Description,
				MonthlyValue:   rc.MonthlyValue,
				QuantityMonths: decimal.NewFromInt(1),
				Notes:          rc.Notes,
			})
		}
	}
	if in.CopyOvertime {
		for _, ot := range t.OvertimeRates {
			items.Add(&entity.Overtime{
				Role:       ot.Role,
				DayKind:    ot.DayKind,
				Hours:      decimal.Zero,
				HourlyRate: ot.HourlyRate,
				Notes:      ot.Notes,
			})
		}
	}
	if in.CopyAdditionalServices {
		for _, as := range t.AdditionalServices {
			items.Add(&entity.AdditionalService{
				ServiceCategory: as.Category,
				Description:     as.Description,
				Quantity:        as.Quantity,
				UnitValue:       as.UnitValue,
				Notes:           as.Notes,
			})
		}
	}
	return items
}
