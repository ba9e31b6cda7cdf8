package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// CreateMeasurementInput is a new measurement header with optional line items
type CreateMeasurementInput struct {
	Parent          entity.Parent
	Number          string
	Period          entity.Period
	MeasurementDate time.Time
	MonthReference  int
	YearReference   int
	Notes           string
	Items           entity.LineItems
	Actor           string
}

// UpdateMeasurementInput carries a partial header update. A category present
// in Replace has its items replaced wholesale; absent categories are untouched.
type UpdateMeasurementInput struct {
	Number          *string
	Period          *entity.Period
	MeasurementDate *time.Time
	MonthReference  *int
	YearReference   *int
	Notes           *string
	Replace         map[entity.Category][]entity.LineItem
	Actor           string
}

// FinalizeResult is the finalized measurement and the budget it was folded into.
// Budget is nil for measurements billed directly to a site.
type FinalizeResult struct {
	Measurement *entity.Measurement
	Budget      *entity.Budget
}

// MeasurementPage is one page of a filtered listing
type MeasurementPage struct {
	Items  []*entity.Measurement
	Total  int
	Limit  int
	Offset int
}

// MeasurementService manages measurements, their line items and their status
type MeasurementService interface {
	Create(ctx context.Context, in CreateMeasurementInput) (*entity.MeasurementDetail, error)
	Get(ctx context.Context, id string) (*entity.MeasurementDetail, error)
	Update(ctx context.Context, id string, in UpdateMeasurementInput) (*entity.MeasurementDetail, error)
	Delete(ctx context.Context, id, actor string) error

	AddLineItem(ctx context.Context, id string, item entity.LineItem, actor string) (*entity.MeasurementDetail, error)
	UpdateLineItem(ctx context.Context, id string, item entity.LineItem, actor string) (*entity.MeasurementDetail, error)
	RemoveLineItem(ctx context.Context, id string, category entity.Category, itemID int64, actor string) (*entity.MeasurementDetail, error)
	ReplaceAllLineItems(ctx context.Context, id string, category entity.Category, items []entity.LineItem, actor string) (*entity.MeasurementDetail, error)

	Finalize(ctx context.Context, id, actor string) (*FinalizeResult, error)
	Cancel(ctx context.Context, id, actor string) (*entity.Measurement, error)
	Send(ctx context.Context, id, actor string) (*entity.Measurement, error)
	RecordApproval(ctx context.Context, id, decision, notes, actor string) (*entity.Measurement, error)

	ListByBudget(ctx context.Context, budgetID string) ([]*entity.Measurement, error)
	ListBySite(ctx context.Context, siteID string) ([]*entity.Measurement, error)
	List(ctx context.Context, filter entity.MeasurementFilter) (*MeasurementPage, error)
}

type measurementServiceImpl struct {
	aggregate
}

// NewMeasurementService creates a new measurement service
func NewMeasurementService(
	repos Repositories,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
) MeasurementService {
	return &measurementServiceImpl{
		aggregate: aggregate{
			repos:     repos,
			txManager: txManager,
			publisher: publisher,
			logger:    logger,
		},
	}
}

// Create stores a measurement header and its line items in one transaction
func (s *measurementServiceImpl) Create(ctx context.Context, in CreateMeasurementInput) (*entity.MeasurementDetail, error) {
	now := s.clock()
	actor := actorOrSystem(in.Actor)

	m := &entity.Measurement{
		ID:              uuid.NewString(),
		Parent:          in.Parent,
		Number:          in.Number,
		Period:          in.Period,
		MeasurementDate: in.MeasurementDate,
		MonthReference:  in.MonthReference,
		YearReference:   in.YearReference,
		Status:          workflow.StatePending,
		Notes:           in.Notes,
		CreatedBy:       actor,
		UpdatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := prepareItems(in.Items); err != nil {
		return nil, err
	}

	var detail *entity.MeasurementDetail
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.ensureParent(txCtx, m.Parent); err != nil {
			return err
		}
		if err := s.repos.Measurements.Create(txCtx, m); err != nil {
			return err
		}
		if err := s.insertAll(txCtx, m, in.Items); err != nil {
			return err
		}
		var err error
		detail, err = s.detail(txCtx, m)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to create measurement",
			"parent", m.Parent.String(),
			"period", m.Period.String(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Measurement created",
		"measurement_id", m.ID,
		"parent", m.Parent.String(),
		"period", m.Period.String(),
		"grand_total", m.Totals.GrandTotal.StringFixed(entity.MoneyPlaces),
	)
	s.publish(ctx, event.NewEvent(event.TypeMeasurementCreated, m.ID, actor, measurementPayload(m)))
	return detail, nil
}

// Get returns a measurement with its line items and documents
func (s *measurementServiceImpl) Get(ctx context.Context, id string) (*entity.MeasurementDetail, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, m)
}

// Update applies a partial header update and replaces the given categories
func (s *measurementServiceImpl) Update(ctx context.Context, id string, in UpdateMeasurementInput) (*entity.MeasurementDetail, error) {
	actor := actorOrSystem(in.Actor)
	for c, items := range in.Replace {
		if err := prepareCategory(c, items); err != nil {
			return nil, err
		}
	}

	var detail *entity.MeasurementDetail
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := m.EnsureEditable("update"); err != nil {
			return err
		}
		if err := applyHeader(m, in); err != nil {
			return err
		}
		m.UpdatedBy = actor
		m.UpdatedAt = s.clock()

		if err := s.repos.Measurements.UpdateHeader(txCtx, m); err != nil {
			return err
		}
		for _, c := range entity.Categories {
			items, ok := in.Replace[c]
			if !ok {
				continue
			}
			if err := s.replaceCategory(txCtx, m.ID, c, items); err != nil {
				return err
			}
		}
		if err := s.recalculate(txCtx, m); err != nil {
			return err
		}
		detail, err = s.detail(txCtx, m)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to update measurement", "measurement_id", id, "error", err)
		return nil, err
	}

	m := detail.Measurement
	s.logger.Info("Measurement updated", "measurement_id", id, "grand_total", m.Totals.GrandTotal.StringFixed(entity.MoneyPlaces))
	s.publish(ctx, event.NewEvent(event.TypeMeasurementUpdated, id, actor, measurementPayload(m)))
	return detail, nil
}

// Delete removes a pending measurement; line items and documents cascade
func (s *measurementServiceImpl) Delete(ctx context.Context, id, actor string) error {
	var deleted *entity.Measurement
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := m.EnsureEditable("delete"); err != nil {
			return err
		}
		deleted = m
		return s.repos.Measurements.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Error("Failed to delete measurement", "measurement_id", id, "error", err)
		return err
	}

	s.logger.Info("Measurement deleted", "measurement_id", id)
	s.publish(ctx, event.NewEvent(event.TypeMeasurementDeleted, id, actorOrSystem(actor), measurementPayload(deleted)))
	return nil
}

// AddLineItem appends one item to a pending measurement and recalculates
func (s *measurementServiceImpl) AddLineItem(ctx context.Context, id string, item entity.LineItem, actor string) (*entity.MeasurementDetail, error) {
	if item == nil {
		return nil, entity.NewValidationError("item", "is required")
	}
	if err := entity.PrepareLineItem(item.Category(), item); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, id, "add line item to", actor, func(txCtx context.Context) error {
		repo, err := s.lineItems(item.Category())
		if err != nil {
			return err
		}
		return repo.Insert(txCtx, id, item)
	})
}

// UpdateLineItem overwrites one item of a pending measurement and recalculates
func (s *measurementServiceImpl) UpdateLineItem(ctx context.Context, id string, item entity.LineItem, actor string) (*entity.MeasurementDetail, error) {
	if item == nil {
		return nil, entity.NewValidationError("item", "is required")
	}
	if err := entity.PrepareLineItem(item.Category(), item); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, id, "update line item of", actor, func(txCtx context.Context) error {
		repo, err := s.lineItems(item.Category())
		if err != nil {
			return err
		}
		return repo.Update(txCtx, id, item)
	})
}

// RemoveLineItem deletes one item of a pending measurement and recalculates
func (s *measurementServiceImpl) RemoveLineItem(ctx context.Context, id string, category entity.Category, itemID int64, actor string) (*entity.MeasurementDetail, error) {
	repo, err := s.lineItems(category)
	if err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, id, "remove line item from", actor, func(txCtx context.Context) error {
		return repo.Delete(txCtx, id, itemID)
	})
}

// ReplaceAllLineItems swaps the whole item set of one category
func (s *measurementServiceImpl) ReplaceAllLineItems(ctx context.Context, id string, category entity.Category, items []entity.LineItem, actor string) (*entity.MeasurementDetail, error) {
	if err := prepareCategory(category, items); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, id, "replace line items of", actor, func(txCtx context.Context) error {
		return s.replaceCategory(txCtx, id, category, items)
	})
}

// mutateItems runs one line-item change under the editable guard and
// recalculates in the same transaction.
func (s *measurementServiceImpl) mutateItems(ctx context.Context, id, operation, actor string, change func(txCtx context.Context) error) (*entity.MeasurementDetail, error) {
	actor = actorOrSystem(actor)

	var detail *entity.MeasurementDetail
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := m.EnsureEditable(operation); err != nil {
			return err
		}
		if err := change(txCtx); err != nil {
			return err
		}
		m.UpdatedBy = actor
		m.UpdatedAt = s.clock()
		if err := s.recalculate(txCtx, m); err != nil {
			return err
		}
		detail, err = s.detail(txCtx, m)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to change line items",
			"measurement_id", id,
			"operation", operation,
			"error", err,
		)
		return nil, err
	}

	m := detail.Measurement
	s.publish(ctx, event.NewEvent(event.TypeMeasurementUpdated, id, actor, measurementPayload(m)))
	return detail, nil
}

func (s *measurementServiceImpl) replaceCategory(ctx context.Context, id string, category entity.Category, items []entity.LineItem) error {
	repo, err := s.lineItems(category)
	if err != nil {
		return err
	}
	if err := repo.DeleteAll(ctx, id); err != nil {
		return fmt.Errorf("clear %s items: %w", category, err)
	}
	for _, item := range items {
		if err := repo.Insert(ctx, id, item); err != nil {
			return fmt.Errorf("insert %s item: %w", category, err)
		}
	}
	return nil
}

// Finalize locks a pending measurement and folds its grand total into the budget
func (s *measurementServiceImpl) Finalize(ctx context.Context, id, actor string) (*FinalizeResult, error) {
	actor = actorOrSystem(actor)

	result := &FinalizeResult{}
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.transition(txCtx, id, workflow.TriggerFinalize, actor)
		if err != nil {
			return err
		}
		result.Measurement = m

		budgetID, ok := m.Parent.BudgetID()
		if !ok {
			return nil
		}
		current, err := s.repos.Budgets.GetByID(txCtx, budgetID)
		if err != nil {
			return err
		}
		if current == nil {
			return &entity.NotFoundError{Resource: "budget", ID: budgetID}
		}
		// The write lock is held, so no other finalization can move the total in between
		if err := entity.CheckMoney("accumulated_invoiced_total", current.AccumulatedInvoicedTotal.Add(m.Totals.GrandTotal)); err != nil {
			return err
		}
		if err := s.repos.Budgets.ApplyFinalized(txCtx, budgetID, m.Totals.GrandTotal, m.Period); err != nil {
			return err
		}
		b, err := s.repos.Budgets.GetByID(txCtx, budgetID)
		if err != nil {
			return err
		}
		if b == nil {
			return &entity.NotFoundError{Resource: "budget", ID: budgetID}
		}
		result.Budget = b
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to finalize measurement", "measurement_id", id, "error", err)
		return nil, err
	}

	m := result.Measurement
	s.logger.Info("Measurement finalized",
		"measurement_id", id,
		"parent", m.Parent.String(),
		"grand_total", m.Totals.GrandTotal.StringFixed(entity.MoneyPlaces),
	)
	payload := measurementPayload(m)
	if result.Budget != nil {
		payload["accumulated_invoiced_total"] = result.Budget.AccumulatedInvoicedTotal.StringFixed(entity.MoneyPlaces)
	}
	s.publish(ctx, event.NewEvent(event.TypeMeasurementFinalized, id, actor, payload))
	return result, nil
}

// Cancel abandons a pending measurement
func (s *measurementServiceImpl) Cancel(ctx context.Context, id, actor string) (*entity.Measurement, error) {
	return s.simpleTransition(ctx, id, workflow.TriggerCancel, actor, event.TypeMeasurementCancelled)
}

// Send marks a finalized measurement as delivered to the client
func (s *measurementServiceImpl) Send(ctx context.Context, id, actor string) (*entity.Measurement, error) {
	return s.simpleTransition(ctx, id, workflow.TriggerSend, actor, event.TypeMeasurementSent)
}

func (s *measurementServiceImpl) simpleTransition(ctx context.Context, id string, trigger workflow.Trigger, actor string, evtType event.Type) (*entity.Measurement, error) {
	actor = actorOrSystem(actor)

	var m *entity.Measurement
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		m, err = s.transition(txCtx, id, trigger, actor)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to transition measurement",
			"measurement_id", id,
			"trigger", trigger.String(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Measurement status changed", "measurement_id", id, "status", m.Status.String())
	s.publish(ctx, event.NewEvent(evtType, id, actor, measurementPayload(m)))
	return m, nil
}

// transition applies trigger and persists it with a compare-and-set on the
// previous status, so a concurrent change of the same measurement loses.
func (s *measurementServiceImpl) transition(ctx context.Context, id string, trigger workflow.Trigger, actor string) (*entity.Measurement, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := m.Status
	if err := m.Transition(trigger, s.clock()); err != nil {
		return nil, err
	}
	m.UpdatedBy = actor

	ok, err := s.repos.Measurements.TransitionStatus(ctx, m, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &entity.InvalidStateError{
			MeasurementID: id,
			Status:        "changed concurrently",
			Operation:     trigger.String(),
		}
	}
	return m, nil
}

// RecordApproval stores the client's decision on a sent measurement
func (s *measurementServiceImpl) RecordApproval(ctx context.Context, id, decision, notes, actor string) (*entity.Measurement, error) {
	actor = actorOrSystem(actor)

	var m *entity.Measurement
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		m, err = s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := m.RecordApproval(decision, notes, s.clock()); err != nil {
			return err
		}
		m.UpdatedBy = actor
		return s.repos.Measurements.UpdateApproval(txCtx, m)
	})
	if err != nil {
		s.logger.Error("Failed to record approval", "measurement_id", id, "decision", decision, "error", err)
		return nil, err
	}

	s.logger.Info("Approval recorded", "measurement_id", id, "decision", decision)
	payload := measurementPayload(m)
	payload["decision"] = decision
	s.publish(ctx, event.NewEvent(event.TypeMeasurementApproval, id, actor, payload))
	return m, nil
}

// ListByBudget returns a budget's measurements in period order
func (s *measurementServiceImpl) ListByBudget(ctx context.Context, budgetID string) ([]*entity.Measurement, error) {
	b, err := s.repos.Budgets.GetByID(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &entity.NotFoundError{Resource: "budget", ID: budgetID}
	}
	return s.repos.Measurements.ListByBudget(ctx, budgetID)
}

// ListBySite returns the measurements billed directly to a site, in period order
func (s *measurementServiceImpl) ListBySite(ctx context.Context, siteID string) ([]*entity.Measurement, error) {
	site, err := s.repos.Sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, &entity.NotFoundError{Resource: "site", ID: siteID}
	}
	return s.repos.Measurements.ListBySite(ctx, siteID)
}

// List returns one page of measurements matching filter, newest period first
func (s *measurementServiceImpl) List(ctx context.Context, filter entity.MeasurementFilter) (*MeasurementPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = entity.DefaultPageSize
	}
	if filter.Limit > entity.MaxPageSize {
		filter.Limit = entity.MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, entity.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}

	items, total, err := s.repos.Measurements.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MeasurementPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func applyHeader(m *entity.Measurement, in UpdateMeasurementInput) error {
	if in.Number != nil {
		m.Number = *in.Number
	}
	if in.MeasurementDate != nil {
		m.MeasurementDate = *in.MeasurementDate
	}
	if in.Notes != nil {
		m.Notes = *in.Notes
	}
	if in.Period != nil {
		m.SetPeriod(*in.Period)
	}
	if in.MonthReference != nil || in.YearReference != nil {
		month, year := m.MonthReference, m.YearReference
		if in.MonthReference != nil {
			month = *in.MonthReference
		}
		if in.YearReference != nil {
			year = *in.YearReference
		}
		if err := m.Period.CheckReferences(month, year); err != nil {
			return err
		}
	}
	return m.Validate()
}

func prepareItems(items entity.LineItems) error {
	for _, c := range entity.Categories {
		if err := prepareCategory(c, items.Of(c)); err != nil {
			return err
		}
	}
	return nil
}

func prepareCategory(category entity.Category, items []entity.LineItem) error {
	if _, err := entity.ParseCategory(string(category)); err != nil {
		return err
	}
	for i, item := range items {
		if err := entity.PrepareLineItem(category, item); err != nil {
			return fmt.Errorf("%s[%d]: %w", category, i, err)
		}
	}
	return nil
}
