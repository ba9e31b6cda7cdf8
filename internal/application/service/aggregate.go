package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher receives domain events once their transaction has committed
type EventPublisher interface {
	Dispatch(ctx context.Context, evt *event.Event) error
}

// Repositories groups the stores the measurement services work with
type Repositories struct {
	Measurements port.MeasurementRepository
	LineItems    map[entity.Category]port.LineItemRepository
	Budgets      port.BudgetRepository
	Sites        port.SiteRepository
	Documents    port.DocumentRepository
}

// aggregate holds the persistence steps shared by the measurement services.
// Every method expects to run inside a transaction opened by the caller.
type aggregate struct {
	repos     Repositories
	txManager port.TransactionManager
	publisher EventPublisher
	logger    Logger
	now       func() time.Time
}

func (a *aggregate) clock() time.Time {
	if a.now != nil {
		return a.now().UTC()
	}
	return time.Now().UTC()
}

func (a *aggregate) lineItems(c entity.Category) (port.LineItemRepository, error) {
	repo, ok := a.repos.LineItems[c]
	if !ok {
		return nil, entity.NewValidationError("category", fmt.Sprintf("unknown line item category %q", c))
	}
	return repo, nil
}

// load returns the measurement or a NotFoundError
func (a *aggregate) load(ctx context.Context, id string) (*entity.Measurement, error) {
	m, err := a.repos.Measurements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &entity.NotFoundError{Resource: "measurement", ID: id}
	}
	return m, nil
}

// ensureParent checks that the budget or site a measurement points to exists
func (a *aggregate) ensureParent(ctx context.Context, parent entity.Parent) (*entity.Budget, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}
	if id, ok := parent.BudgetID(); ok {
		b, err := a.repos.Budgets.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, &entity.NotFoundError{Resource: "budget", ID: id}
		}
		return b, nil
	}
	site, err := a.repos.Sites.GetByID(ctx, parent.ID())
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, &entity.NotFoundError{Resource: "site", ID: parent.ID()}
	}
	return nil, nil
}

// insertAll stores the items of every family and recalculates once
func (a *aggregate) insertAll(ctx context.Context, m *entity.Measurement, items entity.LineItems) error {
	for _, c := range entity.Categories {
		repo, err := a.lineItems(c)
		if err != nil {
			return err
		}
		for _, item := range items.Of(c) {
			if err := repo.Insert(ctx, m.ID, item); err != nil {
				return fmt.Errorf("insert %s item: %w", c, err)
			}
		}
	}
	return a.recalculate(ctx, m)
}

// loadItems reads the current line items of a measurement
func (a *aggregate) loadItems(ctx context.Context, measurementID string) (entity.LineItems, error) {
	var items entity.LineItems
	for _, c := range entity.Categories {
		repo, err := a.lineItems(c)
		if err != nil {
			return items, err
		}
		list, err := repo.List(ctx, measurementID)
		if err != nil {
			return items, fmt.Errorf("list %s items: %w", c, err)
		}
		for _, item := range list {
			items.Add(item)
		}
	}
	return items, nil
}

// recalculate derives the totals from the items visible in ctx's
// transaction and stores them on the measurement.
func (a *aggregate) recalculate(ctx context.Context, m *entity.Measurement) error {
	items, err := a.loadItems(ctx, m.ID)
	if err != nil {
		return err
	}
	totals := entity.Recalculate(items)
	if err := totals.Validate(); err != nil {
		return err
	}
	if err := a.repos.Measurements.UpdateTotals(ctx, m.ID, totals, m.UpdatedBy, m.UpdatedAt); err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	m.Totals = totals
	return nil
}

// detail assembles a measurement with its items and documents
func (a *aggregate) detail(ctx context.Context, m *entity.Measurement) (*entity.MeasurementDetail, error) {
	items, err := a.loadItems(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	docs, err := a.repos.Documents.ListByMeasurement(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &entity.MeasurementDetail{Measurement: m, Items: items, Documents: docs}, nil
}

// publish hands a committed change to subscribers. Failures are logged only.
func (a *aggregate) publish(ctx context.Context, evt *event.Event) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Dispatch(ctx, evt); err != nil {
		a.logger.Error("Failed to publish event",
			"event_type", evt.Type,
			"measurement_id", evt.MeasurementID,
			"error", err,
		)
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return entity.SystemActor
	}
	return actor
}

func measurementPayload(m *entity.Measurement) map[string]interface{} {
	payload := map[string]interface{}{
		"period":      m.Period.String(),
		"number":      m.Number,
		"status":      m.Status.String(),
		"grand_total": m.Totals.GrandTotal.StringFixed(entity.MoneyPlaces),
	}
	if id, ok := m.Parent.BudgetID(); ok {
		payload["budget_id"] = id
	}
	if id, ok := m.Parent.SiteID(); ok {
		payload["site_id"] = id
	}
	return payload
}
