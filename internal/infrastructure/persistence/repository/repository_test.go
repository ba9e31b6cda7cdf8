package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/crane-billing/pkg/database"
)

type fixture struct {
	db        *sql.DB
	tx        *sqlite.DB
	measures  *MeasurementRepository
	budgets   *BudgetRepository
	sites     *SiteRepository
	documents *DocumentRepository
	items     map[entity.Category]port.LineItemRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "billing.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run())

	f := &fixture{
		db:        db.DB,
		tx:        sqlite.NewDB(db.DB, logger),
		measures:  NewMeasurementRepository(db.DB, logger).(*MeasurementRepository),
		budgets:   NewBudgetRepository(db.DB, logger).(*BudgetRepository),
		sites:     NewSiteRepository(db.DB, logger).(*SiteRepository),
		documents: NewDocumentRepository(db.DB, logger).(*DocumentRepository),
		items:     NewLineItemRepositories(db.DB, logger),
	}
	return f
}

func (f *fixture) budget(t *testing.T) *entity.Budget {
	t.Helper()
	b := &entity.Budget{ID: uuid.NewString(), Number: "ORC-" + uuid.NewString()[:4], ClientName: "Construtora Alfa"}
	require.NoError(t, f.budgets.Create(context.Background(), b))
	return b
}

func newMeasurement(parent entity.Parent, period string) *entity.Measurement {
	now := time.Now().UTC()
	m := &entity.Measurement{
		ID:              uuid.NewString(),
		Parent:          parent,
		Number:          "MED-" + period,
		MeasurementDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:          workflow.StatePending,
		CreatedBy:       "ana",
		UpdatedBy:       "ana",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.SetPeriod(entity.MustParsePeriod(period))
	return m
}

func TestMeasurementRepository_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	m := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	m.Notes = "first month"
	m.Totals = entity.NewTotals(decimal.RequireFromString("1000"), decimal.Zero, decimal.RequireFromString("12.5"), decimal.Zero)
	require.NoError(t, f.measures.Create(ctx, m))

	got, err := f.measures.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Parent, got.Parent)
	assert.Equal(t, m.Period, got.Period)
	assert.Equal(t, 3, got.MonthReference)
	assert.Equal(t, 2025, got.YearReference)
	assert.Equal(t, workflow.StatePending, got.Status)
	assert.Equal(t, "first month", got.Notes)
	assert.Equal(t, "1012.50", got.Totals.GrandTotal.StringFixed(2))
	assert.True(t, got.MeasurementDate.Equal(m.MeasurementDate))
	assert.Nil(t, got.FinalizedAt)

	missing, err := f.measures.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMeasurementRepository_DuplicatePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	first := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, first))

	err := f.measures.Create(ctx, newMeasurement(entity.BudgetParent(b.ID), "2025-03"))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrDuplicatePeriod)
	var dup *entity.DuplicatePeriodError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ID, dup.ExistingID)

	// another period, and the same period on another budget, are fine
	require.NoError(t, f.measures.Create(ctx, newMeasurement(entity.BudgetParent(b.ID), "2025-04")))
	other := f.budget(t)
	require.NoError(t, f.measures.Create(ctx, newMeasurement(entity.BudgetParent(other.ID), "2025-03")))
}

func TestMeasurementRepository_SitePeriodUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	site := &entity.Site{ID: uuid.NewString(), Name: "Obra Centro"}
	require.NoError(t, f.sites.Create(ctx, site))

	require.NoError(t, f.measures.Create(ctx, newMeasurement(entity.SiteParent(site.ID), "2025-05")))
	err := f.measures.Create(ctx, newMeasurement(entity.SiteParent(site.ID), "2025-05"))
	assert.ErrorIs(t, err, entity.ErrDuplicatePeriod)

	list, err := f.measures.ListBySite(ctx, site.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMeasurementRepository_UnknownParent(t *testing.T) {
	f := newFixture(t)
	err := f.measures.Create(context.Background(), newMeasurement(entity.BudgetParent("ghost"), "2025-03"))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestMeasurementRepository_TransitionStatusIsCompareAndSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)
	m := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, m))

	require.NoError(t, m.Transition(workflow.TriggerFinalize, time.Now().UTC()))
	ok, err := f.measures.TransitionStatus(ctx, m, workflow.StatePending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.measures.TransitionStatus(ctx, m, workflow.StatePending)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from pending must not apply")

	got, err := f.measures.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateFinalized, got.Status)
	assert.NotNil(t, got.FinalizedAt)
}

func TestMeasurementRepository_ListPaged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)
	for _, p := range []string{"2025-01", "2025-02", "2025-03", "2025-04"} {
		require.NoError(t, f.measures.Create(ctx, newMeasurement(entity.BudgetParent(b.ID), p)))
	}

	history, err := f.measures.ListByBudget(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "2025-01", history[0].Period.String())
	assert.Equal(t, "2025-04", history[3].Period.String())

	page, total, err := f.measures.List(ctx, entity.MeasurementFilter{BudgetID: b.ID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, "2025-03", page[0].Period.String())

	p := entity.MustParsePeriod("2025-02")
	page, total, err = f.measures.List(ctx, entity.MeasurementFilter{Period: &p, Status: workflow.StatePending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, page, 1)
}

func TestLineItemRepositories_RoundTripAndCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)
	m := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, m))

	rc := &entity.RecurringCost{CostCategory: "rental", Description: "Grua torre", MonthlyValue: decimal.RequireFromString("1000.00"), QuantityMonths: decimal.RequireFromString("1.5")}
	rc.Normalize()
	ot := &entity.Overtime{Role: entity.RoleOperator, DayKind: entity.DaySundayHoliday, Hours: decimal.RequireFromString("3.5"), HourlyRate: decimal.RequireFromString("40")}
	ot.Normalize()
	svc := &entity.AdditionalService{ServiceCategory: "transport", Description: "Frete", Quantity: decimal.NewFromInt(2), UnitValue: decimal.RequireFromString("150")}
	svc.Normalize()
	am := &entity.Amendment{Kind: entity.AmendmentDiscount, Description: "Parada", Value: decimal.RequireFromString("-80")}
	am.Normalize()

	for _, item := range []entity.LineItem{rc, ot, svc, am} {
		require.NoError(t, f.items[item.Category()].Insert(ctx, m.ID, item))
		assert.NotZero(t, item.ItemID())
	}

	items, err := f.items[entity.CategoryRecurringCosts].List(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	gotRC := items[0].(*entity.RecurringCost)
	assert.Equal(t, "1500.00", gotRC.LineTotal.StringFixed(2))
	assert.True(t, gotRC.QuantityMonths.Equal(decimal.RequireFromString("1.5")))

	items, err = f.items[entity.CategoryOvertime].List(ctx, m.ID)
	require.NoError(t, err)
	gotOT := items[0].(*entity.Overtime)
	assert.Equal(t, entity.DaySundayHoliday, gotOT.DayKind)
	assert.Equal(t, "140.00", gotOT.LineTotal.StringFixed(2))

	gotOT.Hours = decimal.NewFromInt(10)
	gotOT.Normalize()
	require.NoError(t, f.items[entity.CategoryOvertime].Update(ctx, m.ID, gotOT))
	items, err = f.items[entity.CategoryOvertime].List(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", items[0].(*entity.Overtime).LineTotal.StringFixed(2))

	err = f.items[entity.CategoryAmendments].Delete(ctx, m.ID, 9999)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	err = f.items[entity.CategoryAmendments].Insert(ctx, m.ID, rc)
	assert.ErrorIs(t, err, entity.ErrValidation)

	require.NoError(t, f.measures.Delete(ctx, m.ID))
	for _, c := range entity.Categories {
		items, err := f.items[c].List(ctx, m.ID)
		require.NoError(t, err)
		assert.Empty(t, items, "items of %s must cascade", c)
	}
}

func TestLineItemRepositories_DeleteAllInRolledBackTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)
	m := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, m))

	repo := f.items[entity.CategoryAdditionalServices]
	for i := 0; i < 3; i++ {
		s := &entity.AdditionalService{ServiceCategory: "x", Description: fmt.Sprint(i), Quantity: decimal.NewFromInt(1), UnitValue: decimal.NewFromInt(10)}
		s.Normalize()
		require.NoError(t, repo.Insert(ctx, m.ID, s))
	}

	boom := errors.New("boom")
	err := f.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.DeleteAll(ctx, m.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	items, err := repo.List(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3, "rolled back replacement must leave the old items")
}

func TestBudgetRepository_Templates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	require.NoError(t, f.budgets.AddRecurringCost(ctx, &entity.BudgetRecurringCost{BudgetID: b.ID, Category: "rental", Description: "Grua", MonthlyValue: decimal.RequireFromString("1000.00")}))
	require.NoError(t, f.budgets.AddOvertimeRate(ctx, &entity.BudgetOvertimeRate{BudgetID: b.ID, Role: entity.RoleSignalPerson, DayKind: entity.DaySaturday, HourlyRate: decimal.RequireFromString("35.75")}))
	require.NoError(t, f.budgets.AddAdditionalService(ctx, &entity.BudgetAdditionalService{BudgetID: b.ID, Category: "assembly", Description: "Montagem", Quantity: decimal.NewFromInt(1), UnitValue: decimal.RequireFromString("2500")}))

	tpl, err := f.budgets.GetTemplates(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, tpl.RecurringCosts, 1)
	require.Len(t, tpl.OvertimeRates, 1)
	require.Len(t, tpl.AdditionalServices, 1)
	assert.Equal(t, "1000.00", tpl.RecurringCosts[0].MonthlyValue.StringFixed(2))
	assert.Equal(t, entity.RoleSignalPerson, tpl.OvertimeRates[0].Role)
	assert.Equal(t, "35.75", tpl.OvertimeRates[0].HourlyRate.StringFixed(2))
	assert.Equal(t, "2500.00", tpl.AdditionalServices[0].UnitValue.StringFixed(2))
}

func TestBudgetRepository_ApplyFinalizedAdvancesPeriodMonotonically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	require.NoError(t, f.budgets.ApplyFinalized(ctx, b.ID, decimal.RequireFromString("100.10"), entity.MustParsePeriod("2025-04")))
	require.NoError(t, f.budgets.ApplyFinalized(ctx, b.ID, decimal.RequireFromString("50.05"), entity.MustParsePeriod("2025-02")))

	got, err := f.budgets.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.15", got.AccumulatedInvoicedTotal.StringFixed(2))
	require.NotNil(t, got.LastMeasuredPeriod)
	assert.Equal(t, "2025-04", got.LastMeasuredPeriod.String())

	err = f.budgets.ApplyFinalized(ctx, "ghost", decimal.NewFromInt(1), entity.MustParsePeriod("2025-04"))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestBudgetRepository_ConcurrentApplyFinalizedLosesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			period := entity.Period{Year: 2025, Month: time.Month(i%12 + 1)}
			errs <- f.tx.WithTransaction(ctx, func(ctx context.Context) error {
				return f.budgets.ApplyFinalized(ctx, b.ID, decimal.RequireFromString("10.01"), period)
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.budgets.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "120.12", got.AccumulatedInvoicedTotal.StringFixed(2))
	assert.Equal(t, "2025-12", got.LastMeasuredPeriod.String())
}

func TestDocumentRepository_UpsertReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)
	m := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, m))

	first := &entity.DocumentAttachment{MeasurementID: m.ID, Kind: entity.DocumentServiceInvoice, DocumentNumber: "NF-1", FileReference: "docs/nf-1.pdf"}
	require.NoError(t, f.documents.Upsert(ctx, first))
	require.NoError(t, f.documents.UpdateStatus(ctx, m.ID, entity.DocumentServiceInvoice, entity.DocumentIssued, time.Now().UTC()))

	second := &entity.DocumentAttachment{MeasurementID: m.ID, Kind: entity.DocumentServiceInvoice, DocumentNumber: "NF-2", FileReference: "docs/nf-2.pdf"}
	require.NoError(t, f.documents.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, f.documents.Upsert(ctx, &entity.DocumentAttachment{MeasurementID: m.ID, Kind: entity.DocumentPaymentSlip, FileReference: "docs/boleto.pdf"}))

	docs, err := f.documents.ListByMeasurement(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	invoice, err := f.documents.GetByKind(ctx, m.ID, entity.DocumentServiceInvoice)
	require.NoError(t, err)
	assert.Equal(t, "docs/nf-2.pdf", invoice.FileReference)
	assert.Equal(t, "NF-2", invoice.DocumentNumber)
	assert.Equal(t, entity.DocumentPending, invoice.Status)

	err = f.documents.Upsert(ctx, &entity.DocumentAttachment{MeasurementID: "ghost", Kind: entity.DocumentPaymentSlip, FileReference: "x"})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestMeasurementRepository_IDClashIsNotDuplicatePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.budget(t)

	first := newMeasurement(entity.BudgetParent(b.ID), "2025-03")
	require.NoError(t, f.measures.Create(ctx, first))

	clash := newMeasurement(entity.BudgetParent(b.ID), "2025-04")
	clash.ID = first.ID
	err := f.measures.Create(ctx, clash)
	require.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrDuplicatePeriod)
	assert.ErrorIs(t, err, entity.ErrStorage)
}
