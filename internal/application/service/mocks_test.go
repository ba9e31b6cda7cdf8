package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// Mock repositories

type mockMeasurementRepo struct {
	createFunc             func(ctx context.Context, m *entity.Measurement) error
	getByIDFunc            func(ctx context.Context, id string) (*entity.Measurement, error)
	findByParentPeriodFunc func(ctx context.Context, parent entity.Parent, period entity.Period) (*entity.Measurement, error)
	transitionStatusFunc   func(ctx context.Context, m *entity.Measurement, from workflow.State) (bool, error)
	listFunc               func(ctx context.Context, filter entity.MeasurementFilter) ([]*entity.Measurement, int, error)
	listByBudgetFunc       func(ctx context.Context, budgetID string) ([]*entity.Measurement, error)

	mu           sync.Mutex
	stored       map[string]*entity.Measurement
	totalsWrites int
	deleted      []string
}

func (m *mockMeasurementRepo) put(ms ...*entity.Measurement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*entity.Measurement)
	}
	for _, v := range ms {
		cp := *v
		m.stored[v.ID] = &cp
	}
}

func (m *mockMeasurementRepo) Create(ctx context.Context, ms *entity.Measurement) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, ms)
	}
	m.put(ms)
	return nil
}

func (m *mockMeasurementRepo) GetByID(ctx context.Context, id string) (*entity.Measurement, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.stored[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *mockMeasurementRepo) FindByParentPeriod(ctx context.Context, parent entity.Parent, period entity.Period) (*entity.Measurement, error) {
	if m.findByParentPeriodFunc != nil {
		return m.findByParentPeriodFunc(ctx, parent, period)
	}
	return nil, nil
}

func (m *mockMeasurementRepo) UpdateHeader(ctx context.Context, ms *entity.Measurement) error {
	m.put(ms)
	return nil
}

func (m *mockMeasurementRepo) UpdateTotals(ctx context.Context, id string, totals entity.Totals, updatedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalsWrites++
	if v, ok := m.stored[id]; ok {
		v.Totals = totals
		v.UpdatedBy = updatedBy
		v.UpdatedAt = at
	}
	return nil
}

func (m *mockMeasurementRepo) TransitionStatus(ctx context.Context, ms *entity.Measurement, from workflow.State) (bool, error) {
	if m.transitionStatusFunc != nil {
		return m.transitionStatusFunc(ctx, ms, from)
	}
	m.mu.Lock()
	v, ok := m.stored[ms.ID]
	m.mu.Unlock()
	if !ok || v.Status != from {
		return false, nil
	}
	m.put(ms)
	return true, nil
}

func (m *mockMeasurementRepo) UpdateApproval(ctx context.Context, ms *entity.Measurement) error {
	m.put(ms)
	return nil
}

func (m *mockMeasurementRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockMeasurementRepo) ListByBudget(ctx context.Context, budgetID string) ([]*entity.Measurement, error) {
	if m.listByBudgetFunc != nil {
		return m.listByBudgetFunc(ctx, budgetID)
	}
	return []*entity.Measurement{}, nil
}

func (m *mockMeasurementRepo) ListBySite(ctx context.Context, siteID string) ([]*entity.Measurement, error) {
	return []*entity.Measurement{}, nil
}

func (m *mockMeasurementRepo) List(ctx context.Context, filter entity.MeasurementFilter) ([]*entity.Measurement, int, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*entity.Measurement{}, 0, nil
}

type mockLineItemRepo struct {
	category   entity.Category
	insertFunc func(ctx context.Context, measurementID string, item entity.LineItem) error

	mu      sync.Mutex
	nextID  int64
	items   map[string][]entity.LineItem
	inserts int
}

func newMockLineItemRepos() map[entity.Category]port.LineItemRepository {
	repos := make(map[entity.Category]port.LineItemRepository)
	for _, c := range entity.Categories {
		repos[c] = &mockLineItemRepo{category: c}
	}
	return repos
}

func (m *mockLineItemRepo) Category() entity.Category { return m.category }

func (m *mockLineItemRepo) Insert(ctx context.Context, measurementID string, item entity.LineItem) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, measurementID, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]entity.LineItem)
	}
	m.nextID++
	setItemID(item, m.nextID)
	m.inserts++
	m.items[measurementID] = append(m.items[measurementID], item)
	return nil
}

func (m *mockLineItemRepo) Update(ctx context.Context, measurementID string, item entity.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items[measurementID] {
		if existing.ItemID() == item.ItemID() {
			m.items[measurementID][i] = item
			return nil
		}
	}
	return &entity.NotFoundError{Resource: string(m.category) + " item", ID: "x"}
}

func (m *mockLineItemRepo) Delete(ctx context.Context, measurementID string, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[measurementID]
	for i, existing := range list {
		if existing.ItemID() == itemID {
			m.items[measurementID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return &entity.NotFoundError{Resource: string(m.category) + " item", ID: "x"}
}

func (m *mockLineItemRepo) DeleteAll(ctx context.Context, measurementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, measurementID)
	return nil
}

func (m *mockLineItemRepo) List(ctx context.Context, measurementID string) ([]entity.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.LineItem, len(m.items[measurementID]))
	copy(out, m.items[measurementID])
	return out, nil
}

func setItemID(item entity.LineItem, id int64) {
	switch v := item.(type) {
	case *entity.RecurringCost:
		v.ID = id
	case *entity.Overtime:
		v.ID = id
	case *entity.AdditionalService:
		v.ID = id
	case *entity.Amendment:
		v.ID = id
	}
}

type mockBudgetRepo struct {
	getByIDFunc      func(ctx context.Context, id string) (*entity.Budget, error)
	getTemplatesFunc func(ctx context.Context, budgetID string) (*entity.BudgetTemplates, error)

	mu      sync.Mutex
	budgets map[string]*entity.Budget
	applied []decimal.Decimal
}

func newMockBudgetRepo(bs ...*entity.Budget) *mockBudgetRepo {
	m := &mockBudgetRepo{budgets: make(map[string]*entity.Budget)}
	for _, b := range bs {
		m.budgets[b.ID] = b
	}
	return m
}

func (m *mockBudgetRepo) Create(ctx context.Context, b *entity.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[b.ID] = b
	return nil
}

func (m *mockBudgetRepo) GetByID(ctx context.Context, id string) (*entity.Budget, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBudgetRepo) GetTemplates(ctx context.Context, budgetID string) (*entity.BudgetTemplates, error) {
	if m.getTemplatesFunc != nil {
		return m.getTemplatesFunc(ctx, budgetID)
	}
	return &entity.BudgetTemplates{}, nil
}

func (m *mockBudgetRepo) AddRecurringCost(ctx context.Context, t *entity.BudgetRecurringCost) error {
	return nil
}

func (m *mockBudgetRepo) AddOvertimeRate(ctx context.Context, t *entity.BudgetOvertimeRate) error {
	return nil
}

func (m *mockBudgetRepo) AddAdditionalService(ctx context.Context, t *entity.BudgetAdditionalService) error {
	return nil
}

func (m *mockBudgetRepo) ApplyFinalized(ctx context.Context, budgetID string, grandTotal decimal.Decimal, period entity.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[budgetID]
	if !ok {
		return &entity.NotFoundError{Resource: "budget", ID: budgetID}
	}
	m.applied = append(m.applied, grandTotal)
	b.AccumulatedInvoicedTotal = b.AccumulatedInvoicedTotal.Add(grandTotal)
	if b.LastMeasuredPeriod == nil || b.LastMeasuredPeriod.Before(period) {
		p := period
		b.LastMeasuredPeriod = &p
	}
	return nil
}

type mockSiteRepo struct {
	sites map[string]*entity.Site
}

func (m *mockSiteRepo) Create(ctx context.Context, s *entity.Site) error {
	if m.sites == nil {
		m.sites = make(map[string]*entity.Site)
	}
	m.sites[s.ID] = s
	return nil
}

func (m *mockSiteRepo) GetByID(ctx context.Context, id string) (*entity.Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	return s, nil
}

type mockDocumentRepo struct {
	upsertFunc func(ctx context.Context, doc *entity.DocumentAttachment) error

	mu   sync.Mutex
	docs map[string]*entity.DocumentAttachment
}

func docKey(measurementID string, kind entity.DocumentKind) string {
	return measurementID + "/" + string(kind)
}

func (m *mockDocumentRepo) Upsert(ctx context.Context, doc *entity.DocumentAttachment) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string]*entity.DocumentAttachment)
	}
	if doc.ID == "" {
		doc.ID = "doc-" + string(doc.Kind)
	}
	doc.Status = entity.DocumentPending
	cp := *doc
	m.docs[docKey(doc.MeasurementID, doc.Kind)] = &cp
	return nil
}

func (m *mockDocumentRepo) GetByKind(ctx context.Context, measurementID string, kind entity.DocumentKind) (*entity.DocumentAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docKey(measurementID, kind)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentRepo) ListByMeasurement(ctx context.Context, measurementID string) ([]*entity.DocumentAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.DocumentAttachment{}
	for _, d := range m.docs {
		if d.MeasurementID == measurementID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) UpdateStatus(ctx context.Context, measurementID string, kind entity.DocumentKind, status entity.DocumentStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docKey(measurementID, kind)]
	if !ok {
		return &entity.NotFoundError{Resource: "document", ID: measurementID}
	}
	d.Status = status
	d.UpdatedAt = at
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockPublisher struct {
	dispatchFunc func(ctx context.Context, evt *event.Event) error

	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
	if m.dispatchFunc != nil {
		return m.dispatchFunc(ctx, evt)
	}
	return nil
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockStorage struct {
	saveFunc func(ctx context.Context, path string, content []byte) error

	mu    sync.Mutex
	files map[string][]byte
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, path, content)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// harness wires the mocks into services
type harness struct {
	measurements *mockMeasurementRepo
	items        map[entity.Category]port.LineItemRepository
	budgets      *mockBudgetRepo
	sites        *mockSiteRepo
	documents    *mockDocumentRepo
	tx           *mockTxManager
	publisher    *mockPublisher
	storage      *mockStorage
}

func newHarness(budgets ...*entity.Budget) *harness {
	return &harness{
		measurements: &mockMeasurementRepo{},
		items:        newMockLineItemRepos(),
		budgets:      newMockBudgetRepo(budgets...),
		sites:        &mockSiteRepo{sites: map[string]*entity.Site{"site-1": {ID: "site-1", Name: "Obra Centro"}}},
		documents:    &mockDocumentRepo{},
		tx:           &mockTxManager{},
		publisher:    &mockPublisher{},
		storage:      &mockStorage{},
	}
}

func (h *harness) repos() Repositories {
	return Repositories{
		Measurements: h.measurements,
		LineItems:    h.items,
		Budgets:      h.budgets,
		Sites:        h.sites,
		Documents:    h.documents,
	}
}

func (h *harness) measurementService() MeasurementService {
	return NewMeasurementService(h.repos(), h.tx, h.publisher, &mockLogger{})
}

func (h *harness) generatorService() GeneratorService {
	return NewGeneratorService(h.repos(), h.tx, h.publisher, &mockLogger{})
}

func (h *harness) documentService() DocumentService {
	return NewDocumentService(h.repos(), h.storage, h.tx, h.publisher, &mockLogger{})
}

func (h *harness) lineItems(c entity.Category) *mockLineItemRepo {
	return h.items[c].(*mockLineItemRepo)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
