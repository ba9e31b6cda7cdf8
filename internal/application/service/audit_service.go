package service

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/garyjia/crane-billing/internal/domain/event"
)

// AuditEntry is one recorded change of a measurement or its documents
type AuditEntry struct {
	EventID       string
	Type          event.Type
	MeasurementID string
	Actor         string
	Payload       map[string]interface{}
	OccurredAt    time.Time
}

// AuditService writes an audit trail of committed domain events
type AuditService interface {
	Handle(ctx context.Context, evt *event.Event) error
	Recent(measurementID string) []AuditEntry
}

type auditTrail struct {
	measurementID string
	entries       []AuditEntry
}

type auditServiceImpl struct {
	logger Logger

	mu              sync.Mutex
	trails          map[string]*list.Element
	lru             *list.List // front is the most recently changed measurement
	perItem         int
	maxMeasurements int
}

// NewAuditService creates a new AuditService keeping the last perMeasurement
// entries of at most maxMeasurements measurements in memory. The measurement
// changed least recently is forgotten first.
func NewAuditService(logger Logger, perMeasurement, maxMeasurements int) AuditService {
	if perMeasurement <= 0 {
		perMeasurement = 50
	}
	if maxMeasurements <= 0 {
		maxMeasurements = 1000
	}
	return &auditServiceImpl{
		logger:          logger,
		trails:          make(map[string]*list.Element),
		lru:             list.New(),
		perItem:         perMeasurement,
		maxMeasurements: maxMeasurements,
	}
}

// Handle logs the event and remembers it
func (s *auditServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return nil
	}

	s.logger.Info("Audit",
		"event_id", evt.ID,
		"event_type", evt.Type.String(),
		"measurement_id", evt.MeasurementID,
		"actor", evt.Actor,
		"payload", evt.Payload,
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Type == event.TypeMeasurementDeleted {
		s.forget(evt.MeasurementID)
		return nil
	}

	entry := AuditEntry{
		EventID:       evt.ID,
		Type:          evt.Type,
		MeasurementID: evt.MeasurementID,
		Actor:         evt.Actor,
		Payload:       evt.Payload,
		OccurredAt:    evt.Timestamp,
	}

	el, ok := s.trails[evt.MeasurementID]
	if !ok {
		el = s.lru.PushFront(&auditTrail{measurementID: evt.MeasurementID})
		s.trails[evt.MeasurementID] = el
	} else {
		s.lru.MoveToFront(el)
	}

	trail := el.Value.(*auditTrail)
	trail.entries = append(trail.entries, entry)
	if len(trail.entries) > s.perItem {
		trail.entries = trail.entries[len(trail.entries)-s.perItem:]
	}

	for s.lru.Len() > s.maxMeasurements {
		oldest := s.lru.Back()
		s.forget(oldest.Value.(*auditTrail).measurementID)
	}
	return nil
}

// forget drops a measurement's trail. Callers hold mu.
func (s *auditServiceImpl) forget(measurementID string) {
	if el, ok := s.trails[measurementID]; ok {
		s.lru.Remove(el)
		delete(s.trails, measurementID)
	}
}

// Recent returns the remembered entries of a measurement, oldest first
func (s *auditServiceImpl) Recent(measurementID string) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.trails[measurementID]
	if !ok {
		return []AuditEntry{}
	}
	entries := el.Value.(*auditTrail).entries
	out := make([]AuditEntry, len(entries))
	copy(out, entries)
	return out
}
