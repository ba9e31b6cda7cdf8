package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/crane-billing/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newEvent(t event.Type) *event.Event {
	return event.NewEvent(t, "m-1", "tester", nil)
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.Subscribe(event.TypeMeasurementFinalized, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(event.TypeMeasurementFinalized, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeMeasurementFinalized)))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []string{"first", "second"}, d.Handlers(event.TypeMeasurementFinalized))
}

func TestDispatch_OnlyMatchingType(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Subscribe(event.TypeMeasurementCancelled, "", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeMeasurementCreated)))
	assert.False(t, called)
	assert.Equal(t, []string{"handler-0"}, d.Handlers(event.TypeMeasurementCancelled))
}

func TestDispatch_ContinuesAfterFailure(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	secondCalled := false

	d.Subscribe(event.TypeMeasurementCreated, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.Subscribe(event.TypeMeasurementCreated, "ok", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), newEvent(event.TypeMeasurementCreated))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, secondCalled)
	assert.Equal(t, 1, logger.ErrorCount())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeMeasurementDeleted, "panicky", func(ctx context.Context, evt *event.Event) error {
		panic("unexpected")
	})

	err := d.Dispatch(context.Background(), newEvent(event.TypeMeasurementDeleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var count atomic.Int32
	d.SubscribeAll("audit", func(ctx context.Context, evt *event.Event) error {
		count.Add(1)
		return nil
	})

	for _, typ := range event.All {
		require.NoError(t, d.Dispatch(context.Background(), newEvent(typ)))
	}
	assert.Equal(t, int32(len(event.All)), count.Load())
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), ErrClosed)
	assert.ErrorIs(t, d.Dispatch(context.Background(), newEvent(event.TypeMeasurementCreated)), ErrClosed)
}
