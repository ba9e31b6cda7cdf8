package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/crane-billing/internal/domain/event"
)

func TestAuditService_KeepsLastEntriesPerMeasurement(t *testing.T) {
	audit := NewAuditService(&mockLogger{}, 3, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		evt := event.NewEvent(event.TypeMeasurementUpdated, "m-1", "ana", map[string]interface{}{"n": i})
		require.NoError(t, audit.Handle(ctx, evt))
	}

	trail := audit.Recent("m-1")
	require.Len(t, trail, 3)
	assert.Equal(t, 2, trail[0].Payload["n"])
	assert.Equal(t, 4, trail[2].Payload["n"])
	assert.False(t, trail[2].OccurredAt.IsZero())
	assert.Empty(t, audit.Recent("m-2"))
}

func TestAuditService_EvictsLeastRecentlyChangedMeasurement(t *testing.T) {
	audit := NewAuditService(&mockLogger{}, 5, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("m-%d", i)
		require.NoError(t, audit.Handle(ctx, event.NewEvent(event.TypeMeasurementCreated, id, "ana", nil)))
	}
	// m-1 changes again, so m-2 becomes the oldest
	require.NoError(t, audit.Handle(ctx, event.NewEvent(event.TypeMeasurementUpdated, "m-1", "ana", nil)))
	require.NoError(t, audit.Handle(ctx, event.NewEvent(event.TypeMeasurementCreated, "m-4", "ana", nil)))

	assert.Empty(t, audit.Recent("m-2"))
	assert.Len(t, audit.Recent("m-1"), 2)
	assert.Len(t, audit.Recent("m-3"), 1)
	assert.Len(t, audit.Recent("m-4"), 1)

	impl := audit.(*auditServiceImpl)
	assert.Len(t, impl.trails, 3)
	assert.Equal(t, 3, impl.lru.Len())
}

func TestAuditService_ForgetsDeletedMeasurement(t *testing.T) {
	audit := NewAuditService(&mockLogger{}, 5, 3)
	ctx := context.Background()

	require.NoError(t, audit.Handle(ctx, event.NewEvent(event.TypeMeasurementCreated, "m-1", "ana", nil)))
	require.NoError(t, audit.Handle(ctx, event.NewEvent(event.TypeMeasurementDeleted, "m-1", "ana", nil)))
	require.NoError(t, audit.Handle(ctx, nil))

	assert.Empty(t, audit.Recent("m-1"))
	impl := audit.(*auditServiceImpl)
	assert.Empty(t, impl.trails)
	assert.Equal(t, 0, impl.lru.Len())
}

func TestAuditService_RecentReturnsCopy(t *testing.T) {
	audit := NewAuditService(&mockLogger{}, 0, 0)
	require.NoError(t, audit.Handle(context.Background(), event.NewEvent(event.TypeMeasurementCreated, "m-1", "ana", nil)))

	trail := audit.Recent("m-1")
	trail[0].Actor = "someone else"
	assert.Equal(t, "ana", audit.Recent("m-1")[0].Actor)
}
