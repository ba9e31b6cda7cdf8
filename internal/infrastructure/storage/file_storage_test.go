package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/crane-billing/internal/domain/event"
)

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewLocalFileStorage(base, 0, zap.NewNop())

	ref := "measurements/m-1/service_invoice/nf.pdf"
	require.NoError(t, s.Save(ctx, ref, []byte("v1")))
	require.NoError(t, s.Save(ctx, ref, []byte("v2")))
	assert.True(t, s.Exists(ctx, ref))
	assert.Equal(t, filepath.Join(base, "measurements", "m-1", "service_invoice", "nf.pdf"), s.GetFullPath(ref))

	content, err := s.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	entries, err := os.ReadDir(filepath.Dir(s.GetFullPath(ref)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, s.Delete(ctx, ref))
	assert.False(t, s.Exists(ctx, ref))
	assert.NoError(t, s.Delete(ctx, ref), "deleting twice is fine")
}

func TestLocalFileStorage_RejectsEscapes(t *testing.T) {
	ctx := context.Background()
	s := NewLocalFileStorage(t.TempDir(), 0, zap.NewNop())

	for _, ref := range []string{"../outside.pdf", "a/../../outside.pdf", "."} {
		t.Run(ref, func(t *testing.T) {
			assert.Error(t, s.Save(ctx, ref, []byte("x")))
			assert.False(t, s.Exists(ctx, ref))
			_, err := s.Read(ctx, ref)
			assert.Error(t, err)
		})
	}
}

func TestLocalFileStorage_SizeLimit(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), 4, zap.NewNop())

	assert.ErrorIs(t, s.Save(context.Background(), "a.pdf", []byte("12345")), ErrTooLarge)
	assert.NoError(t, s.Save(context.Background(), "b.pdf", []byte("1234")))
}

func TestMeasurementFolders_RemoveOnDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewLocalFileStorage(base, 0, zap.NewNop())
	folders := NewMeasurementFolders(base, zap.NewNop())

	require.NoError(t, s.Save(ctx, "measurements/m-1/payment_slip/boleto.pdf", []byte("x")))
	require.NoError(t, s.Save(ctx, "measurements/m-2/payment_slip/boleto.pdf", []byte("y")))

	require.NoError(t, folders.OnMeasurementDeleted(ctx, event.NewEvent(event.TypeMeasurementFinalized, "m-1", "ana", nil)))
	assert.DirExists(t, folders.Path("m-1"))

	require.NoError(t, folders.OnMeasurementDeleted(ctx, event.NewEvent(event.TypeMeasurementDeleted, "m-1", "ana", nil)))
	assert.NoDirExists(t, folders.Path("m-1"))
	assert.True(t, s.Exists(ctx, "measurements/m-2/payment_slip/boleto.pdf"))

	assert.Error(t, folders.Remove(ctx, ""))
}
