package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/pkg/utils"
)

// MeasurementFolderPrefix is the storage directory holding each measurement's uploads
const MeasurementFolderPrefix = "measurements"

// MeasurementFolders manages the per-measurement upload directories
type MeasurementFolders struct {
	baseDir string
	logger  *zap.Logger
}

// NewMeasurementFolders creates a new MeasurementFolders
func NewMeasurementFolders(baseDir string, logger *zap.Logger) *MeasurementFolders {
	return &MeasurementFolders{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Path returns the directory of a measurement's uploads. It is not created.
func (m *MeasurementFolders) Path(measurementID string) string {
	return filepath.Join(m.baseDir, MeasurementFolderPrefix, utils.SanitizeFileName(measurementID))
}

// Remove deletes a measurement's upload directory and everything in it
func (m *MeasurementFolders) Remove(ctx context.Context, measurementID string) error {
	if measurementID == "" {
		return fmt.Errorf("cannot remove folder: empty measurement id")
	}

	folder := m.Path(measurementID)
	if err := within(m.baseDir, folder); err != nil {
		return err
	}

	if err := os.RemoveAll(folder); err != nil {
		m.logger.Error("Failed to remove measurement folder",
			zap.String("measurement_id", measurementID),
			zap.String("folder_path", folder),
			zap.Error(err))
		return fmt.Errorf("failed to remove folder: %w", err)
	}

	m.logger.Debug("Removed measurement folder",
		zap.String("measurement_id", measurementID),
		zap.String("folder_path", folder))
	return nil
}

// OnMeasurementDeleted removes uploads orphaned by a deleted measurement.
// Its signature matches dispatcher.Handler.
func (m *MeasurementFolders) OnMeasurementDeleted(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeMeasurementDeleted {
		return nil
	}
	return m.Remove(ctx, evt.MeasurementID)
}
