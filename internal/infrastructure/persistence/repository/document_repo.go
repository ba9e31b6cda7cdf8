package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const documentColumns = `id, measurement_id, kind, document_number, file_reference, status, created_at, updated_at`

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

// Upsert stores the document for (measurement, kind). An existing record
// keeps its id and creation time; everything else is replaced and the
// status goes back to pending.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *entity.DocumentAttachment) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.Status = entity.DocumentPending
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `
		INSERT INTO measurement_documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (measurement_id, kind) DO UPDATE SET
			document_number = excluded.document_number,
			file_reference = excluded.file_reference,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.MeasurementID,
		string(doc.Kind),
		doc.DocumentNumber,
		doc.FileReference,
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if sqlite.IsForeignKeyViolation(err) {
			return &entity.NotFoundError{Resource: "measurement", ID: doc.MeasurementID}
		}
		r.logger.Error("Failed to upsert document",
			zap.String("measurement_id", doc.MeasurementID),
			zap.String("kind", string(doc.Kind)),
			zap.Error(err))
		return storageError("upsert document", err)
	}

	stored, err := r.GetByKind(ctx, doc.MeasurementID, doc.Kind)
	if err != nil {
		return err
	}
	if stored != nil {
		*doc = *stored
	}
	return nil
}

// GetByKind returns the document of one kind, or nil when none was attached
func (r *DocumentRepository) GetByKind(ctx context.Context, measurementID string, kind entity.DocumentKind) (*entity.DocumentAttachment, error) {
	query := `SELECT ` + documentColumns + ` FROM measurement_documents WHERE measurement_id = ? AND kind = ?`

	doc, err := scanDocument(executor(ctx, r.db).QueryRowContext(ctx, query, measurementID, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document",
			zap.String("measurement_id", measurementID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, storageError("get document", err)
	}
	return doc, nil
}

// ListByMeasurement returns up to one document per kind
func (r *DocumentRepository) ListByMeasurement(ctx context.Context, measurementID string) ([]*entity.DocumentAttachment, error) {
	query := `SELECT ` + documentColumns + ` FROM measurement_documents WHERE measurement_id = ? ORDER BY kind`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, measurementID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("measurement_id", measurementID), zap.Error(err))
		return nil, storageError("list documents", err)
	}
	defer rows.Close()

	docs := []*entity.DocumentAttachment{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus changes the bookkeeping status of one document
func (r *DocumentRepository) UpdateStatus(ctx context.Context, measurementID string, kind entity.DocumentKind, status entity.DocumentStatus, at time.Time) error {
	res, err := executor(ctx, r.db).ExecContext(ctx,
		`UPDATE measurement_documents SET status = ?, updated_at = ? WHERE measurement_id = ? AND kind = ?`,
		string(status), at, measurementID, string(kind),
	)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.String("measurement_id", measurementID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return storageError("update document status", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &entity.NotFoundError{Resource: "document " + string(kind), ID: measurementID}
	}
	return nil
}

func scanDocument(row rowScanner) (*entity.DocumentAttachment, error) {
	var doc entity.DocumentAttachment
	var kind, status string
	if err := row.Scan(
		&doc.ID,
		&doc.MeasurementID,
		&kind,
		&doc.DocumentNumber,
		&doc.FileReference,
		&status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Kind = entity.DocumentKind(kind)
	doc.Status = entity.DocumentStatus(status)
	return &doc, nil
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
