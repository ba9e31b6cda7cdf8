package service

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/pkg/utils"
)

// AttachInput registers a document already stored somewhere reachable
type AttachInput struct {
	MeasurementID  string
	Kind           entity.DocumentKind
	DocumentNumber string
	FileReference  string
	Actor          string
}

// UploadInput carries an uploaded document file
type UploadInput struct {
	MeasurementID  string
	Kind           entity.DocumentKind
	DocumentNumber string
	FileName       string
	Content        []byte
	Actor          string
}

// DocumentService tracks the bookkeeping documents of measurements
type DocumentService interface {
	Attach(ctx context.Context, in AttachInput) (*entity.DocumentAttachment, error)
	Upload(ctx context.Context, in UploadInput) (*entity.DocumentAttachment, error)
	List(ctx context.Context, measurementID string) ([]*entity.DocumentAttachment, error)
	UpdateStatus(ctx context.Context, measurementID string, kind entity.DocumentKind, status entity.DocumentStatus, actor string) (*entity.DocumentAttachment, error)
}

type documentServiceImpl struct {
	aggregate
	storage port.FileStorage
}

// NewDocumentService creates a new document service
func NewDocumentService(
	repos Repositories,
	storage port.FileStorage,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
) DocumentService {
	return &documentServiceImpl{
		aggregate: aggregate{
			repos:     repos,
			txManager: txManager,
			publisher: publisher,
			logger:    logger,
		},
		storage: storage,
	}
}

// Attach records a document for (measurement, kind), replacing any earlier
// one and resetting its status to pending. Any measurement status is accepted.
func (s *documentServiceImpl) Attach(ctx context.Context, in AttachInput) (*entity.DocumentAttachment, error) {
	doc, _, err := s.attach(ctx, in)
	return doc, err
}

// Upload stores the file under a fresh reference and attaches it. The file of
// an earlier upload of the same kind is removed only once the new attachment
// is committed.
func (s *documentServiceImpl) Upload(ctx context.Context, in UploadInput) (*entity.DocumentAttachment, error) {
	if _, err := entity.ParseDocumentKind(string(in.Kind)); err != nil {
		return nil, err
	}
	if len(in.Content) == 0 {
		return nil, entity.NewValidationError("file", "is empty")
	}
	name := utils.SanitizeFileName(in.FileName)
	if _, err := s.load(ctx, in.MeasurementID); err != nil {
		return nil, err
	}

	ref := path.Join("measurements", in.MeasurementID, string(in.Kind), uuid.NewString()+"-"+name)
	if err := s.storage.Save(ctx, ref, in.Content); err != nil {
		s.logger.Error("Failed to store uploaded document",
			"measurement_id", in.MeasurementID,
			"kind", in.Kind,
			"error", err,
		)
		return nil, fmt.Errorf("failed to store document: %w: %w", entity.ErrStorage, err)
	}

	doc, previous, err := s.attach(ctx, AttachInput{
		MeasurementID:  in.MeasurementID,
		Kind:           in.Kind,
		DocumentNumber: in.DocumentNumber,
		FileReference:  ref,
		Actor:          in.Actor,
	})
	if err != nil {
		_ = s.storage.Delete(ctx, ref)
		return nil, err
	}

	if previous != "" && s.storage.Exists(ctx, previous) {
		if err := s.storage.Delete(ctx, previous); err != nil {
			s.logger.Error("Failed to remove superseded document file", "path", previous, "error", err)
		}
	}
	return doc, nil
}

// attach returns the stored document and the file reference it superseded
func (s *documentServiceImpl) attach(ctx context.Context, in AttachInput) (*entity.DocumentAttachment, string, error) {
	doc := &entity.DocumentAttachment{
		MeasurementID:  in.MeasurementID,
		Kind:           in.Kind,
		DocumentNumber: utils.SanitizeString(in.DocumentNumber),
		FileReference:  in.FileReference,
	}
	if err := doc.Validate(); err != nil {
		return nil, "", err
	}

	var previous string
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.load(txCtx, in.MeasurementID); err != nil {
			return err
		}
		old, err := s.repos.Documents.GetByKind(txCtx, in.MeasurementID, in.Kind)
		if err != nil {
			return err
		}
		if old != nil {
			previous = old.FileReference
			doc.ID = old.ID
		}
		return s.repos.Documents.Upsert(txCtx, doc)
	})
	if err != nil {
		s.logger.Error("Failed to attach document",
			"measurement_id", in.MeasurementID,
			"kind", in.Kind,
			"error", err,
		)
		return nil, previous, err
	}

	s.logger.Info("Document attached",
		"measurement_id", in.MeasurementID,
		"kind", in.Kind,
		"file_reference", doc.FileReference,
		"replaced", previous != "",
	)
	s.publish(ctx, event.NewEvent(event.TypeDocumentAttached, in.MeasurementID, actorOrSystem(in.Actor), map[string]interface{}{
		"kind":           string(doc.Kind),
		"document_id":    doc.ID,
		"file_reference": doc.FileReference,
		"replaced":       previous != "",
	}))
	return doc, previous, nil
}

// List returns the documents of a measurement, at most one per kind
func (s *documentServiceImpl) List(ctx context.Context, measurementID string) ([]*entity.DocumentAttachment, error) {
	if _, err := s.load(ctx, measurementID); err != nil {
		return nil, err
	}
	return s.repos.Documents.ListByMeasurement(ctx, measurementID)
}

// UpdateStatus moves a document forward in its pending, issued, sent, paid lifecycle
func (s *documentServiceImpl) UpdateStatus(ctx context.Context, measurementID string, kind entity.DocumentKind, status entity.DocumentStatus, actor string) (*entity.DocumentAttachment, error) {
	if _, err := entity.ParseDocumentKind(string(kind)); err != nil {
		return nil, err
	}
	if _, err := entity.ParseDocumentStatus(string(status)); err != nil {
		return nil, err
	}

	var doc *entity.DocumentAttachment
	var from entity.DocumentStatus
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.repos.Documents.GetByKind(txCtx, measurementID, kind)
		if err != nil {
			return err
		}
		if doc == nil {
			return &entity.NotFoundError{Resource: "document " + string(kind), ID: measurementID}
		}
		if !doc.Status.CanAdvanceTo(status) {
			return entity.NewValidationError("status",
				fmt.Sprintf("cannot move document from %s to %s", doc.Status, status))
		}
		from = doc.Status
		now := s.clock()
		if err := s.repos.Documents.UpdateStatus(txCtx, measurementID, kind, status, now); err != nil {
			return err
		}
		doc.Status = status
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update document status",
			"measurement_id", measurementID,
			"kind", kind,
			"status", status,
			"error", err,
		)
		return nil, err
	}

	s.publish(ctx, event.NewEvent(event.TypeDocumentStatus, measurementID, actorOrSystem(actor), map[string]interface{}{
		"kind": string(kind),
		"from": string(from),
		"to":   string(status),
	}))
	return doc, nil
}
