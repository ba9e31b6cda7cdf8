package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"go.uber.org/zap"
)

// SiteRepository implements port.SiteRepository
type SiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *sql.DB, logger *zap.Logger) port.SiteRepository {
	return &SiteRepository{db: db, logger: logger}
}

// Create inserts a site
func (r *SiteRepository) Create(ctx context.Context, s *entity.Site) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO sites (id, name, created_at) VALUES (?, ?, ?)`,
		s.ID, s.Name, s.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create site", zap.String("site_id", s.ID), zap.Error(err))
		return storageError("create site", err)
	}
	return nil
}

// GetByID retrieves a site by ID. Returns nil, nil when absent.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*entity.Site, error) {
	var s entity.Site
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, created_at FROM sites WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get site by ID", zap.String("site_id", id), zap.Error(err))
		return nil, storageError("get site", err)
	}
	return &s, nil
}

// Verify interface compliance
var _ port.SiteRepository = (*SiteRepository)(nil)
