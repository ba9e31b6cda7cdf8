package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/sqlite"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func executor(ctx context.Context, db *sql.DB) sqlite.Executor {
	return sqlite.ExecutorFrom(ctx, db)
}

// storageError wraps a driver failure so callers can match entity.ErrStorage
func storageError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, entity.ErrStorage, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func periodPtr(ns sql.NullString) (*entity.Period, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	p, err := entity.ParsePeriod(ns.String)
	if err != nil {
		return nil, fmt.Errorf("stored period %q: %w", ns.String, err)
	}
	return &p, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
