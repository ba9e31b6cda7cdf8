package port

import (
	"context"
	"io"
)

// FileStorage defines file storage operations for uploaded documents
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}

// ReportRenderer writes a budget's measurement history as a spreadsheet
type ReportRenderer interface {
	RenderBudgetReport(w io.Writer, report *BudgetReport) error
}
