package entity

import (
	"fmt"
	"time"
)

// DocumentKind is one of the three fixed bookkeeping documents of a measurement.
type DocumentKind string

const (
	DocumentServiceInvoice DocumentKind = "service_invoice"
	DocumentProductInvoice DocumentKind = "product_invoice"
	DocumentPaymentSlip    DocumentKind = "payment_slip"
)

// ParseDocumentKind validates a kind token from the wire.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch k := DocumentKind(s); k {
	case DocumentServiceInvoice, DocumentProductInvoice, DocumentPaymentSlip:
		return k, nil
	}
	return "", NewValidationError("kind", fmt.Sprintf("unknown document kind %q", s))
}

// DocumentStatus tracks a document independently of the measurement status.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentIssued  DocumentStatus = "issued"
	DocumentSent    DocumentStatus = "sent"
	DocumentPaid    DocumentStatus = "paid"
)

var documentStatusRank = map[DocumentStatus]int{
	DocumentPending: 0,
	DocumentIssued:  1,
	DocumentSent:    2,
	DocumentPaid:    3,
}

// ParseDocumentStatus validates a status token from the wire.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	st := DocumentStatus(s)
	if _, ok := documentStatusRank[st]; !ok {
		return "", NewValidationError("status", fmt.Sprintf("unknown document status %q", s))
	}
	return st, nil
}

// CanAdvanceTo reports whether next is strictly later in the document lifecycle.
func (s DocumentStatus) CanAdvanceTo(next DocumentStatus) bool {
	from, ok1 := documentStatusRank[s]
	to, ok2 := documentStatusRank[next]
	return ok1 && ok2 && to > from
}

// DocumentAttachment is the single record kept per (measurement, kind).
type DocumentAttachment struct {
	ID             string         `json:"id"`
	MeasurementID  string         `json:"measurement_id"`
	Kind           DocumentKind   `json:"kind"`
	DocumentNumber string         `json:"document_number,omitempty"`
	FileReference  string         `json:"file_reference"`
	Status         DocumentStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate checks caller-supplied fields.
func (d *DocumentAttachment) Validate() error {
	if _, err := ParseDocumentKind(string(d.Kind)); err != nil {
		return err
	}
	if d.FileReference == "" {
		return NewValidationError("file_reference", "is required")
	}
	return nil
}
