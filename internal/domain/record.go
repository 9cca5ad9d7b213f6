// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedRecord indicates a record is missing fields the classifier
// depends on. Malformed records fail fast instead of silently falling
// through to default labels.
var ErrMalformedRecord = errors.New("malformed record")

// Partition identifies which disjoint subset a record belongs to.
// It is determined once by quantity sign and never changes.
type Partition string

const (
	PartitionSales   Partition = "sales"
	PartitionReturns Partition = "returns"
)

// GuestCustomerID is the normalized ID for unknown/guest customers.
// Guest rows are excluded from all customer-keyed window aggregates.
const GuestCustomerID = ""

// TransactionRecord is one cleaned retail transaction line. Records are
// immutable through classification: the classifier computes labels, it
// never mutates its input.
type TransactionRecord struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// InvoiceNo groups line items bought or returned together.
	InvoiceNo   string    `json:"invoiceNo"`
	InvoiceDate time.Time `json:"invoiceDate"`

	// StockCode identifies the product or non-product line type.
	// Alphabetic codes (POST, D, M, S, B, C2, DOT, AMAZONFEE, PADS)
	// denote non-regular lines.
	StockCode string `json:"stockCode"`

	// DescriptionClean is the normalized line description supplied by
	// the upstream cleaning stage.
	DescriptionClean string `json:"descriptionClean"`

	// Quantity is signed: positive = sale line, negative = return line.
	// Never zero in a stored row.
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`

	// OrderValue is Quantity * UnitPrice, the signed monetary impact.
	OrderValue float64 `json:"orderValue"`

	// CustomerID is empty (or "0", normalized upstream) for guests.
	CustomerID string `json:"customerId,omitempty"`

	// Descriptive pass-through attributes.
	Country      string `json:"country,omitempty"`
	CustomerType string `json:"customerType,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Partition returns which partition the record belongs to.
func (r *TransactionRecord) Partition() Partition {
	if r.Quantity < 0 {
		return PartitionReturns
	}
	return PartitionSales
}

// IsGuest reports whether the record has no usable customer identity.
func (r *TransactionRecord) IsGuest() bool {
	return r.CustomerID == GuestCustomerID || r.CustomerID == "0"
}

// CustomerDay returns the calendar date (UTC) of the invoice, the key
// used for same-customer same-day aggregates.
func (r *TransactionRecord) CustomerDay() time.Time {
	return r.InvoiceDate.UTC().Truncate(24 * time.Hour)
}

// Validate checks the fields every rule ladder depends on.
func (r *TransactionRecord) Validate() error {
	if r.StockCode == "" {
		return fmt.Errorf("%w: stock code is required", ErrMalformedRecord)
	}
	if r.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be non-zero", ErrMalformedRecord)
	}
	if r.InvoiceDate.IsZero() {
		return fmt.Errorf("%w: invoice date is required", ErrMalformedRecord)
	}
	if math.IsNaN(r.UnitPrice) || math.IsNaN(r.OrderValue) {
		return fmt.Errorf("%w: monetary fields must be numeric", ErrMalformedRecord)
	}
	return nil
}

// RecordRequest is the API payload for a single transaction line.
type RecordRequest struct {
	InvoiceNo        string  `json:"invoiceNo"`
	InvoiceDate      string  `json:"invoiceDate"` // RFC 3339
	StockCode        string  `json:"stockCode"`
	DescriptionClean string  `json:"descriptionClean"`
	Quantity         int64   `json:"quantity"`
	UnitPrice        float64 `json:"unitPrice"`
	CustomerID       string  `json:"customerId,omitempty"`
	Country          string  `json:"country,omitempty"`
	CustomerType     string  `json:"customerType,omitempty"`
}

// ToRecord converts a request to a TransactionRecord. OrderValue is
// derived here; the classifier treats it as given.
func (q *RecordRequest) ToRecord(id, tenantID string) (*TransactionRecord, error) {
	when, err := time.Parse(time.RFC3339, q.InvoiceDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid invoice date %q", ErrMalformedRecord, q.InvoiceDate)
	}

	customerID := q.CustomerID
	if customerID == "0" {
		customerID = GuestCustomerID
	}

	return &TransactionRecord{
		ID:               id,
		TenantID:         tenantID,
		InvoiceNo:        q.InvoiceNo,
		InvoiceDate:      when.UTC(),
		StockCode:        q.StockCode,
		DescriptionClean: q.DescriptionClean,
		Quantity:         q.Quantity,
		UnitPrice:        q.UnitPrice,
		OrderValue:       float64(q.Quantity) * q.UnitPrice,
		CustomerID:       customerID,
		Country:          q.Country,
		CustomerType:     q.CustomerType,
		CreatedAt:        time.Now().UTC(),
	}, nil
}
