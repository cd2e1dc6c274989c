// Package invoice holds the domain record produced from a successfully
// ingested upload, the payload parser that validates uploads, and the
// repositories that persist invoices.
package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingInvoiceNumber is the validation failure for payloads without an invoice number.
	ErrMissingInvoiceNumber = errors.New("invoiceNumber is required")
	// ErrMalformedPayload means the upload is not a JSON object.
	ErrMalformedPayload = errors.New("payload is not a valid JSON object")
	// ErrNotFound is returned when no live invoice matches.
	ErrNotFound = errors.New("invoice not found")
)

// DefaultTTL is how long an ingested invoice is retained.
const DefaultTTL = 2 * time.Minute

// Invoice is the domain record created for a valid upload.
type Invoice struct {
	CustomerName  string    `json:"customerName"`
	InvoiceNumber string    `json:"invoiceNumber"`
	TotalValue    float64   `json:"totalValue"`
	ProductID     string    `json:"productId"`
	Quantity      int       `json:"quantity"`
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// PartitionKey returns "#invoice_<customerName>".
func PartitionKey(customerName string) string {
	return "#invoice_" + customerName
}

// PK is the record's partition key.
func (i *Invoice) PK() string { return PartitionKey(i.CustomerName) }

// Payload is the JSON document a client uploads.
type Payload struct {
	InvoiceNumber string  `json:"invoiceNumber"`
	CustomerName  string  `json:"customerName"`
	TotalValue    float64 `json:"totalValue"`
	ProductID     string  `json:"productId"`
	Quantity      int     `json:"quantity"`
}

// ParsePayload decodes and validates an uploaded document. Only the invoice
// number is required: a non-empty string or a non-zero number, kept as its
// literal text. The other fields are read leniently and default to zero
// values when absent or of an unexpected type. Both returned errors are
// validation failures and are final for the upload.
func ParsePayload(data []byte) (*Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, ErrMalformedPayload
	}

	p := &Payload{
		InvoiceNumber: strings.TrimSpace(stringField(raw["invoiceNumber"])),
		CustomerName:  stringField(raw["customerName"]),
		TotalValue:    numberField(raw["totalValue"]),
		ProductID:     stringField(raw["productId"]),
		Quantity:      int(numberField(raw["quantity"])),
	}
	if p.InvoiceNumber == "" {
		return nil, ErrMissingInvoiceNumber
	}
	return p, nil
}

// scalar decodes a JSON string or number. Anything else yields nil.
func scalar(msg json.RawMessage) any {
	if len(msg) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	switch v.(type) {
	case string, json.Number:
		return v
	}
	return nil
}

// stringField returns a string as is and a non-zero number as its literal.
func stringField(msg json.RawMessage) string {
	switch v := scalar(msg).(type) {
	case string:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return ""
		}
		return v.String()
	}
	return ""
}

// numberField returns a number, or a string holding one, as float64.
func numberField(msg json.RawMessage) float64 {
	var s string
	switch v := scalar(msg).(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// IsValidationError reports whether err marks the upload content as invalid.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingInvoiceNumber) || errors.Is(err, ErrMalformedPayload)
}

// FromPayload builds the invoice for transactionKey, retained for ttl.
func FromPayload(p *Payload, transactionKey string, now time.Time, ttl time.Duration) *Invoice {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Invoice{
		CustomerName:  p.CustomerName,
		InvoiceNumber: p.InvoiceNumber,
		TotalValue:    p.TotalValue,
		ProductID:     p.ProductID,
		Quantity:      p.Quantity,
		TransactionID: transactionKey,
		CreatedAt:     now.UTC(),
		ExpiresAt:     now.UTC().Add(ttl),
	}
}

// Repository persists invoices keyed by (customer, invoice number).
type Repository interface {
	Put(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, customerName, invoiceNumber string) (*Invoice, error)
	ListByCustomer(ctx context.Context, customerName string) ([]*Invoice, error)
}
