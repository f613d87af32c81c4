package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when the extractor does not state one.
const DefaultCurrency = "USD"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ReceiptMetadata is the structured purchase data produced by the
// extraction step. Construct it with NewReceiptMetadata so that the
// field constraints hold for every value in circulation.
type ReceiptMetadata struct {
	Vendor      string
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time // transaction date, not the email timestamp
	Description string
	Confidence  float64
}

// NewReceiptMetadata validates and builds a ReceiptMetadata. Invalid
// values are rejected outright, never clamped or defaulted away; the
// only default applied is the currency when left empty.
func NewReceiptMetadata(
	vendor string,
	amount decimal.Decimal,
	currency string,
	date time.Time,
	description string,
	confidence float64,
) (ReceiptMetadata, error) {
	if vendor == "" {
		return ReceiptMetadata{}, fmt.Errorf("vendor must not be empty")
	}
	if !amount.IsPositive() {
		return ReceiptMetadata{}, fmt.Errorf(
			"amount must be greater than zero, got %s", amount,
		)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return ReceiptMetadata{}, fmt.Errorf(
			"currency must be 3 uppercase letters, got %q", currency,
		)
	}
	if date.IsZero() {
		return ReceiptMetadata{}, fmt.Errorf("date is required")
	}
	if confidence < 0.0 || confidence > 1.0 {
		return ReceiptMetadata{}, fmt.Errorf(
			"confidence must be in [0.0, 1.0], got %g", confidence,
		)
	}

	return ReceiptMetadata{
		Vendor:      vendor,
		Amount:      amount,
		Currency:    currency,
		Date:        date,
		Description: description,
		Confidence:  confidence,
	}, nil
}

// Receipt is the full record persisted after a message completes the
// pipeline.
type Receipt struct {
	ID           uuid.UUID       `db:"id"`
	SourceID     string          `db:"source_id"`
	SourceType   string          `db:"source_type"`
	Vendor       string          `db:"vendor"`
	Amount       decimal.Decimal `db:"amount"`
	Currency     string          `db:"currency"`
	ReceiptDate  time.Time       `db:"receipt_date"`
	Description  string          `db:"description"`
	Confidence   float64         `db:"confidence"`
	PDFPath      string          `db:"pdf_path"`
	EmailSubject string          `db:"email_subject"`
	EmailSender  string          `db:"email_sender"`
	EmailDate    time.Time       `db:"email_date"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}
