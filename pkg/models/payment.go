package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEntry records a captured payment against a sales order
type PaymentEntry struct {
	ID      uuid.UUID `db:"id" json:"id"`
	OrderID uuid.UUID `db:"order_id" json:"order_id"`

	// BankAccount is resolved from the server's payment method map
	BankAccount string          `db:"bank_account" json:"bank_account"`
	Method      string          `db:"method" json:"method"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	PaidAt      time.Time       `db:"paid_at" json:"paid_at"`

	// Reference is the remote transaction id when the gateway provides one
	Reference string `db:"reference" json:"reference,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (PaymentEntry) TableName() string {
	return "payment_entries"
}
