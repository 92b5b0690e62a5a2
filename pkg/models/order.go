package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wooconduit/conduit/pkg/database"
)

// OrderStatus is the local sales order status vocabulary
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusOnHold     OrderStatus = "On Hold"
	OrderStatusFailed     OrderStatus = "Failed"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusRefunded   OrderStatus = "Refunded"
)

// DocStatus follows the draft/submitted/cancelled ledger convention
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// SalesOrder is the local order entity. Orders are single-homed: the link
// fields live on the order itself rather than in a separate link table.
type SalesOrder struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`

	ServerID uuid.UUID `db:"server_id" json:"server_id"`
	RemoteID int64     `db:"remote_id" json:"remote_id"`
	Identity string    `db:"identity" json:"identity"`
	SyncHash string    `db:"sync_hash" json:"sync_hash"`

	Status    OrderStatus `db:"status" json:"status"`
	DocStatus DocStatus   `db:"docstatus" json:"docstatus"`

	// Company, PriceList and TaxTemplate come from the server settings when
	// the order is created. TaxTemplate is blank when the store's actual tax
	// lines are posted instead.
	Company     string `db:"company" json:"company,omitempty"`
	PriceList   string `db:"price_list" json:"price_list,omitempty"`
	TaxTemplate string `db:"tax_template" json:"tax_template,omitempty"`

	Currency      string          `db:"currency" json:"currency"`
	Total         decimal.Decimal `db:"total" json:"total"`
	TotalTax      decimal.Decimal `db:"total_tax" json:"total_tax"`
	ShippingTotal decimal.Decimal `db:"shipping_total" json:"shipping_total"`
	ShippingRule  string          `db:"shipping_rule" json:"shipping_rule,omitempty"`

	PaymentMethod      string     `db:"payment_method" json:"payment_method,omitempty"`
	PaymentMethodTitle string     `db:"payment_method_title" json:"payment_method_title,omitempty"`
	DatePaid           *time.Time `db:"date_paid" json:"date_paid,omitempty"`

	BillingAddressID  *uuid.UUID `db:"billing_address_id" json:"billing_address_id,omitempty"`
	ShippingAddressID *uuid.UUID `db:"shipping_address_id" json:"shipping_address_id,omitempty"`

	OrderDate    time.Time `db:"order_date" json:"order_date"`
	DeliveryDate time.Time `db:"delivery_date" json:"delivery_date"`

	// Lines are loaded separately from sales_order_items
	Lines []SalesOrderItem `db:"-" json:"lines,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (SalesOrder) TableName() string {
	return "sales_orders"
}

// SalesOrderItem is one line on a sales order
type SalesOrderItem struct {
	ID      uuid.UUID `db:"id" json:"id"`
	OrderID uuid.UUID `db:"order_id" json:"order_id"`
	Idx     int       `db:"idx" json:"idx"`

	ItemCode string `db:"item_code" json:"item_code"`
	ItemName string `db:"item_name" json:"item_name"`

	Qty decimal.Decimal `db:"qty" json:"qty"`
	// Rate is the tax-inclusive unit price
	Rate   decimal.Decimal `db:"rate" json:"rate"`
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Warehouse fulfills the line, from the server settings
	Warehouse string `db:"warehouse" json:"warehouse,omitempty"`

	// RemoteLineID is the WooCommerce line_items entry id
	RemoteLineID int64 `db:"remote_line_id" json:"remote_line_id,omitempty"`

	Raw database.JSONB[map[string]any] `db:"raw" json:"raw,omitempty"`
}

// TableName returns the database table name
func (SalesOrderItem) TableName() string {
	return "sales_order_items"
}
