package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/database"
)

// WooCommerceServer represents one connected WooCommerce store
type WooCommerceServer struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name" validate:"required"`
	URL    string    `db:"url" json:"url" validate:"required,url"`
	Domain string    `db:"domain" json:"domain"`

	ConsumerKey    string `db:"consumer_key" json:"consumer_key" validate:"required"`
	ConsumerSecret string `db:"consumer_secret" json:"consumer_secret" validate:"required"`

	Enabled       bool `db:"enabled" json:"enabled"`
	SyncItems     bool `db:"sync_items" json:"sync_items"`
	SyncOrders    bool `db:"sync_orders" json:"sync_orders"`
	SyncCustomers bool `db:"sync_customers" json:"sync_customers"`
	SyncPayments  bool `db:"sync_payments" json:"sync_payments"`

	// Settings holds per-store defaults applied while mapping
	Settings database.JSONB[ServerSettings] `db:"settings" json:"settings"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ServerSettings are per-store defaults applied during sync
type ServerSettings struct {
	// Warehouse receives stock for pulled items
	Warehouse string `json:"warehouse,omitempty"`
	// PriceList used when pushing item prices
	PriceList string `json:"price_list,omitempty"`
	// Company new orders and payments are booked against
	Company string `json:"company,omitempty"`
	// Currency fallback when the store omits one
	Currency string `json:"currency,omitempty"`
	// ItemGroup assigned to pulled items
	ItemGroup string `json:"item_group,omitempty"`
	// CustomerGroup assigned to pulled customers
	CustomerGroup string `json:"customer_group,omitempty"`
	// Territory assigned to pulled customers
	Territory string `json:"territory,omitempty"`
	// PaymentMethodMap maps WooCommerce payment gateways to local bank accounts
	PaymentMethodMap map[string]string `json:"payment_method_map,omitempty"`
	// ShippingRuleMap maps WooCommerce shipping method ids to local shipping rules
	ShippingRuleMap map[string]string `json:"shipping_rule_map,omitempty"`
	// UseActualTaxes posts tax lines from the store's tax-inclusive pricing
	// instead of delegating to TaxTemplate
	UseActualTaxes bool   `json:"use_actual_taxes,omitempty"`
	TaxTemplate    string `json:"tax_template,omitempty"`
	// SubmitOrders submits pulled orders instead of leaving them as drafts
	SubmitOrders bool `json:"submit_orders,omitempty"`
	// EnableImageSync copies the remote product image onto pulled items
	EnableImageSync bool `json:"enable_image_sync,omitempty"`
	// ItemFieldMap layers store-specific product mapping rules over the
	// built-in set. Rules are validated when the server row is saved.
	ItemFieldMap []FieldMappingRule `json:"item_field_map,omitempty"`
}

// TableName returns the database table name
func (WooCommerceServer) TableName() string {
	return "woocommerce_servers"
}

// NormalizeURL cleans the configured store URL and derives the domain used in
// composite identities. The domain must stay stable for the life of the
// server row or every identity pointing at it dangles.
func (s *WooCommerceServer) NormalizeURL() error {
	raw := strings.TrimSpace(s.URL)
	if raw == "" {
		return fmt.Errorf("server url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", s.URL, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", s.URL)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	s.URL = parsed.String()
	s.Domain = parsed.Host
	return nil
}

// APIBase returns the store's REST API root
func (s *WooCommerceServer) APIBase() string {
	return strings.TrimSuffix(s.URL, "/") + "/wp-json/wc/v3"
}
