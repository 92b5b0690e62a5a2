package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/database"
)

// ItemType distinguishes plain products from variable products and their
// variations, mirroring WooCommerce's product types.
type ItemType string

const (
	ItemTypeSimple    ItemType = "simple"
	ItemTypeTemplate  ItemType = "variable"
	ItemTypeVariation ItemType = "variation"
)

// DeletedProductCode is the placeholder item used for order lines whose
// product no longer exists on the remote store.
const DeletedProductCode = "DELETED_WOOCOMMERCE_PRODUCT"

// Item is the local catalog entity
type Item struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Code     string    `db:"code" json:"code" validate:"required"`
	Name     string    `db:"name" json:"name" validate:"required"`
	Type     ItemType  `db:"type" json:"type"`
	Disabled bool      `db:"disabled" json:"disabled"`

	Description string  `db:"description" json:"description,omitempty"`
	SKU         string  `db:"sku" json:"sku,omitempty"`
	ItemGroup   string  `db:"item_group" json:"item_group,omitempty"`
	Price       string  `db:"price" json:"price,omitempty"`
	Weight      float64 `db:"weight" json:"weight,omitempty"`
	StockQty    float64 `db:"stock_qty" json:"stock_qty,omitempty"`

	// Image is the remote product image URL, copied only for servers with
	// image sync enabled
	Image string `db:"image" json:"image,omitempty"`

	// ParentCode links a variation to its variable parent
	ParentCode *string `db:"parent_code" json:"parent_code,omitempty"`

	// Attributes holds variant attributes as name -> option
	Attributes database.JSONB[map[string]string] `db:"attributes" json:"attributes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Item) TableName() string {
	return "items"
}

// ItemLink ties a local item to one remote product on one store. The
// SyncHash column holds the remote date_modified string captured at the last
// successful sync, not a digest. A blank hash forces the next pass to push.
type ItemLink struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ItemID   uuid.UUID `db:"item_id" json:"item_id"`
	ServerID uuid.UUID `db:"server_id" json:"server_id"`

	// Identity is the composite "{domain}~{remote-id}" key
	Identity string `db:"identity" json:"identity"`
	RemoteID int64  `db:"remote_id" json:"remote_id"`

	Enabled  bool   `db:"enabled" json:"enabled"`
	SyncHash string `db:"sync_hash" json:"sync_hash"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ItemLink) TableName() string {
	return "item_links"
}
