package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncResource names a remote resource kind that polling tracks
type SyncResource string

const (
	SyncResourceProducts  SyncResource = "products"
	SyncResourceOrders    SyncResource = "orders"
	SyncResourceCustomers SyncResource = "customers"
)

// SyncState holds the per-server per-resource polling watermark. The next
// poll asks the store for records modified after LastSyncedAt.
type SyncState struct {
	ID       uuid.UUID    `db:"id" json:"id"`
	ServerID uuid.UUID    `db:"server_id" json:"server_id"`
	Resource SyncResource `db:"resource" json:"resource"`

	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastRunID    string     `db:"last_run_id" json:"last_run_id,omitempty"`
	LastError    string     `db:"last_error" json:"last_error,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (SyncState) TableName() string {
	return "sync_states"
}
