package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/models"
)

// ServerRepo defines the interface for WooCommerce server repository operations
type ServerRepo interface {
	Create(ctx context.Context, server *models.WooCommerceServer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error)
	GetByDomain(ctx context.Context, domain string) (*models.WooCommerceServer, error)
	List(ctx context.Context) ([]models.WooCommerceServer, error)
	ListEnabled(ctx context.Context) ([]models.WooCommerceServer, error)
	Update(ctx context.Context, server *models.WooCommerceServer) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ItemRepo defines the interface for item and item link repository operations
type ItemRepo interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	GetByCode(ctx context.Context, code string) (*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	ListChildren(ctx context.Context, parentCode string) ([]models.Item, error)
	CreateLink(ctx context.Context, link *models.ItemLink) error
	GetLinkByIdentity(ctx context.Context, identity string) (*models.ItemLink, error)
	ListLinksByItem(ctx context.Context, itemID uuid.UUID) ([]models.ItemLink, error)
	ListEnabledLinksByServer(ctx context.Context, serverID uuid.UUID) ([]models.ItemLink, error)
	SetSyncHash(ctx context.Context, linkID uuid.UUID, hash string) error
	ClearSyncHashes(ctx context.Context, itemID uuid.UUID) error
	SetLinkEnabled(ctx context.Context, linkID uuid.UUID, enabled bool) error
}

// OrderRepo defines the interface for sales order repository operations
type OrderRepo interface {
	Create(ctx context.Context, order *models.SalesOrder) error
	GetByIdentity(ctx context.Context, identity string) (*models.SalesOrder, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error)
	ListModifiedSince(ctx context.Context, serverID uuid.UUID, since sql.NullTime) ([]models.SalesOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	Submit(ctx context.Context, id uuid.UUID) error
	SetSyncHash(ctx context.Context, id uuid.UUID, hash string) error
}

// CustomerRepo defines the interface for customer and address repository operations
type CustomerRepo interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByName(ctx context.Context, name string) (*models.Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	FindAddress(ctx context.Context, customerID uuid.UUID, address *models.Address) (*models.Address, error)
	CreateAddress(ctx context.Context, address *models.Address) error
	GetOrCreateAddress(ctx context.Context, address *models.Address) (*models.Address, error)
}

// PaymentRepo defines the interface for payment entry repository operations
type PaymentRepo interface {
	Create(ctx context.Context, payment *models.PaymentEntry) error
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEntry, error)
}

// SyncStateRepo defines the interface for sync watermark repository operations
type SyncStateRepo interface {
	Get(ctx context.Context, serverID uuid.UUID, resource models.SyncResource) (*models.SyncState, error)
	Advance(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, syncedAt time.Time, runID string) error
	RecordError(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, runID string, errMsg string) error
}

// RequestLogRepo defines the interface for outbound request log repository operations
type RequestLogRepo interface {
	Create(ctx context.Context, log *models.RequestLog) error
	RecordRequest(ctx context.Context, log *models.RequestLog)
	ListByServer(ctx context.Context, serverID uuid.UUID, limit int) ([]models.RequestLog, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
