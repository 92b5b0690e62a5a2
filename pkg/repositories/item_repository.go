package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const (
	itemsTable     = "items"
	itemLinksTable = "item_links"
)

var (
	itemStruct     = database.NewStruct(new(models.Item))
	itemLinkStruct = database.NewStruct(new(models.ItemLink))
)

// ItemRepository handles database operations for items and their remote links
type ItemRepository struct {
	*Repository
}

// NewItemRepository creates a new item repository
func NewItemRepository(db database.DB, logger ectologger.Logger) *ItemRepository {
	return &ItemRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new item
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.Create")
	defer span.End()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Type == "" {
		item.Type = models.ItemTypeSimple
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(itemsTable).
		Cols("id", "code", "name", "type", "disabled", "description", "sku", "item_group",
			"price", "weight", "stock_qty", "image", "parent_code", "attributes", "created_at", "updated_at").
		Values(item.ID, item.Code, item.Name, item.Type, item.Disabled, item.Description, item.SKU, item.ItemGroup,
			item.Price, item.Weight, item.StockQty, item.Image, item.ParentCode, item.Attributes,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_code": item.Code,
		}).Error("failed to create item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create item")
	}

	return nil
}

// GetByID retrieves an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.GetByID")
	defer span.End()

	sb := itemStruct.SelectFrom(itemsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.Item
	err := r.DB().GetContext(ctx, &item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "item %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_id": id,
		}).Error("failed to get item by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get item by ID")
	}

	return &item, nil
}

// GetByCode retrieves an item by its code. Returns nil when absent, since
// sync looks up by code before creating.
func (r *ItemRepository) GetByCode(ctx context.Context, code string) (*models.Item, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.GetByCode")
	defer span.End()

	sb := itemStruct.SelectFrom(itemsTable)
	sb.Where(sb.Equal("code", code))

	query, args := sb.Build()
	var item models.Item
	err := r.DB().GetContext(ctx, &item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_code": code,
		}).Error("failed to get item by code")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get item by code")
	}

	return &item, nil
}

// Update updates an item and bumps its modification timestamp
func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(itemsTable)
	ub.Set(
		ub.Assign("name", item.Name),
		ub.Assign("type", item.Type),
		ub.Assign("disabled", item.Disabled),
		ub.Assign("description", item.Description),
		ub.Assign("sku", item.SKU),
		ub.Assign("item_group", item.ItemGroup),
		ub.Assign("price", item.Price),
		ub.Assign("weight", item.Weight),
		ub.Assign("stock_qty", item.StockQty),
		ub.Assign("image", item.Image),
		ub.Assign("parent_code", item.ParentCode),
		ub.Assign("attributes", item.Attributes),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", item.ID))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_id": item.ID,
		}).Error("failed to update item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "item %s does not exist", item.ID)
	}

	return nil
}

// ListChildren returns the variation items under a variable parent
func (r *ItemRepository) ListChildren(ctx context.Context, parentCode string) ([]models.Item, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.ListChildren")
	defer span.End()

	sb := itemStruct.SelectFrom(itemsTable)
	sb.Where(sb.Equal("parent_code", parentCode))
	sb.OrderBy("code")

	query, args := sb.Build()
	items := []models.Item{}
	err := r.DB().SelectContext(ctx, &items, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"parent_code": parentCode,
		}).Error("failed to list child items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list child items")
	}

	return items, nil
}

// CreateLink creates an item link
func (r *ItemRepository) CreateLink(ctx context.Context, link *models.ItemLink) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.CreateLink")
	defer span.End()

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(itemLinksTable).
		Cols("id", "item_id", "server_id", "identity", "remote_id", "enabled", "sync_hash", "created_at", "updated_at").
		Values(link.ID, link.ItemID, link.ServerID, link.Identity, link.RemoteID, link.Enabled, link.SyncHash,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"identity": link.Identity,
		}).Error("failed to create item link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create item link")
	}

	return nil
}

// GetLinkByIdentity retrieves a link by composite identity
func (r *ItemRepository) GetLinkByIdentity(ctx context.Context, identity string) (*models.ItemLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.GetLinkByIdentity")
	defer span.End()

	sb := itemLinkStruct.SelectFrom(itemLinksTable)
	sb.Where(sb.Equal("identity", identity))

	query, args := sb.Build()
	var link models.ItemLink
	err := r.DB().GetContext(ctx, &link, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"identity": identity,
		}).Error("failed to get item link by identity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get item link")
	}

	return &link, nil
}

// ListLinksByItem returns every link for an item
func (r *ItemRepository) ListLinksByItem(ctx context.Context, itemID uuid.UUID) ([]models.ItemLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.ListLinksByItem")
	defer span.End()

	sb := itemLinkStruct.SelectFrom(itemLinksTable)
	sb.Where(sb.Equal("item_id", itemID))

	query, args := sb.Build()
	links := []models.ItemLink{}
	err := r.DB().SelectContext(ctx, &links, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_id": itemID,
		}).Error("failed to list item links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list item links")
	}

	return links, nil
}

// ListEnabledLinksByServer returns every enabled link on a server
func (r *ItemRepository) ListEnabledLinksByServer(ctx context.Context, serverID uuid.UUID) ([]models.ItemLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.ListEnabledLinksByServer")
	defer span.End()

	sb := itemLinkStruct.SelectFrom(itemLinksTable)
	sb.Where(sb.Equal("server_id", serverID), sb.Equal("enabled", true))

	query, args := sb.Build()
	links := []models.ItemLink{}
	err := r.DB().SelectContext(ctx, &links, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
		}).Error("failed to list enabled item links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list item links")
	}

	return links, nil
}

// SetSyncHash records the remote modification stamp on a link without
// touching any modification timestamp. Bumping updated_at here would make
// every sync look like a local edit and feed the next pass back to the store.
func (r *ItemRepository) SetSyncHash(ctx context.Context, linkID uuid.UUID, hash string) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.SetSyncHash")
	defer span.End()

	query := `UPDATE item_links SET sync_hash = $1 WHERE id = $2`
	result, err := r.DB().ExecContext(ctx, query, hash, linkID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id": linkID,
		}).Error("failed to set sync hash")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set sync hash")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "item link %s does not exist", linkID)
	}

	return nil
}

// ClearSyncHashes blanks the hash on every link of an item, forcing the next
// pass to push the item out. Called after local edits.
func (r *ItemRepository) ClearSyncHashes(ctx context.Context, itemID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.ClearSyncHashes")
	defer span.End()

	query := `UPDATE item_links SET sync_hash = '' WHERE item_id = $1`
	if _, err := r.DB().ExecContext(ctx, query, itemID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"item_id": itemID,
		}).Error("failed to clear sync hashes")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear sync hashes")
	}

	return nil
}

// SetLinkEnabled flips sync on or off for one link
func (r *ItemRepository) SetLinkEnabled(ctx context.Context, linkID uuid.UUID, enabled bool) error {
	ctx, span := tracing.StartSpan(ctx, "ItemRepository.SetLinkEnabled")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(itemLinksTable)
	ub.Set(
		ub.Assign("enabled", enabled),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", linkID))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id": linkID,
		}).Error("failed to set link enabled")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set link enabled")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "item link %s does not exist", linkID)
	}

	return nil
}
