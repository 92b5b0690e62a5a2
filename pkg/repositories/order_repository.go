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
	ordersTable     = "sales_orders"
	orderItemsTable = "sales_order_items"
)

var (
	orderStruct     = database.NewStruct(new(models.SalesOrder))
	orderItemStruct = database.NewStruct(new(models.SalesOrderItem))
)

// OrderRepository handles database operations for sales orders
type OrderRepository struct {
	*Repository
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db database.DB, logger ectologger.Logger) *OrderRepository {
	return &OrderRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates an order with its lines in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.SalesOrder) error {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.Create")
	defer span.End()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create order")
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(ordersTable).
		Cols("id", "name", "customer_id", "server_id", "remote_id", "identity", "sync_hash",
			"status", "docstatus", "company", "price_list", "tax_template",
			"currency", "total", "total_tax", "shipping_total", "shipping_rule",
			"payment_method", "payment_method_title", "date_paid",
			"billing_address_id", "shipping_address_id", "order_date", "delivery_date",
			"created_at", "updated_at").
		Values(order.ID, order.Name, order.CustomerID, order.ServerID, order.RemoteID, order.Identity, order.SyncHash,
			order.Status, order.DocStatus, order.Company, order.PriceList, order.TaxTemplate,
			order.Currency, order.Total, order.TotalTax, order.ShippingTotal, order.ShippingRule,
			order.PaymentMethod, order.PaymentMethodTitle, order.DatePaid,
			order.BillingAddressID, order.ShippingAddressID, order.OrderDate, order.DeliveryDate,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"identity": order.Identity,
		}).Error("failed to create order")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create order")
	}

	if err := r.insertLines(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create order")
	}

	return nil
}

func (r *OrderRepository) insertLines(ctx context.Context, tx database.Tx, order *models.SalesOrder) error {
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.OrderID = order.ID
		line.Idx = i

		ib := database.NewInsertBuilder()
		ib.InsertInto(orderItemsTable).
			Cols("id", "order_id", "idx", "item_code", "item_name", "qty", "rate", "amount", "warehouse", "remote_line_id", "raw").
			Values(line.ID, line.OrderID, line.Idx, line.ItemCode, line.ItemName, line.Qty, line.Rate, line.Amount,
				line.Warehouse, line.RemoteLineID, line.Raw)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"order_id":  order.ID,
				"item_code": line.ItemCode,
			}).Error("failed to insert order line")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert order line")
		}
	}
	return nil
}

// GetByIdentity retrieves an order by its composite identity. Returns nil
// when no order is linked to the identity.
func (r *OrderRepository) GetByIdentity(ctx context.Context, identity string) (*models.SalesOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.GetByIdentity")
	defer span.End()

	sb := orderStruct.SelectFrom(ordersTable)
	sb.Where(sb.Equal("identity", identity))

	query, args := sb.Build()
	var order models.SalesOrder
	err := r.DB().GetContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"identity": identity,
		}).Error("failed to get order by identity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get order")
	}

	if err := r.loadLines(ctx, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// GetByID retrieves an order by ID with its lines
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.GetByID")
	defer span.End()

	sb := orderStruct.SelectFrom(ordersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var order models.SalesOrder
	err := r.DB().GetContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "order %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": id,
		}).Error("failed to get order by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get order")
	}

	if err := r.loadLines(ctx, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, order *models.SalesOrder) error {
	sb := orderItemStruct.SelectFrom(orderItemsTable)
	sb.Where(sb.Equal("order_id", order.ID))
	sb.OrderBy("idx")

	query, args := sb.Build()
	lines := []models.SalesOrderItem{}
	if err := r.DB().SelectContext(ctx, &lines, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": order.ID,
		}).Error("failed to load order lines")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load order lines")
	}

	order.Lines = lines
	return nil
}

// ListModifiedSince returns orders a local user touched after the watermark.
// Used by the push direction of order polling.
func (r *OrderRepository) ListModifiedSince(ctx context.Context, serverID uuid.UUID, since sql.NullTime) ([]models.SalesOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.ListModifiedSince")
	defer span.End()

	sb := orderStruct.SelectFrom(ordersTable)
	if since.Valid {
		sb.Where(sb.Equal("server_id", serverID), sb.GreaterThan("updated_at", since.Time))
	} else {
		sb.Where(sb.Equal("server_id", serverID))
	}
	sb.OrderBy("updated_at")

	query, args := sb.Build()
	orders := []models.SalesOrder{}
	if err := r.DB().SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
		}).Error("failed to list modified orders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list modified orders")
	}

	return orders, nil
}

// UpdateStatus moves an order to a new status and bumps updated_at
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(ordersTable)
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": id,
		}).Error("failed to update order status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update order status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "order %s does not exist", id)
	}

	return nil
}

// Submit moves a draft order to submitted
func (r *OrderRepository) Submit(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.Submit")
	defer span.End()

	query := `UPDATE sales_orders SET docstatus = $1, updated_at = NOW() WHERE id = $2 AND docstatus = $3`
	result, err := r.DB().ExecContext(ctx, query, models.DocStatusSubmitted, id, models.DocStatusDraft)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": id,
		}).Error("failed to submit order")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to submit order")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "order %s is not a draft", id)
	}

	return nil
}

// SetSyncHash records the remote modification stamp without touching
// updated_at, keeping sync bookkeeping invisible to change detection.
func (r *OrderRepository) SetSyncHash(ctx context.Context, id uuid.UUID, hash string) error {
	ctx, span := tracing.StartSpan(ctx, "OrderRepository.SetSyncHash")
	defer span.End()

	query := `UPDATE sales_orders SET sync_hash = $1 WHERE id = $2`
	result, err := r.DB().ExecContext(ctx, query, hash, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id": id,
		}).Error("failed to set order sync hash")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set order sync hash")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "order %s does not exist", id)
	}

	return nil
}
