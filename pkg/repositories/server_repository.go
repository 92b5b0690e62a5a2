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

const serversTable = "woocommerce_servers"

var serverStruct = database.NewStruct(new(models.WooCommerceServer))

// ServerRepository handles database operations for WooCommerce servers
type ServerRepository struct {
	*Repository
}

// NewServerRepository creates a new server repository
func NewServerRepository(db database.DB, logger ectologger.Logger) *ServerRepository {
	return &ServerRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new server row
func (r *ServerRepository) Create(ctx context.Context, server *models.WooCommerceServer) error {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.Create")
	defer span.End()

	if server.ID == uuid.Nil {
		server.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(serversTable).
		Cols("id", "name", "url", "domain", "consumer_key", "consumer_secret",
			"enabled", "sync_items", "sync_orders", "sync_customers", "sync_payments",
			"settings", "created_at", "updated_at").
		Values(server.ID, server.Name, server.URL, server.Domain, server.ConsumerKey, server.ConsumerSecret,
			server.Enabled, server.SyncItems, server.SyncOrders, server.SyncCustomers, server.SyncPayments,
			server.Settings, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": server.ID,
		}).Error("failed to create server")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create server")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"server_id": server.ID,
	}).Debugf("Created %s", serversTable)
	return nil
}

// GetByID retrieves a server by ID
func (r *ServerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.GetByID")
	defer span.End()

	sb := serverStruct.SelectFrom(serversTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var server models.WooCommerceServer
	err := r.DB().GetContext(ctx, &server, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "server %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": id,
		}).Error("failed to get server by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get server by ID")
	}

	return &server, nil
}

// GetByDomain retrieves a server by its store domain
func (r *ServerRepository) GetByDomain(ctx context.Context, domain string) (*models.WooCommerceServer, error) {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.GetByDomain")
	defer span.End()

	sb := serverStruct.SelectFrom(serversTable)
	sb.Where(sb.Equal("domain", domain))

	query, args := sb.Build()
	var server models.WooCommerceServer
	err := r.DB().GetContext(ctx, &server, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no server for domain %s", domain)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"domain": domain,
		}).Error("failed to get server by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get server by domain")
	}

	return &server, nil
}

// List retrieves all servers
func (r *ServerRepository) List(ctx context.Context) ([]models.WooCommerceServer, error) {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.List")
	defer span.End()

	sb := serverStruct.SelectFrom(serversTable)
	sb.OrderBy("name")

	query, args := sb.Build()
	servers := []models.WooCommerceServer{}
	err := r.DB().SelectContext(ctx, &servers, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list servers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list servers")
	}

	return servers, nil
}

// ListEnabled retrieves all enabled servers
func (r *ServerRepository) ListEnabled(ctx context.Context) ([]models.WooCommerceServer, error) {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.ListEnabled")
	defer span.End()

	sb := serverStruct.SelectFrom(serversTable)
	sb.Where(sb.Equal("enabled", true))
	sb.OrderBy("name")

	query, args := sb.Build()
	servers := []models.WooCommerceServer{}
	err := r.DB().SelectContext(ctx, &servers, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list enabled servers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list enabled servers")
	}

	return servers, nil
}

// Update updates a server row
func (r *ServerRepository) Update(ctx context.Context, server *models.WooCommerceServer) error {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(serversTable)
	ub.Set(
		ub.Assign("name", server.Name),
		ub.Assign("url", server.URL),
		ub.Assign("domain", server.Domain),
		ub.Assign("consumer_key", server.ConsumerKey),
		ub.Assign("consumer_secret", server.ConsumerSecret),
		ub.Assign("enabled", server.Enabled),
		ub.Assign("sync_items", server.SyncItems),
		ub.Assign("sync_orders", server.SyncOrders),
		ub.Assign("sync_customers", server.SyncCustomers),
		ub.Assign("sync_payments", server.SyncPayments),
		ub.Assign("settings", server.Settings),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", server.ID))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": server.ID,
		}).Error("failed to update server")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update server")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "server %s does not exist", server.ID)
	}

	return nil
}

// SetEnabled flips the enabled flag on a server
func (r *ServerRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.SetEnabled")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(serversTable)
	ub.Set(
		ub.Assign("enabled", enabled),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": id,
		}).Error("failed to set server enabled")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set server enabled")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "server %s does not exist", id)
	}

	return nil
}

// Delete removes a server row
func (r *ServerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ServerRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(serversTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": id,
		}).Error("failed to delete server")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete server")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "server %s does not exist", id)
	}

	return nil
}

// GetServer implements the client registry's server source
func (r *ServerRepository) GetServer(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	return r.GetByID(ctx, id)
}

// ListEnabledServers implements the client registry's server source
func (r *ServerRepository) ListEnabledServers(ctx context.Context) ([]*models.WooCommerceServer, error) {
	servers, err := r.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.WooCommerceServer, len(servers))
	for i := range servers {
		out[i] = &servers[i]
	}
	return out, nil
}
