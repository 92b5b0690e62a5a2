package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/httpclient"
	"github.com/wooconduit/conduit/pkg/mapper"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/repositories"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// ServersHandler handles WooCommerce server API requests
type ServersHandler struct {
	repo       repositories.ServerRepo
	registry   *woocommerce.Registry
	httpClient *httpclient.Client
	logger     ectologger.Logger
}

// NewServersHandler creates a new servers handler
func NewServersHandler(
	repo repositories.ServerRepo,
	registry *woocommerce.Registry,
	httpClient *httpclient.Client,
	logger ectologger.Logger,
) *ServersHandler {
	return &ServersHandler{
		repo:       repo,
		registry:   registry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateServerRequest is the request body for connecting a store
type CreateServerRequest struct {
	Name           string                 `json:"name" validate:"required"`
	URL            string                 `json:"url" validate:"required"`
	ConsumerKey    string                 `json:"consumer_key" validate:"required"`
	ConsumerSecret string                 `json:"consumer_secret" validate:"required"`
	SyncItems      bool                   `json:"sync_items"`
	SyncOrders     bool                   `json:"sync_orders"`
	SyncCustomers  bool                   `json:"sync_customers"`
	SyncPayments   bool                   `json:"sync_payments"`
	Settings       *models.ServerSettings `json:"settings,omitempty"`
}

// UpdateServerRequest is the request body for updating a store
type UpdateServerRequest struct {
	Name           *string                `json:"name,omitempty"`
	URL            *string                `json:"url,omitempty"`
	ConsumerKey    *string                `json:"consumer_key,omitempty"`
	ConsumerSecret *string                `json:"consumer_secret,omitempty"`
	SyncItems      *bool                  `json:"sync_items,omitempty"`
	SyncOrders     *bool                  `json:"sync_orders,omitempty"`
	SyncCustomers  *bool                  `json:"sync_customers,omitempty"`
	SyncPayments   *bool                  `json:"sync_payments,omitempty"`
	Settings       *models.ServerSettings `json:"settings,omitempty"`
}

// RegisterRoutes registers the server routes
func (h *ServersHandler) RegisterRoutes(g *echo.Group) {
	servers := g.Group("/servers")
	servers.POST("", h.Create)
	servers.GET("", h.List)
	servers.GET("/:id", h.Get)
	servers.PUT("/:id", h.Update)
	servers.DELETE("/:id", h.Delete)
	servers.POST("/:id/enable", h.Enable)
	servers.POST("/:id/disable", h.Disable)
	servers.POST("/:id/check", h.CheckCredentials)
}

// Create handles POST /servers
func (h *ServersHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateServerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name == "" {
		return BadRequest("name is required")
	}
	if req.URL == "" {
		return BadRequest("url is required")
	}
	if req.ConsumerKey == "" || req.ConsumerSecret == "" {
		return BadRequest("consumer_key and consumer_secret are required")
	}

	server := &models.WooCommerceServer{
		ID:             uuid.New(),
		Name:           req.Name,
		URL:            req.URL,
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
		Enabled:        true,
		SyncItems:      req.SyncItems,
		SyncOrders:     req.SyncOrders,
		SyncCustomers:  req.SyncCustomers,
		SyncPayments:   req.SyncPayments,
	}
	if req.Settings != nil {
		if err := mapper.ValidateRules(req.Settings.ItemFieldMap); err != nil {
			return BadRequest(err.Error())
		}
		server.Settings = database.JSONB[models.ServerSettings]{Data: *req.Settings}
	}

	if err := server.NormalizeURL(); err != nil {
		return BadRequest(err.Error())
	}

	// Reject the store before persisting it if the credentials don't work
	client, err := woocommerce.NewClient(server, h.httpClient, h.logger)
	if err != nil {
		return BadRequest(err.Error())
	}
	if err := client.CheckCredentials(ctx); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Credential check failed for new server")
		return BadRequest("credential check failed: " + err.Error())
	}

	if err := h.repo.Create(ctx, server); err != nil {
		return err
	}

	return CreatedResponse(c, server)
}

// List handles GET /servers
func (h *ServersHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	servers, err := h.repo.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, servers)
}

// Get handles GET /servers/:id
func (h *ServersHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	server, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, server)
}

// Update handles PUT /servers/:id
func (h *ServersHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var req UpdateServerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.URL != nil {
		existing.URL = *req.URL
		if err := existing.NormalizeURL(); err != nil {
			return BadRequest(err.Error())
		}
	}
	if req.ConsumerKey != nil {
		existing.ConsumerKey = *req.ConsumerKey
	}
	if req.ConsumerSecret != nil {
		existing.ConsumerSecret = *req.ConsumerSecret
	}
	if req.SyncItems != nil {
		existing.SyncItems = *req.SyncItems
	}
	if req.SyncOrders != nil {
		existing.SyncOrders = *req.SyncOrders
	}
	if req.SyncCustomers != nil {
		existing.SyncCustomers = *req.SyncCustomers
	}
	if req.SyncPayments != nil {
		existing.SyncPayments = *req.SyncPayments
	}
	if req.Settings != nil {
		if err := mapper.ValidateRules(req.Settings.ItemFieldMap); err != nil {
			return BadRequest(err.Error())
		}
		existing.Settings = database.JSONB[models.ServerSettings]{Data: *req.Settings}
	}

	if err := h.repo.Update(ctx, existing); err != nil {
		return err
	}

	// Cached clients carry the old URL and credentials
	h.registry.Invalidate(id)

	return SuccessResponse(c, existing)
}

// Delete handles DELETE /servers/:id
func (h *ServersHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return err
	}

	h.registry.Invalidate(id)

	return NoContentResponse(c)
}

// Enable handles POST /servers/:id/enable
func (h *ServersHandler) Enable(c echo.Context) error {
	return h.setEnabled(c, true)
}

// Disable handles POST /servers/:id/disable
func (h *ServersHandler) Disable(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *ServersHandler) setEnabled(c echo.Context, enabled bool) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	h.registry.Invalidate(id)

	server, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, server)
}

// CheckCredentials handles POST /servers/:id/check
func (h *ServersHandler) CheckCredentials(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	client, err := h.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := client.CheckCredentials(ctx); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Credential check failed")
		return SuccessResponse(c, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
	}

	return SuccessResponse(c, map[string]any{"ok": true})
}
