package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/queue"
	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/repositories"
	syncengine "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// SyncHandler exposes manual sync triggers and sync state inspection
type SyncHandler struct {
	engine   *syncengine.Engine
	notifier *syncengine.Notifier
	states   repositories.SyncStateRepo
	servers  repositories.ServerRepo
	streams  *redis.Streams
	jobQueue string
	logger   ectologger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(
	engine *syncengine.Engine,
	notifier *syncengine.Notifier,
	states repositories.SyncStateRepo,
	servers repositories.ServerRepo,
	streams *redis.Streams,
	jobQueue string,
	logger ectologger.Logger,
) *SyncHandler {
	return &SyncHandler{
		engine:   engine,
		notifier: notifier,
		states:   states,
		servers:  servers,
		streams:  streams,
		jobQueue: jobQueue,
		logger:   logger,
	}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	sync := g.Group("/sync")
	sync.POST("/items/:identity", h.SyncItem)
	sync.POST("/items/:identity/enqueue", h.EnqueueItem)
	sync.POST("/orders/:identity", h.SyncOrder)
	sync.POST("/orders/:identity/enqueue", h.EnqueueOrder)
	sync.POST("/servers/:server_id/poll", h.EnqueuePoll)
	sync.GET("/servers/:server_id/state", h.State)
	sync.POST("/changed/items/:id", h.ItemChanged)
	sync.POST("/changed/orders/:id", h.OrderChanged)
}

func forceParam(c echo.Context) bool {
	return c.QueryParam("force") == "true"
}

func identityParam(c echo.Context) (string, error) {
	identity := c.Param("identity")
	if _, _, err := woocommerce.ParseIdentity(identity); err != nil {
		return "", BadRequest(err.Error())
	}
	return identity, nil
}

// SyncItem runs an item sync inline and returns the outcome
// POST /api/v1/sync/items/:identity
func (h *SyncHandler) SyncItem(c echo.Context) error {
	ctx := c.Request().Context()

	identity, err := identityParam(c)
	if err != nil {
		return err
	}

	outcome, err := h.engine.SyncItemByIdentity(ctx, identity, forceParam(c))
	if err != nil {
		if woocommerce.IsSyncDisabled(err) {
			return Conflict(err.Error())
		}
		return err
	}

	return SuccessResponse(c, outcome)
}

// SyncOrder runs an order sync inline and returns the outcome
// POST /api/v1/sync/orders/:identity
func (h *SyncHandler) SyncOrder(c echo.Context) error {
	ctx := c.Request().Context()

	identity, err := identityParam(c)
	if err != nil {
		return err
	}

	outcome, err := h.engine.SyncOrderByIdentity(ctx, identity, forceParam(c))
	if err != nil {
		if woocommerce.IsSyncDisabled(err) {
			return Conflict(err.Error())
		}
		return err
	}

	return SuccessResponse(c, outcome)
}

// EnqueueItem publishes an item sync job instead of running it inline
// POST /api/v1/sync/items/:identity/enqueue
func (h *SyncHandler) EnqueueItem(c echo.Context) error {
	return h.enqueueEntity(c, syncengine.JobTypeItemSync)
}

// EnqueueOrder publishes an order sync job instead of running it inline
// POST /api/v1/sync/orders/:identity/enqueue
func (h *SyncHandler) EnqueueOrder(c echo.Context) error {
	return h.enqueueEntity(c, syncengine.JobTypeOrderSync)
}

func (h *SyncHandler) enqueueEntity(c echo.Context, jobType string) error {
	ctx := c.Request().Context()

	identity, err := identityParam(c)
	if err != nil {
		return err
	}

	domain, _, err := woocommerce.ParseIdentity(identity)
	if err != nil {
		return BadRequest(err.Error())
	}

	server, err := h.servers.GetByDomain(ctx, domain)
	if err != nil {
		return err
	}

	msgID, err := queue.PublishEntitySync(ctx, h.streams, h.jobQueue, server.ID, jobType, identity, forceParam(c))
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue sync job")
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":     "enqueued",
		"message_id": msgID,
		"identity":   identity,
	})
}

// EnqueuePoll publishes a poll job for one resource of a server
// POST /api/v1/sync/servers/:server_id/poll?resource=products|orders
func (h *SyncHandler) EnqueuePoll(c echo.Context) error {
	ctx := c.Request().Context()

	serverID, err := ParseServerID(c)
	if err != nil {
		return err
	}

	// Reject unknown servers up front rather than dead-lettering the job
	if _, err := h.servers.GetByID(ctx, serverID); err != nil {
		return err
	}

	var jobType string
	switch c.QueryParam("resource") {
	case string(models.SyncResourceProducts):
		jobType = syncengine.JobTypeItemsPoll
	case string(models.SyncResourceOrders):
		jobType = syncengine.JobTypeOrdersPoll
	default:
		return BadRequest("resource must be products or orders")
	}

	msgID, err := queue.PublishPoll(ctx, h.streams, h.jobQueue, serverID, jobType)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue poll job")
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":     "enqueued",
		"message_id": msgID,
	})
}

// State returns the poll watermark for one resource of a server
// GET /api/v1/sync/servers/:server_id/state?resource=products|orders
func (h *SyncHandler) State(c echo.Context) error {
	ctx := c.Request().Context()

	serverID, err := ParseServerID(c)
	if err != nil {
		return err
	}

	resource := models.SyncResource(c.QueryParam("resource"))
	if resource != models.SyncResourceProducts && resource != models.SyncResourceOrders {
		return BadRequest("resource must be products or orders")
	}

	state, err := h.states.Get(ctx, serverID, resource)
	if err != nil {
		return err
	}
	if state == nil {
		return repositories.NotFound("no sync state for server %s resource %s", serverID, resource)
	}

	return SuccessResponse(c, state)
}

// ItemChanged marks an item dirty after a local edit
// POST /api/v1/sync/changed/items/:id
func (h *SyncHandler) ItemChanged(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifier.ItemChanged(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// OrderChanged marks an order dirty after a local edit
// POST /api/v1/sync/changed/orders/:id
func (h *SyncHandler) OrderChanged(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifier.OrderChanged(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
}
