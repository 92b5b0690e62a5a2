package handlers

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wooconduit/conduit/pkg/repositories"
)

// RequestLogHandler exposes the outbound request log for debugging store traffic
type RequestLogHandler struct {
	repo repositories.RequestLogRepo
}

// NewRequestLogHandler creates a new request log handler
func NewRequestLogHandler(repo repositories.RequestLogRepo) *RequestLogHandler {
	return &RequestLogHandler{repo: repo}
}

// RegisterRoutes registers the request log routes
func (h *RequestLogHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/servers/:server_id/requests", h.ListByServer)
}

// ListByServer handles GET /servers/:server_id/requests
func (h *RequestLogHandler) ListByServer(c echo.Context) error {
	ctx := c.Request().Context()

	serverID, err := ParseServerID(c)
	if err != nil {
		return err
	}

	limit := 100
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := h.repo.ListByServer(ctx, serverID, limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, logs)
}
