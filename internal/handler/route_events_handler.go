package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/pkg/response"
)

// RouteEventsFinder runs the route events pipeline
type RouteEventsFinder interface {
	FindEvents(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error)
}

// RouteEventsHandler handles HTTP requests for events along a route
type RouteEventsHandler struct {
	finder RouteEventsFinder
}

// NewRouteEventsHandler creates a new route events handler
func NewRouteEventsHandler(finder RouteEventsFinder) *RouteEventsHandler {
	return &RouteEventsHandler{finder: finder}
}

// CreateMap handles POST /api/v1/create_map
func (h *RouteEventsHandler) CreateMap(c *gin.Context) {
	var req models.RouteEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	// every pipeline failure is reported as a bad request with its cause
	result, err := h.finder.FindEvents(c.Request.Context(), &req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, result)
}
