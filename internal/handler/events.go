package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	svc *service.EventService
}

func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// List GET /v1/events?type=buyback.executed&limit=50&since=2024-01-01T00:00:00Z
func (h *EventHandler) List(c *gin.Context) {
	filter := model.EventFilter{
		Type:  model.EventType(c.Query("type")),
		Limit: 100,
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("since"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, err.Error()))
			return
		}
		filter.Since = &t
	}

	events, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.Internal("list events", err))
		return
	}
	c.JSON(http.StatusOK, events)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
