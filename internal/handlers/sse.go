package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/utils"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SSEHandler streams role chain changes to connected clients
type SSEHandler struct {
	hub *services.SSEHub
}

func NewSSEHandler(hub *services.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// StreamChainEvents handles SSE connections. EventSource cannot send headers,
// so the token may also arrive as a query parameter.
func (h *SSEHandler) StreamChainEvents(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		response.Error(c, response.NewUnauthorized("token required").WithKey("auth.missing_header"))
		return
	}

	if _, err := utils.ParseToken(token); err != nil {
		response.Error(c, response.NewUnauthorized("invalid or expired token").WithKey("auth.invalid_token"))
		return
	}

	var projectFilter uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.Error(c, response.NewBadRequest("invalid project_id").WithKey("common.invalid_param"))
			return
		}
		projectFilter = uint(id)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()

	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().
		Str("client_id", clientID).
		Uint("project_id", projectFilter).
		Int("total", h.hub.ClientCount()).
		Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if projectFilter != 0 && event.ProjectID != projectFilter {
				return true
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Action, data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
