package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/internal/api"
	"github.com/Olowonjaye/MediSecure-Chain/internal/auth"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Handler exposes the audit trail endpoint.
type Handler struct {
	service *Service
	mirror  *Mirror
}

// NewHandler creates an audit handler. mirror may be nil.
func NewHandler(service *Service, mirror *Mirror) *Handler {
	return &Handler{service: service, mirror: mirror}
}

// List handles GET /audit with optional actor, type, resource_id, since
// (RFC 3339) and limit query parameters.
func (h *Handler) List(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	filter := types.AuditFilter{
		Actor:      c.Query("actor"),
		Type:       c.Query("type"),
		ResourceID: c.Query("resource_id"),
	}

	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "since must be RFC 3339", nil))
			return
		}
		filter.Since = ts
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "limit must be a non-negative integer", nil))
			return
		}
		filter.Limit = n
	}

	entries, err := h.service.List(c.Request.Context(), claims.Role, filter)
	if err != nil {
		api.Error(c, err)
		return
	}

	body := gin.H{"entries": entries, "count": len(entries)}
	if h.mirror != nil {
		body["mirror_state"] = h.mirror.State()
	}

	c.JSON(http.StatusOK, body)
}
