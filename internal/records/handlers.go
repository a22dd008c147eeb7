package records

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/internal/api"
	"github.com/Olowonjaye/MediSecure-Chain/internal/auth"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Handler exposes the record endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a record handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRecordRequest struct {
	Payload        []byte            `json:"payload" binding:"required"`
	ContentAddress string            `json:"content_address"`
	Metadata       map[string]string `json:"metadata"`
}

// Create handles POST /records. The authenticated caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "payload is required", nil))
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), &types.IngestRequest{
		OwnerID:        claims.UserID,
		Payload:        req.Payload,
		ContentAddress: req.ContentAddress,
		Metadata:       req.Metadata,
	}, claims.Role)
	if err != nil {
		api.Error(c, err)
		return
	}

	if result.Pending {
		// The row is durable; the ledger anchor is not. Surface the gateway
		// failure but hand the caller the pending resource.
		api.ErrorWithBody(c,
			types.NewChainError(types.ErrCodeChainCallFailed, "Record stored but not yet anchored on the ledger", nil),
			gin.H{"resource": result.Resource, "pending": true})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"resource": result.Resource,
		"tx_ref":   result.TxRef,
		"pending":  false,
	})
}

// Get handles GET /records/:id.
func (h *Handler) Get(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	resource, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resource": resource})
}
