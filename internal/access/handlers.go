package access

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/internal/api"
	"github.com/Olowonjaye/MediSecure-Chain/internal/auth"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Handler exposes the grant and revoke endpoints.
type Handler struct {
	service *CommandService
}

// NewHandler creates an access handler.
func NewHandler(service *CommandService) *Handler {
	return &Handler{service: service}
}

type accessRequest struct {
	ResourceID   string `json:"resource_id" binding:"required"`
	Grantee      string `json:"grantee" binding:"required"`
	EncryptedKey string `json:"encrypted_key"`
}

func (h *Handler) execute(c *gin.Context, kind types.GrantKind) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "resource_id and grantee are required", nil))
		return
	}

	txRef, err := h.service.Execute(c.Request.Context(), &types.AccessCommand{
		ActorID:      claims.UserID,
		ActorRole:    claims.Role,
		ResourceID:   req.ResourceID,
		Grantee:      req.Grantee,
		Kind:         kind,
		EncryptedKey: req.EncryptedKey,
	})
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tx_ref": txRef,
		"kind":   kind,
	})
}

// Grant handles POST /access/grant.
func (h *Handler) Grant(c *gin.Context) {
	h.execute(c, types.GrantKindGrant)
}

// Revoke handles POST /access/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	h.execute(c, types.GrantKindRevoke)
}
