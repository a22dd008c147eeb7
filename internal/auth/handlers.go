package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/internal/api"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Handler exposes the auth and user management endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates an auth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req types.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "email, password and role are required", nil))
		return
	}

	resp, err := h.service.Signup(c.Request.Context(), &req)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "email and password are required", nil))
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Verify handles GET /auth/verify. Reaching it through the middleware means
// the token was valid.
func (h *Handler) Verify(c *gin.Context) {
	claims, ok := CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": claims})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword handles POST /auth/forgot-password. The reset token is
// returned in the response body; mail delivery is out of scope.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "email is required", nil))
		return
	}

	token, err := h.service.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset_token": token})
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "token and password are required", nil))
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": true})
}

type passportVerifyRequest struct {
	Address string `json:"address" binding:"required"`
	Proof   string `json:"proof"`
}

// PassportVerify handles POST /passport/verify.
func (h *Handler) PassportVerify(c *gin.Context) {
	claims, ok := CurrentUser(c)
	if !ok {
		api.Error(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	var req passportVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "address is required", nil))
		return
	}

	verified, err := h.service.VerifyPassport(c.Request.Context(), claims.UserID, req.Address, req.Proof)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// ListUsers handles GET /users (admin only).
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type updateRoleRequest struct {
	Role types.Role `json:"role" binding:"required"`
}

// UpdateRole handles PATCH /users/:id/role (admin only).
func (h *Handler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, types.NewValidationError(types.ErrCodeInvalidInput, "role is required", nil))
		return
	}

	user, err := h.service.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
