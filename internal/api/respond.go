package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Error writes a structured error response. Untyped errors are reported as
// internal without leaking the cause.
func Error(c *gin.Context, err error) {
	var mse *types.MediSecureError
	if e, ok := err.(*types.MediSecureError); ok {
		mse = e
	} else {
		mse = types.NewInternalError(types.ErrCodeInternalError, "Internal server error", err)
	}

	body := gin.H{
		"error":   mse.Code,
		"message": mse.Message,
	}
	if len(mse.Details) > 0 {
		body["details"] = mse.Details
	}

	c.AbortWithStatusJSON(mse.Kind.HTTPStatus(), body)
}

// ErrorWithBody writes a structured error response with extra payload fields
// merged in. Used where a failed call still produced durable state the caller
// needs, such as a record persisted before the ledger rejected it.
func ErrorWithBody(c *gin.Context, err error, extra gin.H) {
	var mse *types.MediSecureError
	if e, ok := err.(*types.MediSecureError); ok {
		mse = e
	} else {
		mse = types.NewInternalError(types.ErrCodeInternalError, "Internal server error", err)
	}

	body := gin.H{
		"error":   mse.Code,
		"message": mse.Message,
	}
	for k, v := range extra {
		body[k] = v
	}

	c.AbortWithStatusJSON(mse.Kind.HTTPStatus(), body)
}

// NotFound is the fallback handler for unmatched routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   types.ErrCodeNotFound,
		"message": "Route not found",
	})
}
