// internal/interfaces/http/handlers/errors.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/bookstore-storefront/internal/app"
	"github.com/your-org/bookstore-storefront/internal/pkg/apiclient"
)

// respondError maps domain and backend errors to a JSON error response
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var serviceErr *apiclient.ServiceError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized), errors.Is(err, app.ErrLoginRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Login required",
		})
	case errors.Is(err, app.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Cart item not found",
		})
	case errors.As(err, &serviceErr):
		status := http.StatusBadGateway
		if serviceErr.Status == http.StatusNotFound || serviceErr.Status == http.StatusBadRequest || serviceErr.Status == http.StatusConflict {
			status = serviceErr.Status
		}
		c.JSON(status, gin.H{
			"error":   "Backend request failed",
			"details": serviceErr.Body,
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "Request timeout",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
