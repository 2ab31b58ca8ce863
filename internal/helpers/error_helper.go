package helpers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HansOr04/LeteragoBackend/internal/services"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func RespondWithError(c *gin.Context, statusCode int, customMessage string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: customMessage,
	})
}

// RespondWithServiceError translates the typed service errors into the
// wire shape {error, message, ...context}. Anything unrecognized becomes
// a generic 500 so internals never leak.
func RespondWithServiceError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var duplicate *services.DuplicateError
	var notFound *services.NotFoundError
	var permission *services.PermissionError
	var circular *services.CircularReferenceError
	var dependency *services.DependencyError
	var locked *services.LockedAccountError
	var inactive *services.InactiveAccountError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": validation.Message})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate", "message": duplicate.Error(), "field": duplicate.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": notFound.Error()})
	case errors.As(err, &permission):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": permission.Message})
	case errors.As(err, &circular):
		c.JSON(http.StatusBadRequest, gin.H{"error": "circular_reference", "message": circular.Message})
	case errors.As(err, &dependency):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "dependency_conflict",
			"message": dependency.Error(),
			"dependencies": gin.H{
				"children":   dependency.Children,
				"techniques": dependency.Techniques,
			},
		})
	case errors.As(err, &locked):
		c.JSON(http.StatusLocked, gin.H{"error": "account_locked", "message": locked.Error(), "locked_until": locked.Until})
	case errors.As(err, &inactive):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account_inactive", "message": inactive.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "An unexpected error occurred."})
	}
}
