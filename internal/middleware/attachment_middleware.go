package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/HansOr04/LeteragoBackend/internal/services"
)

func AttachmentMiddleware(coordinator *services.AttachmentCoordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("attachments", coordinator)
		c.Next()
	}
}
