package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/internal/helpers"
	"github.com/HansOr04/LeteragoBackend/internal/services"
)

func getDB(c *gin.Context) (*gorm.DB, bool) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return nil, false
	}
	return db.(*gorm.DB), true
}

// currentActor resolves the caller set by the auth middleware. Write
// handlers run behind JWTAuthMiddleware, so a missing identity there is
// a server error, not a client one.
func currentActor(c *gin.Context) (services.Actor, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return services.Actor{}, false
	}
	id, err := helpers.ParseUUID(userID.(string))
	if err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid user ID in token.")
		return services.Actor{}, false
	}
	role, _ := c.Get("role")
	roleName, _ := role.(string)
	return services.Actor{ID: id, Role: roleName}, true
}

// optionalActor is like currentActor but never writes a response; reads
// with optional auth use it to decide visibility.
func optionalActor(c *gin.Context) services.Actor {
	userID, exists := c.Get("user_id")
	if !exists {
		return services.Actor{}
	}
	id, err := helpers.ParseUUID(userID.(string))
	if err != nil {
		return services.Actor{}
	}
	role, _ := c.Get("role")
	roleName, _ := role.(string)
	return services.Actor{ID: id, Role: roleName}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := helpers.ParseUUID(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid id.")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int, bool) {
	page, err := helpers.StringToInt(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return 0, 0, false
	}
	limit, err := helpers.StringToInt(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return 0, 0, false
	}
	return page, limit, true
}
