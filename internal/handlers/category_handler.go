package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/HansOr04/LeteragoBackend/internal/helpers"
	"github.com/HansOr04/LeteragoBackend/internal/services"
)

type CreateCategoryRequest struct {
	Name             string     `json:"name" binding:"required,max=100"`
	Description      string     `json:"description" binding:"required,max=500"`
	Color            string     `json:"color"`
	Icon             string     `json:"icon"`
	ParentCategoryID *uuid.UUID `json:"parentCategory"`
	Order            int        `json:"order"`
	Tactics          []string   `json:"tactics"`
	Platforms        []string   `json:"platforms"`
	KillChainPhases  []string   `json:"killChainPhases"`
}

type UpdateCategoryRequest struct {
	Name             *string    `json:"name"`
	Description      *string    `json:"description"`
	Color            *string    `json:"color"`
	Icon             *string    `json:"icon"`
	ParentCategoryID *uuid.UUID `json:"parentCategory"`
	ClearParent      bool       `json:"clearParent"`
	Order            *int       `json:"order"`
	IsActive         *bool      `json:"isActive"`
	Tactics          []string   `json:"tactics"`
	Platforms        []string   `json:"platforms"`
	KillChainPhases  []string   `json:"killChainPhases"`
}

func CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, ok := getDB(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	category, err := services.NewCategoryService(db).Create(services.CreateCategoryInput{
		Name:             req.Name,
		Description:      req.Description,
		Color:            req.Color,
		Icon:             req.Icon,
		ParentCategoryID: req.ParentCategoryID,
		Order:            req.Order,
		Tactics:          req.Tactics,
		Platforms:        req.Platforms,
		KillChainPhases:  req.KillChainPhases,
	}, actor)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Category created successfully.",
		"category": category,
	})
}

func ListCategories(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	page, limit, ok := pagination(c)
	if !ok {
		return
	}

	var parentID *uuid.UUID
	if raw := c.Query("parentCategory"); raw != "" {
		id, err := helpers.ParseUUID(raw)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid parent category id.")
			return
		}
		parentID = &id
	}
	includeInactive := c.Query("includeInactive") == "true" && optionalActor(c).IsAdmin()

	result, err := services.NewCategoryService(db).List(page, limit, c.Query("search"), parentID, includeInactive)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories":  result.Categories,
		"total":       result.Total,
		"page":        page,
		"limit":       limit,
		"total_pages": (result.Total + int64(limit) - 1) / int64(limit),
	})
}

func GetCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db, ok := getDB(c)
	if !ok {
		return
	}

	category, err := services.NewCategoryService(db).GetByID(id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func GetCategoryHierarchy(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	roots, err := services.NewCategoryService(db).GetHierarchy()
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hierarchy": roots})
}

func GetCategoryPath(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db, ok := getDB(c)
	if !ok {
		return
	}

	path, err := services.NewCategoryService(db).GetFullPath(id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func UpdateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, ok := getDB(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	category, err := services.NewCategoryService(db).Update(id, services.UpdateCategoryInput{
		Name:             req.Name,
		Description:      req.Description,
		Color:            req.Color,
		Icon:             req.Icon,
		ParentCategoryID: req.ParentCategoryID,
		ClearParent:      req.ClearParent,
		Order:            req.Order,
		IsActive:         req.IsActive,
		Tactics:          req.Tactics,
		Platforms:        req.Platforms,
		KillChainPhases:  req.KillChainPhases,
	}, actor)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Category updated successfully.",
		"category": category,
	})
}

func DeleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db, ok := getDB(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	if err := services.NewCategoryService(db).Delete(id, actor); err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully."})
}
