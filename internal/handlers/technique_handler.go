package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/HansOr04/LeteragoBackend/internal/helpers"
	"github.com/HansOr04/LeteragoBackend/internal/middleware"
	"github.com/HansOr04/LeteragoBackend/internal/models"
	"github.com/HansOr04/LeteragoBackend/internal/services"
)

type TechniqueRequest struct {
	Name            string                  `json:"name"`
	ReferenceCode   *string                 `json:"referenceCode"`
	Description     string                  `json:"description"`
	CategoryID      *uuid.UUID              `json:"category"`
	Tags            []string                `json:"tags"`
	Platforms       []string                `json:"platforms"`
	DataSources     []string                `json:"dataSources"`
	Tactics         []string                `json:"tactics"`
	KillChainPhases []string                `json:"killChainPhases"`
	Mitigation      *models.MitigationBlock `json:"mitigation"`
	Detection       *models.DetectionBlock  `json:"detection"`
	References      []models.Reference      `json:"references"`
	Status          string                  `json:"status"`
}

type TechniquePatchRequest struct {
	Name            *string                 `json:"name"`
	ReferenceCode   *string                 `json:"referenceCode"`
	Description     *string                 `json:"description"`
	CategoryID      *uuid.UUID              `json:"category"`
	ClearCategory   bool                    `json:"clearCategory"`
	Tags            []string                `json:"tags"`
	Platforms       []string                `json:"platforms"`
	DataSources     []string                `json:"dataSources"`
	Tactics         []string                `json:"tactics"`
	KillChainPhases []string                `json:"killChainPhases"`
	Mitigation      *models.MitigationBlock `json:"mitigation"`
	Detection       *models.DetectionBlock  `json:"detection"`
	References      []models.Reference      `json:"references"`
	Status          *string                 `json:"status"`
	IsActive        *bool                   `json:"isActive"`
}

// bindTechniqueRequest accepts either a JSON body or the multipart form
// the upload middleware already parsed. Form fields carry lists as
// comma-separated values and the structured blocks as embedded JSON.
func bindTechniqueRequest(c *gin.Context, req *TechniqueRequest) error {
	if c.ContentType() != "multipart/form-data" {
		return c.ShouldBindJSON(req)
	}

	req.Name = c.PostForm("name")
	req.Description = c.PostForm("description")
	req.Status = c.PostForm("status")
	if code := c.PostForm("referenceCode"); code != "" {
		req.ReferenceCode = &code
	}
	if raw := c.PostForm("category"); raw != "" {
		id, err := helpers.ParseUUID(raw)
		if err != nil {
			return err
		}
		req.CategoryID = &id
	}
	req.Tags = helpers.ParseCSV(c.PostForm("tags"))
	req.Platforms = helpers.ParseCSV(c.PostForm("platforms"))
	req.DataSources = helpers.ParseCSV(c.PostForm("dataSources"))
	req.Tactics = helpers.ParseCSV(c.PostForm("tactics"))
	req.KillChainPhases = helpers.ParseCSV(c.PostForm("killChainPhases"))
	if raw := c.PostForm("mitigation"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mitigation); err != nil {
			return err
		}
	}
	if raw := c.PostForm("detection"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Detection); err != nil {
			return err
		}
	}
	if raw := c.PostForm("references"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.References); err != nil {
			return err
		}
	}
	return nil
}

func bindTechniquePatch(c *gin.Context, req *TechniquePatchRequest) error {
	if c.ContentType() != "multipart/form-data" {
		return c.ShouldBindJSON(req)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return err
	}
	has := func(key string) bool {
		_, ok := form.Value[key]
		return ok
	}
	strField := func(key string, target **string) {
		if has(key) {
			value := c.PostForm(key)
			*target = &value
		}
	}

	strField("name", &req.Name)
	strField("referenceCode", &req.ReferenceCode)
	strField("description", &req.Description)
	strField("status", &req.Status)
	if has("category") {
		raw := c.PostForm("category")
		if raw == "" {
			req.ClearCategory = true
		} else {
			id, err := helpers.ParseUUID(raw)
			if err != nil {
				return err
			}
			req.CategoryID = &id
		}
	}
	if has("isActive") {
		active := c.PostForm("isActive") == "true"
		req.IsActive = &active
	}
	if has("tags") {
		req.Tags = helpers.ParseCSV(c.PostForm("tags"))
	}
	if has("platforms") {
		req.Platforms = helpers.ParseCSV(c.PostForm("platforms"))
	}
	if has("dataSources") {
		req.DataSources = helpers.ParseCSV(c.PostForm("dataSources"))
	}
	if has("tactics") {
		req.Tactics = helpers.ParseCSV(c.PostForm("tactics"))
	}
	if has("killChainPhases") {
		req.KillChainPhases = helpers.ParseCSV(c.PostForm("killChainPhases"))
	}
	if raw := c.PostForm("mitigation"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mitigation); err != nil {
			return err
		}
	}
	if raw := c.PostForm("detection"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Detection); err != nil {
			return err
		}
	}
	if raw := c.PostForm("references"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.References); err != nil {
			return err
		}
	}
	return nil
}

func techniqueFiltersFromQuery(c *gin.Context) (services.TechniqueFilters, error) {
	filters := services.TechniqueFilters{
		Tags:      helpers.ParseCSV(c.Query("tags")),
		Platforms: helpers.ParseCSV(c.Query("platforms")),
		Tactics:   helpers.ParseCSV(c.Query("tactics")),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("category"); raw != "" {
		id, err := helpers.ParseUUID(raw)
		if err != nil {
			return filters, err
		}
		filters.CategoryID = &id
	}
	filters.IncludeInactive = c.Query("includeInactive") == "true" && optionalActor(c).IsAdmin()
	return filters, nil
}

func ListTechniques(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	page, limit, ok := pagination(c)
	if !ok {
		return
	}

	filters, err := techniqueFiltersFromQuery(c)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid category id.")
		return
	}
	filters.Page = page
	filters.Limit = limit

	result, err := services.NewTechniqueService(db, nil).List(filters)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func GetTechnique(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db, ok := getDB(c)
	if !ok {
		return
	}

	technique, err := services.NewTechniqueService(db, nil).GetByID(id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, technique)
}

func CreateTechnique(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req TechniqueRequest
	if err := bindTechniqueRequest(c, &req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	service := services.NewTechniqueService(db, attachmentCoordinator(c))
	technique, err := service.Create(services.TechniqueInput{
		Name:            req.Name,
		ReferenceCode:   req.ReferenceCode,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		Tags:            req.Tags,
		Platforms:       req.Platforms,
		DataSources:     req.DataSources,
		Tactics:         req.Tactics,
		KillChainPhases: req.KillChainPhases,
		Mitigation:      req.Mitigation,
		Detection:       req.Detection,
		References:      req.References,
		Status:          req.Status,
	}, middleware.GetUploads(c), actor)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Technique created successfully.",
		"technique": technique,
	})
}

func UpdateTechnique(c *gin.Context) {
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

	var req TechniquePatchRequest
	if err := bindTechniquePatch(c, &req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	service := services.NewTechniqueService(db, attachmentCoordinator(c))
	technique, err := service.Update(id, services.TechniquePatch{
		Name:            req.Name,
		ReferenceCode:   req.ReferenceCode,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		ClearCategory:   req.ClearCategory,
		Tags:            req.Tags,
		Platforms:       req.Platforms,
		DataSources:     req.DataSources,
		Tactics:         req.Tactics,
		KillChainPhases: req.KillChainPhases,
		Mitigation:      req.Mitigation,
		Detection:       req.Detection,
		References:      req.References,
		Status:          req.Status,
		IsActive:        req.IsActive,
	}, middleware.GetUploads(c), actor)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Technique updated successfully.",
		"technique": technique,
	})
}

func DeleteTechnique(c *gin.Context) {
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

	if err := services.NewTechniqueService(db, attachmentCoordinator(c)).Delete(id, actor); err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Technique deleted successfully."})
}

func DuplicateTechnique(c *gin.Context) {
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

	technique, err := services.NewTechniqueService(db, nil).Duplicate(id, actor)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Technique duplicated successfully.",
		"technique": technique,
	})
}

func SearchTechniques(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		query = c.Query("search")
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
			return
		}
		limit = parsed
	}

	result, err := services.NewTechniqueService(db, nil).List(services.TechniqueFilters{
		Search: query,
		Page:   1,
		Limit:  limit,
	})
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"techniques": result.Techniques,
		"total":      result.Total,
	})
}

func GetTechniqueStats(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	stats, err := services.NewTechniqueService(db, nil).Stats()
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func ExportTechniques(c *gin.Context) {
	db, ok := getDB(c)
	if !ok {
		return
	}

	doc, err := services.NewTechniqueService(db, nil).Export(c.DefaultQuery("format", "json"))
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func ListTechniquesByCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db, ok := getDB(c)
	if !ok {
		return
	}
	page, limit, ok := pagination(c)
	if !ok {
		return
	}

	result, err := services.NewTechniqueService(db, nil).ListByCategory(id, page, limit)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func attachmentCoordinator(c *gin.Context) *services.AttachmentCoordinator {
	value, exists := c.Get("attachments")
	if !exists {
		return nil
	}
	coordinator, _ := value.(*services.AttachmentCoordinator)
	return coordinator
}
