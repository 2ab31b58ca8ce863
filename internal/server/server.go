package server

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/config"
	"github.com/HansOr04/LeteragoBackend/internal/handlers"
	"github.com/HansOr04/LeteragoBackend/internal/middleware"
	"github.com/HansOr04/LeteragoBackend/internal/models"
	"github.com/HansOr04/LeteragoBackend/internal/services"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	r := gin.Default()

	attachments := services.NewAttachmentCoordinator(cfg.UploadPath)
	setupRoutes(r, db, attachments)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, attachments *services.AttachmentCoordinator) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.AttachmentMiddleware(attachments))

	r.Static("/uploads", attachments.BasePath)

	auth := r.Group("/auth")
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
		auth.GET("/profile", middleware.JWTAuthMiddleware(), handlers.GetProfile)
	}

	categories := r.Group("/categories")
	categories.Use(middleware.OptionalAuthMiddleware())
	{
		categories.GET("", handlers.ListCategories)
		categories.GET("/hierarchy", handlers.GetCategoryHierarchy)
		categories.GET("/:id", handlers.GetCategory)
		categories.GET("/:id/path", handlers.GetCategoryPath)
	}

	categoriesWrite := r.Group("/categories")
	categoriesWrite.Use(middleware.JWTAuthMiddleware())
	{
		categoriesWrite.POST("", middleware.RequireMinRole(models.RoleEditor), handlers.CreateCategory)
		categoriesWrite.PUT("/:id", middleware.RequireMinRole(models.RoleEditor), handlers.UpdateCategory)
		categoriesWrite.DELETE("/:id", middleware.RequireMinRole(models.RoleAdmin), handlers.DeleteCategory)
	}

	techniques := r.Group("/techniques")
	techniques.Use(middleware.OptionalAuthMiddleware())
	{
		techniques.GET("", handlers.ListTechniques)
		techniques.GET("/search", handlers.SearchTechniques)
		techniques.GET("/stats", handlers.GetTechniqueStats)
		techniques.GET("/export", handlers.ExportTechniques)
		techniques.GET("/category/:id", handlers.ListTechniquesByCategory)
		techniques.GET("/:id", handlers.GetTechnique)
	}

	techniquesWrite := r.Group("/techniques")
	techniquesWrite.Use(middleware.JWTAuthMiddleware(), middleware.RequireMinRole(models.RoleEditor))
	{
		techniquesWrite.POST("", middleware.UploadMiddleware(attachments), handlers.CreateTechnique)
		techniquesWrite.PUT("/:id", middleware.UploadMiddleware(attachments), handlers.UpdateTechnique)
		techniquesWrite.POST("/:id/duplicate", handlers.DuplicateTechnique)
		techniquesWrite.DELETE("/:id", handlers.DeleteTechnique)
	}
}
