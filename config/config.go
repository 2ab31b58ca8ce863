package config

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	UploadPath string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		UploadPath: os.Getenv("UPLOAD_PATH"),
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "./uploads"
	}
	return cfg, nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&models.Role{}, &models.User{}, &models.Category{}, &models.Technique{})
	if err != nil {
		return nil, err
	}

	SeedRoles(db)

	return db, nil
}

// SeedRoles makes sure the three ordered roles exist with their ranks.
// Ranks on existing rows are corrected so comparisons stay valid after
// upgrades.
func SeedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: models.RoleViewer, Rank: models.RoleRank(models.RoleViewer)},
		{Name: models.RoleEditor, Rank: models.RoleRank(models.RoleEditor)},
		{Name: models.RoleAdmin, Rank: models.RoleRank(models.RoleAdmin)},
	}

	for _, role := range roles {
		var existing models.Role
		result := db.Where("name = ?", role.Name).First(&existing)
		if result.Error != nil {
			db.Create(&role)
		} else if existing.Rank != role.Rank {
			existing.Rank = role.Rank
			db.Save(&existing)
		}
	}
}
