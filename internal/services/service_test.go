package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(&models.Role{}, &models.User{}, &models.Category{}, &models.Technique{})
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	seedTestRoles(t, db)
	return db
}

func seedTestRoles(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, name := range []string{models.RoleViewer, models.RoleEditor, models.RoleAdmin} {
		role := models.Role{Name: name, Rank: models.RoleRank(name)}
		if err := db.Create(&role).Error; err != nil {
			t.Fatalf("failed to seed role %s: %v", name, err)
		}
	}
}

func newTestUser(t *testing.T, db *gorm.DB, roleName string) models.User {
	t.Helper()

	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		t.Fatalf("role %s not seeded: %v", roleName, err)
	}

	suffix := uuid.New().String()[:8]
	user := models.User{
		Username: roleName + "-" + suffix,
		Email:    roleName + "-" + suffix + "@example.com",
		Password: "not-a-real-hash",
		IsActive: true,
		RoleID:   role.ID,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	user.Role = role
	return user
}

func asActor(user models.User) Actor {
	return Actor{ID: user.ID, Role: user.Role.Name}
}

func stringPtr(s string) *string { return &s }
