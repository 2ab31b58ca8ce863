package services

import (
	"errors"
	"testing"
	"time"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

func registerTestUser(t *testing.T, service *AuthService, username string) *models.User {
	t.Helper()
	user, err := service.Register(RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return user
}

func TestRegisterDefaultsToViewer(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)

	user := registerTestUser(t, service, "alice")
	if user.Role.Name != models.RoleViewer {
		t.Errorf("default role = %q, want viewer", user.Role.Name)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)

	registerTestUser(t, service, "bob")

	var duplicate *DuplicateError
	_, err := service.Register(RegisterInput{Username: "bob", Email: "other@example.com", Password: "x"})
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateError on username, got %v", err)
	}
	_, err = service.Register(RegisterInput{Username: "bobby", Email: "bob@example.com", Password: "x"})
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateError on email, got %v", err)
	}
}

func TestLoginByEmailOrUsername(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)
	registerTestUser(t, service, "carol")

	if _, err := service.Login("carol", "correct-horse"); err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
	if _, err := service.Login("carol@example.com", "correct-horse"); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)
	registerTestUser(t, service, "dave")

	var locked *LockedAccountError
	for i := 0; i < maxFailedLogins; i++ {
		_, err := service.Login("dave", "wrong-password")
		if err == nil {
			t.Fatal("login succeeded with wrong password")
		}
		if i < maxFailedLogins-1 && errors.As(err, &locked) {
			t.Fatalf("locked too early on attempt %d", i+1)
		}
	}

	// The fifth failure locks the account; even the right password is
	// rejected until the lock expires.
	_, err := service.Login("dave", "correct-horse")
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedAccountError, got %v", err)
	}
	if !locked.Until.After(time.Now()) {
		t.Error("lock expiry is not in the future")
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)
	registerTestUser(t, service, "erin")

	for i := 0; i < maxFailedLogins-1; i++ {
		service.Login("erin", "wrong-password")
	}
	if _, err := service.Login("erin", "correct-horse"); err != nil {
		t.Fatalf("login failed before lockout threshold: %v", err)
	}

	var user models.User
	if err := db.Where("username = ?", "erin").First(&user).Error; err != nil {
		t.Fatalf("user lookup failed: %v", err)
	}
	if user.FailedAttempts != 0 {
		t.Errorf("failure counter = %d after successful login, want 0", user.FailedAttempts)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	db := newTestDB(t)
	service := NewAuthService(db)
	user := registerTestUser(t, service, "frank")

	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate user: %v", err)
	}

	var inactive *InactiveAccountError
	if _, err := service.Login("frank", "correct-horse"); !errors.As(err, &inactive) {
		t.Fatalf("expected InactiveAccountError, got %v", err)
	}
}
