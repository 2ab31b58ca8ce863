package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

const (
	maxFailedLogins = 5
	lockDuration    = 15 * time.Minute
)

type AuthService struct {
	db *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

func (s *AuthService) Register(input RegisterInput) (*models.User, error) {
	roleName := input.Role
	if roleName == "" {
		roleName = models.RoleViewer
	}

	var role models.Role
	if err := s.db.Where("name = ?", roleName).First(&role).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ValidationError{Message: "unknown role " + roleName}
		}
		return nil, err
	}

	var existing models.User
	if err := s.db.Where("username = ?", input.Username).First(&existing).Error; err == nil {
		return nil, &DuplicateError{Field: "username", Value: input.Username}
	}
	if err := s.db.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, &DuplicateError{Field: "email", Value: input.Email}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username: strings.TrimSpace(input.Username),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: string(hashed),
		IsActive: true,
		RoleID:   role.ID,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	user.Role = role
	return &user, nil
}

// Login verifies credentials against the identifier (email or username).
// Five consecutive failures lock the account for fifteen minutes; a
// successful login resets the counter.
func (s *AuthService) Login(identifier, password string) (*models.User, error) {
	var user models.User
	err := s.db.Preload("Role").
		Where("email = ? OR username = ?", strings.ToLower(identifier), identifier).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &PermissionError{Message: "invalid credentials"}
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, &InactiveAccountError{}
	}
	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return nil, &LockedAccountError{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		user.FailedAttempts++
		if user.FailedAttempts >= maxFailedLogins {
			until := time.Now().Add(lockDuration)
			user.LockedUntil = &until
			user.FailedAttempts = 0
		}
		s.db.Save(&user)
		if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
			return nil, &LockedAccountError{Until: *user.LockedUntil}
		}
		return nil, &PermissionError{Message: "invalid credentials"}
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		user.FailedAttempts = 0
		user.LockedUntil = nil
		s.db.Save(&user)
	}
	return &user, nil
}

func (s *AuthService) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("Role").First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "user"}
		}
		return nil, err
	}
	return &user, nil
}
