package services

import (
	"github.com/google/uuid"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

// Actor is the authenticated caller of a service operation, resolved by
// the auth middleware from the token claims.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// HasMinRole compares by rank, not by name, so the check stays correct
// if roles are added between existing ones.
func (a Actor) HasMinRole(role string) bool {
	return models.RoleRank(a.Role) >= models.RoleRank(role)
}

// CanModify implements the creator-or-admin ownership rule shared by
// category and technique mutations.
func (a Actor) CanModify(creatorID uuid.UUID) bool {
	return a.IsAdmin() || a.ID == creatorID
}
