package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Category struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primary_key" json:"id"`
	Name             string                      `gorm:"size:100;not null" json:"name"`
	Slug             string                      `gorm:"unique;not null" json:"slug"`
	Description      string                      `gorm:"size:500;not null" json:"description"`
	Color            string                      `gorm:"not null;default:'#6366f1'" json:"color"`
	Icon             string                      `json:"icon"`
	ParentCategoryID *uuid.UUID                  `gorm:"type:uuid;index" json:"parent_category_id"`
	ParentCategory   *Category                   `gorm:"foreignKey:ParentCategoryID" json:"parent_category,omitempty"`
	Order            int                         `gorm:"not null;default:0" json:"order"`
	IsActive         bool                        `gorm:"not null;default:true" json:"is_active"`
	Tactics          datatypes.JSONSlice[string] `json:"tactics"`
	Platforms        datatypes.JSONSlice[string] `json:"platforms"`
	KillChainPhases  datatypes.JSONSlice[string] `json:"kill_chain_phases"`
	CreatedByID      uuid.UUID                   `gorm:"type:uuid" json:"created_by_id"`
	CreatedBy        *User                       `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	DeletedAt        gorm.DeletedAt              `gorm:"index" json:"-"`
}

func (category *Category) BeforeCreate(tx *gorm.DB) (err error) {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	return
}

// CategoryNode is a category with its children resolved, used by the
// hierarchy endpoint. The tree is rebuilt from the flat table on every
// request; nothing is cached between calls.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}
