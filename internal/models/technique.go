package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusDraft      = "draft"
	StatusReview     = "review"
	StatusApproved   = "approved"
	StatusDeprecated = "deprecated"
)

// Revision is one entry of a technique's append-only change history.
// Entries are only ever appended; nothing edits or removes them.
type Revision struct {
	Summary   string    `json:"summary"`
	ChangedBy uuid.UUID `json:"changed_by"`
	Timestamp time.Time `json:"timestamp"`
}

type Reference struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type MitigationBlock struct {
	Description string   `json:"description"`
	Strategies  []string `json:"strategies"`
}

type DetectionBlock struct {
	Description string   `json:"description"`
	Queries     []string `json:"queries"`
}

type Technique struct {
	ID              uuid.UUID                           `gorm:"type:uuid;primary_key" json:"id"`
	Name            string                              `gorm:"not null" json:"name"`
	ReferenceCode   *string                             `gorm:"uniqueIndex" json:"reference_code"`
	Description     string                              `gorm:"not null" json:"description"`
	CategoryID      *uuid.UUID                          `gorm:"type:uuid;index" json:"category_id"`
	Category        *Category                           `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	ImagePath       string                              `json:"image_path"`
	DocumentPath    string                              `json:"document_path"`
	Tags            datatypes.JSONSlice[string]         `json:"tags"`
	Platforms       datatypes.JSONSlice[string]         `json:"platforms"`
	DataSources     datatypes.JSONSlice[string]         `json:"data_sources"`
	Tactics         datatypes.JSONSlice[string]         `json:"tactics"`
	KillChainPhases datatypes.JSONSlice[string]         `json:"kill_chain_phases"`
	Mitigation      datatypes.JSONType[MitigationBlock] `json:"mitigation"`
	Detection       datatypes.JSONType[DetectionBlock]  `json:"detection"`
	References      datatypes.JSONSlice[Reference]      `json:"references"`
	Revisions       datatypes.JSONSlice[Revision]       `json:"revisions"`
	Status          string                              `gorm:"not null;default:'draft'" json:"status"`
	IsActive        bool                                `gorm:"not null;default:true" json:"is_active"`
	Version         string                              `gorm:"not null;default:'1.0'" json:"version"`
	CreatedByID     uuid.UUID                           `gorm:"type:uuid" json:"created_by_id"`
	CreatedBy       *User                               `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	UpdatedByID     *uuid.UUID                          `gorm:"type:uuid" json:"updated_by_id"`
	UpdatedBy       *User                               `gorm:"foreignKey:UpdatedByID" json:"updated_by,omitempty"`
	CreatedAt       time.Time                           `json:"created_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`
	DeletedAt       gorm.DeletedAt                      `gorm:"index" json:"-"`
}

func (technique *Technique) BeforeCreate(tx *gorm.DB) (err error) {
	if technique.ID == uuid.Nil {
		technique.ID = uuid.New()
	}
	return
}
