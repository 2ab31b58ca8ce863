package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

type CategoryService struct {
	db *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

type CreateCategoryInput struct {
	Name             string
	Description      string
	Color            string
	Icon             string
	ParentCategoryID *uuid.UUID
	Order            int
	Tactics          []string
	Platforms        []string
	KillChainPhases  []string
}

type UpdateCategoryInput struct {
	Name             *string
	Description      *string
	Color            *string
	Icon             *string
	ParentCategoryID *uuid.UUID
	ClearParent      bool
	Order            *int
	IsActive         *bool
	Tactics          []string
	Platforms        []string
	KillChainPhases  []string
}

func (s *CategoryService) Create(input CreateCategoryInput, actor Actor) (*models.Category, error) {
	if !actor.HasMinRole(models.RoleEditor) {
		return nil, &PermissionError{Message: "editor role required to create categories"}
	}
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, &ValidationError{Message: "name and description are required"}
	}
	if len(input.Name) > 100 {
		return nil, &ValidationError{Message: "name must be at most 100 characters"}
	}
	if len(input.Description) > 500 {
		return nil, &ValidationError{Message: "description must be at most 500 characters"}
	}

	if input.ParentCategoryID != nil {
		var parent models.Category
		if err := s.db.First(&parent, "id = ?", *input.ParentCategoryID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &NotFoundError{Resource: "parent category"}
			}
			return nil, err
		}
	}

	slug, err := s.uniqueSlug(input.Name, uuid.Nil)
	if err != nil {
		return nil, err
	}

	category := models.Category{
		Name:             strings.TrimSpace(input.Name),
		Slug:             slug,
		Description:      strings.TrimSpace(input.Description),
		Icon:             input.Icon,
		ParentCategoryID: input.ParentCategoryID,
		Order:            input.Order,
		IsActive:         true,
		Tactics:          input.Tactics,
		Platforms:        input.Platforms,
		KillChainPhases:  input.KillChainPhases,
		CreatedByID:      actor.ID,
	}
	if input.Color != "" {
		category.Color = input.Color
	} else {
		category.Color = "#6366f1"
	}

	if err := s.db.Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *CategoryService) Update(id uuid.UUID, input UpdateCategoryInput, actor Actor) (*models.Category, error) {
	var category models.Category
	if err := s.db.First(&category, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "category"}
		}
		return nil, err
	}

	if !actor.CanModify(category.CreatedByID) {
		return nil, &PermissionError{Message: "only the creator or an admin may update this category"}
	}
	if input.IsActive != nil && !actor.IsAdmin() {
		return nil, &PermissionError{Message: "only an admin may change the active flag"}
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, &ValidationError{Message: "name cannot be empty"}
		}
		if len(name) > 100 {
			return nil, &ValidationError{Message: "name must be at most 100 characters"}
		}
		if name != category.Name {
			slug, err := s.uniqueSlug(name, category.ID)
			if err != nil {
				return nil, err
			}
			category.Slug = slug
		}
		category.Name = name
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, &ValidationError{Message: "description cannot be empty"}
		}
		if len(description) > 500 {
			return nil, &ValidationError{Message: "description must be at most 500 characters"}
		}
		category.Description = description
	}
	if input.Color != nil {
		category.Color = *input.Color
	}
	if input.Icon != nil {
		category.Icon = *input.Icon
	}
	if input.Order != nil {
		category.Order = *input.Order
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}
	if input.Tactics != nil {
		category.Tactics = input.Tactics
	}
	if input.Platforms != nil {
		category.Platforms = input.Platforms
	}
	if input.KillChainPhases != nil {
		category.KillChainPhases = input.KillChainPhases
	}

	if input.ClearParent {
		category.ParentCategoryID = nil
	} else if input.ParentCategoryID != nil {
		var parent models.Category
		if err := s.db.First(&parent, "id = ?", *input.ParentCategoryID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &NotFoundError{Resource: "parent category"}
			}
			return nil, err
		}
		if err := s.checkCircular(category.ID, *input.ParentCategoryID); err != nil {
			return nil, err
		}
		category.ParentCategoryID = input.ParentCategoryID
	}

	if err := s.db.Save(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *CategoryService) Delete(id uuid.UUID, actor Actor) error {
	if !actor.IsAdmin() {
		return &PermissionError{Message: "only an admin may delete categories"}
	}

	var category models.Category
	if err := s.db.First(&category, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &NotFoundError{Resource: "category"}
		}
		return err
	}

	var children, techniques int64
	if err := s.db.Model(&models.Category{}).Where("parent_category_id = ?", id).Count(&children).Error; err != nil {
		return err
	}
	if err := s.db.Model(&models.Technique{}).Where("category_id = ?", id).Count(&techniques).Error; err != nil {
		return err
	}
	if children > 0 || techniques > 0 {
		return &DependencyError{Resource: "category", Children: children, Techniques: techniques}
	}

	return s.db.Delete(&category).Error
}

func (s *CategoryService) GetByID(id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := s.db.Preload("ParentCategory").Preload("CreatedBy").First(&category, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "category"}
		}
		return nil, err
	}
	return &category, nil
}

type CategoryListResult struct {
	Categories []models.Category `json:"categories"`
	Total      int64             `json:"total"`
}

func (s *CategoryService) List(page, limit int, search string, parentID *uuid.UUID, includeInactive bool) (*CategoryListResult, error) {
	query := s.db.Model(&models.Category{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if parentID != nil {
		query = query.Where("parent_category_id = ?", *parentID)
	}
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var categories []models.Category
	offset := (page - 1) * limit
	err := query.Preload("ParentCategory").
		Order(`"order" ASC, name ASC`).
		Offset(offset).Limit(limit).
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return &CategoryListResult{Categories: categories, Total: total}, nil
}

// GetHierarchy rebuilds the forest of active categories from the flat
// table. Siblings are ordered by sort order, then name. A child whose
// parent is inactive is surfaced as a root so it stays reachable.
func (s *CategoryService) GetHierarchy() ([]*models.CategoryNode, error) {
	var categories []models.Category
	err := s.db.Where("is_active = ?", true).
		Order(`"order" ASC, name ASC`).
		Find(&categories).Error
	if err != nil {
		return nil, err
	}

	nodes := make(map[uuid.UUID]*models.CategoryNode, len(categories))
	for i := range categories {
		nodes[categories[i].ID] = &models.CategoryNode{Category: categories[i], Children: []*models.CategoryNode{}}
	}

	roots := []*models.CategoryNode{}
	for i := range categories {
		node := nodes[categories[i].ID]
		parentID := categories[i].ParentCategoryID
		if parentID != nil {
			if parent, ok := nodes[*parentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}

// GetFullPath walks the parent chain root-ward and joins the ancestor
// names with " > ". The visited set guards termination; with cycle
// detection on every reparenting it should never trip.
func (s *CategoryService) GetFullPath(id uuid.UUID) (string, error) {
	var category models.Category
	if err := s.db.First(&category, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", &NotFoundError{Resource: "category"}
		}
		return "", err
	}

	names := []string{category.Name}
	visited := map[uuid.UUID]bool{category.ID: true}
	current := category.ParentCategoryID
	for current != nil {
		if visited[*current] {
			break
		}
		visited[*current] = true

		var parent models.Category
		if err := s.db.Select("id, name, parent_category_id").First(&parent, "id = ?", *current).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				break
			}
			return "", err
		}
		names = append([]string{parent.Name}, names...)
		current = parent.ParentCategoryID
	}
	return strings.Join(names, " > "), nil
}

// checkCircular walks up from the proposed parent. Reaching the category
// being modified, or any node already seen in this walk, means the
// assignment would close a cycle.
func (s *CategoryService) checkCircular(categoryID, proposedParentID uuid.UUID) error {
	if categoryID == proposedParentID {
		return &CircularReferenceError{Message: "a category cannot be its own parent"}
	}

	visited := map[uuid.UUID]bool{categoryID: true}
	current := proposedParentID
	for {
		if visited[current] {
			return &CircularReferenceError{Message: "assignment would create a cycle in the category tree"}
		}
		visited[current] = true

		var node models.Category
		if err := s.db.Select("id, parent_category_id").First(&node, "id = ?", current).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if node.ParentCategoryID == nil {
			return nil
		}
		current = *node.ParentCategoryID
	}
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.ToLower(name)
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "category"
	}
	return slug
}

// uniqueSlug probes the base slug, then -1, -2, ... until free. The
// unscoped query keeps soft-deleted rows in the probe so the unique
// index never rejects the insert.
func (s *CategoryService) uniqueSlug(name string, excludeID uuid.UUID) (string, error) {
	base := slugify(name)
	slug := base
	for suffix := 1; ; suffix++ {
		var count int64
		query := s.db.Unscoped().Model(&models.Category{}).Where("slug = ?", slug)
		if excludeID != uuid.Nil {
			query = query.Where("id <> ?", excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}
}
