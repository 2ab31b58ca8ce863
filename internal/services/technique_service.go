package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

type TechniqueService struct {
	db          *gorm.DB
	attachments *AttachmentCoordinator
}

func NewTechniqueService(db *gorm.DB, attachments *AttachmentCoordinator) *TechniqueService {
	if attachments == nil {
		attachments = NewAttachmentCoordinator("")
	}
	return &TechniqueService{db: db, attachments: attachments}
}

type TechniqueInput struct {
	Name            string
	ReferenceCode   *string
	Description     string
	CategoryID      *uuid.UUID
	Tags            []string
	Platforms       []string
	DataSources     []string
	Tactics         []string
	KillChainPhases []string
	Mitigation      *models.MitigationBlock
	Detection       *models.DetectionBlock
	References      []models.Reference
	Status          string
}

type TechniquePatch struct {
	Name            *string
	ReferenceCode   *string
	Description     *string
	CategoryID      *uuid.UUID
	ClearCategory   bool
	Tags            []string
	Platforms       []string
	DataSources     []string
	Tactics         []string
	KillChainPhases []string
	Mitigation      *models.MitigationBlock
	Detection       *models.DetectionBlock
	References      []models.Reference
	Status          *string
	IsActive        *bool
}

type TechniqueFilters struct {
	CategoryID      *uuid.UUID
	Tags            []string
	Platforms       []string
	Tactics         []string
	Search          string
	IncludeInactive bool
	SortBy          string
	SortOrder       string
	Page            int
	Limit           int
}

type TechniqueListResult struct {
	Techniques  []models.Technique `json:"techniques"`
	Total       int                `json:"total"`
	Page        int                `json:"page"`
	Limit       int                `json:"limit"`
	TotalPages  int                `json:"total_pages"`
	HasNext     bool               `json:"has_next"`
	HasPrevious bool               `json:"has_previous"`
}

var techniqueSortColumns = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"version":   "version",
	"status":    "status",
}

// List applies the SQL-expressible filters in the query and the
// set-membership filters in memory. The catalog is thousands of rows at
// most, so filtering the fetched slice is cheaper than portable JSON
// containment queries.
func (s *TechniqueService) List(filters TechniqueFilters) (*TechniqueListResult, error) {
	query := s.db.Model(&models.Technique{})
	if !filters.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filters.CategoryID != nil {
		query = query.Where("category_id = ?", *filters.CategoryID)
	}
	if filters.Search != "" {
		pattern := "%" + strings.ToLower(filters.Search) + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(COALESCE(reference_code, '')) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	column, ok := techniqueSortColumns[filters.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filters.SortOrder, "asc") {
		direction = "ASC"
	}

	var techniques []models.Technique
	err := query.Preload("Category").Preload("CreatedBy").Preload("UpdatedBy").
		Order(column + " " + direction).
		Find(&techniques).Error
	if err != nil {
		return nil, err
	}

	filtered := techniques[:0:0]
	for _, t := range techniques {
		if !containsAll(t.Tags, filters.Tags) {
			continue
		}
		if !containsAll(t.Platforms, filters.Platforms) {
			continue
		}
		if !containsAll(t.Tactics, filters.Tactics) {
			continue
		}
		filtered = append(filtered, t)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = 10
	}

	total := len(filtered)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &TechniqueListResult{
		Techniques:  filtered[start:end],
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1 && total > 0,
	}, nil
}

func (s *TechniqueService) GetByID(id uuid.UUID) (*models.Technique, error) {
	var technique models.Technique
	err := s.db.Preload("Category").Preload("CreatedBy").Preload("UpdatedBy").
		First(&technique, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "technique"}
		}
		return nil, err
	}
	return &technique, nil
}

// Create persists a new technique. uploads holds any blobs the upload
// middleware already wrote for this request; they are released before
// any error is surfaced so a failed create leaves no orphans.
func (s *TechniqueService) Create(input TechniqueInput, uploads []UploadedFile, actor Actor) (*models.Technique, error) {
	technique, err := s.create(input, uploads, actor)
	if err != nil {
		s.attachments.ReleaseAll(uploads)
		return nil, err
	}
	return technique, nil
}

func (s *TechniqueService) create(input TechniqueInput, uploads []UploadedFile, actor Actor) (*models.Technique, error) {
	if !actor.HasMinRole(models.RoleEditor) {
		return nil, &PermissionError{Message: "editor role required to create techniques"}
	}
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, &ValidationError{Message: "name and description are required"}
	}

	var code *string
	if input.ReferenceCode != nil && strings.TrimSpace(*input.ReferenceCode) != "" {
		trimmed := strings.ToUpper(strings.TrimSpace(*input.ReferenceCode))
		taken, err := s.referenceCodeTaken(trimmed, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &DuplicateError{Field: "reference code", Value: trimmed}
		}
		code = &trimmed
	} else {
		generated, err := s.generateReferenceCode()
		if err != nil {
			return nil, err
		}
		code = &generated
	}

	if input.CategoryID != nil {
		var category models.Category
		if err := s.db.First(&category, "id = ?", *input.CategoryID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &ValidationError{Message: "referenced category does not exist"}
			}
			return nil, err
		}
	}

	status := input.Status
	if status == "" {
		status = models.StatusDraft
	}

	technique := models.Technique{
		Name:            strings.TrimSpace(input.Name),
		ReferenceCode:   code,
		Description:     strings.TrimSpace(input.Description),
		CategoryID:      input.CategoryID,
		Tags:            input.Tags,
		Platforms:       input.Platforms,
		DataSources:     input.DataSources,
		Tactics:         input.Tactics,
		KillChainPhases: input.KillChainPhases,
		References:      input.References,
		Revisions:       []models.Revision{},
		Status:          status,
		IsActive:        true,
		Version:         "1.0",
		CreatedByID:     actor.ID,
	}
	if input.Mitigation != nil {
		technique.Mitigation = datatypes.NewJSONType(*input.Mitigation)
	}
	if input.Detection != nil {
		technique.Detection = datatypes.NewJSONType(*input.Detection)
	}
	for _, f := range uploads {
		switch AttachmentKind(f.Field) {
		case AttachmentImage:
			technique.ImagePath = f.Path
		case AttachmentDocument:
			technique.DocumentPath = f.Path
		}
	}

	if err := s.db.Create(&technique).Error; err != nil {
		return nil, err
	}
	return &technique, nil
}

// Update applies a patch and, when any field actually changed, appends
// one revision entry and bumps the minor version. Superseded attachment
// blobs are released only after the write succeeds.
func (s *TechniqueService) Update(id uuid.UUID, patch TechniquePatch, uploads []UploadedFile, actor Actor) (*models.Technique, error) {
	technique, superseded, err := s.update(id, patch, uploads, actor)
	if err != nil {
		s.attachments.ReleaseAll(uploads)
		return nil, err
	}
	for _, path := range superseded {
		s.attachments.Release(path)
	}
	return technique, nil
}

func (s *TechniqueService) update(id uuid.UUID, patch TechniquePatch, uploads []UploadedFile, actor Actor) (*models.Technique, []string, error) {
	var technique models.Technique
	if err := s.db.First(&technique, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, &NotFoundError{Resource: "technique"}
		}
		return nil, nil, err
	}

	if !actor.CanModify(technique.CreatedByID) {
		return nil, nil, &PermissionError{Message: "only the creator or an admin may update this technique"}
	}

	var changes []string

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, nil, &ValidationError{Message: "name cannot be empty"}
		}
		if name != technique.Name {
			changes = append(changes, fmt.Sprintf("name: %s → %s", technique.Name, name))
			technique.Name = name
		}
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return nil, nil, &ValidationError{Message: "description cannot be empty"}
		}
		if description != technique.Description {
			changes = append(changes, fmt.Sprintf("description: %s → %s", truncate(technique.Description), truncate(description)))
			technique.Description = description
		}
	}
	if patch.ReferenceCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*patch.ReferenceCode))
		old := ""
		if technique.ReferenceCode != nil {
			old = *technique.ReferenceCode
		}
		if code == "" {
			if technique.ReferenceCode != nil {
				changes = append(changes, fmt.Sprintf("reference code: %s → none", old))
				technique.ReferenceCode = nil
			}
		} else if code != old {
			taken, err := s.referenceCodeTaken(code, technique.ID)
			if err != nil {
				return nil, nil, err
			}
			if taken {
				return nil, nil, &DuplicateError{Field: "reference code", Value: code}
			}
			changes = append(changes, fmt.Sprintf("reference code: %s → %s", old, code))
			technique.ReferenceCode = &code
		}
	}
	if patch.ClearCategory {
		if technique.CategoryID != nil {
			changes = append(changes, fmt.Sprintf("category: %s → none", technique.CategoryID))
			technique.CategoryID = nil
		}
	} else if patch.CategoryID != nil {
		if technique.CategoryID == nil || *technique.CategoryID != *patch.CategoryID {
			var category models.Category
			if err := s.db.First(&category, "id = ?", *patch.CategoryID).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return nil, nil, &ValidationError{Message: "referenced category does not exist"}
				}
				return nil, nil, err
			}
			old := "none"
			if technique.CategoryID != nil {
				old = technique.CategoryID.String()
			}
			changes = append(changes, fmt.Sprintf("category: %s → %s", old, category.ID))
			technique.CategoryID = patch.CategoryID
		}
	}
	if patch.Status != nil && *patch.Status != technique.Status {
		changes = append(changes, fmt.Sprintf("status: %s → %s", technique.Status, *patch.Status))
		technique.Status = *patch.Status
	}
	if patch.IsActive != nil && *patch.IsActive != technique.IsActive {
		changes = append(changes, fmt.Sprintf("active: %t → %t", technique.IsActive, *patch.IsActive))
		technique.IsActive = *patch.IsActive
	}
	if patch.Tags != nil && !equalStrings(technique.Tags, patch.Tags) {
		changes = append(changes, fmt.Sprintf("tags: %s → %s", joinList(technique.Tags), joinList(patch.Tags)))
		technique.Tags = patch.Tags
	}
	if patch.Platforms != nil && !equalStrings(technique.Platforms, patch.Platforms) {
		changes = append(changes, fmt.Sprintf("platforms: %s → %s", joinList(technique.Platforms), joinList(patch.Platforms)))
		technique.Platforms = patch.Platforms
	}
	if patch.DataSources != nil && !equalStrings(technique.DataSources, patch.DataSources) {
		changes = append(changes, fmt.Sprintf("data sources: %s → %s", joinList(technique.DataSources), joinList(patch.DataSources)))
		technique.DataSources = patch.DataSources
	}
	if patch.Tactics != nil && !equalStrings(technique.Tactics, patch.Tactics) {
		changes = append(changes, fmt.Sprintf("tactics: %s → %s", joinList(technique.Tactics), joinList(patch.Tactics)))
		technique.Tactics = patch.Tactics
	}
	if patch.KillChainPhases != nil && !equalStrings(technique.KillChainPhases, patch.KillChainPhases) {
		changes = append(changes, fmt.Sprintf("kill chain phases: %s → %s", joinList(technique.KillChainPhases), joinList(patch.KillChainPhases)))
		technique.KillChainPhases = patch.KillChainPhases
	}
	if patch.Mitigation != nil && !equalMitigation(technique.Mitigation.Data(), *patch.Mitigation) {
		changes = append(changes, "mitigation updated")
		technique.Mitigation = datatypes.NewJSONType(*patch.Mitigation)
	}
	if patch.Detection != nil && !equalDetection(technique.Detection.Data(), *patch.Detection) {
		changes = append(changes, "detection updated")
		technique.Detection = datatypes.NewJSONType(*patch.Detection)
	}
	if patch.References != nil && !equalReferences(technique.References, patch.References) {
		changes = append(changes, "references updated")
		technique.References = patch.References
	}

	var superseded []string
	for _, f := range uploads {
		switch AttachmentKind(f.Field) {
		case AttachmentImage:
			if technique.ImagePath != "" {
				superseded = append(superseded, technique.ImagePath)
			}
			changes = append(changes, "image replaced")
			technique.ImagePath = f.Path
		case AttachmentDocument:
			if technique.DocumentPath != "" {
				superseded = append(superseded, technique.DocumentPath)
			}
			changes = append(changes, "document replaced")
			technique.DocumentPath = f.Path
		}
	}

	if len(changes) > 0 {
		technique.Revisions = append(technique.Revisions, models.Revision{
			Summary:   strings.Join(changes, "; "),
			ChangedBy: actor.ID,
			Timestamp: time.Now().UTC(),
		})
		technique.Version = bumpMinorVersion(technique.Version)
		technique.UpdatedByID = &actor.ID
	}

	if err := s.db.Save(&technique).Error; err != nil {
		return nil, nil, err
	}
	return &technique, superseded, nil
}

func (s *TechniqueService) Delete(id uuid.UUID, actor Actor) error {
	var technique models.Technique
	if err := s.db.First(&technique, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &NotFoundError{Resource: "technique"}
		}
		return err
	}

	if !actor.CanModify(technique.CreatedByID) {
		return &PermissionError{Message: "only the creator or an admin may delete this technique"}
	}

	if err := s.db.Delete(&technique).Error; err != nil {
		return err
	}
	s.attachments.Release(technique.ImagePath)
	s.attachments.Release(technique.DocumentPath)
	return nil
}

// Duplicate deep-copies the content fields into a fresh technique. The
// copy starts over: new id, empty history, draft status, version 1.0,
// no attachments, no reference code, creator set to the actor.
func (s *TechniqueService) Duplicate(id uuid.UUID, actor Actor) (*models.Technique, error) {
	if !actor.HasMinRole(models.RoleEditor) {
		return nil, &PermissionError{Message: "editor role required to duplicate techniques"}
	}

	source, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	copyTechnique := models.Technique{
		Name:            source.Name + " (Copy)",
		Description:     source.Description,
		CategoryID:      source.CategoryID,
		Tags:            source.Tags,
		Platforms:       source.Platforms,
		DataSources:     source.DataSources,
		Tactics:         source.Tactics,
		KillChainPhases: source.KillChainPhases,
		Mitigation:      source.Mitigation,
		Detection:       source.Detection,
		References:      source.References,
		Revisions:       []models.Revision{},
		Status:          models.StatusDraft,
		IsActive:        true,
		Version:         "1.0",
		CreatedByID:     actor.ID,
	}

	if err := s.db.Create(&copyTechnique).Error; err != nil {
		return nil, err
	}
	return &copyTechnique, nil
}

type TechniqueStats struct {
	Total           int               `json:"total"`
	ByPlatform      map[string]int    `json:"by_platform"`
	ByTactic        map[string]int    `json:"by_tactic"`
	ByCategory      map[string]int    `json:"by_category"`
	TopTags         []TagCount        `json:"top_tags"`
	RecentlyUpdated []RecentTechnique `json:"recently_updated"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type RecentTechnique struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	statsTopTags   = 20
	statsRecentMax = 10
)

// Stats aggregates every dimension from a single snapshot read so the
// counts are consistent with each other.
func (s *TechniqueService) Stats() (*TechniqueStats, error) {
	var techniques []models.Technique
	if err := s.db.Preload("Category").Where("is_active = ?", true).Find(&techniques).Error; err != nil {
		return nil, err
	}

	stats := &TechniqueStats{
		Total:      len(techniques),
		ByPlatform: map[string]int{},
		ByTactic:   map[string]int{},
		ByCategory: map[string]int{},
	}
	tagCounts := map[string]int{}
	for _, t := range techniques {
		for _, p := range t.Platforms {
			stats.ByPlatform[p]++
		}
		for _, tac := range t.Tactics {
			stats.ByTactic[tac]++
		}
		for _, tag := range t.Tags {
			tagCounts[tag]++
		}
		if t.Category != nil {
			stats.ByCategory[t.Category.Name]++
		} else {
			stats.ByCategory["uncategorized"]++
		}
	}

	stats.TopTags = make([]TagCount, 0, len(tagCounts))
	for tag, count := range tagCounts {
		stats.TopTags = append(stats.TopTags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(stats.TopTags, func(i, j int) bool {
		if stats.TopTags[i].Count != stats.TopTags[j].Count {
			return stats.TopTags[i].Count > stats.TopTags[j].Count
		}
		return stats.TopTags[i].Tag < stats.TopTags[j].Tag
	})
	if len(stats.TopTags) > statsTopTags {
		stats.TopTags = stats.TopTags[:statsTopTags]
	}

	sort.Slice(techniques, func(i, j int) bool {
		return techniques[i].UpdatedAt.After(techniques[j].UpdatedAt)
	})
	for i := 0; i < len(techniques) && i < statsRecentMax; i++ {
		stats.RecentlyUpdated = append(stats.RecentlyUpdated, RecentTechnique{
			ID:        techniques[i].ID,
			Name:      techniques[i].Name,
			Version:   techniques[i].Version,
			UpdatedAt: techniques[i].UpdatedAt,
		})
	}
	return stats, nil
}

type ExportItem struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	ReferenceCode string    `json:"reference_code"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	Platforms     []string  `json:"platforms"`
	Tactics       []string  `json:"tactics"`
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ExportDocument struct {
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Techniques []ExportItem `json:"techniques"`
}

func (s *TechniqueService) Export(format string) (*ExportDocument, error) {
	if format != "" && format != "json" {
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported export format %q, only json is available", format)}
	}

	var techniques []models.Technique
	err := s.db.Preload("Category").Where("is_active = ?", true).
		Order("created_at DESC").Find(&techniques).Error
	if err != nil {
		return nil, err
	}

	doc := &ExportDocument{
		ExportedAt: time.Now().UTC(),
		Count:      len(techniques),
		Techniques: make([]ExportItem, 0, len(techniques)),
	}
	for _, t := range techniques {
		item := ExportItem{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Tags:        t.Tags,
			Platforms:   t.Platforms,
			Tactics:     t.Tactics,
			Status:      t.Status,
			Version:     t.Version,
			UpdatedAt:   t.UpdatedAt,
		}
		if t.ReferenceCode != nil {
			item.ReferenceCode = *t.ReferenceCode
		}
		if t.Category != nil {
			item.Category = t.Category.Name
		}
		doc.Techniques = append(doc.Techniques, item)
	}
	return doc, nil
}

func (s *TechniqueService) ListByCategory(categoryID uuid.UUID, page, limit int) (*TechniqueListResult, error) {
	var category models.Category
	if err := s.db.First(&category, "id = ?", categoryID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "category"}
		}
		return nil, err
	}
	return s.List(TechniqueFilters{CategoryID: &categoryID, Page: page, Limit: limit})
}

func (s *TechniqueService) referenceCodeTaken(code string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := s.db.Unscoped().Model(&models.Technique{}).Where("reference_code = ?", code)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// generateReferenceCode probes T<n> codes upward from the current row
// count until one is free.
func (s *TechniqueService) generateReferenceCode() (string, error) {
	var count int64
	if err := s.db.Unscoped().Model(&models.Technique{}).Count(&count).Error; err != nil {
		return "", err
	}
	for n := count + 1; ; n++ {
		code := fmt.Sprintf("T%04d", n)
		taken, err := s.referenceCodeTaken(code, uuid.Nil)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

// bumpMinorVersion advances "1.0" to "1.1" and "1.9" to "1.10". A
// version with fewer than two components treats the missing minor as 0.
func bumpMinorVersion(version string) string {
	parts := strings.Split(version, ".")
	major, minor := 0, 0
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

func containsAll(haystack []string, needles []string) bool {
	for _, needle := range needles {
		found := false
		for _, item := range haystack {
			if strings.EqualFold(item, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalMitigation(a, b models.MitigationBlock) bool {
	return a.Description == b.Description && equalStrings(a.Strategies, b.Strategies)
}

func equalDetection(a, b models.DetectionBlock) bool {
	return a.Description == b.Description && equalStrings(a.Queries, b.Queries)
}

func equalReferences(a, b []models.Reference) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
