package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/HansOr04/LeteragoBackend/internal/models"
)

func createTechnique(t *testing.T, service *TechniqueService, actor Actor, input TechniqueInput) *models.Technique {
	t.Helper()
	technique, err := service.Create(input, nil, actor)
	if err != nil {
		t.Fatalf("failed to create technique %q: %v", input.Name, err)
	}
	return technique
}

func TestCreateTechniqueValidation(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	var validation *ValidationError
	if _, err := service.Create(TechniqueInput{Description: "d"}, nil, editor); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for missing name, got %v", err)
	}
	if _, err := service.Create(TechniqueInput{Name: "n"}, nil, editor); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for missing description, got %v", err)
	}

	missing := uuid.New()
	_, err := service.Create(TechniqueInput{Name: "n", Description: "d", CategoryID: &missing}, nil, editor)
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unknown category, got %v", err)
	}
}

func TestCreateTechniqueDuplicateReferenceCode(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	createTechnique(t, service, editor, TechniqueInput{
		Name: "Phishing", Description: "d", ReferenceCode: stringPtr("T1566"),
	})

	_, err := service.Create(TechniqueInput{
		Name: "Spearphishing", Description: "d", ReferenceCode: stringPtr("t1566"),
	}, nil, editor)

	var duplicate *DuplicateError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}

	// The failed create must leave no partial record behind.
	var count int64
	db.Model(&models.Technique{}).Count(&count)
	if count != 1 {
		t.Errorf("technique count after failed create = %d, want 1", count)
	}
}

func TestCreateTechniqueGeneratesReferenceCode(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	technique := createTechnique(t, service, editor, TechniqueInput{Name: "Unnamed", Description: "d"})
	if technique.ReferenceCode == nil || *technique.ReferenceCode == "" {
		t.Fatal("expected a generated reference code")
	}
	if technique.Version != "1.0" {
		t.Errorf("initial version = %q, want 1.0", technique.Version)
	}
	if len(technique.Revisions) != 0 {
		t.Errorf("new technique has %d revisions, want 0", len(technique.Revisions))
	}
}

func TestUpdateDescriptionAppendsOneRevision(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	technique := createTechnique(t, service, editor, TechniqueInput{Name: "Phishing", Description: "original"})

	updated, err := service.Update(technique.ID, TechniquePatch{Description: stringPtr("rewritten")}, nil, editor)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != "1.1" {
		t.Errorf("version = %q, want 1.1", updated.Version)
	}
	if len(updated.Revisions) != 1 {
		t.Fatalf("revision count = %d, want 1", len(updated.Revisions))
	}
	if updated.Revisions[0].ChangedBy != editor.ID {
		t.Errorf("revision actor = %v, want %v", updated.Revisions[0].ChangedBy, editor.ID)
	}
}

func TestUpdateWithoutChangesLeavesHistoryAlone(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	technique := createTechnique(t, service, editor, TechniqueInput{Name: "Stable", Description: "same"})

	updated, err := service.Update(technique.ID, TechniquePatch{Description: stringPtr("same")}, nil, editor)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != "1.0" {
		t.Errorf("version advanced without changes: %q", updated.Version)
	}
	if len(updated.Revisions) != 0 {
		t.Errorf("revision appended without changes: %d entries", len(updated.Revisions))
	}
}

func TestUpdateWithIdenticalComplexFieldsLeavesHistoryAlone(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	mitigation := models.MitigationBlock{Description: "filter mail", Strategies: []string{"dmarc", "training"}}
	detection := models.DetectionBlock{Description: "watch gateways", Queries: []string{"index=mail"}}
	references := []models.Reference{{Name: "write-up", URL: "https://example.com/a"}}

	technique := createTechnique(t, service, editor, TechniqueInput{
		Name:        "Phishing",
		Description: "d",
		Mitigation:  &mitigation,
		Detection:   &detection,
		References:  references,
	})

	// A full-payload PUT resends the stored blocks unchanged.
	updated, err := service.Update(technique.ID, TechniquePatch{
		Mitigation: &models.MitigationBlock{Description: "filter mail", Strategies: []string{"dmarc", "training"}},
		Detection:  &models.DetectionBlock{Description: "watch gateways", Queries: []string{"index=mail"}},
		References: []models.Reference{{Name: "write-up", URL: "https://example.com/a"}},
	}, nil, editor)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != "1.0" {
		t.Errorf("version advanced on identical blocks: %q", updated.Version)
	}
	if len(updated.Revisions) != 0 {
		t.Fatalf("revision appended on identical blocks: %d entries (%q)", len(updated.Revisions), updated.Revisions[0].Summary)
	}

	updated, err = service.Update(technique.ID, TechniquePatch{
		Mitigation: &models.MitigationBlock{Description: "filter mail", Strategies: []string{"dmarc"}},
	}, nil, editor)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != "1.1" || len(updated.Revisions) != 1 {
		t.Errorf("changed mitigation: version = %q, revisions = %d, want 1.1 and 1", updated.Version, len(updated.Revisions))
	}
}

func TestUpdateWithEmptyReferenceCodeClearsIt(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	first := createTechnique(t, service, editor, TechniqueInput{
		Name: "First", Description: "d", ReferenceCode: stringPtr("T1001"),
	})
	second := createTechnique(t, service, editor, TechniqueInput{
		Name: "Second", Description: "d", ReferenceCode: stringPtr("T1002"),
	})

	updated, err := service.Update(first.ID, TechniquePatch{ReferenceCode: stringPtr("")}, nil, editor)
	if err != nil {
		t.Fatalf("clearing reference code failed: %v", err)
	}
	if updated.ReferenceCode != nil {
		t.Errorf("reference code = %q, want nil", *updated.ReferenceCode)
	}
	if len(updated.Revisions) != 1 {
		t.Errorf("revision count = %d, want 1", len(updated.Revisions))
	}

	// A second technique clearing its code must not collide with the first.
	updated, err = service.Update(second.ID, TechniquePatch{ReferenceCode: stringPtr("")}, nil, editor)
	if err != nil {
		t.Fatalf("clearing second reference code failed: %v", err)
	}
	if updated.ReferenceCode != nil {
		t.Errorf("second reference code = %q, want nil", *updated.ReferenceCode)
	}

	// Clearing an already-empty code is a no-op.
	updated, err = service.Update(second.ID, TechniquePatch{ReferenceCode: stringPtr("")}, nil, editor)
	if err != nil {
		t.Fatalf("repeated clear failed: %v", err)
	}
	if len(updated.Revisions) != 1 {
		t.Errorf("repeated clear appended a revision: %d entries", len(updated.Revisions))
	}
}

func TestVersionDottedIncrement(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	technique := createTechnique(t, service, editor, TechniqueInput{Name: "Versioned", Description: "d"})

	// Force the stored version to 1.9 and confirm the dotted-increment
	// rule produces 1.10, not 2.0.
	if err := db.Model(&models.Technique{}).Where("id = ?", technique.ID).Update("version", "1.9").Error; err != nil {
		t.Fatalf("failed to set version: %v", err)
	}

	updated, err := service.Update(technique.ID, TechniquePatch{Description: stringPtr("bump")}, nil, editor)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != "1.10" {
		t.Errorf("version = %q, want 1.10", updated.Version)
	}
}

func TestBumpMinorVersionTable(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0", "1.1"},
		{"1.9", "1.10"},
		{"1.10", "1.11"},
		{"2", "2.1"},
		{"", "0.1"},
		{"3.4.9", "3.5"},
	}
	for _, tc := range cases {
		if got := bumpMinorVersion(tc.in); got != tc.want {
			t.Errorf("bumpMinorVersion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUpdateOwnership(t *testing.T) {
	db := newTestDB(t)
	creator := asActor(newTestUser(t, db, models.RoleEditor))
	other := asActor(newTestUser(t, db, models.RoleEditor))
	admin := asActor(newTestUser(t, db, models.RoleAdmin))
	service := NewTechniqueService(db, nil)

	technique := createTechnique(t, service, creator, TechniqueInput{Name: "Owned", Description: "d"})

	var permission *PermissionError
	_, err := service.Update(technique.ID, TechniquePatch{Description: stringPtr("x")}, nil, other)
	if !errors.As(err, &permission) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	if _, err := service.Update(technique.ID, TechniquePatch{Description: stringPtr("x")}, nil, admin); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}

	if err := service.Delete(technique.ID, other); !errors.As(err, &permission) {
		t.Fatalf("expected PermissionError on delete, got %v", err)
	}
	if err := service.Delete(technique.ID, admin); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}

func TestDuplicateTechnique(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	other := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	source := createTechnique(t, service, editor, TechniqueInput{
		Name:          "Phishing",
		Description:   "deep copy me",
		ReferenceCode: stringPtr("T1566"),
		Tags:          []string{"email", "social-engineering"},
		Platforms:     []string{"Windows", "macOS"},
		Status:        models.StatusApproved,
	})

	// Age the source so the copy visibly starts over.
	if _, err := service.Update(source.ID, TechniquePatch{Description: stringPtr("v2")}, nil, editor); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	db.Model(&models.Technique{}).Where("id = ?", source.ID).Update("image_path", "uploads/images/x.png")

	duplicate, err := service.Duplicate(source.ID, other)
	if err != nil {
		t.Fatalf("duplicate failed: %v", err)
	}

	if duplicate.ID == source.ID {
		t.Error("duplicate kept the source id")
	}
	if duplicate.Name != "Phishing (Copy)" {
		t.Errorf("name = %q, want Phishing (Copy)", duplicate.Name)
	}
	if duplicate.Description != "v2" {
		t.Errorf("description not copied: %q", duplicate.Description)
	}
	if len(duplicate.Tags) != 2 || len(duplicate.Platforms) != 2 {
		t.Error("tag/platform lists not copied")
	}
	if duplicate.Status != models.StatusDraft {
		t.Errorf("status = %q, want draft", duplicate.Status)
	}
	if duplicate.Version != "1.0" {
		t.Errorf("version = %q, want 1.0", duplicate.Version)
	}
	if len(duplicate.Revisions) != 0 {
		t.Errorf("revision history copied: %d entries", len(duplicate.Revisions))
	}
	if duplicate.ImagePath != "" || duplicate.DocumentPath != "" {
		t.Error("attachment paths carried over")
	}
	if duplicate.ReferenceCode != nil {
		t.Errorf("reference code carried over: %q", *duplicate.ReferenceCode)
	}
	if duplicate.CreatedByID != other.ID {
		t.Error("creator not set to the duplicating actor")
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	categories := NewCategoryService(db)
	service := NewTechniqueService(db, nil)

	category, err := categories.Create(CreateCategoryInput{Name: "Initial Access", Description: "d"}, editor)
	if err != nil {
		t.Fatalf("category create failed: %v", err)
	}

	createTechnique(t, service, editor, TechniqueInput{
		Name: "Phishing", Description: "email lure", CategoryID: &category.ID,
		Platforms: []string{"Windows", "Linux"}, Tags: []string{"email"},
	})
	createTechnique(t, service, editor, TechniqueInput{
		Name: "Drive-by Compromise", Description: "watering hole", CategoryID: &category.ID,
		Platforms: []string{"Windows"},
	})
	createTechnique(t, service, editor, TechniqueInput{
		Name: "Valid Accounts", Description: "stolen credentials",
		Platforms: []string{"Linux"},
	})

	result, err := service.List(TechniqueFilters{CategoryID: &category.ID})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("category filter total = %d, want 2", result.Total)
	}

	result, err = service.List(TechniqueFilters{Platforms: []string{"linux"}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("platform filter total = %d, want 2", result.Total)
	}

	result, err = service.List(TechniqueFilters{Search: "watering"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 1 || result.Techniques[0].Name != "Drive-by Compromise" {
		t.Errorf("search returned %d results", result.Total)
	}

	result, err = service.List(TechniqueFilters{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Techniques) != 2 || result.Total != 3 || result.TotalPages != 2 {
		t.Errorf("page 1: got %d items, total %d, pages %d", len(result.Techniques), result.Total, result.TotalPages)
	}
	if !result.HasNext || result.HasPrevious {
		t.Errorf("page 1 metadata wrong: next=%t prev=%t", result.HasNext, result.HasPrevious)
	}

	result, err = service.List(TechniqueFilters{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Techniques) != 1 || result.HasNext || !result.HasPrevious {
		t.Errorf("page 2: got %d items, next=%t prev=%t", len(result.Techniques), result.HasNext, result.HasPrevious)
	}
}

func TestStatsAggregation(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	categories := NewCategoryService(db)
	service := NewTechniqueService(db, nil)

	category, err := categories.Create(CreateCategoryInput{Name: "Execution", Description: "d"}, editor)
	if err != nil {
		t.Fatalf("category create failed: %v", err)
	}

	createTechnique(t, service, editor, TechniqueInput{
		Name: "One", Description: "d", CategoryID: &category.ID,
		Platforms: []string{"Windows"}, Tactics: []string{"execution"}, Tags: []string{"scripting"},
	})
	createTechnique(t, service, editor, TechniqueInput{
		Name: "Two", Description: "d",
		Platforms: []string{"Windows", "Linux"}, Tags: []string{"scripting", "lolbin"},
	})

	stats, err := service.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.ByPlatform["Windows"] != 2 || stats.ByPlatform["Linux"] != 1 {
		t.Errorf("platform counts = %v", stats.ByPlatform)
	}
	if stats.ByCategory["Execution"] != 1 || stats.ByCategory["uncategorized"] != 1 {
		t.Errorf("category counts = %v", stats.ByCategory)
	}
	if len(stats.TopTags) == 0 || stats.TopTags[0].Tag != "scripting" || stats.TopTags[0].Count != 2 {
		t.Errorf("top tags = %v", stats.TopTags)
	}
	if len(stats.RecentlyUpdated) != 2 {
		t.Errorf("recently updated = %d entries, want 2", len(stats.RecentlyUpdated))
	}
}

func TestExport(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	service := NewTechniqueService(db, nil)

	createTechnique(t, service, editor, TechniqueInput{
		Name: "Phishing", Description: "d", ReferenceCode: stringPtr("T1566"),
	})

	doc, err := service.Export("json")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if doc.Count != 1 || len(doc.Techniques) != 1 {
		t.Fatalf("export count = %d, items = %d", doc.Count, len(doc.Techniques))
	}
	if doc.Techniques[0].ReferenceCode != "T1566" {
		t.Errorf("exported reference code = %q", doc.Techniques[0].ReferenceCode)
	}
	if doc.ExportedAt.IsZero() {
		t.Error("export timestamp missing")
	}

	var validation *ValidationError
	if _, err := service.Export("xml"); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for xml format, got %v", err)
	}
}

func TestListByCategoryUnknownCategory(t *testing.T) {
	db := newTestDB(t)
	service := NewTechniqueService(db, nil)

	var notFound *NotFoundError
	if _, err := service.ListByCategory(uuid.New(), 1, 10); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// The end-to-end scenario from the catalog requirements: category and
// technique lifecycle with dependency-blocked delete in the middle.
func TestCatalogLifecycleScenario(t *testing.T) {
	db := newTestDB(t)
	editor := asActor(newTestUser(t, db, models.RoleEditor))
	admin := asActor(newTestUser(t, db, models.RoleAdmin))
	categories := NewCategoryService(db)
	techniques := NewTechniqueService(db, nil)

	category, err := categories.Create(CreateCategoryInput{Name: "Initial Access", Description: "entry vectors"}, editor)
	if err != nil {
		t.Fatalf("category create failed: %v", err)
	}
	if category.ParentCategoryID != nil {
		t.Fatal("expected a root category")
	}

	technique, err := techniques.Create(TechniqueInput{
		Name:          "Phishing",
		Description:   "malicious email",
		ReferenceCode: stringPtr("T1566"),
		CategoryID:    &category.ID,
	}, nil, editor)
	if err != nil {
		t.Fatalf("technique create failed: %v", err)
	}
	if technique.Version != "1.0" {
		t.Fatalf("initial version = %q", technique.Version)
	}

	updated, err := techniques.Update(technique.ID, TechniquePatch{
		Description: stringPtr("malicious email with attachment or link"),
	}, nil, editor)
	if err != nil {
		t.Fatalf("technique update failed: %v", err)
	}
	if updated.Version != "1.1" {
		t.Errorf("version after update = %q, want 1.1", updated.Version)
	}
	if len(updated.Revisions) != 1 {
		t.Errorf("revision count = %d, want 1", len(updated.Revisions))
	}

	var dependency *DependencyError
	err = categories.Delete(category.ID, admin)
	if !errors.As(err, &dependency) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	if dependency.Techniques != 1 {
		t.Errorf("dependency techniques = %d, want 1", dependency.Techniques)
	}

	if err := techniques.Delete(technique.ID, editor); err != nil {
		t.Fatalf("technique delete failed: %v", err)
	}
	if err := categories.Delete(category.ID, admin); err != nil {
		t.Fatalf("category delete after cleanup failed: %v", err)
	}
}
