package services

import (
	"context"
	"errors"
	"testing"

	"github.com/clanops/roster-system/models"
)

func TestCategoryCreateRequiresName(t *testing.T) {
	s := NewCategoryService(newFakeCategoryRepo())

	err := s.Create(context.Background(), &models.RosterCategory{GuildID: "guild-1", Name: "  "})
	if !errors.Is(err, ErrCategoryNameRequired) {
		t.Fatalf("expected ErrCategoryNameRequired, got %v", err)
	}
}

func TestCategoryCreateDefaultsDisplayName(t *testing.T) {
	s := NewCategoryService(newFakeCategoryRepo())

	category := &models.RosterCategory{GuildID: "guild-1", Name: "main"}
	if err := s.Create(context.Background(), category); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if category.DisplayName != "main" {
		t.Fatalf("display name should default to the name, got %q", category.DisplayName)
	}
}

func TestCategoryCreateRejectsDuplicateName(t *testing.T) {
	repo := newFakeCategoryRepo(&models.RosterCategory{ID: 1, GuildID: "guild-1", Name: "main", DisplayName: "Main"})
	s := NewCategoryService(repo)

	err := s.Create(context.Background(), &models.RosterCategory{GuildID: "guild-1", Name: "main"})
	if !errors.Is(err, ErrCategoryNameConflict) {
		t.Fatalf("expected ErrCategoryNameConflict, got %v", err)
	}
}

func TestCategoryDeleteMapsNotFound(t *testing.T) {
	s := NewCategoryService(newFakeCategoryRepo())

	if err := s.Delete(context.Background(), 404); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}
