package services

import (
	"context"
	"errors"
	"strings"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

type CategoryService struct {
	categoryRepo repositories.CategoryRepository
}

func NewCategoryService(categoryRepo repositories.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

func (s *CategoryService) validate(category *models.RosterCategory) error {
	if strings.TrimSpace(category.Name) == "" {
		return ErrCategoryNameRequired
	}
	if category.DisplayName == "" {
		category.DisplayName = category.Name
	}
	return nil
}

func (s *CategoryService) Create(ctx context.Context, category *models.RosterCategory) error {
	if err := s.validate(category); err != nil {
		return err
	}
	err := s.categoryRepo.Create(ctx, category)
	if errors.Is(err, repositories.ErrCategoryNameConflict) {
		return ErrCategoryNameConflict
	}
	return err
}

func (s *CategoryService) Get(ctx context.Context, id int) (*models.RosterCategory, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) Update(ctx context.Context, category *models.RosterCategory) error {
	if err := s.validate(category); err != nil {
		return err
	}
	err := s.categoryRepo.Update(ctx, category)
	switch {
	case errors.Is(err, repositories.ErrCategoryNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, repositories.ErrCategoryNameConflict):
		return ErrCategoryNameConflict
	}
	return err
}

// Delete removes a category. Members still referencing it are treated as
// uncategorized by every lookup, so no cascading member cleanup runs.
func (s *CategoryService) Delete(ctx context.Context, id int) error {
	err := s.categoryRepo.Delete(ctx, id)
	if errors.Is(err, repositories.ErrCategoryNotFound) {
		return ErrCategoryNotFound
	}
	return err
}

func (s *CategoryService) ListByGuild(ctx context.Context, guildID string) ([]*models.RosterCategory, error) {
	return s.categoryRepo.ListByGuild(ctx, guildID)
}
