package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/clanops/roster-system/repositories"
	"github.com/clanops/roster-system/storage"
)

// ExportService renders a roster as CSV and uploads it to object storage,
// returning a shareable URL. Best-effort: outside the mutation path.
type ExportService struct {
	rosterRepo   repositories.RosterRepository
	categoryRepo repositories.CategoryRepository
	uploader     storage.FileUploader
	now          func() time.Time
}

func NewExportService(
	rosterRepo repositories.RosterRepository,
	categoryRepo repositories.CategoryRepository,
	uploader storage.FileUploader,
) *ExportService {
	return &ExportService{
		rosterRepo:   rosterRepo,
		categoryRepo: categoryRepo,
		uploader:     uploader,
		now:          time.Now,
	}
}

func (s *ExportService) ExportRoster(ctx context.Context, rosterID int) (string, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return "", ErrRosterNotFound
		}
		return "", err
	}
	categories, err := s.categoryRepo.ListByGuild(ctx, roster.GuildID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	byID := categoriesByID(categories)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"Tag", "Name", "Town Hall", "Heroes", "Trophies", "War Preference", "Group", "Linked User", "Signed Up"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	for i := range roster.Members {
		member := &roster.Members[i]
		group := ""
		if member.CategoryID != nil {
			if category, ok := byID[*member.CategoryID]; ok {
				group = category.DisplayName
			}
		}
		row := []string{
			member.Tag,
			member.Name,
			strconv.Itoa(member.TownHallLevel),
			strconv.Itoa(member.HeroLevelSum()),
			strconv.Itoa(member.Trophies),
			derefString(member.WarPreference),
			group,
			derefString(member.Username),
			member.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	key := fmt.Sprintf("exports/roster-%d-%d.csv", roster.ID, s.now().Unix())
	result, err := s.uploader.Upload(ctx, key, "text/csv", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return result.Location, nil
}
