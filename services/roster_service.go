package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// RosterService owns the roster lifecycle: creation, settings updates,
// open/close, listing, deletion and the periodic expiry sweep.
type RosterService struct {
	rosterRepo   repositories.RosterRepository
	categoryRepo repositories.CategoryRepository
	roles        RoleSyncer
	logger       *slog.Logger
	now          func() time.Time
}

func NewRosterService(
	rosterRepo repositories.RosterRepository,
	categoryRepo repositories.CategoryRepository,
	roles RoleSyncer,
	logger *slog.Logger,
) *RosterService {
	return &RosterService{
		rosterRepo:   rosterRepo,
		categoryRepo: categoryRepo,
		roles:        roles,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *RosterService) validate(roster *models.Roster) error {
	if strings.TrimSpace(roster.Name) == "" {
		return ErrRosterNameRequired
	}
	if roster.MaxMembers < 0 {
		return ErrRosterInvalidCap
	}
	if roster.StartTime != nil && roster.EndTime != nil && !roster.StartTime.Before(*roster.EndTime) {
		return ErrRosterInvalidWindow
	}
	return nil
}

func (s *RosterService) Create(ctx context.Context, roster *models.Roster) error {
	if err := s.validate(roster); err != nil {
		return err
	}
	if roster.Kind == "" {
		roster.Kind = models.KindGeneral
	}
	err := s.rosterRepo.Create(ctx, roster)
	if errors.Is(err, repositories.ErrRosterNameConflict) {
		return ErrRosterNameConflict
	}
	return err
}

// Get returns the roster with its closed state recomputed against the
// clock. The persistent flag lags until the sweep catches up.
func (s *RosterService) Get(ctx context.Context, id int) (*models.Roster, error) {
	roster, err := s.rosterRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, err
	}
	roster.Closed = roster.IsClosed(s.now())
	return roster, nil
}

func (s *RosterService) List(ctx context.Context, guildID string, kind models.RosterKind, openOnly bool) ([]*models.Roster, error) {
	rosters, err := s.rosterRepo.List(ctx, repositories.RosterFilter{GuildID: guildID, Kind: kind, OpenOnly: openOnly})
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, roster := range rosters {
		roster.Closed = roster.IsClosed(now)
	}
	return rosters, nil
}

func (s *RosterService) Search(ctx context.Context, guildID, query string) ([]*models.Roster, error) {
	rosters, err := s.rosterRepo.Search(ctx, guildID, query)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, roster := range rosters {
		roster.Closed = roster.IsClosed(now)
	}
	return rosters, nil
}

func (s *RosterService) Update(ctx context.Context, roster *models.Roster) error {
	if err := s.validate(roster); err != nil {
		return err
	}
	err := s.rosterRepo.Update(ctx, roster)
	switch {
	case errors.Is(err, repositories.ErrRosterNotFound):
		return ErrRosterNotFound
	case errors.Is(err, repositories.ErrRosterNameConflict):
		return ErrRosterNameConflict
	}
	return err
}

// Delete removes the roster after a best-effort revocation of the roles its
// members held through it. Revocation failures do not block deletion.
func (s *RosterService) Delete(ctx context.Context, id int) error {
	roster, err := s.rosterRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return ErrRosterNotFound
		}
		return err
	}

	categories, err := s.categoryRepo.ListByGuild(ctx, roster.GuildID)
	if err != nil {
		s.logger.Warn("failed to list categories before roster deletion",
			slog.Int("roster_id", id), slog.Any("error", err))
		categories = nil
	}
	byID := categoriesByID(categories)

	for i := range roster.Members {
		member := &roster.Members[i]
		if member.UserID == nil {
			continue
		}
		revokes := make([]string, 0, 2)
		if roster.RoleID != nil {
			revokes = append(revokes, *roster.RoleID)
		}
		if member.CategoryID != nil {
			if category, ok := byID[*member.CategoryID]; ok && category.RoleID != nil {
				revokes = append(revokes, *category.RoleID)
			}
		}
		if len(revokes) > 0 {
			s.roles.ApplyDelta(ctx, roster.GuildID, *member.UserID, nil, revokes)
		}
	}

	err = s.rosterRepo.Delete(ctx, id)
	if errors.Is(err, repositories.ErrRosterNotFound) {
		return ErrRosterNotFound
	}
	return err
}

// Open reopens signups. If the end time already passed it is cleared,
// otherwise the roster would immediately read as closed again.
func (s *RosterService) Open(ctx context.Context, id int) (*models.Roster, error) {
	roster, err := s.rosterRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, err
	}
	roster.Closed = false
	if roster.EndTime != nil && s.now().After(*roster.EndTime) {
		roster.EndTime = nil
	}
	if err := s.rosterRepo.Update(ctx, roster); err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, err
	}
	return roster, nil
}

func (s *RosterService) Close(ctx context.Context, id int) (*models.Roster, error) {
	if err := s.rosterRepo.SetClosed(ctx, id, true); err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// CloseExpiredRosters persists closed=true on every roster whose end time
// has passed. Runs on a ticker from main.
func (s *RosterService) CloseExpiredRosters(ctx context.Context) error {
	ids, err := s.rosterRepo.CloseExpired(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to sweep expired rosters: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Info("closed expired rosters", slog.Int("count", len(ids)))
	}
	return nil
}
