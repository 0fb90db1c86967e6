package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clanops/roster-system/gameapi"
	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// LinkService manages the tag-to-user claims that back self-signup
// attribution and role grants.
type LinkService struct {
	linkRepo repositories.LinkRepository
	profiles gameapi.ProfileSource
}

func NewLinkService(linkRepo repositories.LinkRepository, profiles gameapi.ProfileSource) *LinkService {
	return &LinkService{linkRepo: linkRepo, profiles: profiles}
}

// ListByUser returns every tag the user has claimed in the guild.
func (s *LinkService) ListByUser(ctx context.Context, guildID, userID string) ([]*models.PlayerLink, error) {
	links, err := s.linkRepo.ListByUser(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links for user %s: %w", userID, err)
	}
	return links, nil
}

// Link claims a tag for a user. The tag must resolve to a real player
// profile; claiming an already-linked tag moves the claim to the new user.
func (s *LinkService) Link(ctx context.Context, link *models.PlayerLink) error {
	link.Tag = strings.TrimSpace(link.Tag)
	if link.Tag == "" {
		return ErrLinkTagRequired
	}

	player, err := s.profiles.GetPlayer(ctx, link.Tag)
	if err != nil {
		if errors.Is(err, gameapi.ErrPlayerNotFound) {
			return ErrUnknownPlayerTag
		}
		return fmt.Errorf("failed to verify tag %s: %w", link.Tag, err)
	}
	if link.DisplayName == "" {
		link.DisplayName = player.Name
	}

	if err := s.linkRepo.Upsert(ctx, link); err != nil {
		return fmt.Errorf("failed to store link for tag %s: %w", link.Tag, err)
	}
	return nil
}

// Unlink releases a claimed tag.
func (s *LinkService) Unlink(ctx context.Context, guildID, tag string) error {
	if err := s.linkRepo.Delete(ctx, guildID, strings.TrimSpace(tag)); err != nil {
		if errors.Is(err, repositories.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("failed to delete link for tag %s: %w", tag, err)
	}
	return nil
}
