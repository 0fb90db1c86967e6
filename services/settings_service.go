package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// SettingsService manages the guild-wide changelog configuration: the
// channel used to re-provision stale webhooks and the default delivery
// sink shared by rosters without one of their own.
type SettingsService struct {
	settingsRepo repositories.SettingsRepository
	guild        guild.Client
}

func NewSettingsService(settingsRepo repositories.SettingsRepository, guildClient guild.Client) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo, guild: guildClient}
}

// Get returns the guild's settings. A guild that never configured anything
// gets an empty settings row rather than an error.
func (s *SettingsService) Get(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	settings, err := s.settingsRepo.GetByGuildID(ctx, guildID)
	if err != nil {
		if errors.Is(err, repositories.ErrSettingsNotFound) {
			return &models.GuildSettings{GuildID: guildID}, nil
		}
		return nil, err
	}
	return settings, nil
}

// SetChangelogChannel points the self-heal machinery at a channel. The
// channel must exist in the guild; a nil channelID clears the setting.
func (s *SettingsService) SetChangelogChannel(ctx context.Context, guildID string, channelID *string) (*models.GuildSettings, error) {
	if channelID != nil {
		exists, err := s.guild.ChannelExists(ctx, guildID, *channelID)
		if err != nil {
			return nil, fmt.Errorf("failed to check channel %s: %w", *channelID, err)
		}
		if !exists {
			return nil, ErrChannelNotFound
		}
	}
	if err := s.settingsRepo.SetChangelogChannel(ctx, guildID, channelID); err != nil {
		return nil, fmt.Errorf("failed to store changelog channel: %w", err)
	}
	return s.Get(ctx, guildID)
}
