package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// sinkSource identifies which configuration level provided a delivery sink,
// so a stale reference can be cleared where it was set.
type sinkSource int

const (
	sinkFromRoster sinkSource = iota
	sinkFromGuild
)

type resolvedSink struct {
	webhookID    string
	webhookToken string
	source       sinkSource
}

// ChangelogService renders and delivers an audit record for every
// membership-changing action. A stale sink triggers exactly one self-heal:
// clear the dead reference, provision a fresh webhook on the configured
// changelog channel, persist it, and retry delivery once. All failures past
// that are logged and dropped; publishing never fails the action itself.
type ChangelogService struct {
	rosterRepo   repositories.RosterRepository
	settingsRepo repositories.SettingsRepository
	guild        guild.Client
	logger       *slog.Logger
}

func NewChangelogService(
	rosterRepo repositories.RosterRepository,
	settingsRepo repositories.SettingsRepository,
	guildClient guild.Client,
	logger *slog.Logger,
) *ChangelogService {
	return &ChangelogService{
		rosterRepo:   rosterRepo,
		settingsRepo: settingsRepo,
		guild:        guildClient,
		logger:       logger,
	}
}

// Publish delivers one audit record. The roster-scoped sink takes precedence
// over the guild-wide default; with neither configured this is a no-op.
func (s *ChangelogService) Publish(ctx context.Context, roster *models.Roster, action models.RosterAction, members []models.RosterMember, actor *models.PlayerIdentity, category *models.RosterCategory) {
	record := renderRecord(roster, action, members, actor, category)

	sink, ok := s.resolveSink(ctx, roster)
	if !ok {
		return
	}
	// One retry total: the self-heal path decrements the budget before it
	// re-enters delivery, so a second stale sink cannot recurse.
	s.deliver(ctx, roster, sink, record, 1)
}

func (s *ChangelogService) resolveSink(ctx context.Context, roster *models.Roster) (resolvedSink, bool) {
	if roster.WebhookID != nil && roster.WebhookToken != nil {
		return resolvedSink{
			webhookID:    *roster.WebhookID,
			webhookToken: *roster.WebhookToken,
			source:       sinkFromRoster,
		}, true
	}

	settings, err := s.settingsRepo.GetByGuildID(ctx, roster.GuildID)
	if err != nil {
		if !errors.Is(err, repositories.ErrSettingsNotFound) {
			s.logger.Warn("failed to load guild settings for changelog",
				slog.String("guild_id", roster.GuildID), slog.Any("error", err))
		}
		return resolvedSink{}, false
	}
	if settings.DefaultWebhookID == nil || settings.DefaultWebhookToken == nil {
		return resolvedSink{}, false
	}
	return resolvedSink{
		webhookID:    *settings.DefaultWebhookID,
		webhookToken: *settings.DefaultWebhookToken,
		source:       sinkFromGuild,
	}, true
}

func (s *ChangelogService) deliver(ctx context.Context, roster *models.Roster, sink resolvedSink, record guild.Record, retryBudget int) {
	err := s.guild.ExecuteWebhook(ctx, sink.webhookID, sink.webhookToken, record)
	if err == nil {
		return
	}
	if !errors.Is(err, guild.ErrWebhookGone) {
		s.logger.Warn("changelog delivery failed",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
		return
	}

	s.clearStaleSink(ctx, roster, sink)
	if retryBudget <= 0 {
		s.logger.Warn("changelog sink stale again after self-heal, giving up",
			slog.Int("roster_id", roster.ID))
		return
	}

	healed, ok := s.heal(ctx, roster, sink)
	if !ok {
		return
	}
	s.deliver(ctx, roster, healed, record, retryBudget-1)
}

func (s *ChangelogService) clearStaleSink(ctx context.Context, roster *models.Roster, sink resolvedSink) {
	var err error
	switch sink.source {
	case sinkFromRoster:
		err = s.rosterRepo.ClearWebhook(ctx, roster.ID)
	case sinkFromGuild:
		err = s.settingsRepo.ClearDefaultWebhook(ctx, roster.GuildID)
	}
	if err != nil {
		s.logger.Warn("failed to clear stale changelog sink",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
	}
}

// heal re-resolves a valid changelog channel, provisions a fresh webhook on
// it and persists the reference at the same level the stale one came from.
func (s *ChangelogService) heal(ctx context.Context, roster *models.Roster, stale resolvedSink) (resolvedSink, bool) {
	settings, err := s.settingsRepo.GetByGuildID(ctx, roster.GuildID)
	if err != nil || settings.ChangelogChannelID == nil {
		s.logger.Warn("no changelog channel available for sink self-heal",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
		return resolvedSink{}, false
	}

	exists, err := s.guild.ChannelExists(ctx, roster.GuildID, *settings.ChangelogChannelID)
	if err != nil || !exists {
		s.logger.Warn("changelog channel gone, cannot self-heal sink",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
		return resolvedSink{}, false
	}

	webhook, err := s.guild.CreateWebhook(ctx, *settings.ChangelogChannelID, "Roster Changelog")
	if err != nil {
		s.logger.Warn("failed to provision fresh changelog webhook",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
		return resolvedSink{}, false
	}

	switch stale.source {
	case sinkFromRoster:
		err = s.rosterRepo.SetWebhook(ctx, roster.ID, webhook.ID, webhook.Token)
	case sinkFromGuild:
		err = s.settingsRepo.SetDefaultWebhook(ctx, roster.GuildID, webhook.ID, webhook.Token)
	}
	if err != nil {
		s.logger.Warn("failed to persist healed changelog webhook",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
	}

	return resolvedSink{webhookID: webhook.ID, webhookToken: webhook.Token, source: stale.source}, true
}

func renderRecord(roster *models.Roster, action models.RosterAction, members []models.RosterMember, actor *models.PlayerIdentity, category *models.RosterCategory) guild.Record {
	lines := make([]string, 0, len(members))
	for i := range members {
		lines = append(lines, fmt.Sprintf("%s (%s)", memberDisplayName(&members[i]), members[i].Tag))
	}

	record := guild.Record{
		Title: fmt.Sprintf("%s: %s", action.Label(), roster.Name),
		Body:  strings.Join(lines, "\n"),
		Color: action.Color(),
	}
	if category != nil {
		record.Fields = append(record.Fields, guild.RecordField{Name: "Group", Value: category.DisplayName})
	}
	if actor != nil {
		name := actor.DisplayName
		if name == "" {
			name = actor.Username
		}
		record.Fields = append(record.Fields, guild.RecordField{Name: "By", Value: name})
	}
	return record
}
