package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clanops/roster-system/models"
)

var ErrSettingsNotFound = errors.New("guild settings not found")

type SettingsRepository interface {
	GetByGuildID(ctx context.Context, guildID string) (*models.GuildSettings, error)
	SetChangelogChannel(ctx context.Context, guildID string, channelID *string) error
	SetDefaultWebhook(ctx context.Context, guildID, webhookID, webhookToken string) error
	ClearDefaultWebhook(ctx context.Context, guildID string) error
}

type postgresSettingsRepository struct {
	db SQLExecutor
}

func NewPostgresSettingsRepository(db SQLExecutor) SettingsRepository {
	return &postgresSettingsRepository{db: db}
}

func (r *postgresSettingsRepository) GetByGuildID(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	query := `
		SELECT guild_id, changelog_channel_id, default_webhook_id, default_webhook_token
		FROM guild_settings WHERE guild_id = $1`

	var s models.GuildSettings
	err := r.db.QueryRowContext(ctx, query, guildID).Scan(
		&s.GuildID, &s.ChangelogChannelID, &s.DefaultWebhookID, &s.DefaultWebhookToken,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get settings for guild %s: %w", guildID, err)
	}
	return &s, nil
}

func (r *postgresSettingsRepository) SetChangelogChannel(ctx context.Context, guildID string, channelID *string) error {
	query := `
		INSERT INTO guild_settings (guild_id, changelog_channel_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET changelog_channel_id = EXCLUDED.changelog_channel_id`

	_, err := r.db.ExecContext(ctx, query, guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to set changelog channel for guild %s: %w", guildID, err)
	}
	return nil
}

func (r *postgresSettingsRepository) SetDefaultWebhook(ctx context.Context, guildID, webhookID, webhookToken string) error {
	query := `
		INSERT INTO guild_settings (guild_id, default_webhook_id, default_webhook_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE
		SET default_webhook_id = EXCLUDED.default_webhook_id,
		    default_webhook_token = EXCLUDED.default_webhook_token`

	_, err := r.db.ExecContext(ctx, query, guildID, webhookID, webhookToken)
	if err != nil {
		return fmt.Errorf("failed to set default webhook for guild %s: %w", guildID, err)
	}
	return nil
}

func (r *postgresSettingsRepository) ClearDefaultWebhook(ctx context.Context, guildID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE guild_settings SET default_webhook_id = NULL, default_webhook_token = NULL WHERE guild_id = $1`,
		guildID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default webhook for guild %s: %w", guildID, err)
	}
	return nil
}
