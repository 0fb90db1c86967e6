package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clanops/roster-system/models"
)

var ErrLinkNotFound = errors.New("player link not found")

// LinkRepository is the identity directory: it maps player tags to the guild
// users who claimed them.
type LinkRepository interface {
	GetByTag(ctx context.Context, guildID, tag string) (*models.PlayerLink, error)
	ListByUser(ctx context.Context, guildID, userID string) ([]*models.PlayerLink, error)
	Upsert(ctx context.Context, link *models.PlayerLink) error
	Delete(ctx context.Context, guildID, tag string) error
}

type postgresLinkRepository struct {
	db SQLExecutor
}

func NewPostgresLinkRepository(db SQLExecutor) LinkRepository {
	return &postgresLinkRepository{db: db}
}

func (r *postgresLinkRepository) GetByTag(ctx context.Context, guildID, tag string) (*models.PlayerLink, error) {
	query := `
		SELECT tag, guild_id, user_id, username, display_name
		FROM player_links WHERE guild_id = $1 AND tag = $2`

	var link models.PlayerLink
	err := r.db.QueryRowContext(ctx, query, guildID, tag).Scan(
		&link.Tag, &link.GuildID, &link.UserID, &link.Username, &link.DisplayName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link for tag %s: %w", tag, err)
	}
	return &link, nil
}

func (r *postgresLinkRepository) ListByUser(ctx context.Context, guildID, userID string) ([]*models.PlayerLink, error) {
	query := `
		SELECT tag, guild_id, user_id, username, display_name
		FROM player_links WHERE guild_id = $1 AND user_id = $2
		ORDER BY tag ASC`

	rows, err := r.db.QueryContext(ctx, query, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links for user %s: %w", userID, err)
	}
	defer rows.Close()

	links := make([]*models.PlayerLink, 0)
	for rows.Next() {
		var link models.PlayerLink
		if err := rows.Scan(&link.Tag, &link.GuildID, &link.UserID, &link.Username, &link.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

func (r *postgresLinkRepository) Upsert(ctx context.Context, link *models.PlayerLink) error {
	query := `
		INSERT INTO player_links (tag, guild_id, user_id, username, display_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id, tag) DO UPDATE
		SET user_id = EXCLUDED.user_id, username = EXCLUDED.username, display_name = EXCLUDED.display_name`

	_, err := r.db.ExecContext(ctx, query, link.Tag, link.GuildID, link.UserID, link.Username, link.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to upsert link for tag %s: %w", link.Tag, err)
	}
	return nil
}

func (r *postgresLinkRepository) Delete(ctx context.Context, guildID, tag string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM player_links WHERE guild_id = $1 AND tag = $2`, guildID, tag,
	)
	if err != nil {
		return fmt.Errorf("failed to delete link for tag %s: %w", tag, err)
	}
	return checkAffectedRows(result, ErrLinkNotFound)
}
