package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clanops/roster-system/models"
	"github.com/lib/pq"
)

var (
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryNameConflict = errors.New("category name conflict")
)

type CategoryRepository interface {
	Create(ctx context.Context, category *models.RosterCategory) error
	GetByID(ctx context.Context, id int) (*models.RosterCategory, error)
	Update(ctx context.Context, category *models.RosterCategory) error
	Delete(ctx context.Context, id int) error
	ListByGuild(ctx context.Context, guildID string) ([]*models.RosterCategory, error)
}

type postgresCategoryRepository struct {
	db SQLExecutor
}

func NewPostgresCategoryRepository(db SQLExecutor) CategoryRepository {
	return &postgresCategoryRepository{db: db}
}

func (r *postgresCategoryRepository) Create(ctx context.Context, category *models.RosterCategory) error {
	query := `
		INSERT INTO roster_categories (guild_id, name, display_name, sort_order, role_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		category.GuildID, category.Name, category.DisplayName, category.Order, category.RoleID,
	).Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "roster_categories_guild_id_name_key" {
				return ErrCategoryNameConflict
			}
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (r *postgresCategoryRepository) GetByID(ctx context.Context, id int) (*models.RosterCategory, error) {
	query := `
		SELECT id, guild_id, name, display_name, sort_order, role_id, created_at
		FROM roster_categories WHERE id = $1`
	return r.scanCategory(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresCategoryRepository) Update(ctx context.Context, category *models.RosterCategory) error {
	query := `
		UPDATE roster_categories SET
			name = $1, display_name = $2, sort_order = $3, role_id = $4
		WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query,
		category.Name, category.DisplayName, category.Order, category.RoleID, category.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "roster_categories_guild_id_name_key" {
				return ErrCategoryNameConflict
			}
		}
		return fmt.Errorf("failed to update category %d: %w", category.ID, err)
	}
	return checkAffectedRows(result, ErrCategoryNotFound)
}

func (r *postgresCategoryRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roster_categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrCategoryNotFound)
}

func (r *postgresCategoryRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.RosterCategory, error) {
	query := `
		SELECT id, guild_id, name, display_name, sort_order, role_id, created_at
		FROM roster_categories
		WHERE guild_id = $1
		ORDER BY sort_order ASC, name ASC`

	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories for guild %s: %w", guildID, err)
	}
	defer rows.Close()

	categories := make([]*models.RosterCategory, 0)
	for rows.Next() {
		category, err := r.scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *postgresCategoryRepository) scanCategory(row interface {
	Scan(dest ...interface{}) error
}) (*models.RosterCategory, error) {
	var c models.RosterCategory
	err := row.Scan(&c.ID, &c.GuildID, &c.Name, &c.DisplayName, &c.Order, &c.RoleID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &c, nil
}
