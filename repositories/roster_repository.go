package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clanops/roster-system/models"
	"github.com/lib/pq"
)

var (
	ErrRosterNotFound     = errors.New("roster not found")
	ErrRosterNameConflict = errors.New("roster name conflict")
)

// RosterFilter narrows List queries. Zero values mean "no constraint".
type RosterFilter struct {
	GuildID  string
	Kind     models.RosterKind
	OpenOnly bool
}

type RosterRepository interface {
	Create(ctx context.Context, roster *models.Roster) error
	GetByID(ctx context.Context, id int) (*models.Roster, error)
	Update(ctx context.Context, roster *models.Roster) error
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, filter RosterFilter) ([]*models.Roster, error)
	Search(ctx context.Context, guildID, query string) ([]*models.Roster, error)

	// AppendMember atomically pushes one member onto the members array and
	// returns the refreshed roster. The member list is not re-validated
	// here; eligibility is the caller's concern.
	AppendMember(ctx context.Context, rosterID int, member models.RosterMember) (*models.Roster, error)
	// PullMembers atomically removes every member whose tag is in tags.
	PullMembers(ctx context.Context, rosterID int, tags []string) (*models.Roster, error)
	// UpdateMemberCategory rewrites the category_id of a single member.
	UpdateMemberCategory(ctx context.Context, rosterID int, tag string, categoryID *int) (*models.Roster, error)
	// ReplaceMembers swaps the whole members array in one write.
	ReplaceMembers(ctx context.Context, rosterID int, members []models.RosterMember) (*models.Roster, error)

	SetClosed(ctx context.Context, rosterID int, closed bool) error
	// CloseExpired marks every open roster whose end time has passed and
	// returns the affected IDs.
	CloseExpired(ctx context.Context, now time.Time) ([]int, error)

	SetWebhook(ctx context.Context, rosterID int, webhookID, webhookToken string) error
	ClearWebhook(ctx context.Context, rosterID int) error
}

type postgresRosterRepository struct {
	db SQLExecutor
}

func NewPostgresRosterRepository(db SQLExecutor) RosterRepository {
	return &postgresRosterRepository{db: db}
}

const rosterColumns = `
	id, guild_id, name, kind, clan_tag, clan_name, clan_league,
	max_members, min_town_hall, max_town_hall, min_hero_levels,
	allow_multi_signup, allow_unlinked, max_accounts_per_user,
	role_id, start_time, end_time, closed,
	webhook_id, webhook_token, layout, sort_by, members, created_at`

func scanRoster(row interface {
	Scan(dest ...interface{}) error
}) (*models.Roster, error) {
	var r models.Roster
	var membersRaw []byte
	err := row.Scan(
		&r.ID, &r.GuildID, &r.Name, &r.Kind, &r.ClanTag, &r.ClanName, &r.ClanLeague,
		&r.MaxMembers, &r.MinTownHall, &r.MaxTownHall, &r.MinHeroLevels,
		&r.AllowMultiSignup, &r.AllowUnlinked, &r.MaxAccountsPerUser,
		&r.RoleID, &r.StartTime, &r.EndTime, &r.Closed,
		&r.WebhookID, &r.WebhookToken, &r.Layout, &r.SortBy, &membersRaw, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("failed to scan roster: %w", err)
	}
	r.Members = make([]models.RosterMember, 0)
	if len(membersRaw) > 0 {
		if err := json.Unmarshal(membersRaw, &r.Members); err != nil {
			return nil, fmt.Errorf("failed to decode roster %d members: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (r *postgresRosterRepository) Create(ctx context.Context, roster *models.Roster) error {
	if roster.MaxMembers <= 0 {
		roster.MaxMembers = models.DefaultRosterCap
	}
	query := `
		INSERT INTO rosters (
			guild_id, name, kind, clan_tag, clan_name, clan_league,
			max_members, min_town_hall, max_town_hall, min_hero_levels,
			allow_multi_signup, allow_unlinked, max_accounts_per_user,
			role_id, start_time, end_time, closed, layout, sort_by, members
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, '[]'::jsonb)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		roster.GuildID, roster.Name, roster.Kind, roster.ClanTag, roster.ClanName, roster.ClanLeague,
		roster.MaxMembers, roster.MinTownHall, roster.MaxTownHall, roster.MinHeroLevels,
		roster.AllowMultiSignup, roster.AllowUnlinked, roster.MaxAccountsPerUser,
		roster.RoleID, roster.StartTime, roster.EndTime, roster.Closed, roster.Layout, roster.SortBy,
	).Scan(&roster.ID, &roster.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "rosters_guild_id_name_key" {
				return ErrRosterNameConflict
			}
		}
		return fmt.Errorf("failed to create roster: %w", err)
	}
	if roster.Members == nil {
		roster.Members = make([]models.RosterMember, 0)
	}
	return nil
}

func (r *postgresRosterRepository) GetByID(ctx context.Context, id int) (*models.Roster, error) {
	query := `SELECT` + rosterColumns + ` FROM rosters WHERE id = $1`
	return scanRoster(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRosterRepository) Update(ctx context.Context, roster *models.Roster) error {
	query := `
		UPDATE rosters SET
			name = $1, kind = $2, clan_tag = $3, clan_name = $4, clan_league = $5,
			max_members = $6, min_town_hall = $7, max_town_hall = $8, min_hero_levels = $9,
			allow_multi_signup = $10, allow_unlinked = $11, max_accounts_per_user = $12,
			role_id = $13, start_time = $14, end_time = $15, closed = $16,
			layout = $17, sort_by = $18
		WHERE id = $19`

	result, err := r.db.ExecContext(ctx, query,
		roster.Name, roster.Kind, roster.ClanTag, roster.ClanName, roster.ClanLeague,
		roster.MaxMembers, roster.MinTownHall, roster.MaxTownHall, roster.MinHeroLevels,
		roster.AllowMultiSignup, roster.AllowUnlinked, roster.MaxAccountsPerUser,
		roster.RoleID, roster.StartTime, roster.EndTime, roster.Closed,
		roster.Layout, roster.SortBy, roster.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "rosters_guild_id_name_key" {
				return ErrRosterNameConflict
			}
		}
		return fmt.Errorf("failed to update roster %d: %w", roster.ID, err)
	}
	return checkAffectedRows(result, ErrRosterNotFound)
}

func (r *postgresRosterRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rosters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete roster %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRosterNotFound)
}

func (r *postgresRosterRepository) List(ctx context.Context, filter RosterFilter) ([]*models.Roster, error) {
	query := `SELECT` + rosterColumns + ` FROM rosters WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if filter.GuildID != "" {
		args = append(args, filter.GuildID)
		query += fmt.Sprintf(" AND guild_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.OpenOnly {
		args = append(args, time.Now())
		query += fmt.Sprintf(" AND NOT closed AND (end_time IS NULL OR end_time > $%d)", len(args))
	}
	query += ` ORDER BY created_at DESC`
	return r.queryRosters(ctx, query, args...)
}

func (r *postgresRosterRepository) Search(ctx context.Context, guildID, query string) ([]*models.Roster, error) {
	q := `SELECT` + rosterColumns + ` FROM rosters WHERE guild_id = $1 AND name ILIKE '%' || $2 || '%' ORDER BY name ASC`
	return r.queryRosters(ctx, q, guildID, query)
}

func (r *postgresRosterRepository) queryRosters(ctx context.Context, query string, args ...interface{}) ([]*models.Roster, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rosters: %w", err)
	}
	defer rows.Close()

	rosters := make([]*models.Roster, 0)
	for rows.Next() {
		roster, err := scanRoster(rows)
		if err != nil {
			return nil, err
		}
		rosters = append(rosters, roster)
	}
	return rosters, rows.Err()
}

func (r *postgresRosterRepository) AppendMember(ctx context.Context, rosterID int, member models.RosterMember) (*models.Roster, error) {
	payload, err := json.Marshal(member)
	if err != nil {
		return nil, fmt.Errorf("failed to encode member %s: %w", member.Tag, err)
	}
	// One conditional statement: the push happens only if the row still
	// exists. The capacity gate is deliberately NOT re-checked here.
	query := `
		UPDATE rosters
		SET members = members || $2::jsonb
		WHERE id = $1
		RETURNING` + rosterColumns
	return scanRoster(r.db.QueryRowContext(ctx, query, rosterID, payload))
}

func (r *postgresRosterRepository) PullMembers(ctx context.Context, rosterID int, tags []string) (*models.Roster, error) {
	query := `
		UPDATE rosters
		SET members = COALESCE(
			(SELECT jsonb_agg(m) FROM jsonb_array_elements(members) AS m
			 WHERE NOT (m->>'tag' = ANY($2))),
			'[]'::jsonb)
		WHERE id = $1
		RETURNING` + rosterColumns
	return scanRoster(r.db.QueryRowContext(ctx, query, rosterID, pq.Array(tags)))
}

func (r *postgresRosterRepository) UpdateMemberCategory(ctx context.Context, rosterID int, tag string, categoryID *int) (*models.Roster, error) {
	value, err := json.Marshal(categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode category id: %w", err)
	}
	query := `
		UPDATE rosters
		SET members = (
			SELECT COALESCE(jsonb_agg(
				CASE WHEN m->>'tag' = $2 THEN jsonb_set(m, '{category_id}', $3::jsonb) ELSE m END
			), '[]'::jsonb)
			FROM jsonb_array_elements(members) AS m)
		WHERE id = $1
		RETURNING` + rosterColumns
	return scanRoster(r.db.QueryRowContext(ctx, query, rosterID, tag, value))
}

func (r *postgresRosterRepository) ReplaceMembers(ctx context.Context, rosterID int, members []models.RosterMember) (*models.Roster, error) {
	if members == nil {
		members = make([]models.RosterMember, 0)
	}
	payload, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("failed to encode members: %w", err)
	}
	query := `UPDATE rosters SET members = $2::jsonb WHERE id = $1 RETURNING` + rosterColumns
	return scanRoster(r.db.QueryRowContext(ctx, query, rosterID, payload))
}

func (r *postgresRosterRepository) SetClosed(ctx context.Context, rosterID int, closed bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE rosters SET closed = $2 WHERE id = $1`, rosterID, closed)
	if err != nil {
		return fmt.Errorf("failed to set closed on roster %d: %w", rosterID, err)
	}
	return checkAffectedRows(result, ErrRosterNotFound)
}

func (r *postgresRosterRepository) CloseExpired(ctx context.Context, now time.Time) ([]int, error) {
	query := `
		UPDATE rosters SET closed = TRUE
		WHERE NOT closed AND end_time IS NOT NULL AND end_time < $1
		RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to close expired rosters: %w", err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresRosterRepository) SetWebhook(ctx context.Context, rosterID int, webhookID, webhookToken string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rosters SET webhook_id = $2, webhook_token = $3 WHERE id = $1`,
		rosterID, webhookID, webhookToken,
	)
	if err != nil {
		return fmt.Errorf("failed to set webhook on roster %d: %w", rosterID, err)
	}
	return checkAffectedRows(result, ErrRosterNotFound)
}

func (r *postgresRosterRepository) ClearWebhook(ctx context.Context, rosterID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rosters SET webhook_id = NULL, webhook_token = NULL WHERE id = $1`, rosterID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear webhook on roster %d: %w", rosterID, err)
	}
	return checkAffectedRows(result, ErrRosterNotFound)
}
