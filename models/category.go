package models

import "time"

// RosterCategory is a named sub-group within a guild's rosters (for example
// confirmed/substitute). A category may carry its own role grant.
type RosterCategory struct {
	ID          int       `json:"id" db:"id"`
	GuildID     string    `json:"guild_id" db:"guild_id"`
	Name        string    `json:"name" db:"name"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Order       int       `json:"order" db:"sort_order"`
	RoleID      *string   `json:"role_id,omitempty" db:"role_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
