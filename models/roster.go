package models

import "time"

// DefaultRosterCap is the member limit applied when a roster is created
// without an explicit one.
const DefaultRosterCap = 65

type RosterKind string

const (
	KindGeneral RosterKind = "GENERAL"
	KindWar     RosterKind = "WAR"
	KindCWL     RosterKind = "CWL"
	KindEsports RosterKind = "ESPORTS"
)

// Roster is a time-boxed signup list scoped to one guild. Members live in a
// JSONB column so a single signup or opt-out is one atomic statement.
type Roster struct {
	ID         int        `json:"id" db:"id"`
	GuildID    string     `json:"guild_id" db:"guild_id"`
	Name       string     `json:"name" db:"name"`
	Kind       RosterKind `json:"kind" db:"kind"`
	ClanTag    *string    `json:"clan_tag,omitempty" db:"clan_tag"`
	ClanName   *string    `json:"clan_name,omitempty" db:"clan_name"`
	ClanLeague *string    `json:"clan_league,omitempty" db:"clan_league"`

	MaxMembers         int  `json:"max_members" db:"max_members"`
	MinTownHall        *int `json:"min_town_hall,omitempty" db:"min_town_hall"`
	MaxTownHall        *int `json:"max_town_hall,omitempty" db:"max_town_hall"`
	MinHeroLevels      *int `json:"min_hero_levels,omitempty" db:"min_hero_levels"`
	AllowMultiSignup   bool `json:"allow_multi_signup" db:"allow_multi_signup"`
	AllowUnlinked      bool `json:"allow_unlinked" db:"allow_unlinked"`
	MaxAccountsPerUser *int `json:"max_accounts_per_user,omitempty" db:"max_accounts_per_user"`

	RoleID *string `json:"role_id,omitempty" db:"role_id"`

	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	Closed    bool       `json:"closed" db:"closed"`

	// Changelog delivery sink provisioned for this roster; overrides the
	// guild-wide default when set.
	WebhookID    *string `json:"webhook_id,omitempty" db:"webhook_id"`
	WebhookToken *string `json:"-" db:"webhook_token"`

	// Display-only listing preferences.
	Layout *string `json:"layout,omitempty" db:"layout"`
	SortBy *string `json:"sort_by,omitempty" db:"sort_by"`

	Members   []RosterMember `json:"members" db:"-"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// IsClosed reports whether the roster no longer accepts signups, either
// explicitly or because its end time has passed. The persistent flag is
// caught up by the periodic CloseExpiredRosters sweep.
func (r *Roster) IsClosed(now time.Time) bool {
	if r.Closed {
		return true
	}
	return r.EndTime != nil && now.After(*r.EndTime)
}

// IsNotYetOpen reports whether signups have not started.
func (r *Roster) IsNotYetOpen(now time.Time) bool {
	return r.StartTime != nil && now.Before(*r.StartTime)
}

// FindMember returns the member with the given tag, or nil.
func (r *Roster) FindMember(tag string) *RosterMember {
	for i := range r.Members {
		if r.Members[i].Tag == tag {
			return &r.Members[i]
		}
	}
	return nil
}

// PlayerIdentity is a resolved guild user behind a player tag.
type PlayerIdentity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// RosterMember is one signed-up account. The eligibility-relevant fields are
// a snapshot taken at signup or refresh time, not a live view.
type RosterMember struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`

	UserID      *string `json:"user_id,omitempty"`
	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`

	CategoryID *int `json:"category_id,omitempty"`

	TownHallLevel int            `json:"town_hall_level"`
	Heroes        map[string]int `json:"heroes,omitempty"`
	Trophies      int            `json:"trophies"`
	ClanRole      *string        `json:"clan_role,omitempty"`
	WarPreference *string        `json:"war_preference,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Identity returns the linked guild user, or nil for an unlinked member.
func (m *RosterMember) Identity() *PlayerIdentity {
	if m.UserID == nil {
		return nil
	}
	id := PlayerIdentity{ID: *m.UserID}
	if m.Username != nil {
		id.Username = *m.Username
	}
	if m.DisplayName != nil {
		id.DisplayName = *m.DisplayName
	}
	return &id
}

// HeroLevelSum is the combined level of the member's home-village heroes.
func (m *RosterMember) HeroLevelSum() int {
	total := 0
	for _, lvl := range m.Heroes {
		total += lvl
	}
	return total
}
