package models

// RosterAction identifies a membership-changing action for the changelog.
type RosterAction string

const (
	ActionSignup       RosterAction = "SIGNUP"
	ActionOptOut       RosterAction = "OPT_OUT"
	ActionAddPlayer    RosterAction = "ADD_PLAYER"
	ActionRemovePlayer RosterAction = "REMOVE_PLAYER"
	ActionChangeGroup  RosterAction = "CHANGE_GROUP"
	ActionChangeRoster RosterAction = "CHANGE_ROSTER"
)

// Label is the human-readable heading used on changelog records.
func (a RosterAction) Label() string {
	switch a {
	case ActionSignup:
		return "Signed up"
	case ActionOptOut:
		return "Opted out"
	case ActionAddPlayer:
		return "Player added"
	case ActionRemovePlayer:
		return "Player removed"
	case ActionChangeGroup:
		return "Group changed"
	case ActionChangeRoster:
		return "Roster changed"
	}
	return string(a)
}

// Color is the accent color tag attached to changelog records.
func (a RosterAction) Color() int {
	switch a {
	case ActionSignup, ActionAddPlayer:
		return 0x2ECC71
	case ActionOptOut, ActionRemovePlayer:
		return 0xE74C3C
	case ActionChangeGroup, ActionChangeRoster:
		return 0xF1C40F
	}
	return 0x95A5A6
}

// GuildSettings stores per-guild configuration, including the guild-wide
// default changelog sink used when a roster has none of its own.
type GuildSettings struct {
	GuildID             string  `json:"guild_id" db:"guild_id"`
	ChangelogChannelID  *string `json:"changelog_channel_id,omitempty" db:"changelog_channel_id"`
	DefaultWebhookID    *string `json:"default_webhook_id,omitempty" db:"default_webhook_id"`
	DefaultWebhookToken *string `json:"-" db:"default_webhook_token"`
}

// PlayerLink maps a player tag to the guild user who claimed it.
type PlayerLink struct {
	Tag         string `json:"tag" db:"tag"`
	GuildID     string `json:"guild_id" db:"guild_id"`
	UserID      string `json:"user_id" db:"user_id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
}
