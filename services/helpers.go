package services

import (
	"time"

	"github.com/clanops/roster-system/gameapi"
	"github.com/clanops/roster-system/models"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// memberDisplayName prefers the player name and falls back to the tag.
func memberDisplayName(m *models.RosterMember) string {
	if m.Name != "" {
		return m.Name
	}
	return m.Tag
}

// memberFromPlayer builds a roster member snapshot from a freshly fetched
// profile and an optional resolved identity.
func memberFromPlayer(player *gameapi.Player, identity *models.PlayerIdentity, categoryID *int, now time.Time) models.RosterMember {
	member := models.RosterMember{
		Tag:           player.Tag,
		Name:          player.Name,
		CategoryID:    categoryID,
		TownHallLevel: player.TownHallLevel,
		Heroes:        player.HomeHeroLevels(),
		Trophies:      player.Trophies,
		WarPreference: player.WarPreference,
		ClanRole:      player.Role,
		CreatedAt:     now,
	}
	if identity != nil {
		member.UserID = &identity.ID
		member.Username = &identity.Username
		member.DisplayName = &identity.DisplayName
	}
	return member
}

// refreshSnapshot rebuilds the eligibility snapshot of an existing member
// from a new profile fetch, preserving identity, category and signup time.
func refreshSnapshot(existing models.RosterMember, player *gameapi.Player) models.RosterMember {
	existing.Name = player.Name
	existing.TownHallLevel = player.TownHallLevel
	existing.Heroes = player.HomeHeroLevels()
	existing.Trophies = player.Trophies
	existing.WarPreference = player.WarPreference
	existing.ClanRole = player.Role
	return existing
}

// categoriesByID builds a typed lookup map. Lookups on this map tolerate
// missing entries: a member whose category vanished is treated as having
// none.
func categoriesByID(categories []*models.RosterCategory) map[int]*models.RosterCategory {
	byID := make(map[int]*models.RosterCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	return byID
}
