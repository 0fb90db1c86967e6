package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/models"
)

// Delay between per-identity role writes during a bulk pass, to stay under
// the platform rate limit.
const roleSyncThrottle = 250 * time.Millisecond

// RoleSyncEngine converges guild role grants with roster membership. Bulk
// passes hold a per-roster busy marker for their whole duration; a trigger
// arriving while a pass runs is dropped, not queued. Callers may only rely
// on the next pass that starts after the current one completing to reflect
// the latest membership.
type RoleSyncEngine struct {
	guild    guild.Client
	logger   *slog.Logger
	throttle time.Duration

	mu   sync.Mutex
	busy map[int]struct{}
}

func NewRoleSyncEngine(client guild.Client, logger *slog.Logger) *RoleSyncEngine {
	return &RoleSyncEngine{
		guild:    client,
		logger:   logger,
		throttle: roleSyncThrottle,
		busy:     make(map[int]struct{}),
	}
}

func (e *RoleSyncEngine) tryAcquire(rosterID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.busy[rosterID]; running {
		return false
	}
	e.busy[rosterID] = struct{}{}
	return true
}

func (e *RoleSyncEngine) release(rosterID int) {
	e.mu.Lock()
	delete(e.busy, rosterID)
	e.mu.Unlock()
}

// StartBulkSync reserves the roster's busy marker and runs a convergence
// pass in the background. It returns false immediately when a pass for the
// same roster is already running (the trigger is coalesced); callers get the
// decision without waiting out the throttled pass itself.
func (e *RoleSyncEngine) StartBulkSync(roster *models.Roster, categories []*models.RosterCategory) bool {
	if !e.tryAcquire(roster.ID) {
		e.logger.Info("role sync already running, trigger dropped", slog.Int("roster_id", roster.ID))
		return false
	}
	go func() {
		defer e.release(roster.ID)
		e.converge(context.Background(), roster, categories)
	}()
	return true
}

// converge recomputes and applies every managed role grant for every known
// guild identity against current membership. A failed per-identity lookup or
// write is skipped, never aborting the rest of the batch.
func (e *RoleSyncEngine) converge(ctx context.Context, roster *models.Roster, categories []*models.RosterCategory) {
	required := e.requiredRoles(roster, categories)
	managed := e.manageableRoles(ctx, roster, categories)
	if len(managed) == 0 {
		return
	}

	members, err := e.guild.ListMembers(ctx, roster.GuildID)
	if err != nil {
		e.logger.Error("failed to list guild members for role sync",
			slog.Int("roster_id", roster.ID), slog.Any("error", err))
		return
	}

	// Every known identity is visited, including those with zero required
	// roles, so revocations are caught.
	for _, member := range members {
		if e.syncMemberRoles(ctx, roster.GuildID, member, required[member.UserID], managed) {
			time.Sleep(e.throttle)
		}
	}
}

// syncMemberRoles applies the symmetric difference between held and required
// roles for one identity, restricted to manageable roles, as one combined
// write. It reports whether a write was attempted.
func (e *RoleSyncEngine) syncMemberRoles(ctx context.Context, guildID string, member guild.Member, required map[string]struct{}, managed map[string]struct{}) bool {
	held := make(map[string]struct{}, len(member.RoleIDs))
	for _, id := range member.RoleIDs {
		held[id] = struct{}{}
	}

	next := make([]string, 0, len(member.RoleIDs)+len(required))
	changed := false
	for _, id := range member.RoleIDs {
		if _, isManaged := managed[id]; isManaged {
			if _, want := required[id]; !want {
				changed = true
				continue
			}
		}
		next = append(next, id)
	}
	for id := range required {
		if _, isManaged := managed[id]; !isManaged {
			continue
		}
		if _, has := held[id]; !has {
			next = append(next, id)
			changed = true
		}
	}
	if !changed {
		return false
	}

	if err := e.guild.SetMemberRoles(ctx, guildID, member.UserID, next); err != nil {
		e.logger.Warn("failed to write role set, skipping identity",
			slog.String("guild_id", guildID), slog.String("user_id", member.UserID), slog.Any("error", err))
	}
	return true
}

// ApplyDelta is the targeted path for single signups, opt-outs and category
// swaps: only the specific role IDs involved are touched, immediately.
// Unmanageable roles are silently left alone; a lookup or write failure is
// logged and swallowed.
func (e *RoleSyncEngine) ApplyDelta(ctx context.Context, guildID, userID string, grants, revokes []string) {
	member, err := e.guild.GetMember(ctx, guildID, userID)
	if err != nil {
		e.logger.Warn("failed to fetch member for role delta",
			slog.String("guild_id", guildID), slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	held := make(map[string]struct{}, len(member.RoleIDs))
	for _, id := range member.RoleIDs {
		held[id] = struct{}{}
	}

	granted := make(map[string]struct{}, len(grants))
	for _, id := range grants {
		granted[id] = struct{}{}
	}

	remove := make(map[string]struct{}, len(revokes))
	changed := false
	for _, id := range revokes {
		if _, has := held[id]; !has {
			continue
		}
		// A role on both sides of the delta nets out to keeping it.
		if _, regrant := granted[id]; regrant {
			continue
		}
		if !e.canManage(ctx, guildID, id) {
			continue
		}
		remove[id] = struct{}{}
		changed = true
	}

	next := make([]string, 0, len(member.RoleIDs)+len(grants))
	for _, id := range member.RoleIDs {
		if _, drop := remove[id]; !drop {
			next = append(next, id)
		}
	}
	for _, id := range grants {
		if _, has := held[id]; has {
			continue
		}
		if !e.canManage(ctx, guildID, id) {
			continue
		}
		next = append(next, id)
		changed = true
	}
	if !changed {
		return
	}

	if err := e.guild.SetMemberRoles(ctx, guildID, userID, next); err != nil {
		e.logger.Warn("failed to apply role delta",
			slog.String("guild_id", guildID), slog.String("user_id", userID), slog.Any("error", err))
	}
}

// requiredRoles builds the identity -> required role set map from current
// membership: the roster role plus each member's category role.
func (e *RoleSyncEngine) requiredRoles(roster *models.Roster, categories []*models.RosterCategory) map[string]map[string]struct{} {
	byID := categoriesByID(categories)
	required := make(map[string]map[string]struct{})

	for i := range roster.Members {
		member := &roster.Members[i]
		if member.UserID == nil {
			continue
		}
		set, ok := required[*member.UserID]
		if !ok {
			set = make(map[string]struct{})
			required[*member.UserID] = set
		}
		if roster.RoleID != nil {
			set[*roster.RoleID] = struct{}{}
		}
		if member.CategoryID != nil {
			if category, ok := byID[*member.CategoryID]; ok && category.RoleID != nil {
				set[*category.RoleID] = struct{}{}
			}
		}
	}
	return required
}

// manageableRoles filters the roles this sync could touch down to those the
// caller has authority over. Unmanageable roles are left untouched without
// an error.
func (e *RoleSyncEngine) manageableRoles(ctx context.Context, roster *models.Roster, categories []*models.RosterCategory) map[string]struct{} {
	candidates := make([]string, 0, len(categories)+1)
	if roster.RoleID != nil {
		candidates = append(candidates, *roster.RoleID)
	}
	for _, category := range categories {
		if category.RoleID != nil {
			candidates = append(candidates, *category.RoleID)
		}
	}

	managed := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		if e.canManage(ctx, roster.GuildID, id) {
			managed[id] = struct{}{}
		}
	}
	return managed
}

func (e *RoleSyncEngine) canManage(ctx context.Context, guildID, roleID string) bool {
	ok, err := e.guild.CanManageRole(ctx, guildID, roleID)
	if err != nil {
		e.logger.Warn("failed to check role manageability",
			slog.String("guild_id", guildID), slog.String("role_id", roleID), slog.Any("error", err))
		return false
	}
	return ok
}
