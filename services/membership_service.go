package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clanops/roster-system/gameapi"
	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// RoleSyncer is the role-convergence capability the mutator drives:
// immediate narrow deltas for single changes, a coalesced bulk pass for
// batch edits.
type RoleSyncer interface {
	ApplyDelta(ctx context.Context, guildID, userID string, grants, revokes []string)
	StartBulkSync(roster *models.Roster, categories []*models.RosterCategory) bool
}

// ChangelogPublisher delivers an audit record for a membership change.
type ChangelogPublisher interface {
	Publish(ctx context.Context, roster *models.Roster, action models.RosterAction, members []models.RosterMember, actor *models.PlayerIdentity, category *models.RosterCategory)
}

// LiveBroadcaster pushes membership events to connected listeners.
type LiveBroadcaster interface {
	BroadcastToRoster(rosterID int, eventType string, payload interface{})
}

// SignupResult is the discriminated outcome of a mutation attempt. A
// rejection is not an error: Ok is false and Message carries the reason.
type SignupResult struct {
	Ok      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Roster  *models.Roster `json:"roster,omitempty"`
}

type SkippedImport struct {
	Tag    string `json:"tag"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Roster  *models.Roster        `json:"roster"`
	Added   []models.RosterMember `json:"added"`
	Skipped []SkippedImport       `json:"skipped"`
}

// MembershipService applies accepted membership mutations atomically and
// computes the resulting role-grant deltas.
type MembershipService struct {
	rosterRepo   repositories.RosterRepository
	categoryRepo repositories.CategoryRepository
	linkRepo     repositories.LinkRepository
	profiles     gameapi.ProfileSource
	validator    *SignupValidator
	roles        RoleSyncer
	changelog    ChangelogPublisher
	live         LiveBroadcaster
	logger       *slog.Logger
	now          func() time.Time
}

func NewMembershipService(
	rosterRepo repositories.RosterRepository,
	categoryRepo repositories.CategoryRepository,
	linkRepo repositories.LinkRepository,
	profiles gameapi.ProfileSource,
	validator *SignupValidator,
	roles RoleSyncer,
	changelog ChangelogPublisher,
	live LiveBroadcaster,
	logger *slog.Logger,
) *MembershipService {
	return &MembershipService{
		rosterRepo:   rosterRepo,
		categoryRepo: categoryRepo,
		linkRepo:     linkRepo,
		profiles:     profiles,
		validator:    validator,
		roles:        roles,
		changelog:    changelog,
		live:         live,
		logger:       logger,
		now:          time.Now,
	}
}

// resolveIdentity looks the tag up in the identity directory. Any failure
// degrades the candidate to unlinked instead of failing the operation.
func (s *MembershipService) resolveIdentity(ctx context.Context, guildID, tag string) *models.PlayerIdentity {
	link, err := s.linkRepo.GetByTag(ctx, guildID, tag)
	if err != nil {
		if !errors.Is(err, repositories.ErrLinkNotFound) {
			s.logger.Warn("identity lookup failed, treating player as unlinked",
				slog.String("tag", tag), slog.Any("error", err))
		}
		return nil
	}
	return &models.PlayerIdentity{ID: link.UserID, Username: link.Username, DisplayName: link.DisplayName}
}

// resolveCategory validates a category reference against the roster's guild.
// A nil categoryID resolves to no category.
func (s *MembershipService) resolveCategory(ctx context.Context, roster *models.Roster, categoryID *int) (*models.RosterCategory, bool) {
	if categoryID == nil {
		return nil, true
	}
	category, err := s.categoryRepo.GetByID(ctx, *categoryID)
	if err != nil || category.GuildID != roster.GuildID {
		return nil, false
	}
	return category, true
}

// Signup adds a player on an operator's behalf.
func (s *MembershipService) Signup(ctx context.Context, rosterID int, tag string, actor *models.PlayerIdentity, categoryID *int) (SignupResult, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "this roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	identity := s.resolveIdentity(ctx, roster.GuildID, tag)
	return s.signup(ctx, roster, tag, identity, actor, categoryID, models.ActionAddPlayer)
}

// SelfSignup adds one of the acting user's own accounts. A tag claimed by a
// different user is rejected; an unclaimed tag is attributed to the actor.
func (s *MembershipService) SelfSignup(ctx context.Context, rosterID int, tag string, actor models.PlayerIdentity, categoryID *int) (SignupResult, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "this roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	if linked := s.resolveIdentity(ctx, roster.GuildID, tag); linked != nil && linked.ID != actor.ID {
		return SignupResult{Message: fmt.Sprintf("%s is linked to another account", tag)}, nil
	}
	return s.signup(ctx, roster, tag, &actor, &actor, categoryID, models.ActionSignup)
}

// signup runs the gate chain against a point-in-time snapshot, then appends
// the member with a single atomic push. The capacity gate is not re-checked
// at write time, so two interleaved signups may both land; this is accepted
// in exchange for never serializing admissions.
func (s *MembershipService) signup(ctx context.Context, roster *models.Roster, tag string, identity, actor *models.PlayerIdentity, categoryID *int, action models.RosterAction) (SignupResult, error) {
	player, err := s.profiles.GetPlayer(ctx, tag)
	if err != nil {
		if errors.Is(err, gameapi.ErrPlayerNotFound) {
			return SignupResult{Message: fmt.Sprintf("no player found for tag %s", tag)}, nil
		}
		return SignupResult{Message: fmt.Sprintf("failed to fetch the profile of %s, try again later", tag)}, nil
	}

	category, ok := s.resolveCategory(ctx, roster, categoryID)
	if !ok {
		return SignupResult{Message: "the selected group no longer exists"}, nil
	}

	candidate := memberFromPlayer(player, identity, categoryID, s.now())
	verdict, err := s.validator.Evaluate(ctx, roster, candidate, identity, false)
	if err != nil {
		return SignupResult{}, err
	}
	if !verdict.Ok {
		return SignupResult{Message: verdict.Message}, nil
	}

	updated, err := s.rosterRepo.AppendMember(ctx, roster.ID, candidate)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			// Roster deleted between read and write; benign race.
			return SignupResult{Message: "this roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to append member %s: %w", tag, err)
	}

	if identity != nil {
		grants := make([]string, 0, 2)
		if roster.RoleID != nil {
			grants = append(grants, *roster.RoleID)
		}
		if category != nil && category.RoleID != nil {
			grants = append(grants, *category.RoleID)
		}
		if len(grants) > 0 {
			s.roles.ApplyDelta(ctx, roster.GuildID, identity.ID, grants, nil)
		}
	}

	s.changelog.Publish(ctx, updated, action, []models.RosterMember{candidate}, actor, category)
	s.broadcast(updated, "MEMBER_ADDED", candidate)
	return SignupResult{Ok: true, Roster: updated}, nil
}

// OptOut removes the given tags in one atomic pull. Tags not on the roster
// are ignored; with no matching tags at all the call is a no-op returning
// the roster unchanged. Roles are revoked only when no remaining member of
// the same identity still warrants them.
func (s *MembershipService) OptOut(ctx context.Context, rosterID int, tags []string, actor *models.PlayerIdentity, isSelf bool) (*models.Roster, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}

	removed := make([]models.RosterMember, 0, len(tags))
	removedTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		if member := roster.FindMember(tag); member != nil {
			removed = append(removed, *member)
			removedTags = append(removedTags, tag)
		}
	}
	if len(removed) == 0 {
		return roster, nil
	}

	updated, err := s.rosterRepo.PullMembers(ctx, rosterID, removedTags)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("failed to remove members: %w", err)
	}

	s.revokeUnwarranted(ctx, updated, removed)

	action := models.ActionRemovePlayer
	if isSelf {
		action = models.ActionOptOut
	}
	s.changelog.Publish(ctx, updated, action, removed, actor, nil)
	s.broadcast(updated, "MEMBERS_REMOVED", removedTags)
	return updated, nil
}

// revokeUnwarranted recomputes, from remaining membership, which of the
// removed members' roles are still justified and queues narrow revocations
// for the rest.
func (s *MembershipService) revokeUnwarranted(ctx context.Context, roster *models.Roster, removed []models.RosterMember) {
	categories, err := s.categoryRepo.ListByGuild(ctx, roster.GuildID)
	if err != nil {
		s.logger.Warn("failed to list categories for role revocation",
			slog.String("guild_id", roster.GuildID), slog.Any("error", err))
		categories = nil
	}
	byID := categoriesByID(categories)

	remainingByUser := make(map[string][]*models.RosterMember)
	for i := range roster.Members {
		if roster.Members[i].UserID != nil {
			uid := *roster.Members[i].UserID
			remainingByUser[uid] = append(remainingByUser[uid], &roster.Members[i])
		}
	}

	handled := make(map[string]struct{})
	for i := range removed {
		member := &removed[i]
		if member.UserID == nil {
			continue
		}
		uid := *member.UserID
		if _, done := handled[uid]; done {
			continue
		}
		handled[uid] = struct{}{}

		remaining := remainingByUser[uid]
		revokes := make([]string, 0, 2)
		if roster.RoleID != nil && len(remaining) == 0 {
			revokes = append(revokes, *roster.RoleID)
		}
		for j := range removed {
			other := &removed[j]
			if other.UserID == nil || *other.UserID != uid || other.CategoryID == nil {
				continue
			}
			category, ok := byID[*other.CategoryID]
			if !ok || category.RoleID == nil {
				continue
			}
			stillThere := false
			for _, rem := range remaining {
				if rem.CategoryID != nil && *rem.CategoryID == category.ID {
					stillThere = true
					break
				}
			}
			if !stillThere {
				revokes = append(revokes, *category.RoleID)
			}
		}
		if len(revokes) > 0 {
			s.roles.ApplyDelta(ctx, roster.GuildID, uid, nil, revokes)
		}
	}
}

// SwapCategory moves one member between groups with a single targeted field
// update and a narrow role delta.
func (s *MembershipService) SwapCategory(ctx context.Context, rosterID int, tag string, newCategoryID *int, actor *models.PlayerIdentity) (SignupResult, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "this roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	member := roster.FindMember(tag)
	if member == nil {
		return SignupResult{Message: fmt.Sprintf("%s is not on this roster", tag)}, nil
	}

	oldCategory, _ := s.resolveCategory(ctx, roster, member.CategoryID)
	newCategory, ok := s.resolveCategory(ctx, roster, newCategoryID)
	if !ok {
		return SignupResult{Message: "the selected group no longer exists"}, nil
	}

	updated, err := s.rosterRepo.UpdateMemberCategory(ctx, rosterID, tag, newCategoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "this roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to swap category for %s: %w", tag, err)
	}

	if member.UserID != nil {
		var grants, revokes []string
		if oldCategory != nil && oldCategory.RoleID != nil {
			revokes = append(revokes, *oldCategory.RoleID)
		}
		if newCategory != nil && newCategory.RoleID != nil {
			grants = append(grants, *newCategory.RoleID)
		}
		if len(grants) > 0 || len(revokes) > 0 {
			s.roles.ApplyDelta(ctx, roster.GuildID, *member.UserID, grants, revokes)
		}
	}

	s.changelog.Publish(ctx, updated, models.ActionChangeGroup, []models.RosterMember{*member}, actor, newCategory)
	s.broadcast(updated, "MEMBER_MOVED", tag)
	return SignupResult{Ok: true, Roster: updated}, nil
}

// SwapRoster moves a member from one roster to another. Eligibility against
// the target is checked as a dry run, since the member still sits on the
// source roster during validation.
func (s *MembershipService) SwapRoster(ctx context.Context, fromRosterID, toRosterID int, tag string, actor *models.PlayerIdentity, categoryID *int) (SignupResult, error) {
	source, err := s.rosterRepo.GetByID(ctx, fromRosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "the source roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to load roster %d: %w", fromRosterID, err)
	}
	target, err := s.rosterRepo.GetByID(ctx, toRosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "the target roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to load roster %d: %w", toRosterID, err)
	}

	member := source.FindMember(tag)
	if member == nil {
		return SignupResult{Message: fmt.Sprintf("%s is not on this roster", tag)}, nil
	}

	category, ok := s.resolveCategory(ctx, target, categoryID)
	if !ok {
		return SignupResult{Message: "the selected group no longer exists"}, nil
	}

	candidate := *member
	candidate.CategoryID = categoryID
	verdict, err := s.validator.Evaluate(ctx, target, candidate, candidate.Identity(), true)
	if err != nil {
		return SignupResult{}, err
	}
	if !verdict.Ok {
		return SignupResult{Message: verdict.Message}, nil
	}

	updatedSource, err := s.rosterRepo.PullMembers(ctx, fromRosterID, []string{tag})
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "the source roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to remove %s from roster %d: %w", tag, fromRosterID, err)
	}
	s.revokeUnwarranted(ctx, updatedSource, []models.RosterMember{*member})

	updatedTarget, err := s.rosterRepo.AppendMember(ctx, toRosterID, candidate)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return SignupResult{Message: "the target roster no longer exists"}, nil
		}
		return SignupResult{}, fmt.Errorf("failed to append %s to roster %d: %w", tag, toRosterID, err)
	}

	if identity := candidate.Identity(); identity != nil {
		grants := make([]string, 0, 2)
		if target.RoleID != nil {
			grants = append(grants, *target.RoleID)
		}
		if category != nil && category.RoleID != nil {
			grants = append(grants, *category.RoleID)
		}
		if len(grants) > 0 {
			s.roles.ApplyDelta(ctx, target.GuildID, identity.ID, grants, nil)
		}
	}

	s.changelog.Publish(ctx, updatedTarget, models.ActionChangeRoster, []models.RosterMember{candidate}, actor, category)
	s.broadcast(updatedSource, "MEMBERS_REMOVED", []string{tag})
	s.broadcast(updatedTarget, "MEMBER_ADDED", candidate)
	return SignupResult{Ok: true, Roster: updatedTarget}, nil
}

// UpdateMembers re-fetches every member's profile and rewrites the
// eligibility snapshots in one write. A failed fetch keeps that member's
// old snapshot; the rest of the batch proceeds. A bulk role sync is
// triggered afterwards.
func (s *MembershipService) UpdateMembers(ctx context.Context, rosterID int) (*models.Roster, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	if len(roster.Members) == 0 {
		return roster, nil
	}

	tags := make([]string, len(roster.Members))
	for i := range roster.Members {
		tags[i] = roster.Members[i].Tag
	}

	byTag := make(map[string]*gameapi.Player, len(tags))
	for _, result := range s.profiles.GetPlayers(ctx, tags) {
		if result.Err != nil {
			s.logger.Warn("profile refresh failed for member, keeping stale snapshot",
				slog.String("tag", result.Tag), slog.Any("error", result.Err))
			continue
		}
		byTag[result.Tag] = result.Player
	}

	refreshed := make([]models.RosterMember, len(roster.Members))
	for i, member := range roster.Members {
		if player, ok := byTag[member.Tag]; ok {
			refreshed[i] = refreshSnapshot(member, player)
		} else {
			refreshed[i] = member
		}
	}

	updated, err := s.rosterRepo.ReplaceMembers(ctx, rosterID, refreshed)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("failed to store refreshed members: %w", err)
	}

	s.triggerBulkSync(updated)
	s.broadcast(updated, "ROSTER_REFRESHED", nil)
	return updated, nil
}

// ImportMembers runs the full gate chain per tag and appends the accepted
// ones. Per-member failures (profile fetch, validation) skip only that
// member.
func (s *MembershipService) ImportMembers(ctx context.Context, rosterID int, tags []string, categoryID *int, actor *models.PlayerIdentity) (ImportResult, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return ImportResult{}, ErrRosterNotFound
		}
		return ImportResult{}, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	category, ok := s.resolveCategory(ctx, roster, categoryID)
	if !ok {
		return ImportResult{}, ErrCategoryNotFound
	}

	result := ImportResult{
		Roster:  roster,
		Added:   make([]models.RosterMember, 0, len(tags)),
		Skipped: make([]SkippedImport, 0),
	}

	current := roster
	for _, fetched := range s.profiles.GetPlayers(ctx, tags) {
		if fetched.Err != nil {
			result.Skipped = append(result.Skipped, SkippedImport{Tag: fetched.Tag, Reason: "failed to fetch profile"})
			continue
		}
		identity := s.resolveIdentity(ctx, roster.GuildID, fetched.Tag)
		candidate := memberFromPlayer(fetched.Player, identity, categoryID, s.now())

		verdict, err := s.validator.Evaluate(ctx, current, candidate, identity, false)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedImport{Tag: fetched.Tag, Reason: "validation unavailable"})
			continue
		}
		if !verdict.Ok {
			result.Skipped = append(result.Skipped, SkippedImport{Tag: fetched.Tag, Reason: verdict.Message})
			continue
		}

		updated, err := s.rosterRepo.AppendMember(ctx, rosterID, candidate)
		if err != nil {
			if errors.Is(err, repositories.ErrRosterNotFound) {
				return result, ErrRosterNotFound
			}
			result.Skipped = append(result.Skipped, SkippedImport{Tag: fetched.Tag, Reason: "failed to store member"})
			continue
		}
		current = updated
		result.Added = append(result.Added, candidate)
	}
	result.Roster = current

	if len(result.Added) > 0 {
		s.changelog.Publish(ctx, current, models.ActionAddPlayer, result.Added, actor, category)
		s.triggerBulkSync(current)
		s.broadcast(current, "MEMBERS_IMPORTED", len(result.Added))
	}
	return result, nil
}

// TriggerBulkSync kicks a bulk convergence pass for the roster. The pass runs
// in the background and is coalesced by the engine; the return value only
// reports whether this trigger started a run.
func (s *MembershipService) TriggerBulkSync(ctx context.Context, rosterID int) (bool, error) {
	roster, err := s.rosterRepo.GetByID(ctx, rosterID)
	if err != nil {
		if errors.Is(err, repositories.ErrRosterNotFound) {
			return false, ErrRosterNotFound
		}
		return false, fmt.Errorf("failed to load roster %d: %w", rosterID, err)
	}
	categories, err := s.categoryRepo.ListByGuild(ctx, roster.GuildID)
	if err != nil {
		return false, fmt.Errorf("failed to list categories: %w", err)
	}
	return s.roles.StartBulkSync(roster, categories), nil
}

func (s *MembershipService) triggerBulkSync(roster *models.Roster) {
	categories, err := s.categoryRepo.ListByGuild(context.Background(), roster.GuildID)
	if err != nil {
		s.logger.Warn("failed to list categories for bulk sync",
			slog.String("guild_id", roster.GuildID), slog.Any("error", err))
		return
	}
	s.roles.StartBulkSync(roster, categories)
}

func (s *MembershipService) broadcast(roster *models.Roster, eventType string, payload interface{}) {
	if s.live != nil {
		s.live.BroadcastToRoster(roster.ID, eventType, payload)
	}
}
