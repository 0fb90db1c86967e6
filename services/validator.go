package services

import (
	"context"
	"fmt"
	"time"

	"github.com/clanops/roster-system/models"
	"github.com/clanops/roster-system/repositories"
)

// ValidationResult is the outcome of the signup gate chain. A rejection
// carries the first failing gate's message; it is a result, never an error.
type ValidationResult struct {
	Ok      bool
	Message string
}

func accept() ValidationResult {
	return ValidationResult{Ok: true}
}

func reject(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Ok: false, Message: fmt.Sprintf(format, args...)}
}

// SignupValidator runs the ordered, short-circuiting eligibility gate chain
// against a point-in-time roster snapshot. All gates are read-only; nothing
// is mutated here. An error return means a gate could not be evaluated at
// all (storage failure), not that the candidate was rejected.
type SignupValidator struct {
	rosterRepo repositories.RosterRepository
	now        func() time.Time
}

func NewSignupValidator(rosterRepo repositories.RosterRepository) *SignupValidator {
	return &SignupValidator{rosterRepo: rosterRepo, now: time.Now}
}

// Evaluate decides whether candidate may join roster. The cross-roster
// exclusivity gate is skipped on dry runs so a move between rosters can be
// pre-checked while the candidate still sits on the source roster.
func (v *SignupValidator) Evaluate(ctx context.Context, roster *models.Roster, candidate models.RosterMember, identity *models.PlayerIdentity, dryRun bool) (ValidationResult, error) {
	now := v.now()

	if roster.IsNotYetOpen(now) {
		return reject("this roster is not open yet (opens %s)", roster.StartTime.UTC().Format(time.RFC1123)), nil
	}
	if roster.IsClosed(now) {
		return reject("this roster is closed"), nil
	}
	if !roster.AllowUnlinked && identity == nil {
		return reject("%s is not linked to any account", candidate.Tag), nil
	}
	if len(roster.Members) >= roster.MaxMembers {
		return reject("roster is full (maximum %d members)", roster.MaxMembers), nil
	}
	if roster.MaxAccountsPerUser != nil && identity != nil {
		owned := 0
		for i := range roster.Members {
			if roster.Members[i].UserID != nil && *roster.Members[i].UserID == identity.ID {
				owned++
			}
		}
		if owned >= *roster.MaxAccountsPerUser {
			return reject("you can sign up with a maximum of %d accounts", *roster.MaxAccountsPerUser), nil
		}
	}
	if roster.MinTownHall != nil && candidate.TownHallLevel < *roster.MinTownHall {
		return reject("this roster requires a minimum Town Hall level of %d", *roster.MinTownHall), nil
	}
	if roster.MaxTownHall != nil && candidate.TownHallLevel > *roster.MaxTownHall {
		return reject("this roster requires a maximum Town Hall level of %d", *roster.MaxTownHall), nil
	}
	if roster.MinHeroLevels != nil && candidate.HeroLevelSum() < *roster.MinHeroLevels {
		return reject("this roster requires a minimum combined hero level of %d", *roster.MinHeroLevels), nil
	}
	if roster.FindMember(candidate.Tag) != nil {
		return reject("%s is already signed up to this roster", memberDisplayName(&candidate)), nil
	}

	if dryRun {
		return accept(), nil
	}
	return v.checkExclusivity(ctx, roster, candidate)
}

// checkExclusivity enforces the cross-roster rule: within one guild and one
// roster kind, a tag may sit on several open rosters only when every
// involved roster opts into multi-signup.
func (v *SignupValidator) checkExclusivity(ctx context.Context, roster *models.Roster, candidate models.RosterMember) (ValidationResult, error) {
	others, err := v.rosterRepo.List(ctx, repositories.RosterFilter{
		GuildID:  roster.GuildID,
		Kind:     roster.Kind,
		OpenOnly: true,
	})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to check other rosters: %w", err)
	}

	for _, other := range others {
		if other.ID == roster.ID || other.FindMember(candidate.Tag) == nil {
			continue
		}
		if !roster.AllowMultiSignup {
			return reject("%s is already signed up for roster %q (multiple signups are not allowed)", memberDisplayName(&candidate), other.Name), nil
		}
		if !other.AllowMultiSignup {
			return reject("%s is already signed up for roster %q, which does not allow multiple signups", memberDisplayName(&candidate), other.Name), nil
		}
	}
	return accept(), nil
}
