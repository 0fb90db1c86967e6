package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clanops/roster-system/models"
)

func newRosterFixture(rosters *fakeRosterRepo, categories *fakeCategoryRepo) (*RosterService, *fakeRoleSyncer) {
	roles := &fakeRoleSyncer{}
	s := NewRosterService(rosters, categories, roles, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testClock }
	return s, roles
}

func TestCreateAppliesDefaults(t *testing.T) {
	repo := newFakeRosterRepo()
	s, _ := newRosterFixture(repo, newFakeCategoryRepo())

	roster := &models.Roster{GuildID: "guild-1", Name: "Fresh", MaxMembers: models.DefaultRosterCap}
	if err := s.Create(context.Background(), roster); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if roster.Kind != models.KindGeneral {
		t.Fatalf("kind should default to GENERAL, got %s", roster.Kind)
	}
	if roster.ID == 0 {
		t.Fatal("expected an assigned ID")
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newRosterFixture(newFakeRosterRepo(), newFakeCategoryRepo())

	if err := s.Create(context.Background(), &models.Roster{GuildID: "guild-1", Name: "   "}); !errors.Is(err, ErrRosterNameRequired) {
		t.Fatalf("expected ErrRosterNameRequired, got %v", err)
	}

	start := testClock.Add(time.Hour)
	end := testClock
	bad := &models.Roster{GuildID: "guild-1", Name: "Backwards", StartTime: &start, EndTime: &end}
	if err := s.Create(context.Background(), bad); !errors.Is(err, ErrRosterInvalidWindow) {
		t.Fatalf("expected ErrRosterInvalidWindow, got %v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	existing := openRoster()
	s, _ := newRosterFixture(newFakeRosterRepo(existing), newFakeCategoryRepo())

	duplicate := &models.Roster{GuildID: "guild-1", Name: existing.Name}
	if err := s.Create(context.Background(), duplicate); !errors.Is(err, ErrRosterNameConflict) {
		t.Fatalf("expected ErrRosterNameConflict, got %v", err)
	}
}

func TestGetRecomputesClosedFromClock(t *testing.T) {
	roster := openRoster()
	end := testClock.Add(-time.Hour)
	roster.EndTime = &end
	// The persistent flag lags until the sweep runs.
	roster.Closed = false

	s, _ := newRosterFixture(newFakeRosterRepo(roster), newFakeCategoryRepo())

	got, err := s.Get(context.Background(), roster.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.Closed {
		t.Fatal("a roster past its end time must read as closed")
	}
}

func TestOpenClearsPastEndTime(t *testing.T) {
	roster := openRoster()
	end := testClock.Add(-time.Hour)
	roster.EndTime = &end
	roster.Closed = true

	repo := newFakeRosterRepo(roster)
	s, _ := newRosterFixture(repo, newFakeCategoryRepo())

	reopened, err := s.Open(context.Background(), roster.ID)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if reopened.Closed {
		t.Fatal("reopened roster must not be closed")
	}
	if reopened.EndTime != nil {
		t.Fatal("a past end time must be cleared on reopen, or the roster closes again immediately")
	}
}

func TestOpenKeepsFutureEndTime(t *testing.T) {
	roster := openRoster()
	end := testClock.Add(time.Hour)
	roster.EndTime = &end
	roster.Closed = true

	s, _ := newRosterFixture(newFakeRosterRepo(roster), newFakeCategoryRepo())

	reopened, err := s.Open(context.Background(), roster.ID)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if reopened.EndTime == nil {
		t.Fatal("a future end time must survive reopening")
	}
}

func TestCloseExpiredRostersSweep(t *testing.T) {
	expired := openRoster()
	end := testClock.Add(-time.Minute)
	expired.EndTime = &end

	running := openRoster()
	running.ID = 2
	running.Name = "Still Running"
	futureEnd := testClock.Add(time.Hour)
	running.EndTime = &futureEnd

	repo := newFakeRosterRepo(expired, running)
	s, _ := newRosterFixture(repo, newFakeCategoryRepo())

	if err := s.CloseExpiredRosters(context.Background()); err != nil {
		t.Fatalf("sweep returned error: %v", err)
	}
	if !repo.stored(expired.ID).Closed {
		t.Fatal("expired roster must be persistently closed")
	}
	if repo.stored(running.ID).Closed {
		t.Fatal("running roster must stay open")
	}
}

func TestDeleteRevokesMemberRolesBestEffort(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-roster")
	category := &models.RosterCategory{ID: 1, GuildID: "guild-1", Name: "main", DisplayName: "Main", RoleID: strPtr("role-main")}

	linked, _ := linkedMember("#LINKED", "u1", 14)
	linked.CategoryID = intPtr(1)
	unlinked := models.RosterMember{Tag: "#LONE", Name: "Lone", TownHallLevel: 12}
	roster.Members = []models.RosterMember{linked, unlinked}

	repo := newFakeRosterRepo(roster)
	s, roles := newRosterFixture(repo, newFakeCategoryRepo(category))

	if err := s.Delete(context.Background(), roster.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), roster.ID); err == nil {
		t.Fatal("roster should be gone")
	}

	if len(roles.deltas) != 1 {
		t.Fatalf("expected one revocation delta for the linked member, got %+v", roles.deltas)
	}
	delta := roles.deltas[0]
	if delta.userID != "u1" || len(delta.revokes) != 2 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestListFiltersRecomputeClosed(t *testing.T) {
	open := openRoster()
	expired := openRoster()
	expired.ID = 2
	expired.Name = "Expired"
	end := testClock.Add(-time.Minute)
	expired.EndTime = &end

	s, _ := newRosterFixture(newFakeRosterRepo(open, expired), newFakeCategoryRepo())

	rosters, err := s.List(context.Background(), "guild-1", "", false)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	byID := make(map[int]*models.Roster, len(rosters))
	for _, r := range rosters {
		byID[r.ID] = r
	}
	if byID[1].Closed {
		t.Fatal("open roster read as closed")
	}
	if !byID[2].Closed {
		t.Fatal("expired roster must read as closed even before the sweep")
	}
}
