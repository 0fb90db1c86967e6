package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/models"
)

func newTestEngine(client *fakeGuildClient) *RoleSyncEngine {
	engine := NewRoleSyncEngine(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine.throttle = 0
	return engine
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func equalRoleSets(a, b []string) bool {
	a, b = sorted(a), sorted(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitForRelease blocks until the roster's busy marker frees up again.
func waitForRelease(t *testing.T, engine *RoleSyncEngine, rosterID int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !engine.tryAcquire(rosterID) {
		if time.Now().After(deadline) {
			t.Fatal("busy marker was never released")
		}
		time.Sleep(time.Millisecond)
	}
	engine.release(rosterID)
}

func TestBulkSyncConvergesGrantsAndRevocations(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-roster")
	category := &models.RosterCategory{ID: 1, GuildID: "guild-1", Name: "main", DisplayName: "Main", RoleID: strPtr("role-main")}

	onRoster, _ := linkedMember("#ON", "u1", 14)
	onRoster.CategoryID = intPtr(1)
	roster.Members = []models.RosterMember{onRoster}

	client := newFakeGuildClient(
		// Needs both managed roles granted; holds an unrelated role.
		&guild.Member{UserID: "u1", RoleIDs: []string{"role-unrelated"}},
		// Not on the roster but still holds a managed role; must lose it.
		&guild.Member{UserID: "u2", RoleIDs: []string{"role-roster", "role-unrelated"}},
		// Nothing to do.
		&guild.Member{UserID: "u3", RoleIDs: []string{"role-unrelated"}},
	)
	engine := newTestEngine(client)

	engine.converge(context.Background(), roster, []*models.RosterCategory{category})

	if got := client.heldRoles("u1"); !equalRoleSets(got, []string{"role-unrelated", "role-roster", "role-main"}) {
		t.Fatalf("u1 roles after sync = %v", got)
	}
	if got := client.heldRoles("u2"); !equalRoleSets(got, []string{"role-unrelated"}) {
		t.Fatalf("u2 should lose the managed role, holds %v", got)
	}
	if got := client.heldRoles("u3"); !equalRoleSets(got, []string{"role-unrelated"}) {
		t.Fatalf("u3 should be untouched, holds %v", got)
	}

	// u3 required no write at all.
	if len(client.roleWrites) != 2 {
		t.Fatalf("expected exactly 2 role writes, got %d", len(client.roleWrites))
	}
}

func TestStartBulkSyncDropsTriggerWhileRunning(t *testing.T) {
	roster := openRoster()
	client := newFakeGuildClient()
	engine := newTestEngine(client)

	if !engine.tryAcquire(roster.ID) {
		t.Fatal("busy marker should be free")
	}
	defer engine.release(roster.ID)

	if started := engine.StartBulkSync(roster, nil); started {
		t.Fatal("a trigger during a running pass must be dropped, not queued")
	}

	other := openRoster()
	other.ID = 99
	if started := engine.StartBulkSync(other, nil); !started {
		t.Fatal("the busy marker is per roster; other rosters must still sync")
	}
	waitForRelease(t, engine, other.ID)
}

func TestStartBulkSyncRunsPassInBackground(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-roster")
	member, _ := linkedMember("#ON", "u1", 14)
	roster.Members = []models.RosterMember{member}

	client := newFakeGuildClient(&guild.Member{UserID: "u1"})
	client.listGate = make(chan struct{})
	engine := newTestEngine(client)

	if started := engine.StartBulkSync(roster, nil); !started {
		t.Fatal("expected the trigger to start a pass")
	}
	// The trigger returned while the pass is still blocked on the member
	// list; the busy marker stays held for the pass's whole duration.
	if engine.tryAcquire(roster.ID) {
		engine.release(roster.ID)
		t.Fatal("busy marker should be held by the running pass")
	}

	close(client.listGate)
	waitForRelease(t, engine, roster.ID)
	if got := client.heldRoles("u1"); !equalRoleSets(got, []string{"role-roster"}) {
		t.Fatalf("background pass did not converge, u1 holds %v", got)
	}
}

func TestBulkSyncLeavesUnmanageableRolesAlone(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-above-bot")

	member, _ := linkedMember("#ON", "u1", 14)
	roster.Members = []models.RosterMember{member}

	client := newFakeGuildClient(&guild.Member{UserID: "u1"})
	client.unmanageable["role-above-bot"] = struct{}{}
	engine := newTestEngine(client)

	engine.converge(context.Background(), roster, nil)
	if len(client.roleWrites) != 0 {
		t.Fatalf("unmanageable roles must be skipped silently, got writes %+v", client.roleWrites)
	}
}

func TestBulkSyncSkipsFailedWriteAndContinues(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-roster")
	first, _ := linkedMember("#A", "u1", 14)
	second, _ := linkedMember("#B", "u2", 14)
	roster.Members = []models.RosterMember{first, second}

	client := newFakeGuildClient(
		&guild.Member{UserID: "u1"},
		&guild.Member{UserID: "u2"},
	)
	client.setRolesErr["u1"] = errors.New("missing permissions")
	engine := newTestEngine(client)

	engine.converge(context.Background(), roster, nil)
	if got := client.heldRoles("u2"); !equalRoleSets(got, []string{"role-roster"}) {
		t.Fatalf("the batch must continue past a failed write, u2 holds %v", got)
	}
}

func TestStartBulkSyncReleasesBusyAfterListFailure(t *testing.T) {
	roster := openRoster()
	roster.RoleID = strPtr("role-roster")
	client := newFakeGuildClient()
	client.listErr = errors.New("guild unavailable")
	engine := newTestEngine(client)

	if started := engine.StartBulkSync(roster, nil); !started {
		t.Fatal("a failing pass still consumes the trigger")
	}
	waitForRelease(t, engine, roster.ID)
}

func TestApplyDeltaTouchesOnlyNamedRoles(t *testing.T) {
	client := newFakeGuildClient(&guild.Member{UserID: "u1", RoleIDs: []string{"role-old", "role-keep"}})
	engine := newTestEngine(client)

	engine.ApplyDelta(context.Background(), "guild-1", "u1", []string{"role-new"}, []string{"role-old"})

	if got := client.heldRoles("u1"); !equalRoleSets(got, []string{"role-keep", "role-new"}) {
		t.Fatalf("roles after delta = %v", got)
	}
	if len(client.roleWrites) != 1 {
		t.Fatalf("expected one combined write, got %d", len(client.roleWrites))
	}
}

func TestApplyDeltaKeepsRoleGrantedAndRevokedTogether(t *testing.T) {
	client := newFakeGuildClient(&guild.Member{UserID: "u1", RoleIDs: []string{"role-shared", "role-old"}})
	engine := newTestEngine(client)

	// A category swap where old and new categories share a role emits it on
	// both sides of the delta; the member must keep it.
	engine.ApplyDelta(context.Background(), "guild-1", "u1", []string{"role-shared"}, []string{"role-shared", "role-old"})

	if got := client.heldRoles("u1"); !equalRoleSets(got, []string{"role-shared"}) {
		t.Fatalf("only the genuinely unwarranted role should go, u1 holds %v", got)
	}
	if len(client.roleWrites) != 1 {
		t.Fatalf("expected one combined write, got %d", len(client.roleWrites))
	}
}

func TestApplyDeltaNoopWithoutEffectiveChange(t *testing.T) {
	client := newFakeGuildClient(&guild.Member{UserID: "u1", RoleIDs: []string{"role-have"}})
	engine := newTestEngine(client)

	// Granting a held role and revoking an absent one changes nothing.
	engine.ApplyDelta(context.Background(), "guild-1", "u1", []string{"role-have"}, []string{"role-absent"})

	if len(client.roleWrites) != 0 {
		t.Fatalf("no-op delta must not write, got %+v", client.roleWrites)
	}
}

func TestApplyDeltaSkipsUnmanageableRoles(t *testing.T) {
	client := newFakeGuildClient(&guild.Member{UserID: "u1", RoleIDs: []string{"role-locked"}})
	client.unmanageable["role-locked"] = struct{}{}
	client.unmanageable["role-wanted"] = struct{}{}
	engine := newTestEngine(client)

	engine.ApplyDelta(context.Background(), "guild-1", "u1", []string{"role-wanted"}, []string{"role-locked"})

	if len(client.roleWrites) != 0 {
		t.Fatalf("unmanageable roles must be left alone, got %+v", client.roleWrites)
	}
	if got := client.heldRoles("u1"); !equalRoleSets(got, []string{"role-locked"}) {
		t.Fatalf("held roles changed: %v", got)
	}
}

func TestApplyDeltaSwallowsMemberLookupFailure(t *testing.T) {
	client := newFakeGuildClient()
	engine := newTestEngine(client)

	// Must not panic or write for an unknown member.
	engine.ApplyDelta(context.Background(), "guild-1", "ghost", []string{"role-x"}, nil)
	if len(client.roleWrites) != 0 {
		t.Fatalf("unexpected writes: %+v", client.roleWrites)
	}
}
