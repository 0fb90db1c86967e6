package services

import (
	"context"
	"errors"
	"testing"

	"github.com/clanops/roster-system/models"
)

func TestLinkRequiresTag(t *testing.T) {
	s := NewLinkService(newFakeLinkRepo(), newFakeProfileSource())

	err := s.Link(context.Background(), &models.PlayerLink{Tag: "  ", GuildID: "guild-1", UserID: "u1"})
	if !errors.Is(err, ErrLinkTagRequired) {
		t.Fatalf("expected ErrLinkTagRequired, got %v", err)
	}
}

func TestLinkVerifiesTagAgainstProfileSource(t *testing.T) {
	repo := newFakeLinkRepo()
	s := NewLinkService(repo, newFakeProfileSource(testPlayer("#AAA", 14)))

	err := s.Link(context.Background(), &models.PlayerLink{Tag: "#GHOST", GuildID: "guild-1", UserID: "u1"})
	if !errors.Is(err, ErrUnknownPlayerTag) {
		t.Fatalf("expected ErrUnknownPlayerTag, got %v", err)
	}

	link := &models.PlayerLink{Tag: "#AAA", GuildID: "guild-1", UserID: "u1", Username: "user-u1"}
	if err := s.Link(context.Background(), link); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}
	if link.DisplayName != "Player #AAA" {
		t.Fatalf("display name should default to the player name, got %q", link.DisplayName)
	}

	stored, err := repo.GetByTag(context.Background(), "guild-1", "#AAA")
	if err != nil || stored.UserID != "u1" {
		t.Fatalf("link not stored: %+v, %v", stored, err)
	}
}

func TestLinkMovesClaimToNewUser(t *testing.T) {
	repo := newFakeLinkRepo(testLink("guild-1", "#AAA", "u1"))
	s := NewLinkService(repo, newFakeProfileSource(testPlayer("#AAA", 14)))

	if err := s.Link(context.Background(), &models.PlayerLink{Tag: "#AAA", GuildID: "guild-1", UserID: "u2"}); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	stored, err := repo.GetByTag(context.Background(), "guild-1", "#AAA")
	if err != nil || stored.UserID != "u2" {
		t.Fatalf("claim should move to the new user, got %+v, %v", stored, err)
	}

	links, err := s.ListByUser(context.Background(), "guild-1", "u1")
	if err != nil || len(links) != 0 {
		t.Fatalf("previous owner should hold no links, got %+v, %v", links, err)
	}
}

func TestUnlinkMapsMissingLink(t *testing.T) {
	s := NewLinkService(newFakeLinkRepo(), newFakeProfileSource())

	if err := s.Unlink(context.Background(), "guild-1", "#AAA"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestUnlinkReleasesClaim(t *testing.T) {
	repo := newFakeLinkRepo(testLink("guild-1", "#AAA", "u1"))
	s := NewLinkService(repo, newFakeProfileSource())

	if err := s.Unlink(context.Background(), "guild-1", "#AAA"); err != nil {
		t.Fatalf("Unlink returned error: %v", err)
	}
	if _, err := repo.GetByTag(context.Background(), "guild-1", "#AAA"); err == nil {
		t.Fatal("link should be gone")
	}
}
