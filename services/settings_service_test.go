package services

import (
	"context"
	"errors"
	"testing"

	"github.com/clanops/roster-system/models"
)

func TestSettingsGetReturnsEmptyRowForUnknownGuild(t *testing.T) {
	s := NewSettingsService(newFakeSettingsRepo(), newFakeGuildClient())

	settings, err := s.Get(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if settings.GuildID != "guild-1" || settings.ChangelogChannelID != nil {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestSetChangelogChannelValidatesChannel(t *testing.T) {
	repo := newFakeSettingsRepo()
	client := newFakeGuildClient()
	client.channels["chan-ok"] = true
	s := NewSettingsService(repo, client)

	if _, err := s.SetChangelogChannel(context.Background(), "guild-1", strPtr("chan-missing")); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	settings, err := s.SetChangelogChannel(context.Background(), "guild-1", strPtr("chan-ok"))
	if err != nil {
		t.Fatalf("SetChangelogChannel returned error: %v", err)
	}
	if settings.ChangelogChannelID == nil || *settings.ChangelogChannelID != "chan-ok" {
		t.Fatalf("channel not stored: %+v", settings)
	}
}

func TestSetChangelogChannelClearsWithNil(t *testing.T) {
	repo := newFakeSettingsRepo(&models.GuildSettings{GuildID: "guild-1", ChangelogChannelID: strPtr("chan-old")})
	s := NewSettingsService(repo, newFakeGuildClient())

	settings, err := s.SetChangelogChannel(context.Background(), "guild-1", nil)
	if err != nil {
		t.Fatalf("SetChangelogChannel returned error: %v", err)
	}
	if settings.ChangelogChannelID != nil {
		t.Fatal("nil channel ID must clear the setting")
	}
}
