package gameapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrPlayerNotFound = errors.New("player not found")

// Hero is one hero on a player profile. Only home-village heroes count
// toward roster eligibility.
type Hero struct {
	Name    string `json:"name"`
	Level   int    `json:"level"`
	Village string `json:"village"`
}

type PlayerClan struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// Player is the profile snapshot fetched from the game API.
type Player struct {
	Tag           string      `json:"tag"`
	Name          string      `json:"name"`
	TownHallLevel int         `json:"townHallLevel"`
	Trophies      int         `json:"trophies"`
	WarPreference *string     `json:"warPreference,omitempty"`
	Role          *string     `json:"role,omitempty"`
	Heroes        []Hero      `json:"heroes,omitempty"`
	Clan          *PlayerClan `json:"clan,omitempty"`
}

// HomeHeroLevels returns the home-village hero levels keyed by hero name.
func (p *Player) HomeHeroLevels() map[string]int {
	levels := make(map[string]int, len(p.Heroes))
	for _, h := range p.Heroes {
		if h.Village == "home" {
			levels[h.Name] = h.Level
		}
	}
	return levels
}

// PlayerResult is one item of a batch fetch. A failed lookup carries its
// error here instead of failing the whole batch.
type PlayerResult struct {
	Tag    string
	Player *Player
	Err    error
}

// ProfileSource fetches player profile snapshots.
type ProfileSource interface {
	GetPlayer(ctx context.Context, tag string) (*Player, error)
	GetPlayers(ctx context.Context, tags []string) []PlayerResult
}

const batchFetchConcurrency = 8

type httpProfileSource struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPProfileSource(baseURL, token string) ProfileSource {
	return &httpProfileSource{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *httpProfileSource) GetPlayer(ctx context.Context, tag string) (*Player, error) {
	endpoint := fmt.Sprintf("%s/players/%s", s.baseURL, url.PathEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build player request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player %s: %w", tag, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrPlayerNotFound
	default:
		return nil, fmt.Errorf("game api returned status %d for player %s", resp.StatusCode, tag)
	}

	var player Player
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("failed to decode player %s: %w", tag, err)
	}
	return &player, nil
}

// GetPlayers fetches profiles concurrently and returns one result per tag in
// input order. Lookup failures are per-item; the group itself never errors.
func (s *httpProfileSource) GetPlayers(ctx context.Context, tags []string) []PlayerResult {
	results := make([]PlayerResult, len(tags))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchFetchConcurrency)
	for i, tag := range tags {
		i, tag := i, tag
		g.Go(func() error {
			player, err := s.GetPlayer(ctx, tag)
			results[i] = PlayerResult{Tag: tag, Player: player, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
