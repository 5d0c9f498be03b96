package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// Fixture fetches the core fixture record by id.
func (c *Client) Fixture(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return c.Get(ctx, "/fixtures", map[string]string{"id": fixtureID})
}

// Statistics fetches per-team match statistics.
func (c *Client) Statistics(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return c.Get(ctx, "/fixtures/statistics", map[string]string{"fixture": fixtureID})
}

// Lineups fetches starting lineups and formations.
func (c *Client) Lineups(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return c.Get(ctx, "/fixtures/lineups", map[string]string{"fixture": fixtureID})
}

// Injuries fetches the injury list for the fixture.
func (c *Client) Injuries(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return c.Get(ctx, "/injuries", map[string]string{"fixture": fixtureID})
}

// HeadToHead fetches the historical record between two teams.
func (c *Client) HeadToHead(ctx context.Context, homeID, awayID int) (json.RawMessage, error) {
	h2h := fmt.Sprintf("%d-%d", homeID, awayID)
	return c.Get(ctx, "/fixtures/headtohead", map[string]string{"h2h": h2h})
}

// Standings fetches the league table for a season.
func (c *Client) Standings(ctx context.Context, league, season int) (json.RawMessage, error) {
	return c.Get(ctx, "/standings", map[string]string{
		"league": strconv.Itoa(league),
		"season": strconv.Itoa(season),
	})
}

// FixtureMeta is the slice of the fixture record the pipeline needs to drive
// the remaining fetches.
type FixtureMeta struct {
	HomeID   int
	AwayID   int
	HomeName string
	AwayName string
	LeagueID int
	Season   int
	League   string
	Kickoff  string
}

// ParseFixtureMeta extracts FixtureMeta from a /fixtures response array. An
// empty array means the fixture id does not exist.
func ParseFixtureMeta(raw json.RawMessage) (FixtureMeta, error) {
	var rows []struct {
		Fixture struct {
			ID   int    `json:"id"`
			Date string `json:"date"`
		} `json:"fixture"`
		League struct {
			ID     int    `json:"id"`
			Name   string `json:"name"`
			Season int    `json:"season"`
		} `json:"league"`
		Teams struct {
			Home struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"home"`
			Away struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"away"`
		} `json:"teams"`
	}
	if err := sonic.Unmarshal(raw, &rows); err != nil {
		return FixtureMeta{}, fmt.Errorf("sportsdata: parse fixture: %w", err)
	}
	if len(rows) == 0 {
		return FixtureMeta{}, fmt.Errorf("sportsdata: fixture not found")
	}
	r := rows[0]
	return FixtureMeta{
		HomeID:   r.Teams.Home.ID,
		AwayID:   r.Teams.Away.ID,
		HomeName: r.Teams.Home.Name,
		AwayName: r.Teams.Away.Name,
		LeagueID: r.League.ID,
		Season:   r.League.Season,
		League:   r.League.Name,
		Kickoff:  r.Fixture.Date,
	}, nil
}
