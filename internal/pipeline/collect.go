package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/sportsdata"
)

// fragmentCount is how many fragments stage one attempts.
const fragmentCount = 6

// collect runs stage one. The fixture fragment is the primary one: without
// it nothing downstream can run, so its failure is fatal. Every other
// fragment is best effort.
func (o *Orchestrator) collect(ctx context.Context, sessionID, fixtureID string, tracker *progress.Tracker) (sportsdata.FixtureMeta, error) {
	tracker.StartCollect()

	raw, err := o.data.Fixture(ctx, fixtureID)
	if err != nil {
		return sportsdata.FixtureMeta{}, fmt.Errorf("fixture: %w", err)
	}
	meta, err := sportsdata.ParseFixtureMeta(raw)
	if err != nil {
		return sportsdata.FixtureMeta{}, err
	}
	if err := o.store.SetFragment(ctx, sessionID, "fixture", raw); err != nil {
		return sportsdata.FixtureMeta{}, err
	}
	tracker.FragmentDone("fixture")

	o.collectOptional(ctx, sessionID, tracker, "statistics", func() (json.RawMessage, error) {
		return o.data.Statistics(ctx, fixtureID)
	})
	o.collectOptional(ctx, sessionID, tracker, "lineups", func() (json.RawMessage, error) {
		return o.data.Lineups(ctx, fixtureID)
	})
	o.collectOptional(ctx, sessionID, tracker, "injuries", func() (json.RawMessage, error) {
		return o.data.Injuries(ctx, fixtureID)
	})
	o.collectOptional(ctx, sessionID, tracker, "h2h", func() (json.RawMessage, error) {
		return o.data.HeadToHead(ctx, meta.HomeID, meta.AwayID)
	})
	o.collectOptional(ctx, sessionID, tracker, "standings", func() (json.RawMessage, error) {
		return o.fetchStandings(ctx, meta)
	})
	return meta, nil
}

// collectOptional fetches one best-effort fragment. A failure only costs the
// signals that wanted this data; progress advances either way.
func (o *Orchestrator) collectOptional(ctx context.Context, sessionID string, tracker *progress.Tracker, name string, fetch func() (json.RawMessage, error)) {
	raw, err := fetch()
	if err != nil {
		log.Printf("pipeline: session %s: skipping fragment %s: %v", sessionID, name, err)
	} else if err := o.store.SetFragment(ctx, sessionID, name, raw); err != nil {
		log.Printf("pipeline: session %s: store fragment %s: %v", sessionID, name, err)
	}
	tracker.FragmentDone(name)
}

// fetchStandings fetches the league table, retrying once with a fallback
// season when the subscription plan does not cover the fixture's season. The
// plan restriction message itself usually names the covered seasons.
func (o *Orchestrator) fetchStandings(ctx context.Context, meta sportsdata.FixtureMeta) (json.RawMessage, error) {
	raw, err := o.data.Standings(ctx, meta.LeagueID, meta.Season)
	var planErr *sportsdata.PlanRestrictionError
	if !errors.As(err, &planErr) {
		return raw, err
	}

	season := fallbackSeasonFromDetail(planErr.Detail)
	if season == 0 {
		season = o.fallbackSeason
	}
	if season == 0 || season == meta.Season {
		return nil, err
	}
	log.Printf("pipeline: standings for season %d restricted, retrying with %d", meta.Season, season)
	return o.data.Standings(ctx, meta.LeagueID, season)
}

// fallbackSeasonFromDetail pulls the last plausible year out of a plan
// restriction message like "try from 2021 to 2023".
func fallbackSeasonFromDetail(detail string) int {
	season := 0
	for _, tok := range strings.FieldsFunc(detail, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if n >= 1900 && n <= 2999 {
			season = n
		}
	}
	return season
}
