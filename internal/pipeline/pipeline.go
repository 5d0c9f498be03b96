// Package pipeline orchestrates report generation: collect fixture data,
// fan out analysis signals, merge them per category, synthesize the final
// report. Sessions move pending -> generating -> completed or error.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/pressbox/internal/blueprint"
	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/session"
)

// DefaultWorkers is the signal-stage concurrency when none is configured.
const DefaultWorkers = 2

// ErrAlreadyRunning is returned by Run when another caller has already
// started this session's run.
var ErrAlreadyRunning = errors.New("pipeline: run already started")

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: %s: %s", e.Field, e.Message)
}

// DataSource is the slice of the sports-data client the pipeline calls.
type DataSource interface {
	Fixture(ctx context.Context, fixtureID string) (json.RawMessage, error)
	Statistics(ctx context.Context, fixtureID string) (json.RawMessage, error)
	Lineups(ctx context.Context, fixtureID string) (json.RawMessage, error)
	Injuries(ctx context.Context, fixtureID string) (json.RawMessage, error)
	HeadToHead(ctx context.Context, homeID, awayID int) (json.RawMessage, error)
	Standings(ctx context.Context, league, season int) (json.RawMessage, error)
}

// Orchestrator drives report generation runs. One instance serves the whole
// process; each run keeps its state in the session store.
type Orchestrator struct {
	store          session.Store
	data           DataSource
	completion     completion.Service
	blueprint      blueprint.Blueprint
	workers        int
	fallbackSeason int
	onFinish       func(ctx context.Context, sess *session.Session)
}

// Opts wires an Orchestrator. Store, Data, and Completion are required.
// OnFinish, when set, runs best-effort after a run reaches a terminal state.
type Opts struct {
	Store          session.Store
	Data           DataSource
	Completion     completion.Service
	Blueprint      blueprint.Blueprint
	Workers        int
	FallbackSeason int
	OnFinish       func(ctx context.Context, sess *session.Session)
}

// New creates an Orchestrator.
func New(opts Opts) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	bp := opts.Blueprint
	if len(bp.Categories) == 0 {
		bp = blueprint.Default()
	}
	return &Orchestrator{
		store:          opts.Store,
		data:           opts.Data,
		completion:     opts.Completion,
		blueprint:      bp,
		workers:        workers,
		fallbackSeason: opts.FallbackSeason,
		onFinish:       opts.OnFinish,
	}
}

// CreateSession registers a pending run for a fixture and returns it.
func (o *Orchestrator) CreateSession(ctx context.Context, fixtureID string) (*session.Session, error) {
	fixtureID = strings.TrimSpace(fixtureID)
	if fixtureID == "" {
		return nil, &ValidationError{Field: "fixture_id", Message: "must not be empty"}
	}
	sess := session.New(uuid.NewString(), fixtureID, time.Now())
	if err := o.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Run executes the full pipeline for an existing pending session, reporting
// progress to sink. It returns the error that terminated a failed run;
// per-signal and per-category failures are absorbed along the way.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, sink progress.Sink) error {
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.store.SetStatus(ctx, sessionID, session.StatusGenerating); err != nil {
		// Two callers can race to start the same pending session; the
		// loser's transition fails and the run stays with the winner.
		if errors.Is(err, session.ErrInvalidTransition) {
			return ErrAlreadyRunning
		}
		return err
	}

	tracker := progress.NewTracker(sink, fragmentCount, o.blueprint.TotalSignals(), len(o.blueprint.Categories))

	meta, err := o.collect(ctx, sessionID, sess.FixtureID, tracker)
	if err != nil {
		return o.fail(ctx, sessionID, fmt.Sprintf("data collection failed: %v", err))
	}

	o.runSignals(ctx, sessionID, meta, tracker)
	o.mergeCategories(ctx, sessionID, meta, tracker)

	tracker.SynthesisStarted()
	if err := o.synthesize(ctx, sessionID, meta); err != nil {
		return o.fail(ctx, sessionID, fmt.Sprintf("report synthesis failed: %v", err))
	}

	if err := o.store.SetStatus(ctx, sessionID, session.StatusCompleted); err != nil {
		return err
	}
	tracker.Complete()
	o.finish(ctx, sessionID)
	return nil
}

// fail marks the session failed and returns the terminal error.
func (o *Orchestrator) fail(ctx context.Context, sessionID, message string) error {
	log.Printf("pipeline: session %s failed: %s", sessionID, message)
	if err := o.store.Fail(ctx, sessionID, message); err != nil {
		log.Printf("pipeline: record failure for %s: %v", sessionID, err)
	}
	o.finish(ctx, sessionID)
	return fmt.Errorf("pipeline: %s", message)
}

// finish invokes the terminal hook with a fresh snapshot.
func (o *Orchestrator) finish(ctx context.Context, sessionID string) {
	if o.onFinish == nil {
		return
	}
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("pipeline: snapshot for finish hook: %v", err)
		return
	}
	o.onFinish(ctx, sess)
}
