package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/pressbox/internal/blueprint"
	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/session"
	"github.com/zulandar/pressbox/internal/sportsdata"
)

const fixtureRaw = `[{
	"fixture": {"id": 12345, "date": "2026-03-14T15:00:00+00:00"},
	"league": {"id": 39, "name": "Premier League", "season": 2025},
	"teams": {
		"home": {"id": 42, "name": "Arsenal"},
		"away": {"id": 49, "name": "Chelsea"}
	}
}]`

type fakeData struct {
	mu             sync.Mutex
	failFixture    bool
	failFragments  map[string]bool
	standingsErr   error
	standingsCalls []int
	fixtureCalls   int
}

func (f *fakeData) Fixture(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	f.mu.Lock()
	f.fixtureCalls++
	f.mu.Unlock()
	if f.failFixture {
		return nil, &sportsdata.ServiceError{Endpoint: "/fixtures", Status: 500}
	}
	return json.RawMessage(fixtureRaw), nil
}

func (f *fakeData) fragment(name string) (json.RawMessage, error) {
	if f.failFragments[name] {
		return nil, &sportsdata.ServiceError{Endpoint: "/" + name, Status: 500}
	}
	return json.RawMessage(fmt.Sprintf(`[{"fragment":%q}]`, name)), nil
}

func (f *fakeData) Statistics(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return f.fragment("statistics")
}

func (f *fakeData) Lineups(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return f.fragment("lineups")
}

func (f *fakeData) Injuries(ctx context.Context, fixtureID string) (json.RawMessage, error) {
	return f.fragment("injuries")
}

func (f *fakeData) HeadToHead(ctx context.Context, homeID, awayID int) (json.RawMessage, error) {
	return f.fragment("h2h")
}

func (f *fakeData) Standings(ctx context.Context, league, season int) (json.RawMessage, error) {
	f.mu.Lock()
	f.standingsCalls = append(f.standingsCalls, season)
	first := len(f.standingsCalls) == 1
	f.mu.Unlock()
	if first && f.standingsErr != nil {
		return nil, f.standingsErr
	}
	return f.fragment("standings")
}

type fakeCompletion struct {
	mu            sync.Mutex
	failSignals   map[string]bool
	signalCalls   map[string]int
	mergedCats    []string
	failMerge     map[string]bool
	synthesizeErr error
	synthCalls    int
	chatAnswer    string
}

func (f *fakeCompletion) Signal(ctx context.Context, req completion.SignalRequest) (completion.SignalResult, error) {
	f.mu.Lock()
	if f.signalCalls == nil {
		f.signalCalls = make(map[string]int)
	}
	f.signalCalls[req.Signal]++
	f.mu.Unlock()
	if f.failSignals[req.Signal] {
		return completion.SignalResult{}, errors.New("model unavailable")
	}
	return completion.SignalResult{
		Insights:   []string{"insight for " + req.Signal},
		Narrative:  "narrative for " + req.Signal,
		Confidence: 0.5,
		Tag:        req.Signal,
	}, nil
}

func (f *fakeCompletion) MergeCategory(ctx context.Context, req completion.CategoryRequest) (completion.CategoryResult, error) {
	f.mu.Lock()
	f.mergedCats = append(f.mergedCats, req.CategoryID)
	f.mu.Unlock()
	if f.failMerge[req.CategoryID] {
		return completion.CategoryResult{}, errors.New("merge failed")
	}
	return completion.CategoryResult{
		Sections:      []completion.Section{{Heading: req.Title, Body: "merged body"}},
		TalkingPoints: []string{"point"},
	}, nil
}

func (f *fakeCompletion) Synthesize(ctx context.Context, req completion.SynthesisRequest) (completion.FinalReport, error) {
	f.mu.Lock()
	f.synthCalls++
	f.mu.Unlock()
	if f.synthesizeErr != nil {
		return completion.FinalReport{}, f.synthesizeErr
	}
	return completion.FinalReport{
		Title:    fmt.Sprintf("%s vs %s", req.HomeTeam, req.AwayTeam),
		Sections: []completion.Section{{Heading: "Overview", Body: "the match"}},
	}, nil
}

func (f *fakeCompletion) Chat(ctx context.Context, req completion.ChatRequest) (string, error) {
	if f.chatAnswer == "" {
		return "", errors.New("no answer")
	}
	return f.chatAnswer, nil
}

// twoByTwo is a compact plan: two categories of two signals each.
func twoByTwo() blueprint.Blueprint {
	return blueprint.Blueprint{Categories: []blueprint.Category{
		{ID: "alpha", Title: "Alpha", Signals: []blueprint.Signal{
			{Name: "s1", Focus: "f1", Requires: []string{"fixture", "statistics"}},
			{Name: "s2", Focus: "f2", Requires: []string{"fixture"}},
		}},
		{ID: "beta", Title: "Beta", Signals: []blueprint.Signal{
			{Name: "s3", Focus: "f3", Requires: []string{"fixture", "h2h"}},
			{Name: "s4", Focus: "f4", Requires: []string{"fixture", "standings"}},
		}},
	}}
}

func newTestOrchestrator(data *fakeData, comp *fakeCompletion) (*Orchestrator, *session.MemoryStore) {
	store := session.NewMemoryStore(time.Hour)
	o := New(Opts{
		Store:      store,
		Data:       data,
		Completion: comp,
		Blueprint:  twoByTwo(),
		Workers:    2,
	})
	return o, store
}

func runToEnd(t *testing.T, o *Orchestrator) (*session.Session, []progress.Update, error) {
	t.Helper()
	ctx := context.Background()
	sess, err := o.CreateSession(ctx, "12345")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var mu sync.Mutex
	var updates []progress.Update
	sink := func(u progress.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}
	runErr := o.Run(ctx, sess.ID, sink)

	final, err := o.store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get after run: %v", err)
	}
	return final, updates, runErr
}

func TestRun_OneSignalFailure_CompletesWithPartials(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{failSignals: map[string]bool{"s3": true}}
	o, _ := newTestOrchestrator(data, comp)

	sess, updates, err := runToEnd(t, o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sess.Status != session.StatusCompleted {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusCompleted)
	}
	if len(sess.PartialResults) != 3 {
		t.Errorf("len(PartialResults) = %d, want 3", len(sess.PartialResults))
	}
	if _, ok := sess.PartialResults["beta.s3"]; ok {
		t.Error("failed signal s3 left a partial result")
	}
	if len(sess.CategoryResults) != 2 {
		t.Errorf("len(CategoryResults) = %d, want 2", len(sess.CategoryResults))
	}
	if len(sess.FinalArtifact) == 0 {
		t.Error("FinalArtifact is empty")
	}

	prev := -1
	for i, u := range updates {
		if u.Percent < prev {
			t.Errorf("update %d: percent %d < previous %d", i, u.Percent, prev)
		}
		prev = u.Percent
	}
	last := updates[len(updates)-1]
	if last.Stage != progress.StageComplete || last.Percent != 100 {
		t.Errorf("last update = %+v, want complete/100", last)
	}
}

func TestRun_EachSignalClaimedOnce(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{}
	o, _ := newTestOrchestrator(data, comp)

	if _, _, err := runToEnd(t, o); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{"s1", "s2", "s3", "s4"} {
		if got := comp.signalCalls[name]; got != 1 {
			t.Errorf("signal %s ran %d times, want 1", name, got)
		}
	}
}

func TestRun_SameSignalNameInTwoCategories(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{}
	store := session.NewMemoryStore(time.Hour)
	o := New(Opts{
		Store:      store,
		Data:       data,
		Completion: comp,
		Blueprint: blueprint.Blueprint{Categories: []blueprint.Category{
			{ID: "alpha", Title: "Alpha", Signals: []blueprint.Signal{
				{Name: "pressure", Focus: "alpha angle", Requires: []string{"fixture"}},
			}},
			{ID: "beta", Title: "Beta", Signals: []blueprint.Signal{
				{Name: "pressure", Focus: "beta angle", Requires: []string{"fixture"}},
			}},
		}},
		Workers: 2,
	})

	ctx := context.Background()
	sess, err := o.CreateSession(ctx, "12345")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := o.Run(ctx, sess.ID, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(final.PartialResults) != 2 {
		t.Fatalf("len(PartialResults) = %d, want 2 (no collision)", len(final.PartialResults))
	}
	for _, key := range []string{"alpha.pressure", "beta.pressure"} {
		if _, ok := final.PartialResults[key]; !ok {
			t.Errorf("missing partial %q", key)
		}
	}
	if len(final.CategoryResults) != 2 {
		t.Errorf("len(CategoryResults) = %d, want 2", len(final.CategoryResults))
	}
}

func TestRun_PrimaryFragmentFailureIsFatal(t *testing.T) {
	data := &fakeData{failFixture: true}
	comp := &fakeCompletion{}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if sess.Status != session.StatusError {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusError)
	}
	if sess.Error == "" {
		t.Error("Error message is empty")
	}
	if len(comp.signalCalls) != 0 {
		t.Errorf("signals ran after fatal collection failure: %v", comp.signalCalls)
	}
	if len(sess.PartialResults) != 0 {
		t.Errorf("len(PartialResults) = %d, want 0", len(sess.PartialResults))
	}
}

func TestRun_BestEffortFragmentFailureIsAbsorbed(t *testing.T) {
	data := &fakeData{failFragments: map[string]bool{"statistics": true, "injuries": true}}
	comp := &fakeCompletion{}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusCompleted)
	}
	if _, ok := sess.CollectedData["statistics"]; ok {
		t.Error("failed fragment statistics stored anyway")
	}
	if _, ok := sess.CollectedData["fixture"]; !ok {
		t.Error("fixture fragment missing")
	}
}

func TestRun_SynthesisFailureIsFatal(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{synthesizeErr: errors.New("model down")}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if sess.Status != session.StatusError {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusError)
	}
	if !strings.Contains(sess.Error, "synthesis") {
		t.Errorf("Error = %q, want synthesis mentioned", sess.Error)
	}
	if len(sess.FinalArtifact) != 0 {
		t.Error("FinalArtifact present after failed synthesis")
	}
	// Earlier results are preserved for inspection.
	if len(sess.PartialResults) != 4 {
		t.Errorf("len(PartialResults) = %d, want 4", len(sess.PartialResults))
	}
}

func TestRun_EmptyCategorySkipped(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{failSignals: map[string]bool{"s3": true, "s4": true}}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusCompleted)
	}
	if _, ok := sess.CategoryResults["beta"]; ok {
		t.Error("category beta merged despite having no partials")
	}
	for _, merged := range comp.mergedCats {
		if merged == "beta" {
			t.Error("merge was attempted for empty category beta")
		}
	}
}

func TestRun_FailedMergeSkipsCategory(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{failMerge: map[string]bool{"alpha": true}}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("Status = %q, want %q", sess.Status, session.StatusCompleted)
	}
	if _, ok := sess.CategoryResults["alpha"]; ok {
		t.Error("failed merge left a category result")
	}
	if _, ok := sess.CategoryResults["beta"]; !ok {
		t.Error("surviving category beta missing")
	}
}

func TestRun_StandingsPlanRestrictionFallback(t *testing.T) {
	data := &fakeData{standingsErr: &sportsdata.PlanRestrictionError{
		Endpoint: "/standings",
		Detail:   "Free plans do not have access to this season, try from 2021 to 2023.",
	}}
	comp := &fakeCompletion{}
	o, _ := newTestOrchestrator(data, comp)

	sess, _, err := runToEnd(t, o)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := sess.CollectedData["standings"]; !ok {
		t.Error("standings fragment missing after fallback")
	}
	if len(data.standingsCalls) != 2 {
		t.Fatalf("standings calls = %v, want two", data.standingsCalls)
	}
	if data.standingsCalls[0] != 2025 || data.standingsCalls[1] != 2023 {
		t.Errorf("standings seasons = %v, want [2025 2023]", data.standingsCalls)
	}
}

func TestCreateSession_EmptyFixtureID(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeData{}, &fakeCompletion{})
	_, err := o.CreateSession(context.Background(), "   ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if vErr.Field != "fixture_id" {
		t.Errorf("Field = %q, want %q", vErr.Field, "fixture_id")
	}
}

func TestRun_AlreadyStartedSession(t *testing.T) {
	o, store := newTestOrchestrator(&fakeData{}, &fakeCompletion{})
	ctx := context.Background()
	sess, err := o.CreateSession(ctx, "12345")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.SetStatus(ctx, sess.ID, session.StatusGenerating); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	err = o.Run(ctx, sess.ID, nil)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run = %v, want ErrAlreadyRunning", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != session.StatusGenerating {
		t.Errorf("Status = %q, want %q (losing caller must not disturb the run)", got.Status, session.StatusGenerating)
	}
}

func TestRun_UnknownSession(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeData{}, &fakeCompletion{})
	err := o.Run(context.Background(), "missing", nil)
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Run = %v, want ErrNotFound", err)
	}
}

func TestRun_OnFinishHook(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{}
	store := session.NewMemoryStore(time.Hour)
	var finished *session.Session
	o := New(Opts{
		Store:      store,
		Data:       data,
		Completion: comp,
		Blueprint:  twoByTwo(),
		OnFinish: func(ctx context.Context, sess *session.Session) {
			finished = sess
		},
	})

	ctx := context.Background()
	sess, err := o.CreateSession(ctx, "12345")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := o.Run(ctx, sess.ID, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finished == nil {
		t.Fatal("OnFinish was not called")
	}
	if finished.Status != session.StatusCompleted {
		t.Errorf("hook saw status %q, want %q", finished.Status, session.StatusCompleted)
	}
}

func TestChat_AppendsHistory(t *testing.T) {
	data := &fakeData{}
	comp := &fakeCompletion{chatAnswer: "Arsenal won."}
	o, store := newTestOrchestrator(data, comp)

	ctx := context.Background()
	sess, err := o.CreateSession(ctx, "12345")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := o.Run(ctx, sess.ID, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	answer, err := o.Chat(ctx, sess.ID, "who won?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "Arsenal won." {
		t.Errorf("answer = %q, want %q", answer, "Arsenal won.")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.ChatHistory) != 2 {
		t.Fatalf("len(ChatHistory) = %d, want 2", len(got.ChatHistory))
	}
	if got.ChatHistory[0].Role != "user" || got.ChatHistory[1].Role != "assistant" {
		t.Errorf("chat roles = %q/%q, want user/assistant", got.ChatHistory[0].Role, got.ChatHistory[1].Role)
	}
}

func TestChat_EmptyQuestion(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeData{}, &fakeCompletion{})
	_, err := o.Chat(context.Background(), "any", "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
}

func TestFallbackSeasonFromDetail(t *testing.T) {
	tests := []struct {
		detail string
		want   int
	}{
		{"Free plans do not have access to this season, try from 2021 to 2023.", 2023},
		{"available seasons: 2020", 2020},
		{"no seasons mentioned", 0},
		{"id 123 is out of range", 0},
	}
	for _, tt := range tests {
		if got := fallbackSeasonFromDetail(tt.detail); got != tt.want {
			t.Errorf("fallbackSeasonFromDetail(%q) = %d, want %d", tt.detail, got, tt.want)
		}
	}
}
