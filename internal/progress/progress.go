// Package progress maps pipeline activity onto a single 0-100 percentage
// and pushes updates to an injected sink.
package progress

import (
	"fmt"
	"sync"
)

// Pipeline stages, in execution order.
const (
	StageCollect   = "collect"
	StageSignals   = "signals"
	StageMerge     = "merge"
	StageSynthesis = "synthesis"
	StageComplete  = "complete"
)

// Fixed percent band each stage occupies.
const (
	collectEnd   = 20
	signalsEnd   = 70
	mergeEnd     = 90
	synthesisPct = 90
	completePct  = 100
)

// Update is one progress event.
type Update struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Task    string `json:"task,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Sink receives progress updates. A nil sink discards them.
type Sink func(Update)

// Tracker converts stage milestones into monotonic percentages. Safe for
// concurrent use; the signal stage reports from multiple workers.
type Tracker struct {
	mu      sync.Mutex
	sink    Sink
	percent int

	fragmentsDone   int
	fragmentsTotal  int
	signalsDone     int
	signalsTotal    int
	categoriesDone  int
	categoriesTotal int
}

// NewTracker creates a Tracker sized to the run's workload.
func NewTracker(sink Sink, fragments, signals, categories int) *Tracker {
	if sink == nil {
		sink = func(Update) {}
	}
	return &Tracker{
		sink:            sink,
		fragmentsTotal:  max(fragments, 1),
		signalsTotal:    max(signals, 1),
		categoriesTotal: max(categories, 1),
	}
}

// StartCollect announces the beginning of data collection.
func (t *Tracker) StartCollect() {
	t.emit(StageCollect, 0, "collecting fixture data", "", 0, t.fragmentsTotal)
}

// FragmentDone records one collected fragment.
func (t *Tracker) FragmentDone(name string) {
	t.mu.Lock()
	t.fragmentsDone++
	done, total := t.fragmentsDone, t.fragmentsTotal
	t.mu.Unlock()

	pct := collectEnd * done / total
	t.emit(StageCollect, pct, fmt.Sprintf("collected %s", name), name, done, total)
}

// SignalDone records one finished analysis signal.
func (t *Tracker) SignalDone(name string) {
	t.mu.Lock()
	t.signalsDone++
	done, total := t.signalsDone, t.signalsTotal
	t.mu.Unlock()

	pct := collectEnd + (signalsEnd-collectEnd)*done/total
	t.emit(StageSignals, pct, fmt.Sprintf("analyzed %s", name), name, done, total)
}

// CategoryDone records one merged category.
func (t *Tracker) CategoryDone(id string) {
	t.mu.Lock()
	t.categoriesDone++
	done, total := t.categoriesDone, t.categoriesTotal
	t.mu.Unlock()

	pct := signalsEnd + (mergeEnd-signalsEnd)*done/total
	t.emit(StageMerge, pct, fmt.Sprintf("merged %s", id), id, done, total)
}

// SynthesisStarted announces the final writing step.
func (t *Tracker) SynthesisStarted() {
	t.emit(StageSynthesis, synthesisPct, "writing final report", "", 0, 0)
}

// Complete announces the finished run.
func (t *Tracker) Complete() {
	t.emit(StageComplete, completePct, "report ready", "", 0, 0)
}

// Percent returns the last reported percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// emit clamps pct to be non-decreasing and pushes the update.
func (t *Tracker) emit(stage string, pct int, message, task string, current, total int) {
	t.mu.Lock()
	if pct < t.percent {
		pct = t.percent
	}
	t.percent = pct
	t.mu.Unlock()

	t.sink(Update{
		Stage:   stage,
		Percent: pct,
		Message: message,
		Task:    task,
		Current: current,
		Total:   total,
	})
}
