package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/zulandar/pressbox/internal/blueprint"
	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/sportsdata"
)

type signalTask struct {
	categoryID string
	signal     blueprint.Signal
}

// partialKey qualifies a signal's stored result by its category, so two
// categories reusing a signal name never collide.
func partialKey(categoryID, signal string) string {
	return categoryID + "." + signal
}

// runSignals runs stage two: every signal in the blueprint, claimed from a
// shared index by a small worker pool. A failed signal costs only its own
// partial result.
func (o *Orchestrator) runSignals(ctx context.Context, sessionID string, meta sportsdata.FixtureMeta, tracker *progress.Tracker) {
	var tasks []signalTask
	for _, cat := range o.blueprint.Categories {
		for _, sig := range cat.Signals {
			tasks = append(tasks, signalTask{categoryID: cat.ID, signal: sig})
		}
	}

	workers := o.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= len(tasks) || ctx.Err() != nil {
					return
				}
				o.runSignal(ctx, sessionID, tasks[i], meta, tracker)
			}
		}()
	}
	wg.Wait()
}

// runSignal executes one analysis task against a fresh session snapshot.
func (o *Orchestrator) runSignal(ctx context.Context, sessionID string, task signalTask, meta sportsdata.FixtureMeta, tracker *progress.Tracker) {
	defer tracker.SignalDone(task.signal.Name)

	snap, err := o.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("pipeline: session %s: snapshot for signal %s: %v", sessionID, task.signal.Name, err)
		return
	}

	fragments := make(map[string]json.RawMessage)
	for _, name := range task.signal.Requires {
		if data, ok := snap.CollectedData[name]; ok {
			fragments[name] = data
		}
	}

	res, err := o.completion.Signal(ctx, completion.SignalRequest{
		Signal:    task.signal.Name,
		Focus:     task.signal.Focus,
		HomeTeam:  meta.HomeName,
		AwayTeam:  meta.AwayName,
		Fragments: fragments,
	})
	if err != nil {
		log.Printf("pipeline: session %s: signal %s failed: %v", sessionID, task.signal.Name, err)
		return
	}

	raw, err := sonic.Marshal(res)
	if err != nil {
		log.Printf("pipeline: session %s: encode signal %s: %v", sessionID, task.signal.Name, err)
		return
	}
	if err := o.store.PutPartial(ctx, sessionID, partialKey(task.categoryID, task.signal.Name), raw); err != nil {
		log.Printf("pipeline: session %s: store signal %s: %v", sessionID, task.signal.Name, err)
	}
}

// mergeCategories runs stage three sequentially in blueprint order.
func (o *Orchestrator) mergeCategories(ctx context.Context, sessionID string, meta sportsdata.FixtureMeta, tracker *progress.Tracker) {
	for _, cat := range o.blueprint.Categories {
		o.mergeCategory(ctx, sessionID, cat, meta, tracker)
	}
}

// mergeCategory merges one category's partials. Categories with no usable
// partials, and merges the model cannot complete, are skipped.
func (o *Orchestrator) mergeCategory(ctx context.Context, sessionID string, cat blueprint.Category, meta sportsdata.FixtureMeta, tracker *progress.Tracker) {
	defer tracker.CategoryDone(cat.ID)

	snap, err := o.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("pipeline: session %s: snapshot for category %s: %v", sessionID, cat.ID, err)
		return
	}

	var signals []completion.NamedSignal
	for _, sig := range cat.Signals {
		raw, ok := snap.PartialResults[partialKey(cat.ID, sig.Name)]
		if !ok {
			continue
		}
		var res completion.SignalResult
		if err := sonic.Unmarshal(raw, &res); err != nil {
			log.Printf("pipeline: session %s: decode partial %s: %v", sessionID, sig.Name, err)
			continue
		}
		signals = append(signals, completion.NamedSignal{Name: sig.Name, Result: res})
	}
	if len(signals) == 0 {
		log.Printf("pipeline: session %s: category %s has no partials, skipping", sessionID, cat.ID)
		return
	}

	res, err := o.completion.MergeCategory(ctx, completion.CategoryRequest{
		CategoryID: cat.ID,
		Title:      cat.Title,
		HomeTeam:   meta.HomeName,
		AwayTeam:   meta.AwayName,
		Signals:    signals,
	})
	if err != nil {
		log.Printf("pipeline: session %s: category %s merge failed, skipping: %v", sessionID, cat.ID, err)
		return
	}

	raw, err := sonic.Marshal(res)
	if err != nil {
		log.Printf("pipeline: session %s: encode category %s: %v", sessionID, cat.ID, err)
		return
	}
	if err := o.store.PutCategory(ctx, sessionID, cat.ID, raw); err != nil {
		log.Printf("pipeline: session %s: store category %s: %v", sessionID, cat.ID, err)
	}
}

// synthesize runs stage four. Unlike the earlier stages its failure is
// fatal: without a final artifact there is no report.
func (o *Orchestrator) synthesize(ctx context.Context, sessionID string, meta sportsdata.FixtureMeta) error {
	snap, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	var cats []completion.NamedCategory
	for _, cat := range o.blueprint.Categories {
		raw, ok := snap.CategoryResults[cat.ID]
		if !ok {
			continue
		}
		var res completion.CategoryResult
		if err := sonic.Unmarshal(raw, &res); err != nil {
			log.Printf("pipeline: session %s: decode category %s: %v", sessionID, cat.ID, err)
			continue
		}
		cats = append(cats, completion.NamedCategory{ID: cat.ID, Title: cat.Title, Result: res})
	}
	if len(cats) == 0 {
		return fmt.Errorf("no category produced any result")
	}

	report, err := o.completion.Synthesize(ctx, completion.SynthesisRequest{
		HomeTeam:   meta.HomeName,
		AwayTeam:   meta.AwayName,
		League:     meta.League,
		Kickoff:    meta.Kickoff,
		Categories: cats,
	})
	if err != nil {
		return err
	}

	raw, err := sonic.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode final report: %w", err)
	}
	return o.store.SetFinal(ctx, sessionID, raw)
}
