package progress

import (
	"sync"
	"testing"
)

func collect() (Sink, *[]Update) {
	var mu sync.Mutex
	var updates []Update
	sink := func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}
	return sink, &updates
}

func TestFullRun_BandsAndEndpoints(t *testing.T) {
	sink, updates := collect()
	tr := NewTracker(sink, 6, 6, 4)

	tr.StartCollect()
	for _, f := range []string{"fixture", "statistics", "lineups", "injuries", "h2h", "standings"} {
		tr.FragmentDone(f)
	}
	if got := tr.Percent(); got != 20 {
		t.Errorf("percent after collect = %d, want 20", got)
	}

	for i := 0; i < 6; i++ {
		tr.SignalDone("signal")
	}
	if got := tr.Percent(); got != 70 {
		t.Errorf("percent after signals = %d, want 70", got)
	}

	for i := 0; i < 4; i++ {
		tr.CategoryDone("cat")
	}
	if got := tr.Percent(); got != 90 {
		t.Errorf("percent after merge = %d, want 90", got)
	}

	tr.SynthesisStarted()
	tr.Complete()
	if got := tr.Percent(); got != 100 {
		t.Errorf("percent after complete = %d, want 100", got)
	}

	last := (*updates)[len(*updates)-1]
	if last.Stage != StageComplete {
		t.Errorf("last stage = %q, want %q", last.Stage, StageComplete)
	}
}

func TestMonotonic(t *testing.T) {
	sink, updates := collect()
	tr := NewTracker(sink, 2, 4, 2)

	tr.StartCollect()
	tr.FragmentDone("fixture")
	tr.SignalDone("a")
	tr.FragmentDone("statistics") // late fragment must not regress percent
	tr.SignalDone("b")
	tr.CategoryDone("one")
	tr.SynthesisStarted()
	tr.Complete()

	prev := -1
	for i, u := range *updates {
		if u.Percent < prev {
			t.Errorf("update %d: percent %d < previous %d", i, u.Percent, prev)
		}
		prev = u.Percent
	}
}

func TestPartialSignals_StaysInsideBand(t *testing.T) {
	sink, _ := collect()
	tr := NewTracker(sink, 1, 4, 1)
	tr.FragmentDone("fixture")
	tr.SignalDone("a")

	got := tr.Percent()
	if got <= 20 || got >= 70 {
		t.Errorf("percent after 1/4 signals = %d, want inside (20, 70)", got)
	}
}

func TestNilSink(t *testing.T) {
	tr := NewTracker(nil, 1, 1, 1)
	tr.StartCollect()
	tr.FragmentDone("fixture")
	tr.Complete()
	if got := tr.Percent(); got != 100 {
		t.Errorf("percent = %d, want 100", got)
	}
}

func TestZeroTotals_NoDivideByZero(t *testing.T) {
	sink, _ := collect()
	tr := NewTracker(sink, 0, 0, 0)
	tr.FragmentDone("fixture")
	tr.SignalDone("a")
	tr.CategoryDone("c")
	tr.Complete()
	if got := tr.Percent(); got != 100 {
		t.Errorf("percent = %d, want 100", got)
	}
}

func TestConcurrentSignalWorkers(t *testing.T) {
	sink, updates := collect()
	tr := NewTracker(sink, 1, 16, 1)
	tr.FragmentDone("fixture")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.SignalDone("sig")
		}()
	}
	wg.Wait()

	if got := tr.Percent(); got != 70 {
		t.Errorf("percent after all signals = %d, want 70", got)
	}
	if len(*updates) != 17 {
		t.Errorf("updates = %d, want 17", len(*updates))
	}
}
