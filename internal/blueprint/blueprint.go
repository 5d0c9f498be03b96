// Package blueprint defines the analysis plan a report is built from: which
// categories the report covers and which signals each category runs.
package blueprint

import (
	"fmt"
	"strings"

	"github.com/zulandar/pressbox/internal/config"
)

// Signal is one independent analysis task. Requires names the collected
// fragments the signal's prompt is grounded in; missing fragments are
// omitted from the prompt, not fatal.
type Signal struct {
	Name     string
	Focus    string
	Requires []string
}

// Category groups related signals into one report section.
type Category struct {
	ID      string
	Title   string
	Signals []Signal
}

// Blueprint is the full analysis plan for one report.
type Blueprint struct {
	Categories []Category
}

// Default returns the built-in football match blueprint.
func Default() Blueprint {
	return Blueprint{Categories: []Category{
		{
			ID:    "momentum",
			Title: "Form and Momentum",
			Signals: []Signal{
				{Name: "recent_form", Focus: "each side's recent results and scoring trend", Requires: []string{"fixture", "statistics"}},
				{Name: "h2h_record", Focus: "the head-to-head record between these sides", Requires: []string{"fixture", "h2h"}},
			},
		},
		{
			ID:    "tactics",
			Title: "Tactical Picture",
			Signals: []Signal{
				{Name: "lineup_shape", Focus: "starting lineups, formations and tactical matchups", Requires: []string{"fixture", "lineups"}},
				{Name: "match_stats", Focus: "possession, shots and territorial statistics", Requires: []string{"fixture", "statistics"}},
			},
		},
		{
			ID:    "availability",
			Title: "Squad News",
			Signals: []Signal{
				{Name: "injury_report", Focus: "injuries, suspensions and notable absences", Requires: []string{"fixture", "injuries"}},
			},
		},
		{
			ID:    "stakes",
			Title: "What It Means",
			Signals: []Signal{
				{Name: "table_context", Focus: "league positions and what the result changes", Requires: []string{"fixture", "standings"}},
			},
		},
	}}
}

// FromConfig builds a blueprint from YAML category overrides, falling back
// to Default when none are configured.
func FromConfig(cats []config.CategoryConfig) (Blueprint, error) {
	if len(cats) == 0 {
		return Default(), nil
	}
	bp := Blueprint{Categories: make([]Category, 0, len(cats))}
	for _, cc := range cats {
		cat := Category{ID: cc.ID, Title: cc.Title}
		if cat.Title == "" {
			cat.Title = cc.ID
		}
		for _, sc := range cc.Signals {
			cat.Signals = append(cat.Signals, Signal{
				Name:     sc.Name,
				Focus:    sc.Focus,
				Requires: sc.Requires,
			})
		}
		bp.Categories = append(bp.Categories, cat)
	}
	if err := bp.Validate(); err != nil {
		return Blueprint{}, err
	}
	return bp, nil
}

// TotalSignals counts signals across all categories.
func (b Blueprint) TotalSignals() int {
	n := 0
	for _, cat := range b.Categories {
		n += len(cat.Signals)
	}
	return n
}

// Validate checks structural soundness: unique category ids, at least one
// signal per category, unique signal names across the plan.
func (b Blueprint) Validate() error {
	if len(b.Categories) == 0 {
		return fmt.Errorf("blueprint: no categories")
	}
	catIDs := make(map[string]bool)
	sigNames := make(map[string]bool)
	var errs []string
	for _, cat := range b.Categories {
		if cat.ID == "" {
			errs = append(errs, "category with empty id")
			continue
		}
		if catIDs[cat.ID] {
			errs = append(errs, fmt.Sprintf("duplicate category id %q", cat.ID))
		}
		catIDs[cat.ID] = true
		if len(cat.Signals) == 0 {
			errs = append(errs, fmt.Sprintf("category %q has no signals", cat.ID))
		}
		for _, sig := range cat.Signals {
			if sig.Name == "" {
				errs = append(errs, fmt.Sprintf("category %q has a signal with empty name", cat.ID))
				continue
			}
			if sigNames[sig.Name] {
				errs = append(errs, fmt.Sprintf("duplicate signal name %q", sig.Name))
			}
			sigNames[sig.Name] = true
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("blueprint: %s", strings.Join(errs, "; "))
	}
	return nil
}
