package completion

import (
	"fmt"
	"strings"
)

// MaxInsights caps the insight list of a signal result.
const MaxInsights = 5

// SignalResult is the structured output of one analysis signal.
type SignalResult struct {
	Insights   []string `json:"insights"`
	Narrative  string   `json:"narrative"`
	Confidence float64  `json:"confidence"`
	Tag        string   `json:"tag"`
}

// normalize clamps a parsed result into its contract. It returns false when
// the result is unusable and the caller should fall back to a default.
func (r *SignalResult) normalize() bool {
	if r.Narrative == "" || len(r.Insights) == 0 {
		return false
	}
	if len(r.Insights) > MaxInsights {
		r.Insights = r.Insights[:MaxInsights]
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return true
}

// DefaultSignalResult is the stand-in used when a signal's model output
// cannot be parsed. The pipeline treats it as a valid, low-value result.
func DefaultSignalResult(signal string) SignalResult {
	return SignalResult{
		Insights:   []string{},
		Narrative:  fmt.Sprintf("No reliable analysis could be produced for %s.", strings.ReplaceAll(signal, "_", " ")),
		Confidence: 0,
		Tag:        "unavailable",
	}
}

// Section is one heading-plus-body block of prose.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// CategoryResult merges a category's signal results into coherent sections.
type CategoryResult struct {
	Sections      []Section `json:"sections"`
	TalkingPoints []string  `json:"talking_points"`
}

func (r *CategoryResult) validate() error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("completion: category result has no sections")
	}
	for i, s := range r.Sections {
		if s.Heading == "" || s.Body == "" {
			return fmt.Errorf("completion: category section %d is incomplete", i)
		}
	}
	return nil
}

// FinalReport is the synthesized match report.
type FinalReport struct {
	Title         string    `json:"title"`
	Sections      []Section `json:"sections"`
	TalkingPoints []string  `json:"talking_points"`
}

func (r *FinalReport) validate() error {
	if r.Title == "" {
		return fmt.Errorf("completion: final report has no title")
	}
	if len(r.Sections) == 0 {
		return fmt.Errorf("completion: final report has no sections")
	}
	return nil
}
