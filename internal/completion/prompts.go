package completion

import (
	"fmt"
	"strings"
)

const signalSystemPrompt = `You are a football analyst producing one focused piece of pre-match analysis.
Respond with a single JSON object, no prose around it, matching:
{"insights": ["..."], "narrative": "...", "confidence": 0.0, "tag": "..."}
insights: 1 to 5 short factual observations. narrative: 2-4 sentences of
analysis. confidence: 0..1, how well the data supports the analysis.
tag: a 1-3 word label for this angle.`

const mergeSystemPrompt = `You are a football editor merging several pieces of analysis into one
coherent category of a match report. Respond with a single JSON object:
{"sections": [{"heading": "...", "body": "..."}], "talking_points": ["..."]}
At least one section. Do not repeat the same point across sections.`

const synthesisSystemPrompt = `You are a football journalist writing the final long-form match report from
edited category drafts. Respond with a single JSON object:
{"title": "...", "sections": [{"heading": "...", "body": "..."}], "talking_points": ["..."]}
Write flowing prose; the title should read like a headline.`

func signalUserPrompt(req SignalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match: %s vs %s\n", req.HomeTeam, req.AwayTeam)
	fmt.Fprintf(&b, "Analysis focus: %s\n\n", req.Focus)
	b.WriteString("Available data:\n")
	for name, data := range req.Fragments {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", name, string(data))
	}
	return b.String()
}

func mergeUserPrompt(req CategoryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match: %s vs %s\n", req.HomeTeam, req.AwayTeam)
	fmt.Fprintf(&b, "Category: %s\n\n", req.Title)
	b.WriteString("Signal analyses to merge:\n")
	for _, sig := range req.Signals {
		fmt.Fprintf(&b, "--- %s (confidence %.2f, %s) ---\n%s\n", sig.Name, sig.Result.Confidence, sig.Result.Tag, sig.Result.Narrative)
		for _, insight := range sig.Result.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}
	return b.String()
}

func synthesisUserPrompt(req SynthesisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match: %s vs %s\n", req.HomeTeam, req.AwayTeam)
	if req.League != "" {
		fmt.Fprintf(&b, "Competition: %s\n", req.League)
	}
	if req.Kickoff != "" {
		fmt.Fprintf(&b, "Kickoff: %s\n", req.Kickoff)
	}
	b.WriteString("\nCategory drafts:\n")
	for _, cat := range req.Categories {
		fmt.Fprintf(&b, "== %s ==\n", cat.Title)
		for _, sec := range cat.Result.Sections {
			fmt.Fprintf(&b, "%s\n%s\n", sec.Heading, sec.Body)
		}
		for _, tp := range cat.Result.TalkingPoints {
			fmt.Fprintf(&b, "- %s\n", tp)
		}
	}
	return b.String()
}

func chatSystemPrompt(req ChatRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are answering follow-up questions about a match report for %s vs %s.\n", req.HomeTeam, req.AwayTeam)
	b.WriteString("Answer in plain prose, grounded only in the report below.\n\n")
	if len(req.Report) > 0 {
		fmt.Fprintf(&b, "Report:\n%s\n", string(req.Report))
	}
	return b.String()
}
