package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/session"
	"github.com/zulandar/pressbox/internal/sportsdata"
)

// Chat answers a follow-up question about a session's report and records
// both turns in the session's chat history.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, question string) (string, error) {
	if question == "" {
		return "", &ValidationError{Field: "question", Message: "must not be empty"}
	}
	snap, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	req := completion.ChatRequest{
		Question: question,
		Report:   snap.FinalArtifact,
	}
	for _, turn := range snap.ChatHistory {
		req.History = append(req.History, completion.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	if fixture, ok := snap.CollectedData["fixture"]; ok {
		if meta, err := sportsdata.ParseFixtureMeta(fixture); err == nil {
			req.HomeTeam = meta.HomeName
			req.AwayTeam = meta.AwayName
		}
	}

	answer, err := o.completion.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if err := o.store.AppendChat(ctx, sessionID, session.ChatTurn{Role: "user", Content: question, At: now}); err != nil {
		log.Printf("pipeline: session %s: record chat question: %v", sessionID, err)
	}
	if err := o.store.AppendChat(ctx, sessionID, session.ChatTurn{Role: "assistant", Content: answer, At: time.Now()}); err != nil {
		log.Printf("pipeline: session %s: record chat answer: %v", sessionID, err)
	}
	return answer, nil
}
