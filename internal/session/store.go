package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session id does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// ErrInvalidTransition is returned when a status change would move a session
// backward or out of a terminal state.
var ErrInvalidTransition = errors.New("session: invalid transition")

// DefaultTTL is how long a session lives after its last update.
const DefaultTTL = time.Hour

// Store persists sessions. Updates are field-scoped merges: two writers
// touching different fragments, partials, or categories never lose each
// other's writes. Once a session is terminal, only chat may still change.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	SetStatus(ctx context.Context, id, status string) error
	Fail(ctx context.Context, id, message string) error
	SetFragment(ctx context.Context, id, name string, data json.RawMessage) error
	PutPartial(ctx context.Context, id, signal string, result json.RawMessage) error
	PutCategory(ctx context.Context, id, category string, result json.RawMessage) error
	SetFinal(ctx context.Context, id string, artifact json.RawMessage) error
	AppendChat(ctx context.Context, id string, turn ChatTurn) error
	Delete(ctx context.Context, id string) error
}

// checkTransition enforces forward-only status movement.
func checkTransition(from, to string) error {
	fromRank, ok := statusRank[from]
	if !ok {
		return fmt.Errorf("session: unknown status %q", from)
	}
	toRank, ok := statusRank[to]
	if !ok {
		return fmt.Errorf("session: unknown status %q", to)
	}
	if Terminal(from) || toRank <= fromRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
