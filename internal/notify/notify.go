// Package notify delivers best-effort notices when a report run reaches a
// terminal state. Delivery failures are logged, never surfaced to the run.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/pressbox/internal/session"
)

// Event describes one finished run.
type Event struct {
	SessionID string
	FixtureID string
	Status    string
	Title     string
	Error     string
}

// Notifier delivers one Event somewhere.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Name() string
}

// Fanout delivers an event to every notifier, logging failures.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout creates a Fanout over the given notifiers.
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

// Notify sends ev to every notifier. It never fails.
func (f *Fanout) Notify(ctx context.Context, ev Event) {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			log.Printf("notify: %s: %v", n.Name(), err)
		}
	}
}

// EventFor builds the notification for a terminal session.
func EventFor(sess *session.Session, title string) Event {
	return Event{
		SessionID: sess.ID,
		FixtureID: sess.FixtureID,
		Status:    sess.Status,
		Title:     title,
		Error:     sess.Error,
	}
}

// format renders the shared message text.
func format(ev Event) string {
	if ev.Status == session.StatusCompleted {
		if ev.Title != "" {
			return fmt.Sprintf("Report ready for fixture %s: %s", ev.FixtureID, ev.Title)
		}
		return fmt.Sprintf("Report ready for fixture %s", ev.FixtureID)
	}
	return fmt.Sprintf("Report generation failed for fixture %s: %s", ev.FixtureID, ev.Error)
}
