package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts run notices to one Slack channel.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlackNotifier creates a notifier posting to channelID with botToken.
func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}
}

func (n *SlackNotifier) Name() string { return "slack" }

// Notify posts the event message.
func (n *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channelID, slackapi.MsgOptionText(format(ev), false))
	if err != nil {
		return fmt.Errorf("notify: slack post to %s: %w", n.channelID, err)
	}
	return nil
}
