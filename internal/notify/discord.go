package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts run notices to one Discord channel. It uses plain
// REST sends; no gateway connection is held open.
type DiscordNotifier struct {
	sess      discordSession
	channelID string
}

// NewDiscordNotifier creates a notifier posting to channelID with botToken.
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &DiscordNotifier{sess: sess, channelID: channelID}, nil
}

func (n *DiscordNotifier) Name() string { return "discord" }

// Notify posts the event message.
func (n *DiscordNotifier) Notify(ctx context.Context, ev Event) error {
	_, err := n.sess.ChannelMessageSend(n.channelID, format(ev), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord post to %s: %w", n.channelID, err)
	}
	return nil
}
