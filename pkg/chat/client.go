// Package chat delivers team-facing notifications (escalations and deal
// agreements) to Slack and parses the slash commands humans use to take over
// or hand back a thread. Delivery is fail-open: a chat outage never blocks a
// negotiation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewClient creates a Slack API client posting to one channel.
func NewClient(token, channelID string) *Client {
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "chat-client"),
	}
}

// NewClientWithAPIURL targets a custom API URL. Useful for testing with a
// mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		logger:    slog.Default().With("component", "chat-client"),
	}
}

// PostMessage sends blocks to the configured channel with plain-text
// fallback, returning the message timestamp for threading.
func (c *Client) PostMessage(ctx context.Context, blocks []goslack.Block, fallback string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fallback, false),
	)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return ts, nil
}
