// Package email is the transport boundary for the negotiation pipeline:
// sending threaded replies, fetching inbound mail, reading thread metadata
// for human-reply detection, and keeping the push-notification watch alive.
package email

import (
	"context"
	"time"

	"github.com/parley-hq/parley/pkg/ownership"
)

// Outbound is an email the pipeline wants delivered. ThreadID, InReplyTo,
// and References are all set when replying so providers thread the message
// into the existing conversation.
type Outbound struct {
	To         string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string
	References []string
}

// SendResult identifies the delivered message.
type SendResult struct {
	ThreadID  string
	MessageID string
}

// Inbound is one received email, reduced to what the pipeline consumes. Body
// holds the latest reply text only; quoted history is already stripped.
type Inbound struct {
	ThreadID   string
	MessageID  string
	FromEmail  string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Watch describes an active push-notification watch. Expiration comes from
// the provider and is persisted so renewal survives restarts.
type Watch struct {
	Topic      string
	HistoryID  string
	Expiration time.Time
}

// Transport is the email surface the core consumes. Implementations bound
// every call with a timeout and honor context cancellation.
type Transport interface {
	// Send delivers the message and returns the thread and message IDs.
	Send(ctx context.Context, out Outbound) (SendResult, error)

	// FetchInbound returns messages that arrived after the change token and
	// the token to use for the next fetch. Delivery is at-least-once; the
	// pipeline's state machine makes redelivery harmless.
	FetchInbound(ctx context.Context, changeToken string) ([]Inbound, string, error)

	// GetThreadSenders lists the From header of every message in a thread.
	GetThreadSenders(ctx context.Context, threadID string) ([]ownership.ThreadSender, error)

	// SetupWatch (re)registers the push-notification watch on the topic.
	SetupWatch(ctx context.Context, topic string) (Watch, error)
}
