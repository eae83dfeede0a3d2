package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/parley-hq/parley/pkg/ownership"
)

const defaultGmailTimeout = 15 * time.Second

// GmailConfig configures the Gmail-backed transport.
type GmailConfig struct {
	// CredentialsJSON is the OAuth client secret file content.
	CredentialsJSON string
	// TokenJSON is the stored OAuth token for the agent mailbox.
	TokenJSON string
	// AgentEmail is the sending address, used for logging only; the API acts
	// on the authenticated mailbox ("me").
	AgentEmail string
	Timeout    time.Duration
}

// GmailTransport implements Transport over the Gmail API.
type GmailTransport struct {
	svc     *gmail.Service
	agent   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Transport = (*GmailTransport)(nil)

// NewGmailTransport authenticates against Gmail with the stored OAuth token.
func NewGmailTransport(ctx context.Context, cfg GmailConfig) (*GmailTransport, error) {
	if cfg.CredentialsJSON == "" || cfg.TokenJSON == "" {
		return nil, fmt.Errorf("gmail credentials and token are required")
	}

	oauthCfg, err := google.ConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(cfg.TokenJSON), &token); err != nil {
		return nil, fmt.Errorf("failed to parse gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGmailTimeout
	}

	return &GmailTransport{
		svc:     svc,
		agent:   cfg.AgentEmail,
		timeout: timeout,
		logger:  slog.Default().With("component", "gmail-transport"),
	}, nil
}

// Send delivers the message, threading it when ThreadID is set.
func (t *GmailTransport) Send(ctx context.Context, out Outbound) (SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	raw := buildRFC2822(out)
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: out.ThreadID,
	}

	sent, err := t.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail send failed: %w", err)
	}

	t.logger.Info("Email sent", "to", out.To, "thread_id", sent.ThreadId, "message_id", sent.Id)
	return SendResult{ThreadID: sent.ThreadId, MessageID: sent.Id}, nil
}

// buildRFC2822 renders the outbound message with threading headers.
func buildRFC2822(out Outbound) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", out.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", out.Subject)
	if out.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", out.InReplyTo)
	}
	if len(out.References) > 0 {
		fmt.Fprintf(&b, "References: %s\r\n", strings.Join(out.References, " "))
	}
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(out.Body)
	return b.String()
}

// FetchInbound lists messages added since the history-ID change token and
// returns the new token. A zero token starts from the current mailbox state.
func (t *GmailTransport) FetchInbound(ctx context.Context, changeToken string) ([]Inbound, string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if changeToken == "" {
		// No token yet: seed from the current mailbox state without
		// replaying the whole inbox.
		profile, err := t.svc.Users.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return nil, "", fmt.Errorf("gmail profile fetch failed: %w", err)
		}
		return nil, strconv.FormatUint(profile.HistoryId, 10), nil
	}

	startID, err := strconv.ParseUint(changeToken, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid change token %q: %w", changeToken, err)
	}

	call := t.svc.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		LabelId("INBOX").
		Context(ctx)

	var (
		inbound []Inbound
		lastID  = startID
	)
	err = call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		if resp.HistoryId > lastID {
			lastID = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				msg, err := t.svc.Users.Messages.Get("me", added.Message.Id).Format("full").Context(ctx).Do()
				if err != nil {
					return fmt.Errorf("failed to fetch message %s: %w", added.Message.Id, err)
				}
				in, ok := t.toInbound(msg)
				if ok {
					inbound = append(inbound, in)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("gmail history list failed: %w", err)
	}

	return inbound, strconv.FormatUint(lastID, 10), nil
}

// toInbound converts an API message, skipping messages the agent itself sent.
func (t *GmailTransport) toInbound(msg *gmail.Message) (Inbound, bool) {
	headers := headerMap(msg.Payload)
	from := headers["from"]
	if strings.Contains(strings.ToLower(from), strings.ToLower(t.agent)) {
		return Inbound{}, false
	}

	body := extractBody(msg.Payload)
	return Inbound{
		ThreadID:   msg.ThreadId,
		MessageID:  msg.Id,
		FromEmail:  from,
		Subject:    headers["subject"],
		Body:       ExtractLatestReply(body),
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}, true
}

func headerMap(payload *gmail.MessagePart) map[string]string {
	headers := make(map[string]string)
	if payload == nil {
		return headers
	}
	for _, h := range payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// extractBody walks the MIME tree preferring text/plain, falling back to
// text/html rendered as text.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if plain := findPart(payload, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(payload, "text/html"); html != "" {
		if text, err := HTMLToText(html); err == nil {
			return text
		}
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if found := findPart(child, mimeType); found != "" {
			return found
		}
	}
	return ""
}

// GetThreadSenders fetches From headers for every message in the thread.
func (t *GmailTransport) GetThreadSenders(ctx context.Context, threadID string) ([]ownership.ThreadSender, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	thread, err := t.svc.Users.Threads.Get("me", threadID).
		Format("metadata").
		MetadataHeaders("From").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail thread metadata failed for %s: %w", threadID, err)
	}

	senders := make([]ownership.ThreadSender, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		headers := headerMap(msg.Payload)
		senders = append(senders, ownership.ThreadSender{
			From:      headers["from"],
			MessageID: msg.Id,
		})
	}
	return senders, nil
}

// SetupWatch registers the Pub/Sub watch and returns its expiration and the
// current history ID, which seeds the fetch change token.
func (t *GmailTransport) SetupWatch(ctx context.Context, topic string) (Watch, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.svc.Users.Watch("me", &gmail.WatchRequest{
		TopicName:           topic,
		LabelIds:            []string{"INBOX"},
		LabelFilterBehavior: "INCLUDE",
	}).Context(ctx).Do()
	if err != nil {
		return Watch{}, fmt.Errorf("gmail watch setup failed: %w", err)
	}

	watch := Watch{
		Topic:      topic,
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}
	t.logger.Info("Gmail watch registered", "topic", topic, "expiration", watch.Expiration)
	return watch, nil
}
