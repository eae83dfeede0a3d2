package ownership

import (
	"context"
	"net/mail"
	"strings"
)

// ThreadSender is one message's sender inside an email thread.
type ThreadSender struct {
	From      string
	MessageID string
}

// ThreadMetadataFetcher is the slice of the email transport that human-reply
// detection needs: the From header of every message in a thread.
type ThreadMetadataFetcher interface {
	GetThreadSenders(ctx context.Context, threadID string) ([]ThreadSender, error)
}

// HumanReplyDetected reports whether any message in the thread was sent by
// someone other than the agent or the influencer. From headers are parsed
// robustly ("Display Name <addr@example.com>" and bare addresses both work);
// an unparseable header counts as a foreign sender rather than being ignored.
// Auto-forwarded mail is a known false-positive source; /resume is the
// recovery path.
func HumanReplyDetected(ctx context.Context, fetcher ThreadMetadataFetcher, threadID, agentEmail, influencerEmail string) (bool, string, error) {
	senders, err := fetcher.GetThreadSenders(ctx, threadID)
	if err != nil {
		return false, "", err
	}

	agent := normalizeAddress(agentEmail)
	influencer := normalizeAddress(influencerEmail)

	for _, sender := range senders {
		addr := extractAddress(sender.From)
		if addr == "" {
			return true, sender.From, nil
		}
		if addr != agent && addr != influencer {
			return true, addr, nil
		}
	}
	return false, "", nil
}

// extractAddress pulls the bare address out of a From header, lowercased.
// Empty on a header net/mail cannot parse.
func extractAddress(from string) string {
	parsed, err := mail.ParseAddress(from)
	if err != nil {
		// Some providers emit bare addresses without display names that
		// still fail strict parsing when padded oddly; try a trimmed parse.
		trimmed := strings.TrimSpace(from)
		if parsed2, err2 := mail.ParseAddress(trimmed); err2 == nil {
			return normalizeAddress(parsed2.Address)
		}
		return ""
	}
	return normalizeAddress(parsed.Address)
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
