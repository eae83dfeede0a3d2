// Package orchestrator runs the per-inbound-email negotiation pipeline and
// the background machinery around it: the bounded worker pool that consumes
// inbound events and the sweeper that times out silent threads. Pipelines for
// the same thread serialize on the negotiation's lock; distinct threads run
// in parallel.
package orchestrator

import (
	"context"
	"time"

	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/ownership"
	"github.com/parley-hq/parley/pkg/pricing"
	"github.com/parley-hq/parley/pkg/store"
	"github.com/parley-hq/parley/pkg/triggers"
)

// EmailTransport is the slice of the email layer the pipeline needs: sending
// replies and reading thread senders for human-reply detection.
type EmailTransport interface {
	Send(ctx context.Context, out email.Outbound) (email.SendResult, error)
	GetThreadSenders(ctx context.Context, threadID string) ([]ownership.ThreadSender, error)
}

// Notifier delivers escalation and agreement payloads to the team channel.
// Implementations are fail-open; the returned timestamp is informational.
type Notifier interface {
	PostEscalation(ctx context.Context, payload models.EscalationPayload) string
	PostAgreement(ctx context.Context, payload models.AgreementPayload) string
}

// GuidanceProvider resolves the negotiation playbook injected into composer
// prompts. Empty guidance is always acceptable.
type GuidanceProvider interface {
	Guidance(ctx context.Context) string
}

// Settings are the pipeline knobs resolved from configuration.
type Settings struct {
	// AgentEmail is our own sending address, excluded from human-reply
	// detection.
	AgentEmail string

	// MaxRounds caps counter exchanges per thread before escalating.
	MaxRounds int

	// IntentConfidenceThreshold is the strict lower bound below which a
	// classification is overridden to ambiguous.
	IntentConfidenceThreshold float64

	// DashboardURL is linked from escalation payloads.
	DashboardURL string

	// ReplyTimeout is how long a thread may sit in awaiting_reply or
	// counter_sent before the sweeper marks it stale.
	ReplyTimeout time.Duration
}

// Services bundles everything a pipeline run touches. Store, audit, and
// ownership are concrete because tests exercise them against a real database
// file; the external surfaces are interfaces so tests can script them.
type Services struct {
	Manager   *negotiation.Manager
	Store     *store.StateStore
	Audit     *store.AuditLog
	Ownership *ownership.Registry
	Pricing   *pricing.Engine
	Triggers  *triggers.Engine
	LLM       llm.Client
	Email     EmailTransport
	Notifier  Notifier
	Playbook  GuidanceProvider
	Settings  Settings
}
