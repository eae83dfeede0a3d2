package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-hq/parley/pkg/database"
	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/ownership"
	"github.com/parley-hq/parley/pkg/pricing"
	"github.com/parley-hq/parley/pkg/store"
	"github.com/parley-hq/parley/pkg/triggers"
)

const (
	testAgentEmail      = "deals@parley.example"
	testInfluencerEmail = "ava@example.com"
	testThreadID        = "thread-ava-1"
)

type fakeLLM struct {
	mu            sync.Mutex
	intent        llm.IntentResult
	intentErr     error
	draft         llm.Draft
	composeErr    error
	screen        llm.SemanticScreen
	screenErr     error
	classifyCalls int
	composeCalls  int
}

func (f *fakeLLM) ClassifyIntent(context.Context, llm.IntentRequest) (llm.IntentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	return f.intent, f.intentErr
}

func (f *fakeLLM) ComposeCounter(context.Context, llm.ComposeRequest) (llm.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composeCalls++
	return f.draft, f.composeErr
}

func (f *fakeLLM) ScreenMessage(context.Context, llm.ScreenRequest) (llm.SemanticScreen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen, f.screenErr
}

type fakeTransport struct {
	mu      sync.Mutex
	sends   []email.Outbound
	sendErr error
	senders []ownership.ThreadSender
}

func (f *fakeTransport) Send(_ context.Context, out email.Outbound) (email.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return email.SendResult{}, f.sendErr
	}
	f.sends = append(f.sends, out)
	return email.SendResult{
		ThreadID:  out.ThreadID,
		MessageID: fmt.Sprintf("<sent-%d@parley.example>", len(f.sends)),
	}, nil
}

func (f *fakeTransport) GetThreadSenders(context.Context, string) ([]ownership.ThreadSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.senders, nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeNotifier struct {
	mu          sync.Mutex
	escalations []models.EscalationPayload
	agreements  []models.AgreementPayload
}

func (f *fakeNotifier) PostEscalation(_ context.Context, p models.EscalationPayload) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, p)
	return "ts-escalation"
}

func (f *fakeNotifier) PostAgreement(_ context.Context, p models.AgreementPayload) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agreements = append(f.agreements, p)
	return "ts-agreement"
}

type harness struct {
	orch      *Orchestrator
	services  Services
	llm       *fakeLLM
	transport *fakeTransport
	notifier  *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{
		Path:         filepath.Join(t.TempDir(), "parley.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	registry := ownership.NewRegistry(client.DB())
	require.NoError(t, registry.Load(ctx))

	fl := &fakeLLM{}
	transport := &fakeTransport{senders: []ownership.ThreadSender{
		{From: "Parley <" + testAgentEmail + ">", MessageID: "<m1>"},
		{From: "Ava Chen <" + testInfluencerEmail + ">", MessageID: "<m2>"},
	}}
	notifier := &fakeNotifier{}

	services := Services{
		Manager:   negotiation.NewManager(),
		Store:     store.NewStateStore(client.DB()),
		Audit:     store.NewAuditLog(client.DB()),
		Ownership: registry,
		Pricing:   pricing.NewEngine(models.RateCard{}, nil),
		Triggers:  triggers.NewEngine(triggers.DefaultConfig(), fl),
		LLM:       fl,
		Email:     transport,
		Notifier:  notifier,
		Settings: Settings{
			AgentEmail:                testAgentEmail,
			MaxRounds:                 3,
			IntentConfidenceThreshold: 0.70,
			DashboardURL:              "https://dash.parley.example",
			ReplyTimeout:              120 * time.Hour,
		},
	}

	return &harness{
		orch:      New(services),
		services:  services,
		llm:       fl,
		transport: transport,
		notifier:  notifier,
	}
}

// seedNegotiation registers a live negotiation in awaiting_reply with its
// snapshot persisted, as if the initial offer already went out.
func (h *harness) seedNegotiation(t *testing.T) *negotiation.Negotiation {
	t.Helper()

	deliverable, err := models.NewDeliverable(models.PlatformYouTube, models.DeliverableYouTubeDedicated)
	require.NoError(t, err)

	campaign := models.Campaign{
		ID:               "camp-1",
		TaskID:           "task-9",
		ClientName:       "Acme Cold Brew",
		TargetMinCPM:     money.MustFromString("20"),
		TargetMaxCPM:     money.MustFromString("30"),
		TotalInfluencers: 5,
		Deliverable:      deliverable,
		MentionUsers:     []string{"U123"},
	}
	influencer := models.InfluencerRow{
		Name:         "Ava Chen",
		Email:        testInfluencerEmail,
		Platform:     models.PlatformYouTube,
		Handle:       "@avachen",
		AverageViews: 100_000,
		MinRate:      money.MustFromString("1500"),
		MaxRate:      money.MustFromString("3000"),
	}

	n, err := h.services.Manager.Create(testThreadID, negotiation.Context{
		Influencer:   influencer,
		Deliverable:  deliverable,
		Subject:      "Acme Cold Brew x Ava Chen",
		ExpectedRate: money.MustFromString("2000"),
	}, campaign)
	require.NoError(t, err)

	_, err = n.Machine.Trigger(negotiation.EventSendOffer)
	require.NoError(t, err)
	require.NoError(t, h.services.Store.Save(context.Background(), n.Snapshot()))
	return n
}

func inboundReply(body string) email.Inbound {
	return email.Inbound{
		ThreadID:   testThreadID,
		MessageID:  "<reply-1@example.com>",
		FromEmail:  testInfluencerEmail,
		Subject:    "Re: Acme Cold Brew x Ava Chen",
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestHandleInboundAccept(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent:          llm.IntentAccept,
		Confidence:      0.95,
		ProposedRateRaw: "2000",
		EvidenceQuote:   "That works, let's do it.",
	}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("That works, let's do it."))
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, outcome.Action)
	assert.Equal(t, negotiation.StateAgreed, outcome.State)

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateAgreed, snap.State)

	require.Len(t, h.notifier.agreements, 1)
	agreement := h.notifier.agreements[0]
	assert.Equal(t, "2000", agreement.AgreedRate.String())
	assert.Equal(t, "20", agreement.CPMAchieved.String())
	assert.Equal(t, []string{"U123"}, agreement.MentionUsers)

	// Terminal deals leave the registry but their CPM feeds the tracker.
	_, live := h.services.Manager.Get(testThreadID)
	assert.False(t, live)
	assert.Equal(t, "20", n.Tracker.RunningAverageCPM().String())
}

func TestHandleInboundCounterInRange(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent:          llm.IntentCounter,
		Confidence:      0.90,
		ProposedRateRaw: "2200",
		EvidenceQuote:   "I usually get $2,200 for this.",
	}
	h.llm.draft = llm.Draft{
		Body: "Hi Ava, we can do $2,000.00 for the dedicated YouTube video. Let me know!",
	}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("I usually get $2,200 for this."))
	require.NoError(t, err)
	assert.Equal(t, ActionSend, outcome.Action)
	assert.Equal(t, negotiation.StateCounterSent, outcome.State)
	require.NotNil(t, outcome.Draft)

	require.Equal(t, 1, h.transport.sentCount())
	sent := h.transport.sends[0]
	assert.Equal(t, testInfluencerEmail, sent.To)
	assert.Equal(t, testThreadID, sent.ThreadID)
	assert.Equal(t, "<reply-1@example.com>", sent.InReplyTo)
	assert.Contains(t, sent.References, "<reply-1@example.com>")

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateCounterSent, snap.State)
	assert.Equal(t, 1, snap.RoundCount)

	entries, err := h.services.Audit.QueryByInfluencer(context.Background(), "Ava Chen")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, store.AuditReceived, entries[0].Kind)
	assert.Equal(t, store.AuditSent, entries[1].Kind)
}

func TestHandleInboundOverCeilingEscalates(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	// $5,000 for 100k views implies a $50 CPM, well over the $30 ceiling.
	h.llm.intent = llm.IntentResult{
		Intent:          llm.IntentCounter,
		Confidence:      0.92,
		ProposedRateRaw: "5000",
		EvidenceQuote:   "My rate is $5,000.",
	}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("My rate is $5,000."))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, outcome.Action)
	assert.Equal(t, negotiation.StateEscalated, outcome.State)

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateEscalated, snap.State)

	require.Len(t, h.notifier.escalations, 1)
	esc := h.notifier.escalations[0]
	require.NotNil(t, esc.ProposedRate)
	assert.Equal(t, "5000", esc.ProposedRate.String())
	assert.Contains(t, esc.EscalationReason, "ceiling")
	assert.Zero(t, h.llm.composeCalls, "no counter should be composed for an escalated rate")
}

func TestHandleInboundHostileShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.screen = llm.SemanticScreen{
		HostileTone:         true,
		HostileToneEvidence: "This is insulting, don't contact me again.",
	}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("This is insulting, don't contact me again."))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, outcome.Action)
	assert.NotEmpty(t, outcome.Triggers)

	// The semantic pre-check fired before intent classification ran.
	assert.Zero(t, h.llm.classifyCalls)
	require.Len(t, h.notifier.escalations, 1)
	assert.Equal(t, "This is insulting, don't contact me again.", h.notifier.escalations[0].EvidenceQuote)
}

func TestHandleInboundLowConfidenceOverridesToAmbiguous(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{Intent: llm.IntentCounter, Confidence: 0.40}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Hmm, maybe, what about other formats?"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, outcome.Action)
	assert.Contains(t, outcome.Reason, "ambiguous")
}

func TestHandleInboundHumanManagedSkips(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	require.NoError(t, h.services.Ownership.Claim(context.Background(), testThreadID, "jordan"))

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Following up!"))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, outcome.Action)
	assert.Equal(t, ReasonHumanManaged, outcome.Reason)
	assert.Zero(t, h.llm.classifyCalls)
}

func TestHandleInboundDetectsHumanTakeover(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.transport.senders = append(h.transport.senders,
		ownership.ThreadSender{From: "Sam Rivera <sam@agency.example>", MessageID: "<m3>"})

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Sounds good"))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, outcome.Action)
	assert.Equal(t, ReasonHumanTakeoverDetected, outcome.Reason)

	assert.True(t, h.services.Ownership.IsHumanManaged(testThreadID))
	// Silent handoff: no chat notification.
	assert.Empty(t, h.notifier.escalations)

	// The claim survives for the next inbound too.
	outcome, err = h.orch.HandleInbound(context.Background(), inboundReply("One more thing"))
	require.NoError(t, err)
	assert.Equal(t, ReasonHumanManaged, outcome.Reason)
}

func TestHandleInboundInvalidTransition(t *testing.T) {
	h := newHarness(t)
	deliverable, err := models.NewDeliverable(models.PlatformYouTube, models.DeliverableYouTubeDedicated)
	require.NoError(t, err)
	campaign := models.Campaign{
		ID: "camp-1", ClientName: "Acme", TotalInfluencers: 1,
		TargetMinCPM: money.MustFromString("20"), TargetMaxCPM: money.MustFromString("30"),
		Deliverable: deliverable,
	}
	_, err = h.services.Manager.Create(testThreadID, negotiation.Context{
		Influencer: models.InfluencerRow{
			Name: "Ava Chen", Email: testInfluencerEmail, Platform: models.PlatformYouTube,
			AverageViews: 100_000,
			MinRate:      money.MustFromString("1500"), MaxRate: money.MustFromString("3000"),
		},
		Deliverable: deliverable,
	}, campaign)
	require.NoError(t, err)

	// Still in initial_offer: no offer went out, so a reply is illegal.
	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Hello?"))
	require.Error(t, err)
	assert.Equal(t, ActionError, outcome.Action)
	assert.Equal(t, ReasonInvalidTransition, outcome.Reason)
	assert.Equal(t, negotiation.StateInitialOffer, outcome.State)
}

func TestHandleInboundUnknownThread(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Hi"))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, outcome.Action)
	assert.Equal(t, ReasonUnknownThread, outcome.Reason)
}

func TestHandleInboundValidationFailureEscalatesWithDraft(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent: llm.IntentCounter, Confidence: 0.90, ProposedRateRaw: "2200",
	}
	// The composer hallucinated a number that is not the expected rate.
	h.llm.draft = llm.Draft{Body: "We can offer $9,999.00 for the video."}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Can you do better?"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, outcome.Action)
	require.NotNil(t, outcome.Draft)

	require.Len(t, h.notifier.escalations, 1)
	assert.Contains(t, h.notifier.escalations[0].Draft, "$9,999.00")
	assert.Contains(t, h.notifier.escalations[0].EscalationReason, "validation")
	assert.Zero(t, h.transport.sentCount(), "a failing draft must never be dispatched")
}

func TestHandleInboundRoundCapEscalates(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	n.RoundCount = 3
	h.llm.intent = llm.IntentResult{
		Intent: llm.IntentCounter, Confidence: 0.90, ProposedRateRaw: "2100",
	}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("How about $2,100?"))
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, outcome.Action)
	assert.Contains(t, outcome.Reason, "maximum negotiation rounds")
	assert.Zero(t, h.llm.composeCalls)
}

func TestHandleInboundSendFailureKeepsCounterReceivedDurable(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent: llm.IntentCounter, Confidence: 0.90, ProposedRateRaw: "2200",
	}
	h.llm.draft = llm.Draft{Body: "Hi Ava, we can do $2,000.00 for the dedicated YouTube video."}
	h.transport.sendErr = errors.New("smtp 451 temporarily unavailable")

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Can you do $2,200?"))
	require.Error(t, err)
	assert.Equal(t, ActionError, outcome.Action)

	// The persist-before-send save committed; nothing went out and the
	// durable state shows the reply still needs a counter.
	snap, loadErr := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, loadErr)
	assert.Equal(t, negotiation.StateCounterReceived, snap.State)
	assert.Equal(t, 0, snap.RoundCount)
}

func TestHandleInboundRedeliveryAfterSendFailureResumesCounter(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent: llm.IntentCounter, Confidence: 0.90, ProposedRateRaw: "2200",
	}
	h.llm.draft = llm.Draft{Body: "Hi Ava, we can do $2,000.00 for the dedicated YouTube video."}
	h.transport.sendErr = errors.New("smtp 451 temporarily unavailable")

	_, err := h.orch.HandleInbound(context.Background(), inboundReply("Can you do $2,200?"))
	require.Error(t, err)

	// Restart: rebuild the registry from durable state, which shows a reply
	// that still needs a counter.
	active, err := h.services.Store.LoadActive(context.Background())
	require.NoError(t, err)
	h.services.Manager.Remove(testThreadID)
	require.NoError(t, h.services.Manager.Restore(active))
	restored, ok := h.services.Manager.Get(testThreadID)
	require.True(t, ok)
	require.Equal(t, negotiation.StateCounterReceived, restored.Machine.State())

	// Gmail redelivers the same message once the transport recovers; the
	// round resumes and the counter finally goes out.
	h.transport.sendErr = nil
	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Can you do $2,200?"))
	require.NoError(t, err)
	assert.Equal(t, ActionSend, outcome.Action)
	assert.Equal(t, negotiation.StateCounterSent, outcome.State)
	assert.Equal(t, 1, h.transport.sentCount())

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateCounterSent, snap.State)
	assert.Equal(t, 1, snap.RoundCount)
}

func TestHandleInboundDuplicateAfterCounterSentIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{
		Intent: llm.IntentCounter, Confidence: 0.90, ProposedRateRaw: "2200",
	}
	h.llm.draft = llm.Draft{Body: "Hi Ava, we can do $2,000.00 for the dedicated YouTube video."}

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("Can you do $2,200?"))
	require.NoError(t, err)
	require.Equal(t, ActionSend, outcome.Action)
	require.Equal(t, 1, h.transport.sentCount())

	// The same message delivered again must not run a second round.
	outcome, err = h.orch.HandleInbound(context.Background(), inboundReply("Can you do $2,200?"))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, outcome.Action)
	assert.Equal(t, ReasonDuplicateInbound, outcome.Reason)
	assert.Equal(t, 1, h.transport.sentCount())
	assert.Equal(t, 1, h.llm.classifyCalls)

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateCounterSent, snap.State)
	assert.Equal(t, 1, snap.RoundCount)

	// One received entry, one sent entry; the duplicate adds nothing.
	entries, err := h.services.Audit.QueryByInfluencer(context.Background(), "Ava Chen")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestHandleInboundTransientLLMFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	n := h.seedNegotiation(t)
	h.llm.intentErr = errors.New("llm: deadline exceeded")

	outcome, err := h.orch.HandleInbound(context.Background(), inboundReply("That works!"))
	require.Error(t, err)
	assert.Equal(t, ActionError, outcome.Action)

	// The in-memory machine reverted, so redelivering the same inbound after
	// the outage succeeds.
	assert.Equal(t, negotiation.StateAwaitingReply, n.Machine.State())
	h.llm.intentErr = nil
	h.llm.intent = llm.IntentResult{Intent: llm.IntentAccept, Confidence: 0.95, ProposedRateRaw: "2000"}

	outcome, err = h.orch.HandleInbound(context.Background(), inboundReply("That works!"))
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, outcome.Action)
}

func TestResumeCounterDispatchesApprovedDraft(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	// Escalate first via an over-ceiling counter.
	h.llm.intent = llm.IntentResult{Intent: llm.IntentCounter, Confidence: 0.92, ProposedRateRaw: "5000"}
	_, err := h.orch.HandleInbound(context.Background(), inboundReply("My rate is $5,000."))
	require.NoError(t, err)

	outcome, err := h.orch.ResumeCounter(context.Background(), testThreadID, llm.Draft{
		Body: "Hi Ava, after checking internally we can do $2,000.00 for the dedicated YouTube video.",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionSend, outcome.Action)
	assert.Equal(t, negotiation.StateCounterSent, outcome.State)
	assert.Equal(t, 1, h.transport.sentCount())

	snap, err := h.services.Store.Load(context.Background(), testThreadID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateCounterSent, snap.State)
	assert.Equal(t, 1, snap.RoundCount)
}

func TestResumeCounterRevalidatesDraft(t *testing.T) {
	h := newHarness(t)
	h.seedNegotiation(t)
	h.llm.intent = llm.IntentResult{Intent: llm.IntentCounter, Confidence: 0.92, ProposedRateRaw: "5000"}
	_, err := h.orch.HandleInbound(context.Background(), inboundReply("My rate is $5,000."))
	require.NoError(t, err)

	_, err = h.orch.ResumeCounter(context.Background(), testThreadID, llm.Draft{
		Body: "Hi Ava, we can do $3,333.00.",
	})
	require.Error(t, err)
	assert.Zero(t, h.transport.sentCount())
}
