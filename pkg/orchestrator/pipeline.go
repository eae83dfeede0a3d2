package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/ownership"
	"github.com/parley-hq/parley/pkg/store"
	"github.com/parley-hq/parley/pkg/triggers"
	"github.com/parley-hq/parley/pkg/validate"
)

// Orchestrator runs the negotiation pipeline.
type Orchestrator struct {
	services Services
	logger   *slog.Logger
}

// New builds an orchestrator over the wired services.
func New(services Services) *Orchestrator {
	return &Orchestrator{
		services: services,
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// HandleInbound runs the full pipeline for one inbound email. The thread's
// negotiation lock is held for the whole run, so invocations for the same
// thread serialize. Redelivered messages are routine (the Gmail history
// token only advances after a whole batch enqueues) and never run a second
// round. The returned error is non-nil only for ActionError outcomes.
func (o *Orchestrator) HandleInbound(ctx context.Context, in email.Inbound) (Outcome, error) {
	n, ok := o.services.Manager.Get(in.ThreadID)
	if !ok {
		o.logger.Warn("Inbound email for unknown thread", "thread_id", in.ThreadID)
		return Outcome{Action: ActionSkip, ThreadID: in.ThreadID, Reason: ReasonUnknownThread}, nil
	}

	n.Lock()
	defer n.Unlock()

	// Context.References holds every message ID this thread has processed,
	// so a redelivery is recognizable. A thread sitting in counter_received
	// had its receive persisted but no counter dispatched (the process died
	// or the send failed between the two saves); that redelivery resumes
	// the round. Any other redelivery already ran to completion and is a
	// no-op.
	resuming := n.Machine.State() == negotiation.StateCounterReceived
	duplicate := slices.Contains(n.Context.References, in.MessageID)
	if duplicate && !resuming {
		o.logger.Info("Duplicate inbound ignored",
			"thread_id", in.ThreadID, "message_id", in.MessageID, "state", n.Machine.State())
		return Outcome{Action: ActionSkip, ThreadID: in.ThreadID, State: n.Machine.State(), Reason: ReasonDuplicateInbound}, nil
	}

	// Audit receipt before anything can fail; intent is not yet classified.
	// A resumed redelivery was already audited on its first arrival.
	if !duplicate {
		o.auditEntry(ctx, n, store.AuditReceived, in.Body)
	}

	// Ownership gate.
	if o.services.Ownership.IsHumanManaged(in.ThreadID) {
		return Outcome{Action: ActionSkip, ThreadID: in.ThreadID, State: n.Machine.State(), Reason: ReasonHumanManaged}, nil
	}

	// Human-reply detection: a foreign sender in the thread means a human
	// already stepped in. The handoff is silent.
	takeover, sender, err := ownership.HumanReplyDetected(ctx, o.services.Email, in.ThreadID,
		o.services.Settings.AgentEmail, n.Context.Influencer.Email)
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("human-reply detection failed for %s: %w", in.ThreadID, err))
	}
	if takeover {
		if err := o.services.Ownership.Claim(ctx, in.ThreadID, sender); err != nil {
			return o.failOutcome(n, fmt.Errorf("failed to record detected takeover for %s: %w", in.ThreadID, err))
		}
		o.auditEntry(ctx, n, store.AuditHumanTakeover, "detected human reply from "+sender)
		return Outcome{Action: ActionSkip, ThreadID: in.ThreadID, State: n.Machine.State(), Reason: ReasonHumanTakeoverDetected}, nil
	}

	// The receive transition, skipped when resuming a round whose receive is
	// already durable. Everything after this point either commits a save or
	// reverts the in-memory machine, so a transient failure leaves the
	// negotiation replayable.
	prevState, prevHistory := n.Machine.State(), n.Machine.History()
	if !resuming {
		if _, err := n.Machine.Trigger(negotiation.EventReceiveReply); err != nil {
			var invalid *negotiation.InvalidTransitionError
			if errors.As(err, &invalid) {
				o.logger.Warn("Inbound email rejected by state machine",
					"thread_id", in.ThreadID, "state", invalid.From)
				return Outcome{Action: ActionError, ThreadID: in.ThreadID, State: invalid.From, Reason: ReasonInvalidTransition}, err
			}
			return o.failOutcome(n, err)
		}
	}
	committed := false
	defer func() {
		if !committed {
			if m, restoreErr := negotiation.FromSnapshot(prevState, prevHistory); restoreErr == nil {
				n.Machine = m
			}
		}
	}()
	// finish marks the run committed when a terminal branch persisted its
	// state, so the deferred revert only fires on genuine failures.
	finish := func(out Outcome, err error) (Outcome, error) {
		if err == nil {
			committed = true
		}
		return out, err
	}

	n.Context.LastMessageID = in.MessageID
	if !duplicate {
		n.Context.References = append(n.Context.References, in.MessageID)
	}

	// Pricing decision: campaign floor CPM plus whatever flexibility the
	// tracker grants this influencer's engagement.
	baseCPM := n.Campaign.TargetMinCPM
	flex := n.Tracker.GetFlexibility(n.Context.Influencer.EngagementRate)
	expectedRate, err := o.services.Pricing.CalculateRate(n.Context.Influencer.AverageViews, baseCPM.Add(flex))
	if err != nil {
		// A pricing failure means the stored inputs are bad; a human has to
		// look at the row, so escalate with the raw numbers.
		return finish(o.escalate(ctx, n, escalation{
			reason: fmt.Sprintf("pricing failed: %v (views=%d, cpm=%s)",
				err, n.Context.Influencer.AverageViews, baseCPM.Add(flex)),
		}))
	}
	n.Context.ExpectedRate = expectedRate

	// Trigger pre-check. No classification exists yet, so the confidence
	// input stays nil and only the deterministic CPM check and the semantic
	// screen can fire.
	preResults, err := o.services.Triggers.Evaluate(ctx, triggers.Input{
		EmailBody:         in.Body,
		ProposedCPM:       decimal.Zero,
		IntentConfidence:  nil,
		KnownDeliverables: knownDeliverables(),
	})
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("trigger pre-check failed for %s: %w", in.ThreadID, err))
	}
	if triggers.AnyFired(preResults) {
		fired := triggers.FiredResults(preResults)
		return finish(o.escalate(ctx, n, escalation{
			reason:   triggerReasons(fired),
			evidence: triggerEvidence(fired),
			results:  preResults,
		}))
	}

	// Intent classification, one LLM call.
	intent, err := o.services.LLM.ClassifyIntent(ctx, llm.IntentRequest{
		EmailBody:       in.Body,
		InfluencerName:  n.Context.Influencer.Name,
		ClientName:      n.Campaign.ClientName,
		Deliverable:     n.Context.Deliverable.Type.DisplayName(),
		LastOfferedRate: money.FormatUSD(n.Context.ExpectedRate),
		Round:           n.RoundCount,
	})
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("intent classification failed for %s: %w", in.ThreadID, err))
	}
	label := intent.Intent
	if !label.IsValid() || intent.Confidence < o.services.Settings.IntentConfidenceThreshold {
		label = llm.IntentAmbiguous
	}

	proposedRate, err := intent.ProposedRate()
	if err != nil {
		return finish(o.escalate(ctx, n, escalation{
			reason:   fmt.Sprintf("classifier returned unparseable proposed rate %q", intent.ProposedRateRaw),
			evidence: intent.EvidenceQuote,
		}))
	}
	if proposedRate != nil {
		n.Context.LastProposedRate = proposedRate
	}

	switch label {
	case llm.IntentAccept:
		return finish(o.accept(ctx, n, proposedRate))
	case llm.IntentReject:
		return finish(o.reject(ctx, n, intent.EvidenceQuote))
	case llm.IntentCounter:
		// Continue below.
	default:
		return finish(o.escalate(ctx, n, escalation{
			reason:       fmt.Sprintf("intent classified as %s (confidence %.2f)", label, intent.Confidence),
			evidence:     intent.EvidenceQuote,
			proposedRate: proposedRate,
		}))
	}

	// Round cap, checked before any further LLM spend.
	if n.RoundCount >= o.services.Settings.MaxRounds {
		return finish(o.escalate(ctx, n, escalation{
			reason:       fmt.Sprintf("maximum negotiation rounds reached (%d)", o.services.Settings.MaxRounds),
			proposedRate: proposedRate,
		}))
	}

	// Rate boundary.
	if proposedRate != nil {
		verdict, err := o.services.Pricing.Evaluate(*proposedRate,
			n.Context.Influencer.AverageViews, n.Context.Deliverable.Type)
		if err != nil {
			return finish(o.escalate(ctx, n, escalation{
				reason:       fmt.Sprintf("rate evaluation failed: %v", err),
				proposedRate: proposedRate,
			}))
		}
		if verdict.ShouldEscalate {
			return finish(o.escalate(ctx, n, escalation{
				reason:       verdict.Warning,
				proposedRate: proposedRate,
			}))
		}
		if verdict.Warning != "" {
			o.logger.Warn("Proposed rate outside expected band, countering anyway",
				"thread_id", in.ThreadID, "boundary", verdict.Boundary, "warning", verdict.Warning)
		}
	}

	// Compose the counter.
	var guidance string
	if o.services.Playbook != nil {
		guidance = o.services.Playbook.Guidance(ctx)
	}
	draft, err := o.services.LLM.ComposeCounter(ctx, llm.ComposeRequest{
		InfluencerName:   n.Context.Influencer.Name,
		ClientName:       n.Campaign.ClientName,
		Subject:          n.Context.Subject,
		Deliverable:      n.Context.Deliverable.Type.DisplayName(),
		DeliverableTerms: []string{n.Context.Deliverable.Type.DisplayName()},
		ExpectedRate:     n.Context.ExpectedRate,
		LastInbound:      in.Body,
		Guidance:         guidance,
		Round:            n.RoundCount + 1,
		MaxRounds:        o.services.Settings.MaxRounds,
	})
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("composing counter failed for %s: %w", in.ThreadID, err))
	}

	// Validation gate: every dollar figure in the draft must equal the
	// expected rate or the send is blocked.
	report := validate.CounterOffer(n.Context.ExpectedRate, draft.Body,
		[]string{n.Context.Deliverable.Type.DisplayName()})
	if !report.OK {
		return finish(o.escalate(ctx, n, escalation{
			reason:       "draft failed validation: " + strings.Join(report.Errors, "; "),
			draft:        &draft,
			proposedRate: proposedRate,
		}))
	}

	// Persist-before-send: commit the counter_received state, dispatch, then
	// commit counter_sent with the incremented round. A crash between the
	// two saves leaves counter_received durable, and the redelivered message
	// resumes this round; a crash after the second save completed the round,
	// so the redelivery is a no-op.
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist before send failed for %s: %w", in.ThreadID, err))
	}
	committed = true

	result, err := o.services.Email.Send(ctx, email.Outbound{
		To:         n.Context.Influencer.Email,
		Subject:    replySubject(draft.Subject, n.Context.Subject),
		Body:       draft.Body,
		ThreadID:   n.ThreadID,
		InReplyTo:  in.MessageID,
		References: append([]string{}, n.Context.References...),
	})
	if err != nil {
		// The durable state stays counter_received; nothing went out.
		return o.failOutcome(n, fmt.Errorf("dispatch failed for %s: %w", in.ThreadID, err))
	}

	n.Context.LastMessageID = result.MessageID
	n.Context.References = append(n.Context.References, result.MessageID)
	if _, err := n.Machine.Trigger(negotiation.EventSendCounter); err != nil {
		return o.failOutcome(n, err)
	}
	n.RoundCount++
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist after send failed for %s: %w", in.ThreadID, err))
	}

	o.auditEntry(ctx, n, store.AuditSent, draft.Body)
	o.logger.Info("Counter-offer sent",
		"thread_id", n.ThreadID,
		"round", n.RoundCount,
		"rate", money.FormatUSD(n.Context.ExpectedRate))
	return Outcome{Action: ActionSend, ThreadID: n.ThreadID, State: n.Machine.State(), Draft: &draft}, nil
}

// ResumeCounter dispatches a human-approved draft for an escalated thread and
// moves it back into the counter flow. The draft is re-validated against the
// expected rate; approval does not bypass the gate.
func (o *Orchestrator) ResumeCounter(ctx context.Context, threadID string, draft llm.Draft) (Outcome, error) {
	n, ok := o.services.Manager.Get(threadID)
	if !ok {
		return Outcome{Action: ActionError, ThreadID: threadID, Reason: ReasonUnknownThread},
			fmt.Errorf("%s: %w", threadID, negotiation.ErrThreadNotFound)
	}

	n.Lock()
	defer n.Unlock()

	if state := n.Machine.State(); state != negotiation.StateEscalated {
		err := &negotiation.InvalidTransitionError{From: state, Event: negotiation.EventResumeCounter}
		return Outcome{Action: ActionError, ThreadID: threadID, State: state, Reason: ReasonInvalidTransition}, err
	}

	report := validate.CounterOffer(n.Context.ExpectedRate, draft.Body,
		[]string{n.Context.Deliverable.Type.DisplayName()})
	if !report.OK {
		return Outcome{Action: ActionError, ThreadID: threadID, State: negotiation.StateEscalated,
				Reason: "approved draft failed validation: " + strings.Join(report.Errors, "; ")},
			fmt.Errorf("approved draft failed validation for %s: %s", threadID, strings.Join(report.Errors, "; "))
	}

	// The escalated state is already durable; the send sits between it and
	// the counter_sent save, same bracketing as the main pipeline.
	result, err := o.services.Email.Send(ctx, email.Outbound{
		To:         n.Context.Influencer.Email,
		Subject:    replySubject(draft.Subject, n.Context.Subject),
		Body:       draft.Body,
		ThreadID:   n.ThreadID,
		InReplyTo:  n.Context.LastMessageID,
		References: append([]string{}, n.Context.References...),
	})
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("resume dispatch failed for %s: %w", threadID, err))
	}

	n.Context.LastMessageID = result.MessageID
	n.Context.References = append(n.Context.References, result.MessageID)
	if _, err := n.Machine.Trigger(negotiation.EventResumeCounter); err != nil {
		return o.failOutcome(n, err)
	}
	n.RoundCount++
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist after resume failed for %s: %w", threadID, err))
	}

	o.auditEntry(ctx, n, store.AuditSent, draft.Body)
	o.logger.Info("Escalated thread resumed with approved counter",
		"thread_id", threadID, "round", n.RoundCount)
	return Outcome{Action: ActionSend, ThreadID: threadID, State: n.Machine.State(), Draft: &draft}, nil
}

// accept closes the deal at the influencer's accepted rate.
func (o *Orchestrator) accept(ctx context.Context, n *negotiation.Negotiation, proposedRate *decimal.Decimal) (Outcome, error) {
	agreedRate := n.Context.ExpectedRate
	if n.Context.LastProposedRate != nil {
		agreedRate = *n.Context.LastProposedRate
	}
	if proposedRate != nil {
		agreedRate = *proposedRate
	}

	cpm, err := o.services.Pricing.CalculateCPMFromRate(agreedRate, n.Context.Influencer.AverageViews)
	if err != nil {
		return o.failOutcome(n, fmt.Errorf("cpm back-calculation failed for %s: %w", n.ThreadID, err))
	}

	if _, err := n.Machine.Trigger(negotiation.EventAccept); err != nil {
		return o.failOutcome(n, err)
	}
	n.Tracker.RecordAgreement(cpm, n.Context.Influencer.EngagementRate)
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist agreement failed for %s: %w", n.ThreadID, err))
	}

	o.auditEntry(ctx, n, store.AuditAgreement,
		fmt.Sprintf("agreed at %s (%s CPM)", money.FormatUSD(agreedRate), money.FormatUSD(cpm)))
	if o.services.Notifier != nil {
		o.services.Notifier.PostAgreement(ctx, models.AgreementPayload{
			InfluencerName:  n.Context.Influencer.Name,
			InfluencerEmail: n.Context.Influencer.Email,
			ClientName:      n.Campaign.ClientName,
			AgreedRate:      agreedRate,
			Platform:        n.Context.Influencer.Platform,
			Deliverables:    n.Context.Deliverable.Type.DisplayName(),
			CPMAchieved:     cpm,
			ThreadID:        n.ThreadID,
			NextSteps:       []string{"Send the contract", "Confirm the content brief and posting date"},
			MentionUsers:    n.Campaign.MentionUsers,
		})
	}

	o.services.Manager.Remove(n.ThreadID)
	o.logger.Info("Deal agreed",
		"thread_id", n.ThreadID,
		"rate", money.FormatUSD(agreedRate),
		"cpm", money.FormatUSD(cpm))
	return Outcome{Action: ActionAccept, ThreadID: n.ThreadID, State: negotiation.StateAgreed}, nil
}

// reject records a dead negotiation.
func (o *Orchestrator) reject(ctx context.Context, n *negotiation.Negotiation, evidence string) (Outcome, error) {
	if _, err := n.Machine.Trigger(negotiation.EventReject); err != nil {
		return o.failOutcome(n, err)
	}
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist rejection failed for %s: %w", n.ThreadID, err))
	}

	o.auditEntry(ctx, n, store.AuditDecision, "influencer declined: "+evidence)
	o.services.Manager.Remove(n.ThreadID)
	o.logger.Info("Negotiation rejected", "thread_id", n.ThreadID)
	return Outcome{Action: ActionReject, ThreadID: n.ThreadID, State: negotiation.StateRejected}, nil
}

// escalation collects the facts an escalate path hands to a human.
type escalation struct {
	reason       string
	evidence     string
	proposedRate *decimal.Decimal
	draft        *llm.Draft
	results      []triggers.Result
}

// escalate transitions to escalated, persists, and notifies the channel. The
// chat post is fail-open; the saved state is the source of truth.
func (o *Orchestrator) escalate(ctx context.Context, n *negotiation.Negotiation, esc escalation) (Outcome, error) {
	if _, err := n.Machine.Trigger(negotiation.EventEscalate); err != nil {
		return o.failOutcome(n, err)
	}
	if err := o.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return o.failOutcome(n, fmt.Errorf("persist escalation failed for %s: %w", n.ThreadID, err))
	}

	o.auditEntry(ctx, n, store.AuditEscalation, esc.reason)

	ourRate := n.Context.ExpectedRate
	payload := models.EscalationPayload{
		InfluencerName:   n.Context.Influencer.Name,
		InfluencerEmail:  n.Context.Influencer.Email,
		ClientName:       n.Campaign.ClientName,
		EscalationReason: esc.reason,
		EvidenceQuote:    esc.evidence,
		ProposedRate:     esc.proposedRate,
		OurRate:          &ourRate,
		SuggestedActions: []string{
			"Review the thread and reply directly (the agent stands down once you do)",
			"Approve the counter with resume-counter to let the agent continue",
		},
		DetailsLink: o.services.Settings.DashboardURL,
	}
	if esc.draft != nil {
		payload.Draft = esc.draft.Body
	}
	if o.services.Notifier != nil {
		o.services.Notifier.PostEscalation(ctx, payload)
	}

	o.logger.Info("Negotiation escalated", "thread_id", n.ThreadID, "reason", esc.reason)
	return Outcome{
		Action:   ActionEscalate,
		ThreadID: n.ThreadID,
		State:    negotiation.StateEscalated,
		Reason:   esc.reason,
		Triggers: esc.results,
		Draft:    esc.draft,
	}, nil
}

// failOutcome wraps a pipeline failure. The deferred machine revert in
// HandleInbound puts uncommitted in-memory state back.
func (o *Orchestrator) failOutcome(n *negotiation.Negotiation, err error) (Outcome, error) {
	o.logger.Error("Pipeline failed", "thread_id", n.ThreadID, "error", err)
	return Outcome{Action: ActionError, ThreadID: n.ThreadID, State: n.Machine.State(), Reason: err.Error()}, err
}

func (o *Orchestrator) auditEntry(ctx context.Context, n *negotiation.Negotiation, kind store.AuditKind, snippet string) {
	entry := store.AuditEntry{
		Kind:           kind,
		CampaignID:     n.Campaign.ID,
		InfluencerName: n.Context.Influencer.Name,
		ThreadID:       n.ThreadID,
		State:          string(n.Machine.State()),
		PayloadSnippet: snippet,
	}
	if err := o.services.Audit.Record(ctx, entry); err != nil {
		o.logger.Error("Failed to record audit entry",
			"thread_id", n.ThreadID, "kind", kind, "error", err)
	}
}

func knownDeliverables() []string {
	types := models.AllDeliverableTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.DisplayName()
	}
	return names
}

func triggerReasons(fired []triggers.Result) string {
	reasons := make([]string, len(fired))
	for i, res := range fired {
		reasons[i] = res.Reason
	}
	return strings.Join(reasons, "; ")
}

func triggerEvidence(fired []triggers.Result) string {
	for _, res := range fired {
		if res.Evidence != "" {
			return res.Evidence
		}
	}
	return ""
}

func replySubject(draftSubject, threadSubject string) string {
	if draftSubject != "" {
		return draftSubject
	}
	if threadSubject == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(threadSubject), "re:") {
		return threadSubject
	}
	return "Re: " + threadSubject
}
