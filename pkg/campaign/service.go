package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/pricing"
	"github.com/parley-hq/parley/pkg/sheets"
	"github.com/parley-hq/parley/pkg/store"
	"github.com/parley-hq/parley/pkg/validate"
)

// Roster is the slice of the spreadsheet layer ingest needs.
type Roster interface {
	FindInfluencer(ctx context.Context, name string) (models.InfluencerRow, error)
}

// EmailSender dispatches the initial offer.
type EmailSender interface {
	Send(ctx context.Context, out email.Outbound) (email.SendResult, error)
}

// Notifier reports ingest problems to the team channel. Fail-open.
type Notifier interface {
	PostEscalation(ctx context.Context, payload models.EscalationPayload) string
}

// GuidanceProvider resolves the negotiation playbook for the opening email.
type GuidanceProvider interface {
	Guidance(ctx context.Context) string
}

// Settings are the ingest knobs resolved from configuration.
type Settings struct {
	MaxRounds    int
	DashboardURL string
}

// Services bundles the ingest dependencies.
type Services struct {
	Tasks    TaskFetcher
	Roster   Roster
	Manager  *negotiation.Manager
	Store    *store.StateStore
	Audit    *store.AuditLog
	Pricing  *pricing.Engine
	LLM      llm.Client
	Email    EmailSender
	Notifier Notifier
	Playbook GuidanceProvider
	Settings Settings
}

// Report summarizes one ingest run.
type Report struct {
	CampaignID string   `json:"campaign_id"`
	Launched   []string `json:"launched"`
	Missing    []string `json:"missing,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

// Service turns campaign tasks into live negotiations.
type Service struct {
	services Services
	logger   *slog.Logger
}

// NewService builds the ingest service.
func NewService(services Services) *Service {
	return &Service{
		services: services,
		logger:   slog.Default().With("component", "campaign-ingest"),
	}
}

// IngestTask resolves the task, matches its influencers against the roster,
// and opens one negotiation per match. Missing influencers are reported to
// chat when a notifier is configured; one bad influencer never blocks the
// rest of the campaign.
func (s *Service) IngestTask(ctx context.Context, taskID string) (Report, error) {
	task, err := s.services.Tasks.FetchTask(ctx, taskID)
	if err != nil {
		return Report{}, fmt.Errorf("campaign ingest: %w", err)
	}

	deliverable, err := models.NewDeliverable(task.Platform, task.DeliverableType)
	if err != nil {
		return Report{}, fmt.Errorf("campaign ingest %s: %w", taskID, err)
	}

	campaign := models.Campaign{
		ID:               uuid.NewString(),
		TaskID:           task.ID,
		ClientName:       task.ClientName,
		TargetMinCPM:     task.TargetMinCPM,
		TargetMaxCPM:     task.TargetMaxCPM,
		TotalInfluencers: len(task.InfluencerNames),
		Deliverable:      deliverable,
		MentionUsers:     task.MentionUsers,
	}
	if err := campaign.Validate(); err != nil {
		return Report{}, fmt.Errorf("campaign ingest %s: %w", taskID, err)
	}

	report := Report{CampaignID: campaign.ID}
	for _, name := range task.InfluencerNames {
		row, err := s.services.Roster.FindInfluencer(ctx, name)
		if errors.Is(err, sheets.ErrInfluencerNotFound) {
			report.Missing = append(report.Missing, name)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("campaign ingest %s: roster lookup for %q: %w", taskID, name, err)
		}

		threadID, err := s.launchNegotiation(ctx, campaign, row)
		if err != nil {
			s.logger.Error("Failed to open negotiation",
				"campaign_id", campaign.ID, "influencer", row.Name, "error", err)
			report.Failed = append(report.Failed, name)
			continue
		}
		report.Launched = append(report.Launched, name)
		s.logger.Info("Negotiation opened",
			"campaign_id", campaign.ID, "influencer", row.Name, "thread_id", threadID)
	}

	if len(report.Missing) > 0 {
		s.reportMissing(ctx, campaign, report.Missing)
	}
	return report, nil
}

// launchNegotiation composes, validates, and dispatches the initial offer,
// then registers the negotiation under the transport's thread ID. The
// snapshot is parked under a provisional ID across the send so a crash
// mid-dispatch leaves an inspectable row instead of a silent gap.
func (s *Service) launchNegotiation(ctx context.Context, campaign models.Campaign, row models.InfluencerRow) (string, error) {
	expectedRate, err := s.services.Pricing.CalculateRate(row.AverageViews, campaign.TargetMinCPM)
	if err != nil {
		return "", fmt.Errorf("initial offer pricing for %q: %w", row.Name, err)
	}

	subject := fmt.Sprintf("%s x %s — %s collaboration", campaign.ClientName, row.Name,
		campaign.Deliverable.Type.DisplayName())
	negCtx := negotiation.Context{
		Influencer:   row,
		Deliverable:  campaign.Deliverable,
		Subject:      subject,
		ExpectedRate: expectedRate,
	}

	var guidance string
	if s.services.Playbook != nil {
		guidance = s.services.Playbook.Guidance(ctx)
	}
	draft, err := s.services.LLM.ComposeCounter(ctx, llm.ComposeRequest{
		InfluencerName:   row.Name,
		ClientName:       campaign.ClientName,
		Subject:          subject,
		Deliverable:      campaign.Deliverable.Type.DisplayName(),
		DeliverableTerms: []string{campaign.Deliverable.Type.DisplayName()},
		ExpectedRate:     expectedRate,
		Guidance:         guidance,
		Round:            0,
		MaxRounds:        s.services.Settings.MaxRounds,
	})
	if err != nil {
		return "", fmt.Errorf("composing initial offer for %q: %w", row.Name, err)
	}

	reportCard := validate.CounterOffer(expectedRate, draft.Body,
		[]string{campaign.Deliverable.Type.DisplayName()})
	if !reportCard.OK {
		s.notifyBlockedDraft(ctx, campaign, row, expectedRate, draft, reportCard.Errors)
		return "", fmt.Errorf("initial offer for %q failed validation: %s",
			row.Name, strings.Join(reportCard.Errors, "; "))
	}

	// Persist-before-send with a provisional key; the transport assigns the
	// real thread ID on first send.
	provisional := "pending-" + uuid.NewString()
	pending := negotiation.New(provisional, negCtx, campaign, s.services.Manager.TrackerFor(campaign))
	if err := s.services.Store.Save(ctx, pending.Snapshot()); err != nil {
		return "", fmt.Errorf("persist before initial send for %q: %w", row.Name, err)
	}

	result, err := s.services.Email.Send(ctx, email.Outbound{
		To:      row.Email,
		Subject: subject,
		Body:    draft.Body,
	})
	if err != nil {
		return "", fmt.Errorf("initial offer dispatch for %q: %w", row.Name, err)
	}

	negCtx.LastMessageID = result.MessageID
	negCtx.References = []string{result.MessageID}
	n, err := s.services.Manager.Create(result.ThreadID, negCtx, campaign)
	if err != nil {
		return "", fmt.Errorf("register negotiation for %q: %w", row.Name, err)
	}

	n.Lock()
	defer n.Unlock()
	if _, err := n.Machine.Trigger(negotiation.EventSendOffer); err != nil {
		return "", err
	}
	if err := s.services.Store.Save(ctx, n.Snapshot()); err != nil {
		return "", fmt.Errorf("persist after initial send for %q: %w", row.Name, err)
	}
	if err := s.services.Store.Delete(ctx, provisional); err != nil {
		s.logger.Warn("Failed to clean up provisional snapshot",
			"provisional_id", provisional, "error", err)
	}

	if err := s.services.Audit.Record(ctx, store.AuditEntry{
		Kind:           store.AuditSent,
		CampaignID:     campaign.ID,
		InfluencerName: row.Name,
		ThreadID:       result.ThreadID,
		State:          string(n.Machine.State()),
		PayloadSnippet: draft.Body,
	}); err != nil {
		s.logger.Error("Failed to record initial offer audit entry",
			"thread_id", result.ThreadID, "error", err)
	}
	return result.ThreadID, nil
}

func (s *Service) reportMissing(ctx context.Context, campaign models.Campaign, missing []string) {
	if s.services.Notifier == nil {
		return
	}
	s.services.Notifier.PostEscalation(ctx, models.EscalationPayload{
		InfluencerName:   strings.Join(missing, ", "),
		ClientName:       campaign.ClientName,
		EscalationReason: fmt.Sprintf("%d influencer(s) from task %s not found in the roster", len(missing), campaign.TaskID),
		SuggestedActions: []string{
			"Check the roster sheet for spelling or missing rows",
			"Re-run the campaign webhook once the roster is fixed",
		},
		DetailsLink: s.services.Settings.DashboardURL,
	})
}

func (s *Service) notifyBlockedDraft(ctx context.Context, campaign models.Campaign, row models.InfluencerRow, expectedRate decimal.Decimal, draft llm.Draft, failures []string) {
	if s.services.Notifier == nil {
		return
	}
	ourRate := expectedRate
	s.services.Notifier.PostEscalation(ctx, models.EscalationPayload{
		InfluencerName:   row.Name,
		InfluencerEmail:  row.Email,
		ClientName:       campaign.ClientName,
		EscalationReason: "initial offer draft failed validation: " + strings.Join(failures, "; "),
		OurRate:          &ourRate,
		Draft:            draft.Body,
		SuggestedActions: []string{"Review the draft and send manually if appropriate"},
		DetailsLink:      s.services.Settings.DashboardURL,
	})
}
