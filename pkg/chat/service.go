package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-hq/parley/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
	Timeout      time.Duration
}

// Service delivers negotiation notifications to the team channel.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewService creates a notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		timeout:      timeout,
		logger:       slog.Default().With("component", "chat-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		timeout:      10 * time.Second,
		logger:       slog.Default().With("component", "chat-service"),
	}
}

// PostEscalation notifies the channel that a negotiation needs a human.
// Fail-open: errors are logged, never returned.
func (s *Service) PostEscalation(ctx context.Context, payload models.EscalationPayload) string {
	if s == nil {
		return ""
	}

	if payload.DetailsLink == "" && s.dashboardURL != "" {
		payload.DetailsLink = s.dashboardURL
	}

	blocks, fallback := BuildEscalationMessage(payload)
	ts, err := s.client.PostMessage(ctx, blocks, fallback, s.timeout)
	if err != nil {
		s.logger.Error("Failed to post escalation notification",
			"influencer", payload.InfluencerName,
			"reason", payload.EscalationReason,
			"error", err)
		return ""
	}
	return ts
}

// PostAgreement notifies the channel that a deal closed.
// Fail-open: errors are logged, never returned.
func (s *Service) PostAgreement(ctx context.Context, payload models.AgreementPayload) string {
	if s == nil {
		return ""
	}

	blocks, fallback := BuildAgreementMessage(payload)
	ts, err := s.client.PostMessage(ctx, blocks, fallback, s.timeout)
	if err != nil {
		s.logger.Error("Failed to post agreement notification",
			"influencer", payload.InfluencerName,
			"thread_id", payload.ThreadID,
			"error", err)
		return ""
	}
	return ts
}
