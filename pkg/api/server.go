// Package api is the HTTP surface: inbound webhooks (campaign tasks, Gmail
// push notifications, Slack slash commands) and a small ops API for
// inspecting negotiations and the audit trail.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parley-hq/parley/pkg/campaign"
	"github.com/parley-hq/parley/pkg/database"
	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/orchestrator"
	"github.com/parley-hq/parley/pkg/ownership"
	"github.com/parley-hq/parley/pkg/store"
)

// Ingestor turns a campaign task into live negotiations.
type Ingestor interface {
	IngestTask(ctx context.Context, taskID string) (campaign.Report, error)
}

// Negotiator is the slice of the pipeline the ops API drives.
type Negotiator interface {
	ResumeCounter(ctx context.Context, threadID string, draft llm.Draft) (orchestrator.Outcome, error)
}

// Enqueuer hands inbound emails to the dispatcher.
type Enqueuer interface {
	Enqueue(in email.Inbound) error
}

// InboundFetcher pulls mail that arrived after the change token.
type InboundFetcher interface {
	FetchInbound(ctx context.Context, changeToken string) ([]email.Inbound, string, error)
}

// Services bundles everything the handlers touch. Email, Watch, and
// SlackSigningSecret may be absent; the matching webhook then rejects
// requests instead of panicking.
type Services struct {
	DB         *database.Client
	Manager    *negotiation.Manager
	Store      *store.StateStore
	Audit      *store.AuditLog
	Ownership  *ownership.Registry
	Campaigns  Ingestor
	Negotiator Negotiator
	Dispatcher Enqueuer
	Email      InboundFetcher
	Watch      *email.WatchStore

	SlackSigningSecret string
}

// Server wraps the gin engine and its listener.
type Server struct {
	services Services
	engine   *gin.Engine
	http     *http.Server
	logger   *slog.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(services Services) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		services: services,
		engine:   engine,
		logger:   slog.Default().With("component", "api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)

	webhooks := s.engine.Group("/webhooks")
	webhooks.POST("/campaigns", s.ingestCampaign)
	webhooks.POST("/gmail", s.gmailPush)
	webhooks.POST("/slack/commands", s.slackCommand)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/negotiations", s.listNegotiations)
	v1.GET("/negotiations/:thread_id", s.getNegotiation)
	v1.POST("/negotiations/:thread_id/resume-counter", s.resumeCounter)
	v1.GET("/audit", s.queryAudit)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr until Shutdown. Blocks; returns
// http.ErrServerClosed on a clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops the listener, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
