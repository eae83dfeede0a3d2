// Parley negotiation server: ingests campaign tasks, negotiates influencer
// rates over email, and exposes webhooks plus an ops API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parley-hq/parley/pkg/api"
	"github.com/parley-hq/parley/pkg/campaign"
	"github.com/parley-hq/parley/pkg/chat"
	"github.com/parley-hq/parley/pkg/config"
	"github.com/parley-hq/parley/pkg/database"
	"github.com/parley-hq/parley/pkg/email"
	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/orchestrator"
	"github.com/parley-hq/parley/pkg/ownership"
	"github.com/parley-hq/parley/pkg/playbook"
	"github.com/parley-hq/parley/pkg/pricing"
	"github.com/parley-hq/parley/pkg/sheets"
	"github.com/parley-hq/parley/pkg/store"
	"github.com/parley-hq/parley/pkg/triggers"
	"github.com/parley-hq/parley/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting Parley",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the database (migrations run inside NewClient)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbConfig.Path = cfg.Database.Path

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()

	// 3. Rebuild in-memory negotiations from durable state
	stateStore := store.NewStateStore(dbClient.DB())
	auditLog := store.NewAuditLog(dbClient.DB())
	manager := negotiation.NewManager()

	active, err := stateStore.LoadActive(ctx)
	if err != nil {
		slog.Error("Failed to load active negotiations", "error", err)
		os.Exit(1)
	}
	if err := manager.Restore(active); err != nil {
		slog.Error("Failed to restore negotiations", "error", err)
		os.Exit(1)
	}
	slog.Info("Negotiations restored", "count", manager.Len())

	// 4. Load thread ownership so human takeovers survive the restart
	registry := ownership.NewRegistry(dbClient.DB())
	if err := registry.Load(ctx); err != nil {
		slog.Error("Failed to load thread ownership", "error", err)
		os.Exit(1)
	}

	// 5. External services; each absent config block disables its capability
	var transport *email.GmailTransport
	if g := cfg.System.Gmail; g != nil {
		transport, err = email.NewGmailTransport(ctx, email.GmailConfig{
			CredentialsJSON: g.CredentialsJSON(),
			TokenJSON:       g.TokenJSON(),
			AgentEmail:      cfg.System.AgentEmail,
			Timeout:         cfg.Queue.EmailTimeout,
		})
		if err != nil {
			slog.Error("Failed to initialize Gmail transport", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("Gmail is not configured; no mail will be sent or received")
	}

	var roster *sheets.Service
	if sh := cfg.System.Sheets; sh != nil {
		roster, err = sheets.NewService(ctx, sheets.Config{
			CredentialsJSON: sh.CredentialsJSON(),
			SpreadsheetID:   sh.SpreadsheetID,
			ReadRange:       sh.ReadRange,
		})
		if err != nil {
			slog.Error("Failed to initialize roster service", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("Sheets is not configured; campaign ingest cannot resolve influencers")
	}

	var llmClient llm.Client
	if l := cfg.System.LLM; l != nil {
		gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:  l.APIKey(),
			Model:   l.Model,
			Timeout: cfg.Queue.LLMTimeout,
		})
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			os.Exit(1)
		}
		llmClient = gemini
	} else {
		slog.Warn("LLM is not configured; replies cannot be classified or composed")
	}

	notifier := chat.NewService(chat.ServiceConfig{
		Token:        cfg.System.Slack.Token(),
		Channel:      channelOf(cfg.System.Slack),
		DashboardURL: cfg.System.DashboardURL,
		Timeout:      cfg.Queue.ChatTimeout,
	})
	if notifier == nil {
		slog.Warn("Slack is not configured; escalations will only be logged")
	}

	var guidance *playbook.Service
	if p := cfg.System.Playbook; p != nil {
		guidance = playbook.NewService(p.URL, p.CacheTTL)
	}

	// 6. Pricing and trigger engines
	cards, err := cfg.Pricing.Cards()
	if err != nil {
		slog.Error("Invalid rate card configuration", "error", err)
		os.Exit(1)
	}
	pricingEngine := pricing.NewEngine(cfg.Pricing.DefaultCard(), cards)
	triggerEngine := triggers.NewEngine(triggers.LoadConfig(cfg.TriggersPath()), llmClient)

	// 7. Pipeline, dispatcher, sweeper
	services := orchestrator.Services{
		Manager:   manager,
		Store:     stateStore,
		Audit:     auditLog,
		Ownership: registry,
		Pricing:   pricingEngine,
		Triggers:  triggerEngine,
		LLM:       llmClient,
		Notifier:  notifier,
		Playbook:  guidance,
		Settings: orchestrator.Settings{
			AgentEmail:                cfg.System.AgentEmail,
			MaxRounds:                 cfg.Negotiation.MaxRounds,
			IntentConfidenceThreshold: cfg.Negotiation.IntentConfidenceThreshold,
			DashboardURL:              cfg.System.DashboardURL,
			ReplyTimeout:              cfg.Negotiation.ReplyTimeout,
		},
	}
	if transport != nil {
		services.Email = transport
	}
	orch := orchestrator.New(services)

	dispatcher := orchestrator.NewDispatcher(orch, cfg.Queue.WorkerCount, cfg.Queue.QueueSize)
	dispatcher.Start(ctx)

	sweeper := orchestrator.NewSweeper(services,
		cfg.Negotiation.ReplyTimeout, cfg.Negotiation.SweepInterval)
	sweeper.Start(ctx)

	// 8. Watch renewal keeps Gmail push notifications flowing
	watchStore := email.NewWatchStore(dbClient.DB())
	var renewer *email.Renewer
	if g := cfg.System.Gmail; g != nil && g.WatchTopic != "" {
		lead, err := time.ParseDuration(durationOrDefault(g.WatchRenewalLead, "24h"))
		if err != nil {
			slog.Error("Invalid watch renewal lead", "value", g.WatchRenewalLead, "error", err)
			os.Exit(1)
		}
		renewer = email.NewRenewer(transport, watchStore, g.WatchTopic, lead, time.Hour)
		if err := renewer.Start(ctx); err != nil {
			slog.Error("Failed to start watch renewer", "error", err)
			os.Exit(1)
		}
	}

	// 9. Campaign ingest
	var ingest *campaign.Service
	if c := cfg.System.Campaigns; c != nil && roster != nil && transport != nil {
		ingest = campaign.NewService(campaign.Services{
			Tasks:    campaign.NewTaskClient(c.BaseURL, c.Token()),
			Roster:   roster,
			Manager:  manager,
			Store:    stateStore,
			Audit:    auditLog,
			Pricing:  pricingEngine,
			LLM:      llmClient,
			Email:    transport,
			Notifier: notifier,
			Playbook: guidance,
			Settings: campaign.Settings{
				MaxRounds:    cfg.Negotiation.MaxRounds,
				DashboardURL: cfg.System.DashboardURL,
			},
		})
	} else {
		slog.Warn("Campaign ingest disabled; requires campaigns, sheets, and gmail config")
	}

	// 10. HTTP server
	apiServices := api.Services{
		DB:                 dbClient,
		Manager:            manager,
		Store:              stateStore,
		Audit:              auditLog,
		Ownership:          registry,
		Negotiator:         orch,
		Dispatcher:         dispatcher,
		Watch:              watchStore,
		SlackSigningSecret: cfg.System.Slack.SigningSecret(),
	}
	if ingest != nil {
		apiServices.Campaigns = ingest
	}
	if transport != nil {
		apiServices.Email = transport
	}
	httpServer := api.NewServer(apiServices)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Parley started", "workers", cfg.Queue.WorkerCount)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: stop intake first, then drain pipelines
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Dispatcher drained")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded; durable state covers unfinished pipelines")
	}

	sweeper.Stop()
	if renewer != nil {
		renewer.Stop()
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// channelOf tolerates an absent slack block.
func channelOf(s *config.SlackConfig) string {
	if s == nil {
		return ""
	}
	return s.Channel
}

func durationOrDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
