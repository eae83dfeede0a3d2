package config

import (
	"os"
	"time"
)

// SystemConfig groups the external-facing settings: who the agent is, and the
// credentials for email, chat, spreadsheet, LLM, and the campaign task API.
// Every credential block is optional; an absent block disables that
// capability instead of failing startup.
type SystemConfig struct {
	// AgentEmail is the address the agent sends from. Human-reply detection
	// treats any other non-influencer sender in a thread as a human takeover.
	AgentEmail string `yaml:"agent_email"`

	// DashboardURL is linked from chat payloads ("details" buttons).
	DashboardURL string `yaml:"dashboard_url"`

	Slack     *SlackConfig     `yaml:"slack,omitempty"`
	Gmail     *GmailConfig     `yaml:"gmail,omitempty"`
	Sheets    *SheetsConfig    `yaml:"sheets,omitempty"`
	LLM       *LLMConfig       `yaml:"llm,omitempty"`
	Campaigns *CampaignsConfig `yaml:"campaigns,omitempty"`
	Playbook  *PlaybookConfig  `yaml:"playbook,omitempty"`
}

// SlackConfig configures chat notifications and slash commands.
type SlackConfig struct {
	TokenEnv         string `yaml:"token_env"`
	SigningSecretEnv string `yaml:"signing_secret_env"`
	Channel          string `yaml:"channel"`
}

// Token resolves the bot token from the environment.
func (s *SlackConfig) Token() string {
	if s == nil {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// SigningSecret resolves the request-signing secret from the environment.
func (s *SlackConfig) SigningSecret() string {
	if s == nil {
		return ""
	}
	return os.Getenv(s.SigningSecretEnv)
}

// GmailConfig configures the email transport and push-notification watch.
type GmailConfig struct {
	CredentialsEnv string `yaml:"credentials_env"`
	TokenEnv       string `yaml:"token_env"`

	// WatchTopic is the Pub/Sub topic Gmail publishes change notifications
	// to. Empty disables the watch; inbound mail then arrives only via
	// explicit fetches.
	WatchTopic string `yaml:"watch_topic"`

	// WatchRenewalLead is how long before the stored expiration the watch is
	// renewed.
	WatchRenewalLead string `yaml:"watch_renewal_lead"`
}

// CredentialsJSON resolves the OAuth client credentials from the environment.
func (g *GmailConfig) CredentialsJSON() string {
	if g == nil {
		return ""
	}
	return os.Getenv(g.CredentialsEnv)
}

// TokenJSON resolves the stored OAuth token from the environment.
func (g *GmailConfig) TokenJSON() string {
	if g == nil {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// SheetsConfig configures the influencer roster spreadsheet.
type SheetsConfig struct {
	CredentialsEnv string `yaml:"credentials_env"`
	SpreadsheetID  string `yaml:"spreadsheet_id"`
	ReadRange      string `yaml:"read_range"`
}

// CredentialsJSON resolves the service-account credentials from the
// environment.
func (s *SheetsConfig) CredentialsJSON() string {
	if s == nil {
		return ""
	}
	return os.Getenv(s.CredentialsEnv)
}

// LLMConfig configures the structured-output LLM provider.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the provider API key from the environment.
func (l *LLMConfig) APIKey() string {
	if l == nil {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// PlaybookConfig points at the negotiation-guidance document injected into
// composer prompts. Absent means the composer works without guidance.
type PlaybookConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// CampaignsConfig configures the campaign task API the webhook ingests from.
type CampaignsConfig struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`
}

// Token resolves the task API token from the environment.
func (c *CampaignsConfig) Token() string {
	if c == nil {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}
