package playbook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultCacheTTL = 10 * time.Minute
	defaultTimeout  = 10 * time.Second
	maxDocumentSize = 1 << 20 // 1 MiB is plenty for a guidance doc
)

// Service resolves the negotiation-guidance document.
// Nil-safe: a nil service (no URL configured) always resolves empty guidance.
type Service struct {
	url        string
	httpClient *http.Client
	cache      *docCache
	logger     *slog.Logger
}

// NewService creates a guidance service for the given document URL.
// Returns nil if url is empty.
func NewService(url string, cacheTTL time.Duration) *Service {
	if url == "" {
		return nil
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Service{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      newDocCache(cacheTTL),
		logger:     slog.Default().With("component", "playbook"),
	}
}

// OverrideHTTPClientForTest replaces the internal HTTP client.
// For testing only.
func (s *Service) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.httpClient = httpClient
}

// Guidance returns the playbook content, serving from cache when fresh.
// Fail-open: fetch failures are logged and resolve to empty guidance so a
// docs outage never blocks composing a counter-offer.
func (s *Service) Guidance(ctx context.Context) string {
	if s == nil {
		return ""
	}

	if content, ok := s.cache.get(); ok {
		return content
	}

	content, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch playbook, composing without guidance",
			"url", s.url,
			"error", err)
		return ""
	}

	s.cache.set(content)
	return content
}

func (s *Service) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build playbook request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch playbook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch playbook: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("read playbook body: %w", err)
	}
	return string(body), nil
}
