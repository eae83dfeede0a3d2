// Package sheets reads the influencer roster from a Google Sheet. The sheet
// is the source of truth for who can be negotiated with and at what rate
// band; lookups are case-insensitive on the influencer name.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
)

// ErrInfluencerNotFound is returned when no roster row matches the name.
var ErrInfluencerNotFound = errors.New("influencer not found in roster")

const defaultReadRange = "Roster!A2:H"

// Expected column order in the read range:
// name, email, platform, handle, average_views, min_rate, max_rate, engagement_rate.
const (
	colName = iota
	colEmail
	colPlatform
	colHandle
	colAverageViews
	colMinRate
	colMaxRate
	colEngagement
	columnCount
)

// valuesFetcher is the slice of the Sheets API the service consumes; tests
// inject fixed grids.
type valuesFetcher interface {
	Fetch(ctx context.Context) ([][]any, error)
}

// Service resolves influencer roster rows.
type Service struct {
	fetcher valuesFetcher
	logger  *slog.Logger
}

// Config configures the Sheets-backed roster.
type Config struct {
	CredentialsJSON string
	SpreadsheetID   string
	ReadRange       string
	Timeout         time.Duration
}

// NewService authenticates against the Sheets API with service-account
// credentials.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	readRange := cfg.ReadRange
	if readRange == "" {
		readRange = defaultReadRange
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Service{
		fetcher: &apiFetcher{svc: svc, spreadsheetID: cfg.SpreadsheetID, readRange: readRange, timeout: timeout},
		logger:  slog.Default().With("component", "sheets-roster"),
	}, nil
}

// NewServiceWithFetcher builds a service over an injected fetcher. For tests.
func NewServiceWithFetcher(fetcher valuesFetcher) *Service {
	return &Service{fetcher: fetcher, logger: slog.Default().With("component", "sheets-roster")}
}

type apiFetcher struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	readRange     string
	timeout       time.Duration
}

// Fetch reads the whole roster range in one call.
func (f *apiFetcher) Fetch(ctx context.Context) ([][]any, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.svc.Spreadsheets.Values.Get(f.spreadsheetID, f.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets read failed: %w", err)
	}
	return resp.Values, nil
}

// ListAll returns every valid roster row from one batched read. Malformed
// rows are logged and skipped so one bad cell does not hide the rest of the
// roster.
func (s *Service) ListAll(ctx context.Context) ([]models.InfluencerRow, error) {
	values, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]models.InfluencerRow, 0, len(values))
	for i, raw := range values {
		row, err := parseRow(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed roster row", "row", i+2, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FindInfluencer locates one roster row by name, ignoring case and
// surrounding whitespace.
func (s *Service) FindInfluencer(ctx context.Context, name string) (models.InfluencerRow, error) {
	rows, err := s.ListAll(ctx)
	if err != nil {
		return models.InfluencerRow{}, err
	}

	want := strings.ToLower(strings.TrimSpace(name))
	for _, row := range rows {
		if strings.ToLower(strings.TrimSpace(row.Name)) == want {
			return row, nil
		}
	}
	return models.InfluencerRow{}, fmt.Errorf("%w: %q", ErrInfluencerNotFound, name)
}

// parseRow converts one sheet row. Monetary cells are coerced through their
// string form so displayed precision is preserved exactly.
func parseRow(raw []any) (models.InfluencerRow, error) {
	if len(raw) < colMaxRate+1 {
		return models.InfluencerRow{}, fmt.Errorf("expected at least %d columns, got %d", colMaxRate+1, len(raw))
	}

	views, err := cellInt(raw[colAverageViews])
	if err != nil {
		return models.InfluencerRow{}, fmt.Errorf("average_views: %w", err)
	}
	minRate, err := cellMoney(raw[colMinRate])
	if err != nil {
		return models.InfluencerRow{}, fmt.Errorf("min_rate: %w", err)
	}
	maxRate, err := cellMoney(raw[colMaxRate])
	if err != nil {
		return models.InfluencerRow{}, fmt.Errorf("max_rate: %w", err)
	}

	var engagement *float64
	if len(raw) >= columnCount {
		engagement, err = models.ParseEngagementRate(cellString(raw[colEngagement]))
		if err != nil {
			return models.InfluencerRow{}, err
		}
	}

	row := models.InfluencerRow{
		Name:           strings.TrimSpace(cellString(raw[colName])),
		Email:          strings.TrimSpace(cellString(raw[colEmail])),
		Platform:       models.Platform(strings.ToLower(strings.TrimSpace(cellString(raw[colPlatform])))),
		Handle:         strings.TrimSpace(cellString(raw[colHandle])),
		AverageViews:   views,
		MinRate:        minRate,
		MaxRate:        maxRate,
		EngagementRate: engagement,
	}
	if err := row.Validate(); err != nil {
		return models.InfluencerRow{}, err
	}
	return row, nil
}

func cellString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", c)
	}
}

func cellInt(v any) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(cellString(v)), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty numeric cell")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer cell %q: %w", s, err)
	}
	return n, nil
}

func cellMoney(v any) (decimal.Decimal, error) {
	if f, ok := v.(float64); ok {
		return money.FromCoercedFloat(f), nil
	}
	return money.ParseUSD(cellString(v))
}
