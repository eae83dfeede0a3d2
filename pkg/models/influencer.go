package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// InfluencerRow is one roster entry from the spreadsheet. Rates arrive as
// display strings (or floats coerced through strings) and stay decimal from
// that point on. EngagementRate is a percentage metric, not money, so float
// is acceptable there.
type InfluencerRow struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Platform       Platform        `json:"platform"`
	Handle         string          `json:"handle"`
	AverageViews   int64           `json:"average_views"`
	MinRate        decimal.Decimal `json:"min_rate"`
	MaxRate        decimal.Decimal `json:"max_rate"`
	EngagementRate *float64        `json:"engagement_rate,omitempty"`
}

// Validate checks the row invariants shared with PayRange: positive views and
// a non-inverted rate band.
func (r InfluencerRow) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("influencer row: name is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("influencer row %q: email is required", r.Name)
	}
	if !r.Platform.IsValid() {
		return fmt.Errorf("influencer row %q: unknown platform %q", r.Name, r.Platform)
	}
	if r.AverageViews <= 0 {
		return fmt.Errorf("influencer row %q: average views must be positive, got %d", r.Name, r.AverageViews)
	}
	if r.MinRate.GreaterThan(r.MaxRate) {
		return fmt.Errorf("influencer row %q: min rate %s exceeds max rate %s", r.Name, r.MinRate, r.MaxRate)
	}
	return nil
}

// PayRange is the pre-computed [min, max] rate band for a view count.
// Immutable; construct through NewPayRange.
type PayRange struct {
	MinRate      decimal.Decimal `json:"min_rate"`
	MaxRate      decimal.Decimal `json:"max_rate"`
	AverageViews int64           `json:"average_views"`
}

// NewPayRange validates the band invariants: min ≤ max and views > 0.
func NewPayRange(minRate, maxRate decimal.Decimal, averageViews int64) (PayRange, error) {
	if averageViews <= 0 {
		return PayRange{}, fmt.Errorf("pay range: average views must be positive, got %d", averageViews)
	}
	if minRate.GreaterThan(maxRate) {
		return PayRange{}, fmt.Errorf("pay range: min rate %s exceeds max rate %s", minRate, maxRate)
	}
	return PayRange{MinRate: minRate, MaxRate: maxRate, AverageViews: averageViews}, nil
}

// ParseEngagementRate parses a spreadsheet engagement cell ("3.5%", "3.5",
// "0.035") into a fractional percentage. Returns nil for blank cells.
func ParseEngagementRate(cell string) (*float64, error) {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil, nil
	}
	trimmed = strings.TrimSuffix(trimmed, "%")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid engagement rate %q: %w", cell, err)
	}
	return &v, nil
}
