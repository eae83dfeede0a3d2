package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-hq/parley/pkg/models"
)

func testEngine() *Engine {
	return NewEngine(models.DefaultRateCard(), nil)
}

func TestCalculateRate(t *testing.T) {
	tests := []struct {
		name  string
		views int64
		cpm   string
		want  string
	}{
		{name: "50k views at 24 CPM", views: 50000, cpm: "24", want: "1200"},
		{name: "100k views at 20 CPM", views: 100000, cpm: "20", want: "2000"},
		{name: "fractional CPM rounds half up", views: 12345, cpm: "3.33", want: "41.11"},
		{name: "sub-thousand views", views: 500, cpm: "22", want: "11"},
		{name: "zero CPM", views: 75000, cpm: "0", want: "0"},
	}

	e := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CalculateRate(tt.views, decimal.RequireFromString(tt.cpm))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCalculateRateInvalidInputs(t *testing.T) {
	e := testEngine()

	_, err := e.CalculateRate(0, decimal.NewFromInt(24))
	require.Error(t, err)
	var perr *PricingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "calculate_rate", perr.Op)

	_, err = e.CalculateRate(-100, decimal.NewFromInt(24))
	assert.Error(t, err)

	_, err = e.CalculateRate(50000, decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestCalculateInitialOffer(t *testing.T) {
	e := testEngine()

	offer, err := e.CalculateInitialOffer(100000)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2000).Equal(offer), "got %s", offer)
}

func TestCPMRoundTrip(t *testing.T) {
	// Computing a rate from a CPM and inverting it must reproduce the CPM
	// when the rate lands exactly on cents.
	tests := []struct {
		views int64
		cpm   string
	}{
		{views: 50000, cpm: "24"},
		{views: 100000, cpm: "20"},
		{views: 50000, cpm: "28.5"},
		{views: 80000, cpm: "22.75"},
	}

	e := testEngine()
	for _, tt := range tests {
		cpm := decimal.RequireFromString(tt.cpm)
		rate, err := e.CalculateRate(tt.views, cpm)
		require.NoError(t, err)

		back, err := e.CalculateCPMFromRate(rate, tt.views)
		require.NoError(t, err)
		assert.True(t, cpm.Equal(back), "views=%d cpm=%s: got %s back", tt.views, tt.cpm, back)
	}
}

func TestCalculateCPMFromRate(t *testing.T) {
	e := testEngine()

	cpm, err := e.CalculateCPMFromRate(decimal.NewFromInt(1800), 50000)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(36).Equal(cpm), "got %s", cpm)

	_, err = e.CalculateCPMFromRate(decimal.NewFromInt(1800), 0)
	assert.Error(t, err)
}

func TestCalculateDeliverableRate(t *testing.T) {
	cards := models.RateCards{
		models.DeliverableInstagramReel: {
			CPMFloor:         decimal.NewFromInt(18),
			CPMCeiling:       decimal.NewFromInt(26),
			LowRateThreshold: decimal.NewFromInt(12),
		},
	}
	e := NewEngine(models.DefaultRateCard(), cards)

	tests := []struct {
		name string
		d    models.DeliverableType
		pref RatePreference
		want string
	}{
		{name: "override floor", d: models.DeliverableInstagramReel, pref: PreferFloor, want: "1800"},
		{name: "override ceiling", d: models.DeliverableInstagramReel, pref: PreferCeiling, want: "2600"},
		{name: "override midpoint", d: models.DeliverableInstagramReel, pref: PreferMidpoint, want: "2200"},
		{name: "default card fallback", d: models.DeliverableTikTokVideo, pref: PreferMidpoint, want: "2500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CalculateDeliverableRate(tt.d, 100000, tt.pref)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}

	_, err := e.CalculateDeliverableRate(models.DeliverableTikTokVideo, 100000, RatePreference("bogus"))
	assert.Error(t, err)
}

func TestEvaluateProposedRate(t *testing.T) {
	floor := decimal.NewFromInt(20)
	ceiling := decimal.NewFromInt(30)
	low := decimal.NewFromInt(15)

	tests := []struct {
		name         string
		proposed     string
		views        int64
		wantBoundary Boundary
		wantEscalate bool
		wantWarning  bool
	}{
		{name: "within range", proposed: "1200", views: 50000, wantBoundary: BoundaryWithinRange},
		{name: "exactly at ceiling stays within range", proposed: "1500", views: 50000, wantBoundary: BoundaryWithinRange},
		{name: "exactly at floor stays within range", proposed: "1000", views: 50000, wantBoundary: BoundaryWithinRange},
		{name: "over ceiling escalates", proposed: "1800", views: 50000, wantBoundary: BoundaryExceedsCeiling, wantEscalate: true, wantWarning: true},
		{name: "below floor above low", proposed: "900", views: 50000, wantBoundary: BoundaryBelowFloor},
		{name: "suspiciously low warns without escalating", proposed: "500", views: 50000, wantBoundary: BoundarySuspiciouslyLow, wantWarning: true},
		{name: "exactly at low threshold is below floor", proposed: "750", views: 50000, wantBoundary: BoundaryBelowFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := EvaluateProposedRate(decimal.RequireFromString(tt.proposed), tt.views, floor, ceiling, low)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBoundary, res.Boundary)
			assert.Equal(t, tt.wantEscalate, res.ShouldEscalate)
			if tt.wantWarning {
				assert.NotEmpty(t, res.Warning)
			} else {
				assert.Empty(t, res.Warning)
			}
		})
	}
}

func TestEvaluateProposedRateWarningText(t *testing.T) {
	res, err := EvaluateProposedRate(decimal.NewFromInt(1800), 50000, decimal.NewFromInt(20), decimal.NewFromInt(30), decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.Equal(t, BoundaryExceedsCeiling, res.Boundary)
	assert.True(t, decimal.NewFromInt(36).Equal(res.CPM), "got %s", res.CPM)
	assert.Contains(t, res.Warning, "$36.00 CPM")
	assert.Contains(t, res.Warning, "$30.00 ceiling")
}

func TestEvaluateProposedRateInvalidViews(t *testing.T) {
	_, err := EvaluateProposedRate(decimal.NewFromInt(1200), 0, decimal.NewFromInt(20), decimal.NewFromInt(30), decimal.NewFromInt(15))
	assert.Error(t, err)
}

func TestEngineEvaluateUsesCard(t *testing.T) {
	cards := models.RateCards{
		models.DeliverableYouTubeDedicated: {
			CPMFloor:         decimal.NewFromInt(25),
			CPMCeiling:       decimal.NewFromInt(40),
			LowRateThreshold: decimal.NewFromInt(18),
		},
	}
	e := NewEngine(models.DefaultRateCard(), cards)

	// 35 CPM exceeds the default ceiling but sits inside the dedicated-video card.
	res, err := e.Evaluate(decimal.NewFromInt(3500), 100000, models.DeliverableYouTubeDedicated)
	require.NoError(t, err)
	assert.Equal(t, BoundaryWithinRange, res.Boundary)

	res, err = e.Evaluate(decimal.NewFromInt(3500), 100000, models.DeliverableTikTokVideo)
	require.NoError(t, err)
	assert.Equal(t, BoundaryExceedsCeiling, res.Boundary)
}
