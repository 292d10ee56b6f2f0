package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterops/internal/domain/models"
	"charterops/internal/utils"
)

func TestTariffOneWayPerKm(t *testing.T) {
	f := newFixture(t)
	q, err := f.tariff.Quote(f.ctx, QuoteRequest{
		Lines:      []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}},
		DistanceKm: 100,
		HireTypeID: f.oneWay.ID,
		StartTime:  at(8),
		EndTime:    at(12),
	})
	require.NoError(t, err)
	assert.Equal(t, models.HireOneWay, q.HireType)
	assert.Equal(t, utils.Money(105000000), q.Total)
	assert.Equal(t, "1050000.00", q.Total.String())
}

func TestTariffFormulas(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		req  QuoteRequest
		want float64
	}{
		{
			name: "one way with highway",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.bus.ID, Quantity: 2}}, DistanceKm: 100,
				UseHighway: true, HireTypeID: f.oneWay.ID, StartTime: at(8), EndTime: at(12)},
			want: (100*10000+50000)*2 + 20000*2,
		},
		{
			name: "round trip same day uses fixed price",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}}, DistanceKm: 100,
				HireTypeID: f.round.ID, StartTime: at(8), EndTime: at(20)},
			want: 800000 + 50000 + 30000,
		},
		{
			name: "round trip over night doubles distance",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}}, DistanceKm: 100,
				HireTypeID: f.round.ID, StartTime: at(8), EndTime: at(32)},
			want: 2*100*10000 + 50000 + 30000,
		},
		{
			name: "daily charter counts started days with holiday multiplier",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}}, HireTypeID: f.daily.ID,
				IsHoliday: true, StartTime: at(8), EndTime: at(55)},
			want: 800000*1.5*2 + 50000,
		},
		{
			name: "unknown hire type falls back to per km",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.van.ID, Quantity: 3}}, DistanceKm: 10,
				HireTypeID: 999, StartTime: at(8), EndTime: at(9)},
			want: (10*5000 + 20000) * 3,
		},
		{
			name: "negative distance is clamped",
			req: QuoteRequest{Lines: []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}}, DistanceKm: -40,
				HireTypeID: f.oneWay.ID, StartTime: at(8), EndTime: at(9)},
			want: 50000,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.tariff.Price(f.ctx, tc.req)
			require.NoError(t, err)
			assert.Equal(t, utils.MoneyFromFloat(tc.want), got)
		})
	}
}

func TestTariffSkipsInactiveAndMissingPricing(t *testing.T) {
	f := newFixture(t)
	limo := f.m.PutCategory(models.VehicleCategory{Name: "Limousine", Active: true})
	f.m.PutPricing(models.VehicleCategoryPricing{
		CategoryID: limo.ID, BaseFare: 999999, PricePerKm: 99999,
		EffectiveDate: monday.AddDate(0, -1, 0), Status: models.PricingInactive,
	})

	base := QuoteRequest{
		Lines:      []QuoteLine{{CategoryID: f.bus.ID, Quantity: 1}},
		DistanceKm: 100, HireTypeID: f.oneWay.ID, StartTime: at(8), EndTime: at(12),
	}
	alone, err := f.tariff.Price(f.ctx, base)
	require.NoError(t, err)

	mixed := base
	mixed.Lines = []QuoteLine{
		{CategoryID: f.bus.ID, Quantity: 1},
		{CategoryID: limo.ID, Quantity: 2},
		{CategoryID: 4242, Quantity: 1},
		{CategoryID: f.van.ID, Quantity: 0},
	}
	q, err := f.tariff.Quote(f.ctx, mixed)
	require.NoError(t, err)
	assert.Equal(t, alone, q.Total)
	require.Len(t, q.Lines, 4)
	assert.False(t, q.Lines[0].Skipped)
	assert.Equal(t, "pricing inactive", q.Lines[1].SkipReason)
	assert.Equal(t, "no pricing for category", q.Lines[2].SkipReason)
	assert.True(t, q.Lines[3].Skipped)
	assert.Zero(t, q.Lines[1].Amount)
}

func TestTariffUsesPricingEffectiveAtStart(t *testing.T) {
	f := newFixture(t)
	f.m.PutPricing(models.VehicleCategoryPricing{
		CategoryID: f.van.ID, BaseFare: 40000, PricePerKm: 5000,
		EffectiveDate: monday.AddDate(0, 0, 7), Status: models.PricingActive,
	})
	req := QuoteRequest{Lines: []QuoteLine{{CategoryID: f.van.ID, Quantity: 1}}, HireTypeID: f.oneWay.ID}

	req.StartTime, req.EndTime = at(8), at(9)
	before, err := f.tariff.Price(f.ctx, req)
	require.NoError(t, err)
	req.StartTime, req.EndTime = at(8).AddDate(0, 0, 7), at(9).AddDate(0, 0, 7)
	after, err := f.tariff.Price(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, utils.MoneyFromFloat(20000), before)
	assert.Equal(t, utils.MoneyFromFloat(40000), after)
}

func TestTariffIsDeterministicAndNonNegative(t *testing.T) {
	f := newFixture(t)
	for _, distance := range []float64{-10, 0, 0.333, 12.345, 1000} {
		req := QuoteRequest{
			Lines:      []QuoteLine{{CategoryID: f.bus.ID, Quantity: 2}, {CategoryID: f.van.ID, Quantity: 1}},
			DistanceKm: distance, HireTypeID: f.round.ID, IsWeekend: true,
			StartTime: at(8), EndTime: at(8).Add(26 * time.Hour),
		}
		first, err := f.tariff.Price(f.ctx, req)
		require.NoError(t, err)
		second, err := f.tariff.Price(f.ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.GreaterOrEqual(t, int64(first), int64(0))
	}
}

func TestTariffTotalIsSumOfRoundedLines(t *testing.T) {
	f := newFixture(t)
	q, err := f.tariff.Quote(f.ctx, QuoteRequest{
		Lines:      []QuoteLine{{CategoryID: f.van.ID, Quantity: 1}, {CategoryID: f.van.ID, Quantity: 1}},
		DistanceKm: 0.000001, HireTypeID: f.oneWay.ID, StartTime: at(8), EndTime: at(9),
	})
	require.NoError(t, err)
	require.Len(t, q.Lines, 2)
	assert.Equal(t, utils.Money(2000001), q.Lines[0].Amount)
	assert.Equal(t, q.Lines[0].Amount+q.Lines[1].Amount, q.Total)
	assert.Equal(t, "40000.02", q.Total.String())
}
