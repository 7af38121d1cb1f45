package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

// withDailySales добавляет продажи на дни now-offset для offset из [from, to).
func withDailySales(t *testing.T, p *domain.Product, now time.Time, from, to, qty int, inStock bool) {
	t.Helper()
	for offset := from; offset < to; offset++ {
		require.NoError(t, p.MergeSales(domain.Sale{
			Quantity: qty,
			Date:     now.AddDate(0, 0, -offset),
			InStock:  inStock,
		}))
	}
}

func TestSalesAvailability_Cases(t *testing.T) {
	now := baseDay.Add(13 * time.Hour)
	const window = 30

	cases := []struct {
		name   string
		fill   func(t *testing.T, p *domain.Product)
		expect domain.SalesAvailabilityReport
	}{
		{
			name: "full window exact",
			fill: func(t *testing.T, p *domain.Product) {
				withDailySales(t, p, now, 0, 30, 2, true)
			},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 30, SalesQuantity: 60, PeriodDays: 30, IsTheoretical: false},
		},
		{
			name: "partial window extrapolated",
			fill: func(t *testing.T, p *domain.Product) {
				withDailySales(t, p, now, 0, 20, 3, true)
				withDailySales(t, p, now, 20, 30, 0, false)
			},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 20, SalesQuantity: 90, PeriodDays: 30, IsTheoretical: true},
		},
		{
			name: "half window is enough",
			fill: func(t *testing.T, p *domain.Product) {
				withDailySales(t, p, now, 0, 15, 1, true)
			},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 15, SalesQuantity: 30, PeriodDays: 30, IsTheoretical: true},
		},
		{
			name: "fallback to prior window",
			fill: func(t *testing.T, p *domain.Product) {
				withDailySales(t, p, now, 0, 5, 4, true)
				withDailySales(t, p, now, 30, 50, 1, true)
			},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 20, SalesQuantity: 30, PeriodDays: 30, IsTheoretical: true},
		},
		{
			name: "combined worst case",
			fill: func(t *testing.T, p *domain.Product) {
				withDailySales(t, p, now, 0, 5, 2, true)
				withDailySales(t, p, now, 30, 35, 1, true)
				withDailySales(t, p, now, 35, 60, 7, false)
			},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 10, SalesQuantity: 15, PeriodDays: 60, IsTheoretical: false},
		},
		{
			name:   "no history",
			fill:   func(t *testing.T, p *domain.Product) {},
			expect: domain.SalesAvailabilityReport{AvailabilityInDays: 0, SalesQuantity: 0, PeriodDays: 60, IsTheoretical: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := mustProduct(t, makeSnapshot("111", 5, 0))
			tc.fill(t, p)

			report, err := p.SalesAvailability(now, window)
			require.NoError(t, err)
			require.Equal(t, tc.expect.AvailabilityInDays, report.AvailabilityInDays)
			require.Equal(t, tc.expect.SalesQuantity, report.SalesQuantity)
			require.Equal(t, tc.expect.PeriodDays, report.PeriodDays)
			require.Equal(t, tc.expect.IsTheoretical, report.IsTheoretical)
		})
	}
}

func TestSalesAvailability_WindowBounds(t *testing.T) {
	now := baseDay
	p := mustProduct(t, makeSnapshot("111", 5, 0))
	// Продажи за пределами двух окон не учитываются.
	withDailySales(t, p, now, 0, 30, 1, true)
	withDailySales(t, p, now, 60, 90, 100, true)

	report, err := p.SalesAvailability(now, 30)
	require.NoError(t, err)
	require.Equal(t, 30, report.SalesQuantity)
	require.True(t, report.StartDate.Equal(baseDay.AddDate(0, 0, -29)))
	require.True(t, report.EndDate.Equal(baseDay))
}

func TestSalesAvailability_InvalidWindow(t *testing.T) {
	p := mustProduct(t, makeSnapshot("111", 5, 0))
	_, err := p.SalesAvailability(baseDay, 0)
	require.ErrorIs(t, err, domain.ErrWindowInvalid)
}

func TestSalesAvailability_ExtrapolationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("representative window is exact only when fully in stock", prop.ForAll(
		func(window int, fraction float64, perDay int, extra int) bool {
			half := (window + 1) / 2
			days := half + int(fraction*float64(window-half))
			if days > window {
				days = window
			}

			p, err := domain.NewProduct("p-prop", makeSnapshot("prop", 1, 0))
			if err != nil {
				return false
			}
			raw := 0
			for offset := 0; offset < days; offset++ {
				qty := perDay
				if offset == 0 {
					qty += extra
				}
				raw += qty
				if err := p.MergeSales(domain.Sale{Quantity: qty, Date: baseDay.AddDate(0, 0, -offset), InStock: true}); err != nil {
					return false
				}
			}

			report, err := p.SalesAvailability(baseDay, window)
			if err != nil {
				return false
			}
			if days == window {
				return !report.IsTheoretical && report.SalesQuantity == raw
			}
			want := int(math.Round(float64(raw) / float64(days) * float64(window)))
			return report.IsTheoretical && report.SalesQuantity == want && report.AvailabilityInDays == days
		},
		gen.IntRange(2, 60),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 20),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}
