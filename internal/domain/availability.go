package domain

import (
	"math"
	"time"
)

// SalesAvailabilityReport содержит продажи и наличие товара за период.
// Значение пересчитывается по запросу и не сохраняется.
type SalesAvailabilityReport struct {
	AvailabilityInDays int
	SalesQuantity      int
	PeriodDays         int
	StartDate          time.Time
	EndDate            time.Time
	// Продажи экстраполированы на весь период.
	IsTheoretical bool
}

type windowStats struct {
	inStockDays int
	quantity    int
	start       time.Time
	end         time.Time
}

// representative: товар был в наличии не меньше половины окна.
func (w windowStats) representative(days int) bool {
	return w.inStockDays*2 >= days
}

// SalesAvailability восстанавливает продажи за окно в windowDays дней, заканчивающееся днём now.
//
// 1. Текущее окно: если товар был в наличии не меньше половины окна, возвращаются точные
// данные (всё окно в наличии) или экстраполяция round(q/d*w).
// 2. Иначе то же для предыдущего окна; результат всегда теоретический.
// 3. Иначе сырые суммы обоих окон за период 2*w.
func (p *Product) SalesAvailability(now time.Time, windowDays int) (SalesAvailabilityReport, error) {
	if windowDays <= 0 {
		return SalesAvailabilityReport{}, ErrWindowInvalid
	}

	end := Day(now)
	curStart := end.AddDate(0, 0, -(windowDays - 1))
	current := p.windowStats(curStart, end)

	if current.representative(windowDays) {
		report := SalesAvailabilityReport{
			AvailabilityInDays: current.inStockDays,
			SalesQuantity:      current.quantity,
			PeriodDays:         windowDays,
			StartDate:          current.start,
			EndDate:            current.end,
		}
		if current.inStockDays != windowDays {
			report.SalesQuantity = extrapolate(current, windowDays)
			report.IsTheoretical = true
		}
		return report, nil
	}

	pastEnd := curStart.AddDate(0, 0, -1)
	past := p.windowStats(pastEnd.AddDate(0, 0, -(windowDays-1)), pastEnd)
	if past.representative(windowDays) {
		return SalesAvailabilityReport{
			AvailabilityInDays: past.inStockDays,
			SalesQuantity:      extrapolate(past, windowDays),
			PeriodDays:         windowDays,
			StartDate:          past.start,
			EndDate:            past.end,
			IsTheoretical:      true,
		}, nil
	}

	return SalesAvailabilityReport{
		AvailabilityInDays: current.inStockDays + past.inStockDays,
		SalesQuantity:      current.quantity + past.quantity,
		PeriodDays:         windowDays * 2,
		StartDate:          past.start,
		EndDate:            current.end,
		IsTheoretical:      false,
	}, nil
}

// windowStats считает дни в наличии и продажи в этих днях на отрезке [start, end].
func (p *Product) windowStats(start, end time.Time) windowStats {
	stats := windowStats{start: start, end: end}
	for _, s := range p.sales {
		if !s.InStock || s.Date.Before(start) || s.Date.After(end) {
			continue
		}
		stats.inStockDays++
		stats.quantity += s.Quantity
	}
	return stats
}

// extrapolate защищён от деления на ноль проверкой representative.
func extrapolate(w windowStats, days int) int {
	if w.inStockDays == 0 {
		return 0
	}
	return int(math.Round(float64(w.quantity) / float64(w.inStockDays) * float64(days)))
}
