package service

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/pipeline"
)

const topN = 10

// Summary aggregates the valid trips selected by q
func (s *QueryService) Summary(ctx context.Context, q domain.Query) (domain.Result[domain.Summary], error) {
	return cached[domain.Summary](ctx, s, "summary", q, q.Key(), func(ctx context.Context, snap *pipeline.Snapshot) (domain.Summary, int, error) {
		trips := selectTrips(snap, q)
		sum := summarize(trips, snap.Zones)
		sum.InvalidByReason = make(map[domain.Reason]int)
		for i := range snap.Invalid {
			rec := &snap.Invalid[i]
			if q.Includes(rec.Mode) && q.Window.Contains(rec.PickupTime) {
				sum.InvalidByReason[rec.Reason]++
				sum.InvalidTrips++
			}
		}
		return sum, len(trips), nil
	})
}

// CrossModal compares the hourly pickup profile of the selected modes
func (s *QueryService) CrossModal(ctx context.Context, q domain.Query) (domain.Result[domain.CrossModal], error) {
	return cached[domain.CrossModal](ctx, s, "cross_modal", q, q.Key(), func(ctx context.Context, snap *pipeline.Snapshot) (domain.CrossModal, int, error) {
		trips := selectTrips(snap, q)
		out := domain.CrossModal{Hourly: make(map[domain.Mode][]int)}
		for _, t := range trips {
			h, ok := out.Hourly[t.Record.Mode]
			if !ok {
				h = make([]int, 24)
				out.Hourly[t.Record.Mode] = h
			}
			h[t.Features.Hour]++
		}
		return out, len(trips), nil
	})
}

type modeAccumulator struct {
	trips, passengers int
	revenue           float64
	durations, fares  []float64
	speeds, distances []float64
}

func summarize(trips []*domain.EnrichedTrip, zones map[int]domain.Zone) domain.Summary {
	sum := domain.Summary{
		TotalTrips:          len(trips),
		ByMode:              make(map[domain.Mode]domain.ModeSummary),
		HourlyDistribution:  make([]int, 24),
		DailyDistribution:   make(map[string]int),
		MonthlyDistribution: make(map[int]int),
	}

	acc := make(map[domain.Mode]*modeAccumulator)
	pickups := make(map[int]int)
	dropoffs := make(map[int]int)
	lines := make(map[string]int)
	stations := make(map[string]int)

	for _, t := range trips {
		rec := t.Record
		a := acc[rec.Mode]
		if a == nil {
			a = &modeAccumulator{}
			acc[rec.Mode] = a
		}
		a.trips++
		if rec.PassengerCount != nil {
			a.passengers += *rec.PassengerCount
		}
		if t.Features.HasDuration && t.Features.Duration > 0 {
			a.durations = append(a.durations, t.Features.Duration.Minutes())
		}
		if rec.FareAmount != nil {
			a.fares = append(a.fares, *rec.FareAmount)
		}
		if t.Features.AvgSpeedMPH != nil {
			a.speeds = append(a.speeds, *t.Features.AvgSpeedMPH)
		}
		if rec.TripDistance != nil {
			a.distances = append(a.distances, *rec.TripDistance)
		}
		switch {
		case rec.TotalAmount != nil:
			a.revenue += *rec.TotalAmount
		case rec.FareAmount != nil:
			a.revenue += *rec.FareAmount
		}

		sum.HourlyDistribution[t.Features.Hour]++
		sum.DailyDistribution[t.Features.DayName]++
		sum.MonthlyDistribution[int(t.Features.Month)]++

		if t.PickupZone != nil {
			pickups[*t.PickupZone]++
		}
		if t.DropoffZone != nil {
			dropoffs[*t.DropoffZone]++
		}

		if rec.Mode == domain.ModeSubway {
			if rec.LineName != "" {
				lines[rec.LineName]++
			}
			if rec.StationName != "" {
				stations[rec.StationName]++
			}
			if rec.PassengerCount != nil {
				sum.SubwayEntries += *rec.PassengerCount
			}
		}
	}

	for mode, a := range acc {
		sum.ByMode[mode] = domain.ModeSummary{
			Trips:             a.trips,
			Passengers:        a.passengers,
			AvgDurationMin:    mean(a.durations),
			MedianDurationMin: median(a.durations),
			AvgFare:           mean(a.fares),
			MedianFare:        median(a.fares),
			AvgSpeedMPH:       mean(a.speeds),
			AvgDistance:       mean(a.distances),
			TotalRevenue:      a.revenue,
		}
	}

	sum.TopPickupZones = topZones(pickups, zones)
	sum.TopDropoffZones = topZones(dropoffs, zones)
	sum.SubwayLines = topNames(lines)
	sum.SubwayStations = topNames(stations)
	return sum
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}

// median is the empirical 0.5 quantile, the lower middle value for even
// counts
func median(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	m := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return &m
}

func topZones(counts map[int]int, zones map[int]domain.Zone) []domain.ZoneCount {
	out := make([]domain.ZoneCount, 0, len(counts))
	for id, n := range counts {
		zc := domain.ZoneCount{ZoneID: id, Count: n}
		if z, ok := zones[id]; ok {
			zc.Name = z.Name
			zc.Borough = z.Borough
		}
		out = append(out, zc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ZoneID < out[j].ZoneID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func topNames(counts map[string]int) []domain.NameCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]domain.NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
