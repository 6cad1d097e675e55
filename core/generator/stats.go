package generator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/regiondispatch/core/model"
)

// PeriodStats aggregates the catalog for one time period.
type PeriodStats struct {
	Period model.TimePeriod `json:"period"`
	// TotalCalls is the expected number of calls across the region.
	TotalCalls float64 `json:"total_calls"`
	// MeanZoneCalls and StdDevZoneCalls describe the spread across zones.
	MeanZoneCalls   float64 `json:"mean_zone_calls"`
	StdDevZoneCalls float64 `json:"stddev_zone_calls"`
	OptimumPatrols  int     `json:"optimum_patrols"`
	// AverageInterval is the simulated time between two calls; zero when no
	// call is expected.
	AverageInterval time.Duration `json:"average_interval"`
}

func computeStats(zones []*model.Zone, callsPerPatrol int) map[model.TimePeriod]PeriodStats {
	out := make(map[model.TimePeriod]PeriodStats, len(model.Periods))
	for _, p := range model.Periods {
		counts := make([]float64, len(zones))
		for i, z := range zones {
			counts[i] = float64(z.CallsDuring(p))
		}
		st := PeriodStats{Period: p}
		if len(counts) > 0 {
			st.TotalCalls = floats.Sum(counts)
			st.MeanZoneCalls, st.StdDevZoneCalls = stat.MeanStdDev(counts, nil)
			if math.IsNaN(st.StdDevZoneCalls) {
				st.StdDevZoneCalls = 0
			}
		}
		if st.TotalCalls > 0 {
			st.OptimumPatrols = int(math.Ceil(st.TotalCalls / float64(callsPerPatrol)))
			st.AverageInterval = time.Duration(float64(model.PeriodLength) / st.TotalCalls)
		}
		out[p] = st
	}
	return out
}

// delayRange derives the [min,max] delay for an average interval scaled by
// the crime level, clamped so it never reaches past the period boundary.
// ok is false when generation should pause.
func delayRange(avg time.Duration, level model.CrimeLevel, jitter float64, floor, untilNext time.Duration) (lo, hi time.Duration, ok bool) {
	mult := level.IntervalMultiplier()
	if avg <= 0 || mult <= 0 {
		return 0, 0, false
	}
	scaled := float64(avg) * mult
	lo = time.Duration(scaled * (1 - jitter))
	hi = time.Duration(scaled * (1 + jitter))
	if lo < floor {
		lo = floor
	}
	if hi < lo {
		hi = lo
	}
	if untilNext > 0 {
		if hi > untilNext {
			hi = untilNext
		}
		if lo > hi {
			lo = hi
		}
	}
	return lo, hi, true
}
